package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goliatone/go-webhook-delivery/adapters/gocommand"
	"github.com/goliatone/go-webhook-delivery/app"
	webhookcommand "github.com/goliatone/go-webhook-delivery/command"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/ingest"
	webhookquery "github.com/goliatone/go-webhook-delivery/query"
	"github.com/spf13/cobra"
)

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "webhookd",
		Short:         "Webhook delivery orchestration",
		Long:          "webhookd routes events to subscriptions and delivers them with retries, leases and dead letters.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "log format: text|json")

	root.AddCommand(
		newMigrateCommand(c),
		newRunCommand(c),
		newEventsCommand(c),
		newSubscriptionsCommand(c),
		newDeadLettersCommand(c),
		newSagasCommand(c),
	)
	return root
}

func newMigrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			client, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			if err := app.Migrate(cmd.Context(), client, cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, "migrations applied")
			return nil
		},
	}
}

func newRunCommand(c *cli) *cobra.Command {
	var roles string
	var migrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the router, orchestrator, workers and lease cleaner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := app.ParseRoles(roles)
			if err != nil {
				return err
			}
			rt, err := c.openRuntime(cmd.Context(), migrate)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()
			return rt.Run(cmd.Context(), selected...)
		},
	}
	cmd.Flags().StringVar(&roles, "roles", "all", "comma separated roles: router,orchestrator,worker,lease_cleaner")
	cmd.Flags().IntVar(&c.workers, "workers", 0, "number of concurrent worker loops (defaults to worker.concurrency)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before starting")
	return cmd
}

func newEventsCommand(c *cli) *cobra.Command {
	events := &cobra.Command{Use: "events", Short: "Event log commands"}

	var eventType, externalID, payload string
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append an event to the log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				out, err := dispatchWithResult[ingest.Result](ctx, webhookcommand.AppendEventMessage{
					Event: core.NewEvent{
						ExternalID: externalID,
						EventType:  eventType,
						Payload:    json.RawMessage(payload),
					},
				})
				if err != nil {
					return err
				}
				return c.print(out)
			})
		},
	}
	appendCmd.Flags().StringVar(&eventType, "type", "", "event type")
	appendCmd.Flags().StringVar(&externalID, "external-id", "", "producer id used for deduplication")
	appendCmd.Flags().StringVar(&payload, "payload", "{}", "json payload")
	_ = appendCmd.MarkFlagRequired("type")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				return printQuery[webhookquery.GetEventMessage, core.Event](ctx, c, webhookquery.GetEventMessage{EventID: id})
			})
		},
	}

	events.AddCommand(appendCmd, getCmd)
	return events
}

func newSubscriptionsCommand(c *cli) *cobra.Command {
	subscriptions := &cobra.Command{Use: "subscriptions", Short: "Subscription management"}

	var eventType, callbackURL string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an unverified subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				out, err := dispatchWithResult[core.Subscription](ctx, webhookcommand.CreateSubscriptionMessage{
					Subscription: core.NewSubscription{EventType: eventType, CallbackURL: callbackURL},
				})
				if err != nil {
					return err
				}
				return c.print(out)
			})
		},
	}
	createCmd.Flags().StringVar(&eventType, "event-type", "", "event type to subscribe to")
	createCmd.Flags().StringVar(&callbackURL, "callback-url", "", "https callback url")

	var listEventType string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				return printQuery[webhookquery.ListSubscriptionsMessage, []core.Subscription](ctx, c, webhookquery.ListSubscriptionsMessage{
					Filter: core.SubscriptionFilter{EventType: listEventType},
				})
			})
		},
	}
	listCmd.Flags().StringVar(&listEventType, "event-type", "", "only list subscriptions for this event type")

	subscriptions.AddCommand(
		createCmd,
		listCmd,
		subscriptionUpdateCommand(c, "verify", "Mark a subscription verified", func(ctx context.Context, id int64) (core.Subscription, error) {
			return dispatchWithResult[core.Subscription](ctx, webhookcommand.VerifySubscriptionMessage{SubscriptionID: id})
		}),
		subscriptionUpdateCommand(c, "activate", "Activate a subscription", func(ctx context.Context, id int64) (core.Subscription, error) {
			return dispatchWithResult[core.Subscription](ctx, webhookcommand.ActivateSubscriptionMessage{SubscriptionID: id})
		}),
		subscriptionUpdateCommand(c, "deactivate", "Deactivate a subscription", func(ctx context.Context, id int64) (core.Subscription, error) {
			return dispatchWithResult[core.Subscription](ctx, webhookcommand.DeactivateSubscriptionMessage{SubscriptionID: id})
		}),
	)
	return subscriptions
}

func subscriptionUpdateCommand(
	c *cli,
	use string,
	short string,
	update func(ctx context.Context, id int64) (core.Subscription, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				out, err := update(ctx, id)
				if err != nil {
					return err
				}
				return c.print(out)
			})
		},
	}
}

func newDeadLettersCommand(c *cli) *cobra.Command {
	deadLetters := &cobra.Command{Use: "deadletters", Short: "Dead letter inspection and requeue"}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				return printQuery[webhookquery.ListDeadLettersMessage, core.DeadLetterPage](ctx, c, webhookquery.ListDeadLettersMessage{
					Limit:  limit,
					Offset: offset,
				})
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "page size (0 uses the configured default)")
	listCmd.Flags().IntVar(&offset, "offset", 0, "page offset")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a dead letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				return printQuery[webhookquery.GetDeadLetterMessage, core.DeadLetter](ctx, c, webhookquery.GetDeadLetterMessage{DeadLetterID: id})
			})
		},
	}

	requeueCmd := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Start a new saga for a dead-lettered delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				out, err := dispatchWithResult[core.Saga](ctx, webhookcommand.RequeueDeadLetterMessage{DeadLetterID: id})
				if err != nil {
					return err
				}
				return c.print(out)
			})
		},
	}

	deadLetters.AddCommand(listCmd, getCmd, requeueCmd)
	return deadLetters
}

func newSagasCommand(c *cli) *cobra.Command {
	sagas := &cobra.Command{Use: "sagas", Short: "Saga inspection"}
	sagas.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a saga",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withDispatcher(cmd.Context(), func(ctx context.Context) error {
				return printQuery[webhookquery.GetSagaMessage, core.Saga](ctx, c, webhookquery.GetSagaMessage{SagaID: id})
			})
		},
	})
	return sagas
}

func printQuery[M any, R any](ctx context.Context, c *cli, msg M) error {
	out, err := gocommand.Query[M, R](ctx, msg)
	if err != nil {
		return err
	}
	return c.print(out)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError("id", fmt.Sprintf("%q is not a positive id", raw))
	}
	return id, nil
}
