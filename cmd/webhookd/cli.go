package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-delivery/adapters/gocommand"
	"github.com/goliatone/go-webhook-delivery/adapters/gojob"
	"github.com/goliatone/go-webhook-delivery/adapters/gologger"
	"github.com/goliatone/go-webhook-delivery/app"
	"github.com/goliatone/go-webhook-delivery/core"
)

type cli struct {
	stdout io.Writer
	stderr io.Writer

	logLevel  string
	logFormat string
	workers   int
}

func (c *cli) logger() *gologger.SlogLogger {
	return gologger.NewSlogLogger(gologger.SlogOptions{
		Format: c.logFormat,
		Level:  c.logLevel,
		Output: c.stderr,
	})
}

func (c *cli) loadConfig(ctx context.Context) (core.Config, error) {
	runtime := core.Config{}
	runtime.Worker.Concurrency = c.workers
	return core.LoadConfig(ctx, core.NewCfgxConfigProvider(envLoader{}), core.GoOptionsResolver{}, runtime)
}

// openRuntime builds a runtime whose loops report failed ticks through the
// go-job logger bridge.
func (c *cli) openRuntime(ctx context.Context, migrate bool) (*app.Runtime, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	root := c.logger()
	provider := gologger.NewSlogProvider(root)
	_, _, _, jobLogger := gologger.ResolveForJob(gologger.RootLoggerName+".jobs", provider, nil)
	return app.Setup(ctx, cfg, migrate,
		app.WithLoggerProvider(provider),
		app.WithTickHooks(gojob.NewTickHookAdapter(gojob.NewLoggingHook(jobLogger))),
	)
}

// withDispatcher opens a runtime, subscribes the management handlers to the
// go-command dispatcher and runs fn.
func (c *cli) withDispatcher(ctx context.Context, fn func(ctx context.Context) error) error {
	rt, err := c.openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()

	adapter := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	subs, err := rt.Facade().Register(adapter)
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		return err
	}
	return fn(ctx)
}

func dispatchWithResult[T any, M any](ctx context.Context, msg M) (T, error) {
	collector := gocmd.NewResult[T]()
	if err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		var zero T
		return zero, err
	}
	out, ok := collector.Load()
	if !ok {
		var zero T
		return zero, fmt.Errorf("webhookd: command produced no result")
	}
	return out, nil
}

func (c *cli) print(value any) error {
	encoder := json.NewEncoder(c.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
