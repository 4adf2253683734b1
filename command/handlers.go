package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/ingest"
)

type EventIngester interface {
	Append(ctx context.Context, in core.NewEvent) (ingest.Result, error)
}

type SubscriptionManager interface {
	Create(ctx context.Context, in core.NewSubscription) (core.Subscription, error)
	Verify(ctx context.Context, id int64) (core.Subscription, error)
	Activate(ctx context.Context, id int64) (core.Subscription, error)
	Deactivate(ctx context.Context, id int64) (core.Subscription, error)
}

type DeadLetterRequeuer interface {
	Requeue(ctx context.Context, deadLetterID int64) (core.Saga, error)
}

type AppendEventCommand struct {
	service EventIngester
}

func NewAppendEventCommand(service EventIngester) *AppendEventCommand {
	return &AppendEventCommand{service: service}
}

func (c *AppendEventCommand) Execute(ctx context.Context, msg AppendEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event ingestion service is required")
	}
	out, err := c.service.Append(ctx, msg.Event)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

type CreateSubscriptionCommand struct {
	service SubscriptionManager
}

func NewCreateSubscriptionCommand(service SubscriptionManager) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{service: service}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Create(ctx, msg.Subscription)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

type VerifySubscriptionCommand struct {
	service SubscriptionManager
}

func NewVerifySubscriptionCommand(service SubscriptionManager) *VerifySubscriptionCommand {
	return &VerifySubscriptionCommand{service: service}
}

func (c *VerifySubscriptionCommand) Execute(ctx context.Context, msg VerifySubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Verify(ctx, msg.SubscriptionID)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

type ActivateSubscriptionCommand struct {
	service SubscriptionManager
}

func NewActivateSubscriptionCommand(service SubscriptionManager) *ActivateSubscriptionCommand {
	return &ActivateSubscriptionCommand{service: service}
}

func (c *ActivateSubscriptionCommand) Execute(ctx context.Context, msg ActivateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Activate(ctx, msg.SubscriptionID)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateSubscriptionCommand struct {
	service SubscriptionManager
}

func NewDeactivateSubscriptionCommand(service SubscriptionManager) *DeactivateSubscriptionCommand {
	return &DeactivateSubscriptionCommand{service: service}
}

func (c *DeactivateSubscriptionCommand) Execute(ctx context.Context, msg DeactivateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Deactivate(ctx, msg.SubscriptionID)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

type RequeueDeadLetterCommand struct {
	service DeadLetterRequeuer
}

func NewRequeueDeadLetterCommand(service DeadLetterRequeuer) *RequeueDeadLetterCommand {
	return &RequeueDeadLetterCommand{service: service}
}

func (c *RequeueDeadLetterCommand) Execute(ctx context.Context, msg RequeueDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	out, err := c.service.Requeue(ctx, msg.DeadLetterID)
	if err != nil {
		return commandError(err)
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
