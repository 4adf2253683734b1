package command

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-webhook-delivery/core"
)

const (
	TypeAppendEvent            = "webhooks.command.event.append"
	TypeCreateSubscription     = "webhooks.command.subscription.create"
	TypeVerifySubscription     = "webhooks.command.subscription.verify"
	TypeActivateSubscription   = "webhooks.command.subscription.activate"
	TypeDeactivateSubscription = "webhooks.command.subscription.deactivate"
	TypeRequeueDeadLetter      = "webhooks.command.dead_letter.requeue"
)

type AppendEventMessage struct {
	Event core.NewEvent
}

func (AppendEventMessage) Type() string { return TypeAppendEvent }

func (m AppendEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.EventType) == "" {
		return commandValidationError("event_type", "event type is required")
	}
	if len(m.Event.Payload) > 0 && !json.Valid(m.Event.Payload) {
		return commandValidationError("payload", "payload must be valid json")
	}
	return nil
}

type CreateSubscriptionMessage struct {
	Subscription core.NewSubscription
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Subscription.EventType) == "" {
		return commandValidationError("event_type", "event type is required")
	}
	if err := core.ValidateCallbackURL(m.Subscription.CallbackURL); err != nil {
		return commandValidationError("callback_url", err.Error())
	}
	return nil
}

type VerifySubscriptionMessage struct {
	SubscriptionID int64
}

func (VerifySubscriptionMessage) Type() string { return TypeVerifySubscription }

func (m VerifySubscriptionMessage) Validate() error {
	return validateID("subscription_id", m.SubscriptionID)
}

type ActivateSubscriptionMessage struct {
	SubscriptionID int64
}

func (ActivateSubscriptionMessage) Type() string { return TypeActivateSubscription }

func (m ActivateSubscriptionMessage) Validate() error {
	return validateID("subscription_id", m.SubscriptionID)
}

type DeactivateSubscriptionMessage struct {
	SubscriptionID int64
}

func (DeactivateSubscriptionMessage) Type() string { return TypeDeactivateSubscription }

func (m DeactivateSubscriptionMessage) Validate() error {
	return validateID("subscription_id", m.SubscriptionID)
}

type RequeueDeadLetterMessage struct {
	DeadLetterID int64
}

func (RequeueDeadLetterMessage) Type() string { return TypeRequeueDeadLetter }

func (m RequeueDeadLetterMessage) Validate() error {
	return validateID("dead_letter_id", m.DeadLetterID)
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return commandValidationError(field, "must be a positive id")
	}
	return nil
}
