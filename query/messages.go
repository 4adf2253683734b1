package query

import (
	"strings"

	"github.com/goliatone/go-webhook-delivery/core"
)

const (
	TypeGetEvent          = "webhooks.query.event.get"
	TypeGetSubscription   = "webhooks.query.subscription.get"
	TypeListSubscriptions = "webhooks.query.subscription.list"
	TypeGetSaga           = "webhooks.query.saga.get"
	TypeGetDeadLetter     = "webhooks.query.dead_letter.get"
	TypeListDeadLetters   = "webhooks.query.dead_letter.list"
)

type GetEventMessage struct {
	EventID int64
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	return validateID("event_id", m.EventID)
}

type GetSubscriptionMessage struct {
	SubscriptionID int64
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	return validateID("subscription_id", m.SubscriptionID)
}

type ListSubscriptionsMessage struct {
	Filter core.SubscriptionFilter
}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (m ListSubscriptionsMessage) Validate() error {
	if m.Filter.EventType != "" && strings.TrimSpace(m.Filter.EventType) == "" {
		return queryValidationError("event_type", "event type must not be blank")
	}
	return nil
}

type GetSagaMessage struct {
	SagaID int64
}

func (GetSagaMessage) Type() string { return TypeGetSaga }

func (m GetSagaMessage) Validate() error {
	return validateID("saga_id", m.SagaID)
}

type GetDeadLetterMessage struct {
	DeadLetterID int64
}

func (GetDeadLetterMessage) Type() string { return TypeGetDeadLetter }

func (m GetDeadLetterMessage) Validate() error {
	return validateID("dead_letter_id", m.DeadLetterID)
}

// ListDeadLettersMessage pages dead letters newest first. A zero limit uses
// the manager default; larger limits are clamped.
type ListDeadLettersMessage struct {
	Limit  int
	Offset int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	if m.Offset < 0 {
		return queryValidationError("offset", "offset must not be negative")
	}
	return nil
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return queryValidationError(field, "must be a positive id")
	}
	return nil
}
