package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-delivery/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.Event]                   = (*GetEventQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]     = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, []core.Subscription] = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[GetSagaMessage, core.Saga]                     = (*GetSagaQuery)(nil)
	_ gocmd.Querier[GetDeadLetterMessage, core.DeadLetter]         = (*GetDeadLetterQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, core.DeadLetterPage]   = (*ListDeadLettersQuery)(nil)
)
