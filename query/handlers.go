package query

import (
	"context"

	"github.com/goliatone/go-webhook-delivery/core"
)

type EventReader interface {
	Get(ctx context.Context, id int64) (core.Event, error)
}

type SubscriptionReader interface {
	Get(ctx context.Context, id int64) (core.Subscription, error)
	List(ctx context.Context, filter core.SubscriptionFilter) ([]core.Subscription, error)
}

type DeadLetterReader interface {
	Get(ctx context.Context, id int64) (core.DeadLetter, error)
	List(ctx context.Context, limit, offset int) (core.DeadLetterPage, error)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.Event, error) {
	if q == nil || q.reader == nil {
		return core.Event{}, queryDependencyError("query: event reader is required")
	}
	event, err := q.reader.Get(ctx, msg.EventID)
	return event, queryError(err)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	subscription, err := q.reader.Get(ctx, msg.SubscriptionID)
	return subscription, queryError(err)
}

type ListSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListSubscriptionsQuery(reader SubscriptionReader) *ListSubscriptionsQuery {
	return &ListSubscriptionsQuery{reader: reader}
}

func (q *ListSubscriptionsQuery) Query(ctx context.Context, msg ListSubscriptionsMessage) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	subscriptions, err := q.reader.List(ctx, msg.Filter)
	return subscriptions, queryError(err)
}

type GetSagaQuery struct {
	reader core.SagaGetter
}

func NewGetSagaQuery(reader core.SagaGetter) *GetSagaQuery {
	return &GetSagaQuery{reader: reader}
}

func (q *GetSagaQuery) Query(ctx context.Context, msg GetSagaMessage) (core.Saga, error) {
	if q == nil || q.reader == nil {
		return core.Saga{}, queryDependencyError("query: saga reader is required")
	}
	saga, err := q.reader.GetSaga(ctx, msg.SagaID)
	return saga, queryError(err)
}

type GetDeadLetterQuery struct {
	reader DeadLetterReader
}

func NewGetDeadLetterQuery(reader DeadLetterReader) *GetDeadLetterQuery {
	return &GetDeadLetterQuery{reader: reader}
}

func (q *GetDeadLetterQuery) Query(ctx context.Context, msg GetDeadLetterMessage) (core.DeadLetter, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetter{}, queryDependencyError("query: dead letter reader is required")
	}
	deadLetter, err := q.reader.Get(ctx, msg.DeadLetterID)
	return deadLetter, queryError(err)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) (core.DeadLetterPage, error) {
	if q == nil || q.reader == nil {
		return core.DeadLetterPage{}, queryDependencyError("query: dead letter reader is required")
	}
	page, err := q.reader.List(ctx, msg.Limit, msg.Offset)
	return page, queryError(err)
}
