// Package delivery is the entry point for the webhook delivery core: type
// aliases for the domain, the command/query facade and the embedded schema.
package delivery

import "github.com/goliatone/go-webhook-delivery/core"

type Config = core.Config

type Event = core.Event
type NewEvent = core.NewEvent
type Subscription = core.Subscription
type NewSubscription = core.NewSubscription
type SubscriptionFilter = core.SubscriptionFilter
type Saga = core.Saga
type SagaStatus = core.SagaStatus
type Job = core.Job
type JobStatus = core.JobStatus
type DeadLetter = core.DeadLetter
type DeadLetterPage = core.DeadLetterPage
type RetryPolicy = core.RetryPolicy

type Observer = core.Observer
type MetricsRecorder = core.MetricsRecorder
type TickHook = core.TickHook

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewObserver(logger core.Logger, metrics MetricsRecorder) Observer {
	return core.NewObserver(logger, metrics)
}
