package core

import "context"

const (
	MetricEventsIngested        = "webhook.events.ingested"
	MetricRoutingSagasCreated   = "webhook.routing.sagas_created"
	MetricRoutingErrors         = "webhook.routing.errors"
	MetricRoutingPoisonSkipped  = "webhook.routing.poison_skipped"
	MetricSagaJobsCreated       = "webhook.sagas.jobs_created"
	MetricSagaCompleted         = "webhook.sagas.completed"
	MetricSagaRetryScheduled    = "webhook.sagas.retry_scheduled"
	MetricSagaDeadLettered      = "webhook.sagas.dead_lettered"
	MetricJobsAcquired          = "webhook.jobs.acquired"
	MetricJobsCompleted         = "webhook.jobs.completed"
	MetricJobsFailed            = "webhook.jobs.failed"
	MetricJobsLeaseExpired      = "webhook.jobs.lease_expired"
	MetricJobsDeliveryLatencyMS = "webhook.jobs.delivery_latency_ms"
	MetricDeadLettersCreated    = "webhook.dead_letters.created"
	MetricDeadLettersRequeued   = "webhook.dead_letters.requeued"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
