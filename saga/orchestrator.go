// Package saga drives delivery sagas through their state machine. It is the
// only writer of saga rows and the only creator of jobs.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

const DefaultBatchSize = 100

type Config struct {
	BatchSize int
	Policy    core.RetryPolicy
}

func ConfigFrom(cfg core.OrchestratorConfig) Config {
	return Config{
		BatchSize: cfg.BatchSize,
		Policy:    cfg.RetryPolicy(),
	}
}

// Result describes what ApplyJobResult did with a job.
type Result string

const (
	ResultCompleted      Result = "completed"
	ResultRetryScheduled Result = "retry_scheduled"
	ResultDeadLettered   Result = "dead_lettered"
	ResultWaiting        Result = "waiting"
	ResultStale          Result = "stale"
	ResultSkipped        Result = "skipped"
)

type Stats struct {
	Started        int
	Retried        int
	Completed      int
	RetryScheduled int
	DeadLettered   int
	Reconciled     int
	Stale          int
	Errors         int
}

type Orchestrator struct {
	deps     core.OrchestratorDeps
	config   Config
	observer core.Observer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(deps core.OrchestratorDeps, config Config, observer core.Observer, opts ...Option) (*Orchestrator, error) {
	if deps.Sagas == nil {
		return nil, fmt.Errorf("saga: saga store is required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("saga: job reader is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	defaults := core.DefaultRetryPolicy()
	if config.Policy.MaxRetries <= 0 {
		config.Policy.MaxRetries = defaults.MaxRetries
	}
	if config.Policy.BaseDelay <= 0 {
		config.Policy.BaseDelay = defaults.BaseDelay
	}
	if config.Policy.MaxDelay <= 0 || config.Policy.MaxDelay > core.MaxRetryBackoff {
		config.Policy.MaxDelay = core.MaxRetryBackoff
	}
	orchestrator := &Orchestrator{
		deps:     deps,
		config:   config,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(orchestrator)
		}
	}
	return orchestrator, nil
}

func (o *Orchestrator) Tick(ctx context.Context) error {
	_, err := o.ProcessBatch(ctx)
	return err
}

// ProcessBatch runs one bounded pass over pending, retryable and in-flight
// sagas, then snapshots dead-lettered sagas still missing a dead letter.
// A failure on one saga is logged and never blocks the rest of the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (Stats, error) {
	if o == nil || o.deps.Sagas == nil {
		return Stats{}, fmt.Errorf("saga: orchestrator is not configured")
	}
	stats := Stats{}
	var listErr error

	if err := o.startPending(ctx, &stats); err != nil {
		listErr = errors.Join(listErr, err)
	}
	if err := o.startRetries(ctx, &stats); err != nil {
		listErr = errors.Join(listErr, err)
	}
	if err := o.applyResults(ctx, &stats); err != nil {
		listErr = errors.Join(listErr, err)
	}
	if err := o.reconcileDeadLetters(ctx, &stats); err != nil {
		listErr = errors.Join(listErr, err)
	}
	return stats, listErr
}

func (o *Orchestrator) startPending(ctx context.Context, stats *Stats) error {
	sagas, err := o.deps.Sagas.ListSagasByStatus(ctx, core.SagaPending, o.config.BatchSize)
	if err != nil {
		return fmt.Errorf("saga: list pending sagas: %w", err)
	}
	for _, saga := range sagas {
		if ctx.Err() != nil {
			return nil
		}
		_, started, err := o.StartAttempt(ctx, saga)
		if err != nil {
			stats.Errors++
			o.logSagaError(ctx, "start pending saga failed", saga, err)
			continue
		}
		if started {
			stats.Started++
		}
	}
	return nil
}

func (o *Orchestrator) startRetries(ctx context.Context, stats *Stats) error {
	sagas, err := o.deps.Sagas.ListRetryableSagas(ctx, o.now(), o.config.Policy.MaxRetries, o.config.BatchSize)
	if err != nil {
		return fmt.Errorf("saga: list retryable sagas: %w", err)
	}
	for _, saga := range sagas {
		if ctx.Err() != nil {
			return nil
		}
		_, started, err := o.StartAttempt(ctx, saga)
		if err != nil {
			stats.Errors++
			o.logSagaError(ctx, "start retry failed", saga, err)
			continue
		}
		if started {
			stats.Retried++
		}
	}
	return nil
}

func (o *Orchestrator) applyResults(ctx context.Context, stats *Stats) error {
	sagas, err := o.deps.Sagas.ListSagasByStatus(ctx, core.SagaInProgress, o.config.BatchSize)
	if err != nil {
		return fmt.Errorf("saga: list in-progress sagas: %w", err)
	}
	for _, saga := range sagas {
		if ctx.Err() != nil {
			return nil
		}
		result, err := o.ApplyLatestResult(ctx, saga)
		if err != nil {
			stats.Errors++
			o.logSagaError(ctx, "apply job result failed", saga, err)
			continue
		}
		switch result {
		case ResultCompleted:
			stats.Completed++
		case ResultRetryScheduled:
			stats.RetryScheduled++
		case ResultDeadLettered:
			stats.DeadLettered++
		case ResultStale:
			stats.Stale++
		}
	}
	return nil
}

func (o *Orchestrator) reconcileDeadLetters(ctx context.Context, stats *Stats) error {
	if o.deps.DeadLetters == nil {
		return nil
	}
	sagas, err := o.deps.Sagas.ListDeadLetteredWithoutSnapshot(ctx, o.config.BatchSize)
	if err != nil {
		return fmt.Errorf("saga: list dead-lettered sagas without snapshot: %w", err)
	}
	for _, saga := range sagas {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := o.deps.DeadLetters.Record(ctx, saga); err != nil {
			stats.Errors++
			o.logSagaError(ctx, "dead letter reconciliation failed", saga, err)
			continue
		}
		stats.Reconciled++
	}
	return nil
}

// StartAttempt moves a pending or due saga into flight and creates its job.
// started=false when the saga is not startable or another writer won.
func (o *Orchestrator) StartAttempt(ctx context.Context, saga core.Saga) (core.Job, bool, error) {
	now := o.now()
	switch {
	case saga.Status.Terminal():
		o.observer.Warn(ctx, "skipping terminal saga", sagaFields(saga))
		return core.Job{}, false, nil
	case saga.Status == core.SagaPendingRetry:
		if !saga.ReadyForRetry(now, o.config.Policy.MaxRetries) {
			return core.Job{}, false, nil
		}
	case saga.Status != core.SagaPending:
		return core.Job{}, false, nil
	}

	active, err := o.deps.Jobs.HasActiveJob(ctx, saga.ID)
	if err != nil {
		return core.Job{}, false, fmt.Errorf("check active job: %w", err)
	}
	if active {
		o.observer.Warn(ctx, "saga already has an active job", sagaFields(saga))
		return core.Job{}, false, nil
	}

	next, err := saga.Start(now)
	if err != nil {
		return core.Job{}, false, err
	}
	job, started, err := o.deps.Sagas.StartAttempt(ctx, saga, next)
	if err != nil {
		return core.Job{}, false, err
	}
	if !started {
		o.observer.Debug(ctx, "saga start lost to a concurrent writer", sagaFields(saga))
		return core.Job{}, false, nil
	}
	fields := sagaFields(next)
	fields["job_id"] = job.ID
	fields["from"] = string(saga.Status)
	o.observer.Info(ctx, "saga attempt started", fields)
	o.observer.Count(ctx, core.MetricSagaJobsCreated, 1, map[string]string{"from": string(saga.Status)})
	return job, true, nil
}

// ApplyLatestResult applies the newest terminal job of an in-flight saga.
func (o *Orchestrator) ApplyLatestResult(ctx context.Context, saga core.Saga) (Result, error) {
	if saga.Status != core.SagaInProgress {
		return o.skip(ctx, saga), nil
	}
	jobs, err := o.deps.Jobs.ListTerminalJobs(ctx, saga.ID)
	if err != nil {
		return "", fmt.Errorf("list terminal jobs: %w", err)
	}
	if len(jobs) == 0 {
		return ResultWaiting, nil
	}
	return o.ApplyJobResult(ctx, saga, jobs[0])
}

// ApplyJobResult applies job to saga. The job must be the result of the
// saga's current attempt: no attempt may be in flight, job must be the
// newest terminal job, and the saga must have counted every earlier attempt
// (terminal jobs == AttemptCount+1). Anything else is discarded as stale.
func (o *Orchestrator) ApplyJobResult(ctx context.Context, saga core.Saga, job core.Job) (Result, error) {
	if saga.Status.Terminal() || saga.Status != core.SagaInProgress {
		return o.skip(ctx, saga), nil
	}
	if job.SagaID != saga.ID {
		return "", core.InvariantViolation("job %d belongs to saga %d, not %d", job.ID, job.SagaID, saga.ID)
	}
	if !job.Status.Terminal() {
		return ResultWaiting, nil
	}

	active, err := o.deps.Jobs.HasActiveJob(ctx, saga.ID)
	if err != nil {
		return "", fmt.Errorf("check active job: %w", err)
	}
	if active {
		return ResultWaiting, nil
	}
	jobs, err := o.deps.Jobs.ListTerminalJobs(ctx, saga.ID)
	if err != nil {
		return "", fmt.Errorf("list terminal jobs: %w", err)
	}
	if len(jobs) == 0 || jobs[0].ID != job.ID || len(jobs) != saga.AttemptCount+1 {
		fields := sagaFields(saga)
		fields["job_id"] = job.ID
		fields["terminal_jobs"] = len(jobs)
		o.observer.Warn(ctx, "discarding stale job result", fields)
		return ResultStale, nil
	}

	now := o.now()
	var next core.Saga
	switch job.Status {
	case core.JobCompleted:
		next, err = saga.Complete(now)
	default:
		next, err = saga.Fail(job.ErrorCode, o.config.Policy, now)
	}
	if err != nil {
		return "", err
	}

	updated, err := o.deps.Sagas.UpdateSaga(ctx, saga, next)
	if err != nil {
		return "", err
	}
	if !updated {
		o.observer.Warn(ctx, "saga changed concurrently, result not applied", sagaFields(saga))
		return ResultStale, nil
	}

	fields := sagaFields(next)
	fields["job_id"] = job.ID
	switch next.Status {
	case core.SagaCompleted:
		o.observer.Info(ctx, "saga completed", fields)
		o.observer.Count(ctx, core.MetricSagaCompleted, 1, nil)
		return ResultCompleted, nil
	case core.SagaPendingRetry:
		if next.NextAttemptAt != nil {
			fields["next_attempt_at"] = next.NextAttemptAt.Format(time.RFC3339)
		}
		fields["error_code"] = job.ErrorCode
		o.observer.Info(ctx, "saga retry scheduled", fields)
		o.observer.Count(ctx, core.MetricSagaRetryScheduled, 1, map[string]string{"error_code": job.ErrorCode})
		return ResultRetryScheduled, nil
	default:
		fields["final_error_code"] = next.FinalErrorCode
		o.observer.Warn(ctx, "saga dead-lettered", fields)
		o.observer.Count(ctx, core.MetricSagaDeadLettered, 1, map[string]string{"error_code": next.FinalErrorCode})
		o.recordDeadLetter(ctx, next)
		return ResultDeadLettered, nil
	}
}

// recordDeadLetter snapshots the saga. Failures leave the saga dead-lettered
// and are picked up by reconciliation.
func (o *Orchestrator) recordDeadLetter(ctx context.Context, saga core.Saga) {
	if o.deps.DeadLetters == nil {
		return
	}
	if _, err := o.deps.DeadLetters.Record(ctx, saga); err != nil {
		o.logSagaError(ctx, "dead letter snapshot failed", saga, err)
	}
}

func (o *Orchestrator) skip(ctx context.Context, saga core.Saga) Result {
	if saga.Status.Terminal() {
		o.observer.Warn(ctx, "skipping terminal saga", sagaFields(saga))
	}
	return ResultSkipped
}

func (o *Orchestrator) logSagaError(ctx context.Context, message string, saga core.Saga, err error) {
	fields := sagaFields(saga)
	fields["error"] = err.Error()
	if errors.Is(err, core.ErrInvariantViolation) {
		fields["invariant_violation"] = true
	}
	o.observer.Error(ctx, message, fields)
}

func sagaFields(saga core.Saga) map[string]any {
	return map[string]any{
		"saga_id":         saga.ID,
		"event_id":        saga.EventID,
		"subscription_id": saga.SubscriptionID,
		"status":          string(saga.Status),
		"attempt_count":   saga.AttemptCount,
	}
}

var _ core.Ticker = (*Orchestrator)(nil)
