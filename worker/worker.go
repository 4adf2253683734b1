// Package worker leases pending jobs, performs the HTTP delivery and reports
// a terminal outcome. It has no write access to sagas: retry decisions belong
// to the orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/goliatone/go-webhook-delivery/core"
)

const (
	DefaultBatchSize     = 10
	DefaultLeaseDuration = 60 * time.Second
	DefaultHTTPTimeout   = 30 * time.Second
)

type Config struct {
	BatchSize     int
	LeaseDuration time.Duration
	HTTPTimeout   time.Duration
	// WorkerID tags log records. A random id is used when empty.
	WorkerID string
}

func ConfigFrom(cfg core.WorkerConfig) Config {
	return Config{
		BatchSize:     cfg.BatchSize,
		LeaseDuration: cfg.LeaseDuration(),
		HTTPTimeout:   cfg.HTTPTimeout(),
	}
}

type Stats struct {
	Acquired  int
	Completed int
	Failed    int
	LeaseLost int
	Errors    int
}

type Worker struct {
	deps      core.WorkerDeps
	deliverer core.Deliverer
	config    Config
	observer  core.Observer
	now       func() time.Time
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func New(deps core.WorkerDeps, deliverer core.Deliverer, config Config, observer core.Observer, opts ...Option) (*Worker, error) {
	if deps.Jobs == nil {
		return nil, fmt.Errorf("worker: job leaser is required")
	}
	if deps.Sagas == nil || deps.Events == nil || deps.Subscriptions == nil {
		return nil, fmt.Errorf("worker: saga, event and subscription readers are required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("worker: deliverer is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = DefaultLeaseDuration
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultHTTPTimeout
	}
	if config.WorkerID == "" {
		config.WorkerID = uuid.NewString()
	}
	w := &Worker{
		deps:      deps,
		deliverer: deliverer,
		config:    config,
		observer:  observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

func (w *Worker) ID() string {
	return w.config.WorkerID
}

func (w *Worker) Tick(ctx context.Context) error {
	_, err := w.ProcessBatch(ctx)
	return err
}

// ProcessBatch leases up to BatchSize jobs and works through them in order.
// Jobs are leased before any delivery starts.
func (w *Worker) ProcessBatch(ctx context.Context) (Stats, error) {
	if w == nil || w.deps.Jobs == nil {
		return Stats{}, fmt.Errorf("worker: worker is not configured")
	}
	now := w.now()
	jobs, err := w.deps.Jobs.AcquireJobs(ctx, w.config.BatchSize, now.Add(w.config.LeaseDuration), now)
	if err != nil {
		return Stats{}, fmt.Errorf("worker: acquire jobs: %w", err)
	}
	stats := Stats{Acquired: len(jobs)}
	if len(jobs) == 0 {
		return stats, nil
	}
	w.observer.Count(ctx, core.MetricJobsAcquired, int64(len(jobs)), nil)

	for _, job := range jobs {
		// Remaining leases expire and are reset by the lease cleaner.
		if ctx.Err() != nil {
			break
		}
		outcome, reported, err := w.Process(ctx, job)
		switch {
		case err != nil:
			stats.Errors++
			w.observer.Error(ctx, "job processing failed", w.jobFields(job, map[string]any{
				"error": err.Error(),
			}))
		case !reported:
			stats.LeaseLost++
		case outcome.Status == core.JobCompleted:
			stats.Completed++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

// Process resolves, delivers and reports one leased job. reported=false
// means the lease was lost before the outcome could be written. An error is
// returned only when the outcome could not be determined or stored; the job
// then stays leased until the cleaner resets it.
func (w *Worker) Process(ctx context.Context, job core.Job) (core.JobOutcome, bool, error) {
	if job.Status != core.JobLeased || job.LeaseToken == "" {
		return core.JobOutcome{}, false, core.InvariantViolation("job %d is not leased by this worker", job.ID)
	}

	request, outcome, err := w.resolve(ctx, job)
	if err != nil {
		return core.JobOutcome{}, false, err
	}
	if outcome == nil {
		delivered := w.deliver(ctx, job, request)
		outcome = &delivered
	}

	// Outcomes are written even when shutdown has started.
	reportCtx := context.WithoutCancel(ctx)
	reported, err := w.deps.Jobs.ReportJob(reportCtx, job, *outcome, w.now())
	if err != nil {
		return *outcome, false, fmt.Errorf("report job %d: %w", job.ID, err)
	}

	fields := w.jobFields(job, map[string]any{"job_status": string(outcome.Status)})
	if outcome.ResponseStatus != nil {
		fields["response_status"] = *outcome.ResponseStatus
	}
	if outcome.ErrorCode != "" {
		fields["error_code"] = outcome.ErrorCode
	}
	if !reported {
		w.observer.Warn(ctx, "job lease lost before report", fields)
		w.observer.Count(ctx, core.MetricJobsLeaseExpired, 1, nil)
		return *outcome, false, nil
	}
	if outcome.Status == core.JobCompleted {
		w.observer.Info(ctx, "job completed", fields)
		w.observer.Count(ctx, core.MetricJobsCompleted, 1, nil)
	} else {
		w.observer.Info(ctx, "job failed", fields)
		w.observer.Count(ctx, core.MetricJobsFailed, 1, map[string]string{"error_code": outcome.ErrorCode})
	}
	return *outcome, true, nil
}

// resolve loads the delivery inputs. A missing reference yields a failed
// outcome instead of a request.
func (w *Worker) resolve(ctx context.Context, job core.Job) (core.DeliveryRequest, *core.JobOutcome, error) {
	saga, err := w.deps.Sagas.GetSaga(ctx, job.SagaID)
	if err != nil {
		return w.missing(ctx, job, err, core.ErrSagaNotFound, core.ErrorCodeSagaNotFound)
	}
	event, err := w.deps.Events.GetEvent(ctx, saga.EventID)
	if err != nil {
		return w.missing(ctx, job, err, core.ErrEventNotFound, core.ErrorCodeEventNotFound)
	}
	subscription, err := w.deps.Subscriptions.GetSubscription(ctx, saga.SubscriptionID)
	if err != nil {
		return w.missing(ctx, job, err, core.ErrSubscriptionNotFound, core.ErrorCodeSubscriptionNotFound)
	}
	return core.DeliveryRequest{
		SagaID:      saga.ID,
		CallbackURL: subscription.CallbackURL,
		Payload:     event.PayloadSnapshot(),
		DeliveredAt: w.now(),
	}, nil, nil
}

func (w *Worker) missing(ctx context.Context, job core.Job, err error, sentinel error, code string) (core.DeliveryRequest, *core.JobOutcome, error) {
	if !errors.Is(err, sentinel) {
		return core.DeliveryRequest{}, nil, fmt.Errorf("resolve job %d: %w", job.ID, err)
	}
	w.observer.Warn(ctx, "job reference missing", w.jobFields(job, map[string]any{
		"error_code": code,
		"error":      err.Error(),
	}))
	outcome := core.FailedOutcome(code, nil)
	return core.DeliveryRequest{}, &outcome, nil
}

func (w *Worker) deliver(ctx context.Context, job core.Job, request core.DeliveryRequest) (outcome core.JobOutcome) {
	// In-flight deliveries finish or time out on shutdown.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.HTTPTimeout)
	defer cancel()

	started := w.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			w.observer.Error(ctx, "delivery panicked", w.jobFields(job, map[string]any{
				"panic": fmt.Sprint(recovered),
			}))
			outcome = core.FailedOutcome(core.ErrorCodeWorkerException, nil)
		}
	}()

	response, err := w.deliverer.Deliver(deliverCtx, request)
	elapsed := response.Duration
	if elapsed <= 0 {
		elapsed = w.now().Sub(started)
	}
	w.observer.Observe(ctx, core.MetricJobsDeliveryLatencyMS, float64(elapsed.Milliseconds()), nil)
	if err != nil {
		w.observer.Debug(ctx, "delivery error", w.jobFields(job, map[string]any{"error": err.Error()}))
	}
	return Classify(response, err)
}

func (w *Worker) jobFields(job core.Job, extra map[string]any) map[string]any {
	fields := map[string]any{
		"worker_id": w.config.WorkerID,
		"job_id":    job.ID,
		"saga_id":   job.SagaID,
	}
	for key, value := range extra {
		fields[key] = value
	}
	return fields
}

var _ core.Ticker = (*Worker)(nil)
