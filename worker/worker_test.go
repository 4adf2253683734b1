package worker_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/internal/storetest"
	sqlstore "github.com/goliatone/go-webhook-delivery/store/sql"
	"github.com/goliatone/go-webhook-delivery/transport"
	"github.com/goliatone/go-webhook-delivery/webhooks"
	"github.com/goliatone/go-webhook-delivery/worker"
)

func TestWorker_DeliversAndReportsCompleted(t *testing.T) {
	ctx := context.Background()
	var verifyErr error
	var body []byte
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		verifyErr = webhooks.NewVerifier("shared-secret").Verify(r.Header, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := storetest.NewFactory(t)
	metrics := storetest.NewMetrics()
	saga, job := seedStartedSaga(t, factory, server.URL+"/hook")
	w := newWorker(t, factory.WorkerDeps(), transport.NewClient(
		transport.WithHTTPDoer(server.Client()),
		transport.WithSigningKey("shared-secret"),
	), metrics)

	stats, err := w.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Acquired != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if verifyErr != nil {
		t.Fatalf("receiver could not verify signature: %v", verifyErr)
	}
	envelope, err := webhooks.DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("decode delivered body: %v", err)
	}
	if envelope.SagaID != saga.ID || string(envelope.Payload) != `{"sku":"A-1"}` {
		t.Fatalf("unexpected envelope %#v", envelope)
	}

	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobCompleted || stored.ResponseStatus == nil || *stored.ResponseStatus != http.StatusOK {
		t.Fatalf("unexpected stored job %#v", stored)
	}
	if stored.LeaseUntil != nil {
		t.Fatalf("expected lease to be cleared")
	}

	// The worker never touches the saga row.
	unchanged, err := factory.SagaStore().GetSaga(ctx, saga.ID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if unchanged.Status != core.SagaInProgress || unchanged.AttemptCount != 0 {
		t.Fatalf("worker changed saga state: %#v", unchanged)
	}
	if metrics.Counter(core.MetricJobsCompleted) != 1 || len(metrics.Observations(core.MetricJobsDeliveryLatencyMS)) != 1 {
		t.Fatalf("expected completion metrics")
	}
}

func TestWorker_NonSuccessStatusFailsJob(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	factory := storetest.NewFactory(t)
	_, job := seedStartedSaga(t, factory, server.URL)
	w := newWorker(t, factory.WorkerDeps(), transport.NewClient(transport.WithHTTPDoer(server.Client())), nil)

	stats, err := w.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobFailed || stored.ErrorCode != "HTTP_503" {
		t.Fatalf("unexpected stored job %#v", stored)
	}
}

func TestWorker_MissingSubscriptionIsPermanentFailure(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	_, job := seedStartedSaga(t, factory, "https://receiver.example.com/hook")
	deps := factory.WorkerDeps()
	deps.Subscriptions = missingSubscriptions{}
	deliverer := &countingDeliverer{}

	w := newWorker(t, deps, deliverer, nil)
	stats, err := w.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Failed != 1 || deliverer.calls != 0 {
		t.Fatalf("expected failure without delivery, stats=%#v calls=%d", stats, deliverer.calls)
	}
	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobFailed || stored.ErrorCode != core.ErrorCodeSubscriptionNotFound {
		t.Fatalf("unexpected stored job %#v", stored)
	}
}

func TestWorker_StoreErrorLeavesJobLeased(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	_, job := seedStartedSaga(t, factory, "https://receiver.example.com/hook")
	deps := factory.WorkerDeps()
	deps.Events = brokenEvents{}

	w := newWorker(t, deps, &countingDeliverer{}, nil)
	stats, err := w.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Errors != 1 {
		t.Fatalf("expected one processing error, got %#v", stats)
	}
	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobLeased {
		t.Fatalf("expected job to stay leased for the cleaner, got %s", stored.Status)
	}
}

func TestWorker_LostLeaseIsNotReported(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	_, job := seedStartedSaga(t, factory, "https://receiver.example.com/hook")
	now := time.Now().UTC()

	leased, err := factory.JobStore().AcquireJobs(ctx, 1, now.Add(time.Second), now)
	if err != nil || len(leased) != 1 {
		t.Fatalf("acquire: %v (%d)", err, len(leased))
	}
	if _, err := factory.LeaseResetter().ResetExpiredLeases(ctx, now.Add(time.Minute)); err != nil {
		t.Fatalf("reset leases: %v", err)
	}

	deliverer := &countingDeliverer{response: core.DeliveryResponse{StatusCode: http.StatusOK}}
	w := newWorker(t, factory.WorkerDeps(), deliverer, nil)
	outcome, reported, err := w.Process(ctx, leased[0])
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reported {
		t.Fatalf("expected stale lease to be rejected")
	}
	if outcome.Status != core.JobCompleted {
		t.Fatalf("expected the delivery outcome to be returned, got %#v", outcome)
	}
	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobPending {
		t.Fatalf("expected reset job to stay pending, got %s", stored.Status)
	}

	if _, _, err := w.Process(ctx, core.Job{ID: job.ID, Status: core.JobPending}); !errors.Is(err, core.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation for an unleased job, got %v", err)
	}
}

func TestWorker_PanickingDelivererReportsWorkerException(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	_, job := seedStartedSaga(t, factory, "https://receiver.example.com/hook")

	w := newWorker(t, factory.WorkerDeps(), panickingDeliverer{}, nil)
	stats, err := w.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	stored, err := factory.JobStore().GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.ErrorCode != core.ErrorCodeWorkerException {
		t.Fatalf("expected WORKER_EXCEPTION, got %q", stored.ErrorCode)
	}
}

func TestClassify(t *testing.T) {
	status := func(code int) core.DeliveryResponse { return core.DeliveryResponse{StatusCode: code} }
	cases := []struct {
		name     string
		response core.DeliveryResponse
		err      error
		status   core.JobStatus
		code     string
	}{
		{name: "2xx", response: status(204), status: core.JobCompleted},
		{name: "4xx", response: status(404), status: core.JobFailed, code: "HTTP_404"},
		{name: "5xx", response: status(500), status: core.JobFailed, code: "HTTP_500"},
		{name: "redirect", response: status(302), status: core.JobFailed, code: "HTTP_302"},
		{name: "deadline", err: context.DeadlineExceeded, status: core.JobFailed, code: core.ErrorCodeTimeout},
		{name: "transport", err: &url.Error{Op: "Post", URL: "https://x", Err: errors.New("refused")}, status: core.JobFailed, code: core.ErrorCodeHTTPRequestFailed},
		{name: "delivery error", err: &transport.DeliveryError{Code: core.ErrorCodeTimeout}, status: core.JobFailed, code: core.ErrorCodeTimeout},
		{name: "other", err: errors.New("boom"), status: core.JobFailed, code: core.ErrorCodeWorkerException},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := worker.Classify(tc.response, tc.err)
			if outcome.Status != tc.status || outcome.ErrorCode != tc.code {
				t.Fatalf("expected %s/%q, got %#v", tc.status, tc.code, outcome)
			}
		})
	}
}

func newWorker(t *testing.T, deps core.WorkerDeps, deliverer core.Deliverer, metrics core.MetricsRecorder) *worker.Worker {
	t.Helper()
	w, err := worker.New(deps, deliverer, worker.Config{BatchSize: 5, HTTPTimeout: 5 * time.Second}, core.NewObserver(nil, metrics))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func seedStartedSaga(t *testing.T, factory *sqlstore.RepositoryFactory, callbackURL string) (core.Saga, core.Job) {
	t.Helper()
	return storetest.StartedSaga(t, factory, callbackURL, `{"sku":"A-1"}`, time.Now().UTC())
}

type countingDeliverer struct {
	calls    int
	response core.DeliveryResponse
	err      error
}

func (d *countingDeliverer) Deliver(context.Context, core.DeliveryRequest) (core.DeliveryResponse, error) {
	d.calls++
	return d.response, d.err
}

type panickingDeliverer struct{}

func (panickingDeliverer) Deliver(context.Context, core.DeliveryRequest) (core.DeliveryResponse, error) {
	panic("encoder exploded")
}

type missingSubscriptions struct{}

func (missingSubscriptions) GetSubscription(_ context.Context, id int64) (core.Subscription, error) {
	return core.Subscription{}, errors.Join(core.ErrSubscriptionNotFound, errors.New("deleted"))
}

type brokenEvents struct{}

func (brokenEvents) GetEvent(context.Context, int64) (core.Event, error) {
	return core.Event{}, errors.New("connection reset")
}
