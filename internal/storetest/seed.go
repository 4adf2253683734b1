package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
	sqlstore "github.com/goliatone/go-webhook-delivery/store/sql"
)

// AppendEvent appends an event and fails the test on error.
func AppendEvent(t testing.TB, factory *sqlstore.RepositoryFactory, externalID, eventType, payload string) core.Event {
	t.Helper()
	event, _, err := factory.EventStore().AppendEvent(context.Background(), core.NewEvent{
		ExternalID: externalID,
		EventType:  eventType,
		Payload:    json.RawMessage(payload),
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	return event
}

// EligibleSubscription creates an active, verified subscription.
func EligibleSubscription(t testing.TB, factory *sqlstore.RepositoryFactory, eventType, callbackURL string) core.Subscription {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	store := factory.SubscriptionStore()
	created, err := store.CreateSubscription(ctx, core.NewSubscription{
		EventType:   eventType,
		CallbackURL: callbackURL,
	}, now)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	verified, err := store.SetSubscriptionVerified(ctx, created.ID, true, now)
	if err != nil {
		t.Fatalf("verify subscription: %v", err)
	}
	return verified
}

// Metrics records counters and histogram observations by name.
type Metrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
}

func NewMetrics() *Metrics {
	return &Metrics{counters: map[string]int64{}, histograms: map[string][]float64{}}
}

func (m *Metrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *Metrics) ObserveHistogram(_ context.Context, name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name] = append(m.histograms[name], value)
}

func (m *Metrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *Metrics) Observations(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.histograms[name]...)
}

var _ core.MetricsRecorder = (*Metrics)(nil)

// StartedSaga creates a saga for a new event and subscription, moves it in
// flight and returns it with its pending job.
func StartedSaga(t testing.TB, factory *sqlstore.RepositoryFactory, callbackURL string, payload string, now time.Time) (core.Saga, core.Job) {
	t.Helper()
	ctx := context.Background()
	event := AppendEvent(t, factory, "", "stock.changed", payload)
	subscription := EligibleSubscription(t, factory, "stock.changed", callbackURL)
	pending, _, err := factory.SagaStore().CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	inFlight, err := pending.Start(now)
	if err != nil {
		t.Fatalf("start saga: %v", err)
	}
	job, started, err := factory.SagaStore().StartAttempt(ctx, pending, inFlight)
	if err != nil || !started {
		t.Fatalf("start attempt: started=%v err=%v", started, err)
	}
	return inFlight, job
}
