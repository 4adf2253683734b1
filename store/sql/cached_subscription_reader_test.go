package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-delivery/core"
)

type stubSubscriptionBackend struct {
	mu            sync.Mutex
	subscriptions []core.Subscription
	eligibleCalls int
	eligibleErr   error
}

func (s *stubSubscriptionBackend) ListEligibleSubscriptions(_ context.Context, eventType string) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligibleCalls++
	if s.eligibleErr != nil {
		return nil, s.eligibleErr
	}
	out := []core.Subscription{}
	for _, subscription := range s.subscriptions {
		if subscription.EventType == eventType && subscription.Eligible() {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *stubSubscriptionBackend) GetSubscription(_ context.Context, id int64) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subscription := range s.subscriptions {
		if subscription.ID == id {
			return subscription, nil
		}
	}
	return core.Subscription{}, core.ErrSubscriptionNotFound
}

func (s *stubSubscriptionBackend) CreateSubscription(_ context.Context, in core.NewSubscription, now time.Time) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := core.Subscription{
		ID:          int64(len(s.subscriptions) + 1),
		EventType:   in.EventType,
		CallbackURL: in.CallbackURL,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.subscriptions = append(s.subscriptions, created)
	return created, nil
}

func (s *stubSubscriptionBackend) ListSubscriptions(context.Context, core.SubscriptionFilter) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Subscription(nil), s.subscriptions...), nil
}

func (s *stubSubscriptionBackend) SetSubscriptionActive(_ context.Context, id int64, active bool, now time.Time) (core.Subscription, error) {
	return s.update(id, func(sub *core.Subscription) { sub.Active = active; sub.UpdatedAt = now })
}

func (s *stubSubscriptionBackend) SetSubscriptionVerified(_ context.Context, id int64, verified bool, now time.Time) (core.Subscription, error) {
	return s.update(id, func(sub *core.Subscription) { sub.Verified = verified; sub.UpdatedAt = now })
}

func (s *stubSubscriptionBackend) update(id int64, apply func(*core.Subscription)) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == id {
			apply(&s.subscriptions[i])
			return s.subscriptions[i], nil
		}
	}
	return core.Subscription{}, core.ErrSubscriptionNotFound
}

func (s *stubSubscriptionBackend) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eligibleCalls
}

func TestCachedSubscriptionReader_MissFetchThenHit(t *testing.T) {
	ctx := context.Background()
	base := &stubSubscriptionBackend{subscriptions: []core.Subscription{
		{ID: 1, EventType: "order.created", CallbackURL: "https://a.example.com", Active: true, Verified: true},
		{ID: 2, EventType: "order.created", CallbackURL: "https://b.example.com", Active: true, Verified: false},
	}}
	reader, err := NewCachedSubscriptionReader(base, newTestSubscriptionCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	first, err := reader.ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	second, err := reader.ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || second[0].ID != 1 {
		t.Fatalf("unexpected eligible subscriptions: %#v %#v", first, second)
	}
	if calls := base.calls(); calls != 1 {
		t.Fatalf("expected one backend fetch, got %d", calls)
	}
}

func TestCachedSubscriptionReader_WritesInvalidateEventType(t *testing.T) {
	ctx := context.Background()
	base := &stubSubscriptionBackend{subscriptions: []core.Subscription{
		{ID: 1, EventType: "order.created", CallbackURL: "https://a.example.com", Active: true, Verified: false},
	}}
	reader, err := NewCachedSubscriptionReader(base, newTestSubscriptionCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	eligible, err := reader.ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no eligible subscriptions before verification")
	}

	if _, err := reader.SetSubscriptionVerified(ctx, 1, true, time.Now().UTC()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	eligible, err = reader.ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("list after verify: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected verification to invalidate the cached entry, got %#v", eligible)
	}
	if calls := base.calls(); calls != 2 {
		t.Fatalf("expected two backend fetches, got %d", calls)
	}
}

func TestCachedSubscriptionReader_PropagatesFetchErrors(t *testing.T) {
	base := &stubSubscriptionBackend{eligibleErr: errors.New("database down")}
	reader, err := NewCachedSubscriptionReader(base, newTestSubscriptionCacheService(t))
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}
	if _, err := reader.ListEligibleSubscriptions(context.Background(), "order.created"); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, err := reader.ListEligibleSubscriptions(context.Background(), " "); err == nil {
		t.Fatalf("expected blank event type error")
	}
}

func TestEligibleSubscriptionsCacheKey_EscapesEventType(t *testing.T) {
	key, err := EligibleSubscriptionsCacheKey("billing/invoice paid")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	expected := "go-webhook-delivery::eligible_subscriptions::v1::billing%2Finvoice%20paid"
	if key != expected {
		t.Fatalf("expected %q, got %q", expected, key)
	}
}

func newTestSubscriptionCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	service, err := NewSubscriptionCacheService(time.Minute)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
