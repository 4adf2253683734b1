// Package subscriptions manages webhook subscriptions. A subscription only
// receives events once it is both active and verified.
package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

type Service struct {
	store    core.SubscriptionStore
	observer core.Observer
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps store. Pass the cached store shared with the router so writes
// invalidate its eligibility cache.
func New(store core.SubscriptionStore, observer core.Observer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("subscriptions: subscription store is required")
	}
	service := &Service{
		store:    store,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service, nil
}

// Create stores an active, unverified subscription.
func (s *Service) Create(ctx context.Context, in core.NewSubscription) (core.Subscription, error) {
	if s == nil || s.store == nil {
		return core.Subscription{}, fmt.Errorf("subscriptions: service is not configured")
	}
	in.EventType = strings.TrimSpace(in.EventType)
	in.CallbackURL = strings.TrimSpace(in.CallbackURL)
	if in.EventType == "" {
		return core.Subscription{}, core.NewValidationError("event_type", "event type is required")
	}
	if err := core.ValidateCallbackURL(in.CallbackURL); err != nil {
		return core.Subscription{}, core.NewValidationError("callback_url", err.Error())
	}
	created, err := s.store.CreateSubscription(ctx, in, s.now())
	if err != nil {
		return core.Subscription{}, fmt.Errorf("subscriptions: create: %w", err)
	}
	s.observer.Info(ctx, "subscription created", subscriptionFields(created))
	return created, nil
}

func (s *Service) Verify(ctx context.Context, id int64) (core.Subscription, error) {
	return s.update(ctx, id, "subscription verified", func(ctx context.Context, now time.Time) (core.Subscription, error) {
		return s.store.SetSubscriptionVerified(ctx, id, true, now)
	})
}

func (s *Service) Activate(ctx context.Context, id int64) (core.Subscription, error) {
	return s.update(ctx, id, "subscription activated", func(ctx context.Context, now time.Time) (core.Subscription, error) {
		return s.store.SetSubscriptionActive(ctx, id, true, now)
	})
}

// Deactivate stops routing new events. Sagas already created still deliver.
func (s *Service) Deactivate(ctx context.Context, id int64) (core.Subscription, error) {
	return s.update(ctx, id, "subscription deactivated", func(ctx context.Context, now time.Time) (core.Subscription, error) {
		return s.store.SetSubscriptionActive(ctx, id, false, now)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (core.Subscription, error) {
	if s == nil || s.store == nil {
		return core.Subscription{}, fmt.Errorf("subscriptions: service is not configured")
	}
	if id <= 0 {
		return core.Subscription{}, core.NewValidationError("id", "subscription id must be positive")
	}
	return s.store.GetSubscription(ctx, id)
}

func (s *Service) List(ctx context.Context, filter core.SubscriptionFilter) ([]core.Subscription, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("subscriptions: service is not configured")
	}
	filter.EventType = strings.TrimSpace(filter.EventType)
	return s.store.ListSubscriptions(ctx, filter)
}

func (s *Service) update(
	ctx context.Context,
	id int64,
	message string,
	apply func(context.Context, time.Time) (core.Subscription, error),
) (core.Subscription, error) {
	if s == nil || s.store == nil {
		return core.Subscription{}, fmt.Errorf("subscriptions: service is not configured")
	}
	if id <= 0 {
		return core.Subscription{}, core.NewValidationError("id", "subscription id must be positive")
	}
	updated, err := apply(ctx, s.now())
	if err != nil {
		return core.Subscription{}, err
	}
	s.observer.Info(ctx, message, subscriptionFields(updated))
	return updated, nil
}

func subscriptionFields(subscription core.Subscription) map[string]any {
	return map[string]any{
		"subscription_id": subscription.ID,
		"event_type":      subscription.EventType,
		"active":          subscription.Active,
		"verified":        subscription.Verified,
	}
}
