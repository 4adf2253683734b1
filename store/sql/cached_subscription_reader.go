package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-delivery/core"
)

const eligibleSubscriptionsCacheKeyPrefix = "go-webhook-delivery::eligible_subscriptions::v1"

// CachedSubscriptionReader fronts eligible-subscription lookups with a
// go-repository-cache service. Writes made through it invalidate the
// affected event type; writes made elsewhere become visible after the TTL.
type CachedSubscriptionReader struct {
	base  subscriptionBackend
	cache repositorycache.CacheService
}

type subscriptionBackend interface {
	core.SubscriptionStore
	core.EligibleSubscriptionReader
}

func NewCachedSubscriptionReader(
	base subscriptionBackend,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionReader{base: base, cache: cacheService}, nil
}

// NewSubscriptionCacheService builds the default cache service with ttl.
func NewSubscriptionCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// EligibleSubscriptionsCacheKey returns
// go-webhook-delivery::eligible_subscriptions::v1::<event_type> with the event
// type URL-path escaped.
func EligibleSubscriptionsCacheKey(eventType string) (string, error) {
	trimmed := strings.TrimSpace(eventType)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: event type is required")
	}
	return eligibleSubscriptionsCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (r *CachedSubscriptionReader) ListEligibleSubscriptions(ctx context.Context, eventType string) ([]core.Subscription, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	key, err := EligibleSubscriptionsCacheKey(eventType)
	if err != nil {
		return nil, err
	}
	subscriptions, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) ([]core.Subscription, error) {
		return r.base.ListEligibleSubscriptions(ctx, strings.TrimSpace(eventType))
	})
	if err != nil {
		return nil, err
	}
	return cloneSubscriptions(subscriptions), nil
}

func (r *CachedSubscriptionReader) GetSubscription(ctx context.Context, id int64) (core.Subscription, error) {
	if r == nil || r.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	return r.base.GetSubscription(ctx, id)
}

func (r *CachedSubscriptionReader) ListSubscriptions(ctx context.Context, filter core.SubscriptionFilter) ([]core.Subscription, error) {
	if r == nil || r.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	return r.base.ListSubscriptions(ctx, filter)
}

func (r *CachedSubscriptionReader) CreateSubscription(ctx context.Context, in core.NewSubscription, now time.Time) (core.Subscription, error) {
	if r == nil || r.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	created, err := r.base.CreateSubscription(ctx, in, now)
	if err != nil {
		return core.Subscription{}, err
	}
	return created, r.invalidate(ctx, created.EventType)
}

func (r *CachedSubscriptionReader) SetSubscriptionActive(ctx context.Context, id int64, active bool, now time.Time) (core.Subscription, error) {
	if r == nil || r.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	updated, err := r.base.SetSubscriptionActive(ctx, id, active, now)
	if err != nil {
		return core.Subscription{}, err
	}
	return updated, r.invalidate(ctx, updated.EventType)
}

func (r *CachedSubscriptionReader) SetSubscriptionVerified(ctx context.Context, id int64, verified bool, now time.Time) (core.Subscription, error) {
	if r == nil || r.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription reader is not configured")
	}
	updated, err := r.base.SetSubscriptionVerified(ctx, id, verified, now)
	if err != nil {
		return core.Subscription{}, err
	}
	return updated, r.invalidate(ctx, updated.EventType)
}

func (r *CachedSubscriptionReader) invalidate(ctx context.Context, eventType string) error {
	key, err := EligibleSubscriptionsCacheKey(eventType)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, key)
}

func cloneSubscriptions(in []core.Subscription) []core.Subscription {
	if in == nil {
		return nil
	}
	out := make([]core.Subscription, len(in))
	copy(out, in)
	return out
}
