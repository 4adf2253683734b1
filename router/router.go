// Package router fans appended events out into delivery sagas, one per
// eligible subscription, behind a durable cursor.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

const DefaultBatchSize = 100

type Config struct {
	BatchSize int
	// MaxEventFailures skips an event after that many consecutive failed
	// fan-outs. Zero never skips.
	MaxEventFailures int
}

func ConfigFrom(cfg core.RouterConfig) Config {
	return Config{
		BatchSize:        cfg.BatchSize,
		MaxEventFailures: cfg.MaxEventFailures,
	}
}

type Stats struct {
	Events       int
	Routed       int
	SagasCreated int
	Skipped      int
	Cursor       int64
}

type Router struct {
	deps     core.RouterDeps
	config   Config
	observer core.Observer
	now      func() time.Time

	mu       sync.Mutex
	cursor   int64
	loaded   bool
	failures map[int64]int
}

type Option func(*Router)

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func New(deps core.RouterDeps, config Config, observer core.Observer, opts ...Option) (*Router, error) {
	if deps.Events == nil {
		return nil, fmt.Errorf("router: event log reader is required")
	}
	if deps.Subscriptions == nil {
		return nil, fmt.Errorf("router: subscription reader is required")
	}
	if deps.Sagas == nil {
		return nil, fmt.Errorf("router: saga creator is required")
	}
	if deps.Cursor == nil {
		return nil, fmt.Errorf("router: cursor store is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.MaxEventFailures < 0 {
		config.MaxEventFailures = 0
	}
	router := &Router{
		deps:     deps,
		config:   config,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
		failures: map[int64]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router, nil
}

func (r *Router) Tick(ctx context.Context) error {
	_, err := r.RouteBatch(ctx)
	return err
}

// Cursor returns the in-memory cursor as of the last tick.
func (r *Router) Cursor() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// RouteBatch routes the next batch of events in id order. The cursor moves
// past an event only after every eligible subscription has a saga.
func (r *Router) RouteBatch(ctx context.Context) (Stats, error) {
	if r == nil {
		return Stats{}, fmt.Errorf("router: router is not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.syncCursor(ctx); err != nil {
		return Stats{}, err
	}
	stats := Stats{Cursor: r.cursor}

	events, err := r.deps.Events.ListEventsAfter(ctx, r.cursor, r.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("router: list events after %d: %w", r.cursor, err)
	}
	if len(events) == 0 {
		r.observer.Debug(ctx, "router idle", map[string]any{"cursor": r.cursor})
		return stats, nil
	}

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		stats.Events++
		created, routeErr := r.routeEvent(ctx, event)
		stats.SagasCreated += created
		if routeErr != nil {
			if !r.recordFailure(ctx, event, routeErr) {
				stats.Cursor = r.cursor
				return stats, fmt.Errorf("router: event %d not routed: %w", event.ID, routeErr)
			}
			stats.Skipped++
		} else {
			stats.Routed++
		}
		if err := r.advance(ctx, event.ID); err != nil {
			stats.Cursor = r.cursor
			return stats, err
		}
	}
	stats.Cursor = r.cursor
	return stats, nil
}

// syncCursor adopts the persisted cursor. A persisted value behind the
// in-memory one wins, so a manual reset replays instead of skipping.
func (r *Router) syncCursor(ctx context.Context) error {
	persisted, found, err := r.deps.Cursor.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("router: load cursor: %w", err)
	}
	if !found {
		maxID, err := r.deps.Events.MaxEventID(ctx)
		if err != nil {
			return fmt.Errorf("router: read max event id: %w", err)
		}
		persisted, err = r.deps.Cursor.InitCursor(ctx, maxID, r.now())
		if err != nil {
			return fmt.Errorf("router: init cursor: %w", err)
		}
		r.observer.Info(ctx, "router cursor initialized", map[string]any{"cursor": persisted})
	}
	if r.loaded && persisted < r.cursor {
		r.observer.Warn(ctx, "router cursor reset behind memory", map[string]any{
			"persisted": persisted,
			"in_memory": r.cursor,
		})
	}
	r.cursor = persisted
	r.loaded = true
	return nil
}

func (r *Router) routeEvent(ctx context.Context, event core.Event) (int, error) {
	subscriptions, err := r.deps.Subscriptions.ListEligibleSubscriptions(ctx, event.EventType)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions for %q: %w", event.EventType, err)
	}
	if len(subscriptions) == 0 {
		r.observer.Debug(ctx, "event has no eligible subscriptions", map[string]any{
			"event_id":   event.ID,
			"event_type": event.EventType,
		})
		return 0, nil
	}

	created := 0
	var routeErr error
	for _, subscription := range subscriptions {
		saga, isNew, err := r.deps.Sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, r.now())
		if err != nil {
			routeErr = errors.Join(routeErr, fmt.Errorf("subscription %d: %w", subscription.ID, err))
			continue
		}
		if isNew {
			created++
			r.observer.Info(ctx, "saga created", map[string]any{
				"saga_id":         saga.ID,
				"event_id":        event.ID,
				"subscription_id": subscription.ID,
			})
		}
	}
	r.observer.Count(ctx, core.MetricRoutingSagasCreated, int64(created), map[string]string{
		"event_type": event.EventType,
	})
	return created, routeErr
}

// recordFailure counts a failed fan-out and reports whether the event should
// be skipped.
func (r *Router) recordFailure(ctx context.Context, event core.Event, cause error) bool {
	r.failures[event.ID]++
	attempts := r.failures[event.ID]
	fields := map[string]any{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"failures":   attempts,
		"error":      cause.Error(),
	}
	r.observer.Count(ctx, core.MetricRoutingErrors, 1, map[string]string{"event_type": event.EventType})

	if r.config.MaxEventFailures == 0 || attempts < r.config.MaxEventFailures {
		r.observer.Error(ctx, "event fan-out failed", fields)
		return false
	}
	r.observer.Error(ctx, "skipping poison event", fields)
	r.observer.Count(ctx, core.MetricRoutingPoisonSkipped, 1, map[string]string{
		"event_type": event.EventType,
		"event_id":   strconv.FormatInt(event.ID, 10),
	})
	return true
}

func (r *Router) advance(ctx context.Context, eventID int64) error {
	if _, err := r.deps.Cursor.SaveCursor(ctx, eventID, r.now()); err != nil {
		return fmt.Errorf("router: save cursor %d: %w", eventID, err)
	}
	delete(r.failures, eventID)
	if eventID > r.cursor {
		r.cursor = eventID
	}
	return nil
}

var _ core.Ticker = (*Router)(nil)
