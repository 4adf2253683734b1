// Package deadletter records permanent delivery failures and requeues them as
// fresh sagas. Dead letter rows and the sagas they came from are never
// modified.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Config struct {
	DefaultListLimit int
	MaxListLimit     int
}

func ConfigFrom(cfg core.DeadLetterConfig) Config {
	return Config{
		DefaultListLimit: cfg.DefaultListLimit,
		MaxListLimit:     cfg.MaxListLimit,
	}
}

type Manager struct {
	deps     core.DeadLetterDeps
	config   Config
	observer core.Observer
	now      func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func New(deps core.DeadLetterDeps, config Config, observer core.Observer, opts ...Option) (*Manager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("deadletter: dead letter store is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("deadletter: event reader is required")
	}
	if deps.Sagas == nil {
		return nil, fmt.Errorf("deadletter: saga store is required")
	}
	if config.MaxListLimit <= 0 {
		config.MaxListLimit = MaxListLimit
	}
	if config.DefaultListLimit <= 0 {
		config.DefaultListLimit = DefaultListLimit
	}
	if config.DefaultListLimit > config.MaxListLimit {
		config.DefaultListLimit = config.MaxListLimit
	}
	manager := &Manager{
		deps:     deps,
		config:   config,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Record snapshots a dead-lettered saga together with its event payload.
// Calling it for any other status is a programming error.
func (m *Manager) Record(ctx context.Context, saga core.Saga) (core.DeadLetter, error) {
	if m == nil || m.deps.Store == nil {
		return core.DeadLetter{}, fmt.Errorf("deadletter: manager is not configured")
	}
	if saga.Status != core.SagaDeadLettered {
		return core.DeadLetter{}, core.InvariantViolation(
			"dead letter requested for saga %d in status %s", saga.ID, saga.Status,
		)
	}

	payload := json.RawMessage(`{}`)
	event, err := m.deps.Events.GetEvent(ctx, saga.EventID)
	switch {
	case err == nil:
		payload = event.PayloadSnapshot()
	case core.IsNotFound(err):
		m.observer.Warn(ctx, "dead letter event missing, storing empty payload", map[string]any{
			"saga_id":  saga.ID,
			"event_id": saga.EventID,
		})
	default:
		return core.DeadLetter{}, fmt.Errorf("deadletter: load event %d: %w", saga.EventID, err)
	}

	failedAt := saga.UpdatedAt.UTC()
	if failedAt.IsZero() {
		failedAt = m.now()
	}
	deadLetter, created, err := m.deps.Store.CreateDeadLetter(ctx, core.DeadLetter{
		SagaID:          saga.ID,
		EventID:         saga.EventID,
		SubscriptionID:  saga.SubscriptionID,
		FinalErrorCode:  saga.FinalErrorCode,
		AttemptCount:    saga.AttemptCount,
		FailedAt:        failedAt,
		PayloadSnapshot: payload,
		CreatedAt:       m.now(),
	})
	if err != nil {
		return core.DeadLetter{}, fmt.Errorf("deadletter: create for saga %d: %w", saga.ID, err)
	}
	if created {
		m.observer.Info(ctx, "dead letter recorded", map[string]any{
			"dead_letter_id":   deadLetter.ID,
			"saga_id":          saga.ID,
			"final_error_code": saga.FinalErrorCode,
			"attempt_count":    saga.AttemptCount,
		})
		m.observer.Count(ctx, core.MetricDeadLettersCreated, 1, map[string]string{
			"error_code": saga.FinalErrorCode,
		})
	}
	return deadLetter, nil
}

// Requeue starts a new pending saga for the dead letter's event and
// subscription. When the pair already has an active saga that saga is
// returned instead.
func (m *Manager) Requeue(ctx context.Context, deadLetterID int64) (core.Saga, error) {
	if m == nil || m.deps.Store == nil {
		return core.Saga{}, fmt.Errorf("deadletter: manager is not configured")
	}
	deadLetter, err := m.deps.Store.GetDeadLetter(ctx, deadLetterID)
	if err != nil {
		return core.Saga{}, err
	}
	saga, created, err := m.deps.Sagas.CreateSagaIfAbsent(ctx, deadLetter.EventID, deadLetter.SubscriptionID, m.now())
	if err != nil {
		return core.Saga{}, fmt.Errorf("deadletter: requeue %d: %w", deadLetterID, err)
	}
	fields := map[string]any{
		"dead_letter_id":  deadLetter.ID,
		"original_saga":   deadLetter.SagaID,
		"saga_id":         saga.ID,
		"event_id":        deadLetter.EventID,
		"subscription_id": deadLetter.SubscriptionID,
	}
	if !created {
		m.observer.Warn(ctx, "requeue found an active saga", fields)
		return saga, nil
	}
	m.observer.Info(ctx, "dead letter requeued", fields)
	m.observer.Count(ctx, core.MetricDeadLettersRequeued, 1, nil)
	return saga, nil
}

func (m *Manager) Get(ctx context.Context, id int64) (core.DeadLetter, error) {
	if m == nil || m.deps.Store == nil {
		return core.DeadLetter{}, fmt.Errorf("deadletter: manager is not configured")
	}
	return m.deps.Store.GetDeadLetter(ctx, id)
}

// List returns dead letters newest first. limit falls back to the default
// and is capped at the configured maximum.
func (m *Manager) List(ctx context.Context, limit, offset int) (core.DeadLetterPage, error) {
	if m == nil || m.deps.Store == nil {
		return core.DeadLetterPage{}, fmt.Errorf("deadletter: manager is not configured")
	}
	return m.deps.Store.ListDeadLetters(ctx, m.ClampLimit(limit), max(offset, 0))
}

func (m *Manager) ClampLimit(limit int) int {
	if limit <= 0 {
		return m.config.DefaultListLimit
	}
	if limit > m.config.MaxListLimit {
		return m.config.MaxListLimit
	}
	return limit
}

var _ core.DeadLetterRecorder = (*Manager)(nil)
