package core

import (
	"context"
	"fmt"
	"time"
)

const (
	ComponentRouter       = "router"
	ComponentOrchestrator = "orchestrator"
	ComponentWorker       = "worker"
	ComponentLeaseCleaner = "lease_cleaner"
)

type TickEvent struct {
	Component     string
	Instance      string
	CorrelationID string
	Tick          int
	StartedAt     time.Time
	Duration      time.Duration
	Err           error
}

// TickHook observes the lifecycle of polling ticks.
type TickHook interface {
	OnTickStart(ctx context.Context, event TickEvent)
	OnTickSuccess(ctx context.Context, event TickEvent)
	OnTickFailure(ctx context.Context, event TickEvent)
}

// Ticker is one unit of background work. Errors are per-tick and never stop
// the loop.
type Ticker interface {
	Tick(ctx context.Context) error
}

type TickFunc func(ctx context.Context) error

func (f TickFunc) Tick(ctx context.Context) error {
	return f(ctx)
}

type LoopConfig struct {
	Component string
	Instance  string
	Interval  time.Duration
}

// Loop runs a Ticker until its context is cancelled, sleeping Interval
// between ticks. Cancellation is observed between ticks; the current tick is
// allowed to finish.
type Loop struct {
	config   LoopConfig
	ticker   Ticker
	hooks    []TickHook
	observer Observer
	now      func() time.Time
}

func NewLoop(config LoopConfig, ticker Ticker, observer Observer, hooks ...TickHook) (*Loop, error) {
	if ticker == nil {
		return nil, fmt.Errorf("core: loop ticker is required")
	}
	if config.Component == "" {
		return nil, fmt.Errorf("core: loop component is required")
	}
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	filtered := make([]TickHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			filtered = append(filtered, hook)
		}
	}
	return &Loop{
		config:   config,
		ticker:   ticker,
		hooks:    filtered,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.ticker == nil {
		return fmt.Errorf("core: loop is not configured")
	}
	l.observer.Info(ctx, "loop started", map[string]any{
		"component": l.config.Component,
		"instance":  l.config.Instance,
		"interval":  l.config.Interval.String(),
	})
	for tick := 1; ; tick++ {
		if ctx.Err() != nil {
			break
		}
		l.RunOnce(ctx, tick)
		if err := WaitWithContext(ctx, l.config.Interval); err != nil {
			break
		}
	}
	l.observer.Info(ctx, "loop stopped", map[string]any{
		"component": l.config.Component,
		"instance":  l.config.Instance,
	})
	return nil
}

// RunOnce executes a single tick with a fresh correlation id. Panics are
// converted into tick failures.
func (l *Loop) RunOnce(ctx context.Context, tick int) (err error) {
	event := TickEvent{
		Component:     l.config.Component,
		Instance:      l.config.Instance,
		CorrelationID: NewCorrelationID(),
		Tick:          tick,
		StartedAt:     l.now(),
	}
	tickCtx := WithCorrelationID(ctx, event.CorrelationID)
	for _, hook := range l.hooks {
		hook.OnTickStart(tickCtx, event)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: %s tick panicked: %v", l.config.Component, recovered)
		}
		event.Duration = l.now().Sub(event.StartedAt)
		event.Err = err
		if err != nil {
			l.observer.Error(tickCtx, "tick failed", map[string]any{
				"component": l.config.Component,
				"instance":  l.config.Instance,
				"tick":      tick,
				"error":     err.Error(),
			})
			for _, hook := range l.hooks {
				hook.OnTickFailure(tickCtx, event)
			}
			return
		}
		for _, hook := range l.hooks {
			hook.OnTickSuccess(tickCtx, event)
		}
	}()

	return l.ticker.Tick(tickCtx)
}

func WaitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
