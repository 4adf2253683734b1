// Package leasecleaner returns jobs whose lease expired to pending so another
// worker can claim them.
package leasecleaner

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

type Cleaner struct {
	leases   core.LeaseResetter
	observer core.Observer
	now      func() time.Time
}

type Option func(*Cleaner)

func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) {
		if now != nil {
			c.now = now
		}
	}
}

func New(leases core.LeaseResetter, observer core.Observer, opts ...Option) (*Cleaner, error) {
	if leases == nil {
		return nil, fmt.Errorf("leasecleaner: lease resetter is required")
	}
	cleaner := &Cleaner{
		leases:   leases,
		observer: observer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cleaner)
		}
	}
	return cleaner, nil
}

func (c *Cleaner) Tick(ctx context.Context) error {
	_, err := c.Sweep(ctx)
	return err
}

// Sweep resets every leased job whose lease ended before now and returns the
// number of jobs reset.
func (c *Cleaner) Sweep(ctx context.Context) (int64, error) {
	if c == nil || c.leases == nil {
		return 0, fmt.Errorf("leasecleaner: cleaner is not configured")
	}
	now := c.now()
	reset, err := c.leases.ResetExpiredLeases(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("leasecleaner: reset expired leases: %w", err)
	}
	if reset == 0 {
		c.observer.Debug(ctx, "no expired leases", nil)
		return 0, nil
	}
	c.observer.Warn(ctx, "expired leases reset", map[string]any{
		"jobs":  reset,
		"as_of": now.Format(time.RFC3339),
	})
	c.observer.Count(ctx, core.MetricJobsLeaseExpired, reset, nil)
	return reset, nil
}

var _ core.Ticker = (*Cleaner)(nil)
