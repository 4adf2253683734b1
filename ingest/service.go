// Package ingest is the only writer of the event log.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

type EventStore interface {
	core.EventAppender
	core.EventGetter
}

// Result is the persisted event. Duplicate is set when the external id had
// already been ingested and the original row was returned.
type Result struct {
	Event     core.Event
	Duplicate bool
}

type Service struct {
	events   EventStore
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

func New(events EventStore, observer core.Observer, opts ...Option) (*Service, error) {
	if events == nil {
		return nil, fmt.Errorf("ingest: event store is required")
	}
	service := &Service{
		events:   events,
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

func (s *Service) Append(ctx context.Context, in core.NewEvent) (Result, error) {
	if s == nil || s.events == nil {
		return Result{}, fmt.Errorf("ingest: service is not configured")
	}
	in = in.Normalize()
	if strings.TrimSpace(in.EventType) == "" {
		return Result{}, core.NewValidationError("event_type", "event type is required")
	}
	if !json.Valid(in.Payload) {
		return Result{}, core.NewValidationError("payload", "payload must be valid json")
	}

	event, created, err := s.events.AppendEvent(ctx, in, s.now())
	if err != nil {
		return Result{}, fmt.Errorf("ingest: append event: %w", err)
	}
	fields := map[string]any{
		"event_id":    event.ID,
		"event_type":  event.EventType,
		"external_id": event.ExternalID,
	}
	if !created {
		s.observer.Debug(ctx, "duplicate event ignored", fields)
		return Result{Event: event, Duplicate: true}, nil
	}
	s.observer.Info(ctx, "event ingested", fields)
	s.observer.Count(ctx, core.MetricEventsIngested, 1, map[string]string{"event_type": event.EventType})
	return Result{Event: event}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (core.Event, error) {
	if s == nil || s.events == nil {
		return core.Event{}, fmt.Errorf("ingest: service is not configured")
	}
	if id <= 0 {
		return core.Event{}, core.NewValidationError("id", "event id must be positive")
	}
	return s.events.GetEvent(ctx, id)
}
