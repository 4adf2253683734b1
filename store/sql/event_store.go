package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

const eventColumns = `id, external_id, event_type, payload, created_at`

// EventStore is the append-only event log. Rows are never updated.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*eventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	repo, err := newRepository(db, eventHandlers(), "event")
	if err != nil {
		return nil, err
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) AppendEvent(ctx context.Context, in core.NewEvent, now time.Time) (core.Event, bool, error) {
	if s == nil || s.db == nil {
		return core.Event{}, false, fmt.Errorf("sqlstore: event store is not configured")
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Event{}, false, err
	}
	var externalID *string
	if in.ExternalID != "" {
		value := in.ExternalID
		externalID = &value
	}
	createdAt := now.UTC()

	var records []eventRecord
	query := `
INSERT INTO webhook_events (external_id, event_type, payload, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (external_id) DO NOTHING
RETURNING ` + eventColumns
	if err := s.db.NewRaw(query, externalID, in.EventType, payloadText(in.Payload), createdAt).Scan(ctx, &records); err != nil {
		return core.Event{}, false, err
	}
	if len(records) > 0 {
		return records[0].toDomain(), true, nil
	}
	if externalID == nil {
		return core.Event{}, false, fmt.Errorf("sqlstore: event insert returned no row")
	}

	existing, err := s.findByExternalID(ctx, *externalID)
	if err != nil {
		return core.Event{}, false, err
	}
	return existing, false, nil
}

func (s *EventStore) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	if s == nil || s.repo == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	records, _, err := s.repo.List(ctx, byID(id), repository.SelectPaginate(1, 0))
	if err != nil {
		return core.Event{}, err
	}
	if len(records) == 0 {
		return core.Event{}, fmt.Errorf("%w: id %d", core.ErrEventNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *EventStore) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]core.Event, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.id > ?", afterID)
		}),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Event, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EventStore) MaxEventID(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	var maxID int64
	if err := s.db.NewRaw(`SELECT COALESCE(MAX(id), 0) FROM webhook_events`).Scan(ctx, &maxID); err != nil {
		return 0, err
	}
	return maxID, nil
}

func (s *EventStore) findByExternalID(ctx context.Context, externalID string) (core.Event, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Event{}, err
	}
	if len(records) == 0 {
		return core.Event{}, fmt.Errorf("%w: external id %q", core.ErrEventNotFound, externalID)
	}
	return records[0].toDomain(), nil
}
