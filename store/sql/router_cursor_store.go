package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

const routerOffsetID int64 = 1

// RouterCursorStore persists the router's last processed event id in a
// single-row table.
type RouterCursorStore struct {
	db *bun.DB
}

func NewRouterCursorStore(db *bun.DB) (*RouterCursorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RouterCursorStore{db: db}, nil
}

func (s *RouterCursorStore) LoadCursor(ctx context.Context) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, fmt.Errorf("sqlstore: router cursor store is not configured")
	}
	var records []routerOffsetRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id = ?", routerOffsetID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(records) == 0 {
		return 0, false, nil
	}
	return records[0].LastProcessedEventID, true, nil
}

func (s *RouterCursorStore) InitCursor(ctx context.Context, value int64, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: router cursor store is not configured")
	}
	if value < 0 {
		value = 0
	}
	if _, err := s.db.NewRaw(
		`INSERT INTO webhook_router_offsets (id, last_processed_event_id, updated_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		routerOffsetID,
		value,
		now.UTC(),
	).Exec(ctx); err != nil {
		return 0, err
	}
	cursor, found, err := s.LoadCursor(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("sqlstore: router cursor missing after init")
	}
	return cursor, nil
}

// SaveCursor never moves the cursor backwards. advanced=false when the
// persisted value is already at or beyond value.
func (s *RouterCursorStore) SaveCursor(ctx context.Context, value int64, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: router cursor store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*routerOffsetRecord)(nil)).
		Set("last_processed_event_id = ?", value).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", routerOffsetID).
		Where("last_processed_event_id < ?", value).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	_, found, err := s.LoadCursor(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		if _, err := s.InitCursor(ctx, value, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
