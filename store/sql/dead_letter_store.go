package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

const deadLetterColumns = `id, saga_id, event_id, subscription_id, final_error_code, attempt_count, failed_at, payload_snapshot, created_at`

type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	repo, err := newRepository(db, deadLetterHandlers(), "dead letter")
	if err != nil {
		return nil, err
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

// CreateDeadLetter is idempotent per saga: a second call returns the
// existing snapshot with created=false.
func (s *DeadLetterStore) CreateDeadLetter(ctx context.Context, in core.DeadLetter) (core.DeadLetter, bool, error) {
	if s == nil || s.db == nil {
		return core.DeadLetter{}, false, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	if in.SagaID <= 0 || in.EventID <= 0 || in.SubscriptionID <= 0 {
		return core.DeadLetter{}, false, fmt.Errorf("sqlstore: dead letter saga, event and subscription ids are required")
	}
	failedAt := in.FailedAt.UTC()
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}
	createdAt := in.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = failedAt
	}

	var records []deadLetterRecord
	query := `
INSERT INTO webhook_dead_letters (saga_id, event_id, subscription_id, final_error_code, attempt_count, failed_at, payload_snapshot, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (saga_id) DO NOTHING
RETURNING ` + deadLetterColumns
	err := s.db.NewRaw(
		query,
		in.SagaID,
		in.EventID,
		in.SubscriptionID,
		in.FinalErrorCode,
		in.AttemptCount,
		failedAt,
		payloadText(in.PayloadSnapshot),
		createdAt,
	).Scan(ctx, &records)
	if err != nil {
		return core.DeadLetter{}, false, err
	}
	if len(records) > 0 {
		return records[0].toDomain(), true, nil
	}

	existing, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.saga_id = ?", in.SagaID)
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.DeadLetter{}, false, err
	}
	if len(existing) == 0 {
		return core.DeadLetter{}, false, fmt.Errorf("sqlstore: dead letter for saga %d conflicted but was not found", in.SagaID)
	}
	return existing[0].toDomain(), false, nil
}

func (s *DeadLetterStore) GetDeadLetter(ctx context.Context, id int64) (core.DeadLetter, error) {
	if s == nil || s.repo == nil {
		return core.DeadLetter{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	records, _, err := s.repo.List(ctx, byID(id), repository.SelectPaginate(1, 0))
	if err != nil {
		return core.DeadLetter{}, err
	}
	if len(records) == 0 {
		return core.DeadLetter{}, fmt.Errorf("%w: id %d", core.ErrDeadLetterNotFound, id)
	}
	return records[0].toDomain(), nil
}

// ListDeadLetters pages through snapshots, newest failure first.
func (s *DeadLetterStore) ListDeadLetters(ctx context.Context, limit int, offset int) (core.DeadLetterPage, error) {
	if s == nil || s.repo == nil {
		return core.DeadLetterPage{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	limit = batchLimit(limit)
	if offset < 0 {
		offset = 0
	}
	records, total, err := s.repo.List(ctx,
		repository.OrderBy("failed_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(limit, offset),
	)
	if err != nil {
		return core.DeadLetterPage{}, err
	}
	items := make([]core.DeadLetter, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeadLetterPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}
