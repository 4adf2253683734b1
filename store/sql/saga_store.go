package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

const sagaColumns = `id, event_id, subscription_id, status, attempt_count, next_attempt_at, final_error_code, created_at, updated_at`

type SagaStore struct {
	db   *bun.DB
	repo repository.Repository[*sagaRecord]
}

func NewSagaStore(db *bun.DB) (*SagaStore, error) {
	repo, err := newRepository(db, sagaHandlers(), "saga")
	if err != nil {
		return nil, err
	}
	return &SagaStore{db: db, repo: repo}, nil
}

func (s *SagaStore) GetSaga(ctx context.Context, id int64) (core.Saga, error) {
	if s == nil || s.repo == nil {
		return core.Saga{}, fmt.Errorf("sqlstore: saga store is not configured")
	}
	records, _, err := s.repo.List(ctx, byID(id), repository.SelectPaginate(1, 0))
	if err != nil {
		return core.Saga{}, err
	}
	if len(records) == 0 {
		return core.Saga{}, fmt.Errorf("%w: id %d", core.ErrSagaNotFound, id)
	}
	return records[0].toDomain(), nil
}

// CreateSagaIfAbsent relies on the partial unique index over
// (event_id, subscription_id) for non-dead-lettered rows.
func (s *SagaStore) CreateSagaIfAbsent(ctx context.Context, eventID, subscriptionID int64, now time.Time) (core.Saga, bool, error) {
	if s == nil || s.db == nil {
		return core.Saga{}, false, fmt.Errorf("sqlstore: saga store is not configured")
	}
	if eventID <= 0 || subscriptionID <= 0 {
		return core.Saga{}, false, fmt.Errorf("sqlstore: event id and subscription id are required")
	}
	createdAt := now.UTC()

	var out core.Saga
	var created bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var records []sagaRecord
		query := `
INSERT INTO webhook_delivery_sagas (event_id, subscription_id, status, attempt_count, next_attempt_at, final_error_code, created_at, updated_at)
VALUES (?, ?, ?, 0, NULL, '', ?, ?)
ON CONFLICT (event_id, subscription_id) WHERE status <> 'dead_lettered' DO NOTHING
RETURNING ` + sagaColumns
		if err := tx.NewRaw(query, eventID, subscriptionID, string(core.SagaPending), createdAt, createdAt).Scan(ctx, &records); err != nil {
			return err
		}
		if len(records) > 0 {
			out = records[0].toDomain()
			created = true
			return nil
		}

		existing, err := activeSagaTx(ctx, tx, eventID, subscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("sqlstore: saga for event %d subscription %d conflicted but was not found", eventID, subscriptionID)
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Saga{}, false, err
	}
	return out, created, nil
}

func (s *SagaStore) ListSagasByStatus(ctx context.Context, status core.SagaStatus, limit int) ([]core.Saga, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: saga store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(batchLimit(limit), 0),
	)
	if err != nil {
		return nil, err
	}
	return sagasToDomain(records), nil
}

func (s *SagaStore) ListRetryableSagas(ctx context.Context, now time.Time, maxRetries int, limit int) ([]core.Saga, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: saga store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.SagaPendingRetry)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.next_attempt_at IS NOT NULL").
				Where("?TableAlias.next_attempt_at <= ?", now.UTC()).
				Where("?TableAlias.attempt_count < ?", maxRetries)
		}),
		repository.OrderBy("next_attempt_at ASC"),
		repository.SelectPaginate(batchLimit(limit), 0),
	)
	if err != nil {
		return nil, err
	}
	return sagasToDomain(records), nil
}

// ListDeadLetteredWithoutSnapshot finds dead-lettered sagas whose dead
// letter write never landed.
func (s *SagaStore) ListDeadLetteredWithoutSnapshot(ctx context.Context, limit int) ([]core.Saga, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: saga store is not configured")
	}
	var records []*sagaRecord
	query := `
SELECT s.id, s.event_id, s.subscription_id, s.status, s.attempt_count, s.next_attempt_at, s.final_error_code, s.created_at, s.updated_at
FROM webhook_delivery_sagas AS s
LEFT JOIN webhook_dead_letters AS d ON d.saga_id = s.id
WHERE s.status = ?
  AND d.id IS NULL
ORDER BY s.id ASC
LIMIT ?`
	if err := s.db.NewRaw(query, string(core.SagaDeadLettered), batchLimit(limit)).Scan(ctx, &records); err != nil {
		return nil, err
	}
	return sagasToDomain(records), nil
}

// StartAttempt moves the saga from -> next and inserts the pending job inside
// one transaction. Losing the compare-and-set or finding an active job
// rolls everything back and reports started=false.
func (s *SagaStore) StartAttempt(ctx context.Context, from core.Saga, next core.Saga) (core.Job, bool, error) {
	if s == nil || s.db == nil {
		return core.Job{}, false, fmt.Errorf("sqlstore: saga store is not configured")
	}
	if from.ID <= 0 || from.ID != next.ID {
		return core.Job{}, false, fmt.Errorf("sqlstore: start attempt requires matching saga ids")
	}
	if next.Status != core.SagaInProgress {
		return core.Job{}, false, fmt.Errorf("sqlstore: start attempt must move saga to %s", core.SagaInProgress)
	}
	now := next.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var job core.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err := compareAndSetSaga(ctx, tx, from, next, now)
		if err != nil {
			return err
		}
		if !updated {
			return errSkipInsert
		}

		var active int
		if err := tx.NewRaw(
			`SELECT COUNT(*) FROM webhook_delivery_jobs WHERE saga_id = ? AND status IN (?)`,
			from.ID,
			bun.In(jobStatusStrings(core.ActiveJobStatuses)),
		).Scan(ctx, &active); err != nil {
			return err
		}
		if active > 0 {
			return errSkipInsert
		}

		var records []jobRecord
		query := `
INSERT INTO webhook_delivery_jobs (saga_id, status, lease_until, lease_token, attempt_at, response_status, error_code, created_at, updated_at)
VALUES (?, ?, NULL, '', ?, NULL, '', ?, ?)
RETURNING ` + jobColumns
		if err := tx.NewRaw(query, from.ID, string(core.JobPending), now, now, now).Scan(ctx, &records); err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("sqlstore: job insert returned no row")
		}
		job = records[0].toDomain()
		return nil
	})
	if err != nil {
		if errors.Is(err, errSkipInsert) || isUniqueViolation(err) {
			return core.Job{}, false, nil
		}
		return core.Job{}, false, err
	}
	return job, true, nil
}

func (s *SagaStore) UpdateSaga(ctx context.Context, from core.Saga, next core.Saga) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: saga store is not configured")
	}
	if from.ID <= 0 || from.ID != next.ID {
		return false, fmt.Errorf("sqlstore: update saga requires matching saga ids")
	}
	now := next.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return compareAndSetSaga(ctx, s.db, from, next, now)
}

func compareAndSetSaga(ctx context.Context, tx bun.IDB, from core.Saga, next core.Saga, now time.Time) (bool, error) {
	if !core.CanTransitionSaga(from.Status, next.Status) {
		return false, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from.Status, next.Status)
	}
	result, err := tx.NewUpdate().
		Model((*sagaRecord)(nil)).
		Set("status = ?", string(next.Status)).
		Set("attempt_count = ?", next.AttemptCount).
		Set("next_attempt_at = ?", utcPointer(next.NextAttemptAt)).
		Set("final_error_code = ?", next.FinalErrorCode).
		Set("updated_at = ?", now).
		Where("id = ?", from.ID).
		Where("status = ?", string(from.Status)).
		Where("attempt_count = ?", from.AttemptCount).
		Where("status NOT IN (?)", bun.In(sagaStatusStrings(core.TerminalSagaStatuses))).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func activeSagaTx(ctx context.Context, tx bun.Tx, eventID, subscriptionID int64) (*sagaRecord, error) {
	var records []sagaRecord
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.event_id = ?", eventID).
		Where("?TableAlias.subscription_id = ?", subscriptionID).
		Where("?TableAlias.status <> ?", string(core.SagaDeadLettered)).
		OrderExpr("?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func sagasToDomain(records []*sagaRecord) []core.Saga {
	out := make([]core.Saga, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		out = append(out, record.toDomain())
	}
	return out
}

func sagaStatusStrings(statuses []core.SagaStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}
