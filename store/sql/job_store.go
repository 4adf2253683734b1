package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const jobColumns = `id, saga_id, status, lease_until, lease_token, attempt_at, response_status, error_code, created_at, updated_at`

type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	repo, err := newRepository(db, jobHandlers(), "job")
	if err != nil {
		return nil, err
	}
	return &JobStore{db: db, repo: repo}, nil
}

func (s *JobStore) GetJob(ctx context.Context, id int64) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	records, _, err := s.repo.List(ctx, byID(id), repository.SelectPaginate(1, 0))
	if err != nil {
		return core.Job{}, err
	}
	if len(records) == 0 {
		return core.Job{}, fmt.Errorf("%w: id %d", core.ErrJobNotFound, id)
	}
	return records[0].toDomain(), nil
}

func (s *JobStore) HasActiveJob(ctx context.Context, sagaID int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	return s.db.NewSelect().
		Model((*jobRecord)(nil)).
		Where("?TableAlias.saga_id = ?", sagaID).
		Where("?TableAlias.status IN (?)", bun.In(jobStatusStrings(core.ActiveJobStatuses))).
		Exists(ctx)
}

func (s *JobStore) ListTerminalJobs(ctx context.Context, sagaID int64) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	var records []jobRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.saga_id = ?", sagaID).
		Where("?TableAlias.status IN (?)", bun.In(jobStatusStrings(core.TerminalJobStatuses))).
		OrderExpr("?TableAlias.attempt_at DESC, ?TableAlias.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return jobsToDomain(records), nil
}

// ListJobsForSaga returns every job of a saga, oldest attempt first.
func (s *JobStore) ListJobsForSaga(ctx context.Context, sagaID int64) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	var records []jobRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.saga_id = ?", sagaID).
		OrderExpr("?TableAlias.attempt_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return jobsToDomain(records), nil
}

// AcquireJobs claims pending jobs and stamps them with a fresh lease token in
// one statement. Postgres skips rows locked by a concurrent claimer.
func (s *JobStore) AcquireJobs(ctx context.Context, limit int, leaseUntil time.Time, now time.Time) ([]core.Job, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	limit = batchLimit(limit)
	token := uuid.NewString()
	lockClause := ""
	if s.db.Dialect().Name() == dialect.PG {
		lockClause = "FOR UPDATE SKIP LOCKED"
	}

	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimable AS (
	SELECT id
	FROM webhook_delivery_jobs
	WHERE status = ?
	ORDER BY attempt_at ASC, id ASC
	LIMIT ?
	` + lockClause + `
)
UPDATE webhook_delivery_jobs
SET status = ?, lease_until = ?, lease_token = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimable)
  AND status = ?
RETURNING ` + jobColumns
		return tx.NewRaw(
			query,
			string(core.JobPending),
			limit,
			string(core.JobLeased),
			leaseUntil.UTC(),
			token,
			now.UTC(),
			string(core.JobPending),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	return jobsToDomain(records), nil
}

// ReportJob writes the terminal outcome only while the lease identified by
// job.LeaseToken is still held. false means the lease was lost.
func (s *JobStore) ReportJob(ctx context.Context, job core.Job, outcome core.JobOutcome, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	if err := outcome.Validate(); err != nil {
		return false, err
	}
	if strings.TrimSpace(job.LeaseToken) == "" {
		return false, fmt.Errorf("sqlstore: job %d has no lease token", job.ID)
	}
	errorCode := ""
	if outcome.Status == core.JobFailed {
		errorCode = strings.TrimSpace(outcome.ErrorCode)
	}
	result, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(outcome.Status)).
		Set("response_status = ?", outcome.ResponseStatus).
		Set("error_code = ?", errorCode).
		Set("lease_until = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", job.ID).
		Where("status = ?", string(core.JobLeased)).
		Where("lease_token = ?", job.LeaseToken).
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

// ResetExpiredLeases returns leased jobs whose lease ran out to pending and
// revokes their token so a late report from the old holder is rejected.
func (s *JobStore) ResetExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(core.JobPending)).
		Set("lease_until = NULL").
		Set("lease_token = ''").
		Set("updated_at = ?", now.UTC()).
		Where("status = ?", string(core.JobLeased)).
		Where("lease_until IS NOT NULL").
		Where("lease_until < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func jobsToDomain(records []jobRecord) []core.Job {
	out := make([]core.Job, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}

func jobStatusStrings(statuses []core.JobStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
