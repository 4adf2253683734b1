package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

type eventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ExternalID *string   `bun:"external_id"`
	EventType  string    `bun:"event_type,notnull"`
	Payload    string    `bun:"payload,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r eventRecord) toDomain() core.Event {
	event := core.Event{
		ID:        r.ID,
		EventType: r.EventType,
		Payload:   rawPayload(r.Payload),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.ExternalID != nil {
		event.ExternalID = *r.ExternalID
	}
	return event
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:webhook_subscriptions,alias:ws"`

	ID          int64     `bun:"id,pk,autoincrement"`
	EventType   string    `bun:"event_type,notnull"`
	CallbackURL string    `bun:"callback_url,notnull"`
	Active      bool      `bun:"active,notnull"`
	Verified    bool      `bun:"verified,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r subscriptionRecord) toDomain() core.Subscription {
	return core.Subscription{
		ID:          r.ID,
		EventType:   r.EventType,
		CallbackURL: r.CallbackURL,
		Active:      r.Active,
		Verified:    r.Verified,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type sagaRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_sagas,alias:wds"`

	ID             int64      `bun:"id,pk,autoincrement"`
	EventID        int64      `bun:"event_id,notnull"`
	SubscriptionID int64      `bun:"subscription_id,notnull"`
	Status         string     `bun:"status,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	FinalErrorCode string     `bun:"final_error_code,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r sagaRecord) toDomain() core.Saga {
	return core.Saga{
		ID:             r.ID,
		EventID:        r.EventID,
		SubscriptionID: r.SubscriptionID,
		Status:         core.SagaStatus(strings.TrimSpace(r.Status)),
		AttemptCount:   r.AttemptCount,
		NextAttemptAt:  utcPointer(r.NextAttemptAt),
		FinalErrorCode: r.FinalErrorCode,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type jobRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_jobs,alias:wdj"`

	ID             int64      `bun:"id,pk,autoincrement"`
	SagaID         int64      `bun:"saga_id,notnull"`
	Status         string     `bun:"status,notnull"`
	LeaseUntil     *time.Time `bun:"lease_until,nullzero"`
	LeaseToken     string     `bun:"lease_token,notnull"`
	AttemptAt      time.Time  `bun:"attempt_at,notnull"`
	ResponseStatus *int       `bun:"response_status"`
	ErrorCode      string     `bun:"error_code,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r jobRecord) toDomain() core.Job {
	job := core.Job{
		ID:         r.ID,
		SagaID:     r.SagaID,
		Status:     core.JobStatus(strings.TrimSpace(r.Status)),
		LeaseUntil: utcPointer(r.LeaseUntil),
		LeaseToken: r.LeaseToken,
		AttemptAt:  r.AttemptAt.UTC(),
		ErrorCode:  r.ErrorCode,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.ResponseStatus != nil {
		status := *r.ResponseStatus
		job.ResponseStatus = &status
	}
	return job
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:webhook_dead_letters,alias:wdl"`

	ID              int64     `bun:"id,pk,autoincrement"`
	SagaID          int64     `bun:"saga_id,notnull"`
	EventID         int64     `bun:"event_id,notnull"`
	SubscriptionID  int64     `bun:"subscription_id,notnull"`
	FinalErrorCode  string    `bun:"final_error_code,notnull"`
	AttemptCount    int       `bun:"attempt_count,notnull"`
	FailedAt        time.Time `bun:"failed_at,notnull"`
	PayloadSnapshot string    `bun:"payload_snapshot,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r deadLetterRecord) toDomain() core.DeadLetter {
	return core.DeadLetter{
		ID:              r.ID,
		SagaID:          r.SagaID,
		EventID:         r.EventID,
		SubscriptionID:  r.SubscriptionID,
		FinalErrorCode:  r.FinalErrorCode,
		AttemptCount:    r.AttemptCount,
		FailedAt:        r.FailedAt.UTC(),
		PayloadSnapshot: rawPayload(r.PayloadSnapshot),
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type routerOffsetRecord struct {
	bun.BaseModel `bun:"table:webhook_router_offsets,alias:wro"`

	ID                   int64     `bun:"id,pk"`
	LastProcessedEventID int64     `bun:"last_processed_event_id,notnull"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func rawPayload(value string) json.RawMessage {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}

func payloadText(value json.RawMessage) string {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "" {
		return "{}"
	}
	return trimmed
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}
