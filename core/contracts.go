package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Event log.

type EventAppender interface {
	// AppendEvent inserts the event, or returns the existing row with
	// created=false when the external id was already ingested.
	AppendEvent(ctx context.Context, in NewEvent, now time.Time) (event Event, created bool, err error)
}

type EventGetter interface {
	GetEvent(ctx context.Context, id int64) (Event, error)
}

type EventLogReader interface {
	ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]Event, error)
	MaxEventID(ctx context.Context) (int64, error)
}

// Subscriptions.

type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, id int64) (Subscription, error)
}

type EligibleSubscriptionReader interface {
	ListEligibleSubscriptions(ctx context.Context, eventType string) ([]Subscription, error)
}

type SubscriptionStore interface {
	SubscriptionGetter
	CreateSubscription(ctx context.Context, in NewSubscription, now time.Time) (Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error)
	SetSubscriptionActive(ctx context.Context, id int64, active bool, now time.Time) (Subscription, error)
	SetSubscriptionVerified(ctx context.Context, id int64, verified bool, now time.Time) (Subscription, error)
}

// Sagas.

type SagaGetter interface {
	GetSaga(ctx context.Context, id int64) (Saga, error)
}

type SagaCreator interface {
	// CreateSagaIfAbsent inserts a pending saga unless the pair already has a
	// non-dead-lettered saga, in which case that saga is returned with
	// created=false.
	CreateSagaIfAbsent(ctx context.Context, eventID, subscriptionID int64, now time.Time) (saga Saga, created bool, err error)
}

type SagaBatchReader interface {
	ListSagasByStatus(ctx context.Context, status SagaStatus, limit int) ([]Saga, error)
	ListRetryableSagas(ctx context.Context, now time.Time, maxRetries int, limit int) ([]Saga, error)
	ListDeadLetteredWithoutSnapshot(ctx context.Context, limit int) ([]Saga, error)
}

type SagaWriter interface {
	// StartAttempt moves from to next and inserts one pending job in the same
	// transaction. started=false when the saga row no longer matches from or
	// an active job already exists.
	StartAttempt(ctx context.Context, from Saga, next Saga) (job Job, started bool, err error)
	// UpdateSaga writes next only while the row still matches from and is not
	// terminal.
	UpdateSaga(ctx context.Context, from Saga, next Saga) (bool, error)
}

// Jobs.

type JobReader interface {
	GetJob(ctx context.Context, id int64) (Job, error)
	HasActiveJob(ctx context.Context, sagaID int64) (bool, error)
	// ListTerminalJobs returns completed and failed jobs, latest attempt first.
	ListTerminalJobs(ctx context.Context, sagaID int64) ([]Job, error)
}

type JobLeaser interface {
	// AcquireJobs claims up to limit pending jobs and leases them until
	// leaseUntil in a single atomic step.
	AcquireJobs(ctx context.Context, limit int, leaseUntil time.Time, now time.Time) ([]Job, error)
	// ReportJob records a terminal outcome while the caller still holds the
	// lease identified by job.LeaseToken.
	ReportJob(ctx context.Context, job Job, outcome JobOutcome, now time.Time) (bool, error)
}

type LeaseResetter interface {
	ResetExpiredLeases(ctx context.Context, now time.Time) (int64, error)
}

// Dead letters.

type DeadLetterStore interface {
	// CreateDeadLetter inserts the snapshot unless one exists for the saga.
	CreateDeadLetter(ctx context.Context, in DeadLetter) (DeadLetter, bool, error)
	GetDeadLetter(ctx context.Context, id int64) (DeadLetter, error)
	ListDeadLetters(ctx context.Context, limit int, offset int) (DeadLetterPage, error)
}

type DeadLetterRecorder interface {
	Record(ctx context.Context, saga Saga) (DeadLetter, error)
}

// Router cursor.

type RouterCursorStore interface {
	LoadCursor(ctx context.Context) (cursor int64, found bool, err error)
	// InitCursor persists value when no cursor exists and returns whatever is
	// persisted afterwards.
	InitCursor(ctx context.Context, value int64, now time.Time) (int64, error)
	// SaveCursor only moves the persisted cursor forward.
	SaveCursor(ctx context.Context, value int64, now time.Time) (bool, error)
}

// Delivery.

type Deliverer interface {
	Deliver(ctx context.Context, req DeliveryRequest) (DeliveryResponse, error)
}

// Role-scoped dependency sets. Each background role receives exactly the
// capabilities listed here.

type RouterDeps struct {
	Events        EventLogReader
	Subscriptions EligibleSubscriptionReader
	Sagas         SagaCreator
	Cursor        RouterCursorStore
}

type OrchestratorDeps struct {
	Sagas interface {
		SagaGetter
		SagaBatchReader
		SagaWriter
	}
	Jobs        JobReader
	DeadLetters DeadLetterRecorder
}

type WorkerDeps struct {
	Jobs          JobLeaser
	Sagas         SagaGetter
	Events        EventGetter
	Subscriptions SubscriptionGetter
}

type DeadLetterDeps struct {
	Store  DeadLetterStore
	Events EventGetter
	Sagas  interface {
		SagaGetter
		SagaCreator
	}
}
