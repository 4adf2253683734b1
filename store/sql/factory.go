package sqlstore

import (
	"context"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	eventStore        *EventStore
	subscriptionStore *SubscriptionStore
	sagaStore         *SagaStore
	jobStore          *JobStore
	deadLetterStore   *DeadLetterStore
	cursorStore       *RouterCursorStore

	subscriptionCache *CachedSubscriptionReader
}

type FactoryOption func(*RepositoryFactory) error

// WithSubscriptionCache routes eligible-subscription reads through cacheService.
func WithSubscriptionCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) error {
		if cacheService == nil {
			return nil
		}
		reader, err := NewCachedSubscriptionReader(f.subscriptionStore, cacheService)
		if err != nil {
			return err
		}
		f.subscriptionCache = reader
		return nil
	}
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client, opts...); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db, opts...); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any, opts ...FactoryOption) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.eventStore == nil {
		if err := f.initStores(); err != nil {
			return err
		}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(f); err != nil {
			return err
		}
	}
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EventStore() *EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

// SubscriptionStore returns the cached reader when one is configured so
// writes made through it invalidate routing lookups.
func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil {
		return nil
	}
	if f.subscriptionCache != nil {
		return f.subscriptionCache
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) SagaStore() *SagaStore {
	if f == nil {
		return nil
	}
	return f.sagaStore
}

func (f *RepositoryFactory) JobStore() *JobStore {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) DeadLetterStore() *DeadLetterStore {
	if f == nil {
		return nil
	}
	return f.deadLetterStore
}

func (f *RepositoryFactory) RouterCursorStore() *RouterCursorStore {
	if f == nil {
		return nil
	}
	return f.cursorStore
}

func (f *RepositoryFactory) eligibleSubscriptions() core.EligibleSubscriptionReader {
	if f.subscriptionCache != nil {
		return f.subscriptionCache
	}
	return f.subscriptionStore
}

// RouterDeps is the router's slice of the store: it reads events and
// subscriptions and only ever creates sagas.
func (f *RepositoryFactory) RouterDeps() core.RouterDeps {
	return core.RouterDeps{
		Events:        eventLogView{store: f.eventStore},
		Subscriptions: f.eligibleSubscriptions(),
		Sagas:         sagaCreatorView{store: f.sagaStore},
		Cursor:        f.cursorStore,
	}
}

func (f *RepositoryFactory) OrchestratorDeps(recorder core.DeadLetterRecorder) core.OrchestratorDeps {
	return core.OrchestratorDeps{
		Sagas:       orchestratorSagaView{store: f.sagaStore},
		Jobs:        jobReadView{store: f.jobStore},
		DeadLetters: recorder,
	}
}

// WorkerDeps exposes leasing plus read-only lookups; workers never write
// saga state.
func (f *RepositoryFactory) WorkerDeps() core.WorkerDeps {
	return core.WorkerDeps{
		Jobs:          jobLeaseView{store: f.jobStore},
		Sagas:         sagaReadView{store: f.sagaStore},
		Events:        eventReadView{store: f.eventStore},
		Subscriptions: subscriptionReadView{store: f.subscriptionStore},
	}
}

func (f *RepositoryFactory) LeaseResetter() core.LeaseResetter {
	return leaseResetView{store: f.jobStore}
}

func (f *RepositoryFactory) DeadLetterDeps() core.DeadLetterDeps {
	return core.DeadLetterDeps{
		Store:  f.deadLetterStore,
		Events: eventReadView{store: f.eventStore},
		Sagas:  deadLetterSagaView{store: f.sagaStore},
	}
}

func (f *RepositoryFactory) initStores() error {
	var err error
	if f.eventStore, err = NewEventStore(f.db); err != nil {
		return err
	}
	if f.subscriptionStore, err = NewSubscriptionStore(f.db); err != nil {
		return err
	}
	if f.sagaStore, err = NewSagaStore(f.db); err != nil {
		return err
	}
	if f.jobStore, err = NewJobStore(f.db); err != nil {
		return err
	}
	if f.deadLetterStore, err = NewDeadLetterStore(f.db); err != nil {
		return err
	}
	if f.cursorStore, err = NewRouterCursorStore(f.db); err != nil {
		return err
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

// Role views. Each wraps a store and exposes only the methods of one role so
// a component cannot reach writes it does not own through a type assertion.

type eventLogView struct{ store *EventStore }

func (v eventLogView) ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]core.Event, error) {
	return v.store.ListEventsAfter(ctx, afterID, limit)
}

func (v eventLogView) MaxEventID(ctx context.Context) (int64, error) {
	return v.store.MaxEventID(ctx)
}

type eventReadView struct{ store *EventStore }

func (v eventReadView) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	return v.store.GetEvent(ctx, id)
}

type subscriptionReadView struct{ store *SubscriptionStore }

func (v subscriptionReadView) GetSubscription(ctx context.Context, id int64) (core.Subscription, error) {
	return v.store.GetSubscription(ctx, id)
}

type sagaReadView struct{ store *SagaStore }

func (v sagaReadView) GetSaga(ctx context.Context, id int64) (core.Saga, error) {
	return v.store.GetSaga(ctx, id)
}

type sagaCreatorView struct{ store *SagaStore }

func (v sagaCreatorView) CreateSagaIfAbsent(ctx context.Context, eventID, subscriptionID int64, now time.Time) (core.Saga, bool, error) {
	return v.store.CreateSagaIfAbsent(ctx, eventID, subscriptionID, now)
}

type deadLetterSagaView struct{ store *SagaStore }

func (v deadLetterSagaView) GetSaga(ctx context.Context, id int64) (core.Saga, error) {
	return v.store.GetSaga(ctx, id)
}

func (v deadLetterSagaView) CreateSagaIfAbsent(ctx context.Context, eventID, subscriptionID int64, now time.Time) (core.Saga, bool, error) {
	return v.store.CreateSagaIfAbsent(ctx, eventID, subscriptionID, now)
}

type orchestratorSagaView struct{ store *SagaStore }

func (v orchestratorSagaView) GetSaga(ctx context.Context, id int64) (core.Saga, error) {
	return v.store.GetSaga(ctx, id)
}

func (v orchestratorSagaView) ListSagasByStatus(ctx context.Context, status core.SagaStatus, limit int) ([]core.Saga, error) {
	return v.store.ListSagasByStatus(ctx, status, limit)
}

func (v orchestratorSagaView) ListRetryableSagas(ctx context.Context, now time.Time, maxRetries int, limit int) ([]core.Saga, error) {
	return v.store.ListRetryableSagas(ctx, now, maxRetries, limit)
}

func (v orchestratorSagaView) ListDeadLetteredWithoutSnapshot(ctx context.Context, limit int) ([]core.Saga, error) {
	return v.store.ListDeadLetteredWithoutSnapshot(ctx, limit)
}

func (v orchestratorSagaView) StartAttempt(ctx context.Context, from core.Saga, next core.Saga) (core.Job, bool, error) {
	return v.store.StartAttempt(ctx, from, next)
}

func (v orchestratorSagaView) UpdateSaga(ctx context.Context, from core.Saga, next core.Saga) (bool, error) {
	return v.store.UpdateSaga(ctx, from, next)
}

type jobReadView struct{ store *JobStore }

func (v jobReadView) GetJob(ctx context.Context, id int64) (core.Job, error) {
	return v.store.GetJob(ctx, id)
}

func (v jobReadView) HasActiveJob(ctx context.Context, sagaID int64) (bool, error) {
	return v.store.HasActiveJob(ctx, sagaID)
}

func (v jobReadView) ListTerminalJobs(ctx context.Context, sagaID int64) ([]core.Job, error) {
	return v.store.ListTerminalJobs(ctx, sagaID)
}

type jobLeaseView struct{ store *JobStore }

func (v jobLeaseView) AcquireJobs(ctx context.Context, limit int, leaseUntil time.Time, now time.Time) ([]core.Job, error) {
	return v.store.AcquireJobs(ctx, limit, leaseUntil, now)
}

func (v jobLeaseView) ReportJob(ctx context.Context, job core.Job, outcome core.JobOutcome, now time.Time) (bool, error) {
	return v.store.ReportJob(ctx, job, outcome, now)
}

type leaseResetView struct{ store *JobStore }

func (v leaseResetView) ResetExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	return v.store.ResetExpiredLeases(ctx, now)
}
