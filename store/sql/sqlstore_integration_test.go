package sqlstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/internal/storetest"
	sqlstore "github.com/goliatone/go-webhook-delivery/store/sql"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client := storetest.NewSQLiteClient(t)

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"webhook_delivery_sagas",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "webhook_delivery_sagas" {
		t.Fatalf("expected webhook_delivery_sagas table, got %q", tableName)
	}
}

func TestEventStore_AppendIsIdempotentOnExternalID(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	events := factory.EventStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, created, err := events.AppendEvent(ctx, core.NewEvent{
		ExternalID: "evt-1",
		EventType:  "order.created",
		Payload:    json.RawMessage(`{"order":1}`),
	}, now)
	if err != nil {
		t.Fatalf("append first event: %v", err)
	}
	if !created || first.ID == 0 {
		t.Fatalf("expected first append to create a row, got %#v created=%v", first, created)
	}

	second, created, err := events.AppendEvent(ctx, core.NewEvent{
		ExternalID: "evt-1",
		EventType:  "order.updated",
		Payload:    json.RawMessage(`{"order":2}`),
	}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("append duplicate event: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate external id to be ignored")
	}
	if second.ID != first.ID || second.EventType != "order.created" {
		t.Fatalf("expected original event to be returned, got %#v", second)
	}

	anonymousA, createdA, err := events.AppendEvent(ctx, core.NewEvent{EventType: "order.created"}, now)
	if err != nil {
		t.Fatalf("append anonymous event: %v", err)
	}
	anonymousB, createdB, err := events.AppendEvent(ctx, core.NewEvent{EventType: "order.created"}, now)
	if err != nil {
		t.Fatalf("append second anonymous event: %v", err)
	}
	if !createdA || !createdB || anonymousA.ID == anonymousB.ID {
		t.Fatalf("expected events without external id to always append")
	}
	if string(anonymousA.Payload) != "{}" {
		t.Fatalf("expected empty payload to default to {}, got %s", anonymousA.Payload)
	}

	listed, err := events.ListEventsAfter(ctx, first.ID, 10)
	if err != nil {
		t.Fatalf("list events after: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != anonymousA.ID || listed[1].ID != anonymousB.ID {
		t.Fatalf("expected events after the first in id order, got %#v", listed)
	}

	maxID, err := events.MaxEventID(ctx)
	if err != nil {
		t.Fatalf("max event id: %v", err)
	}
	if maxID != anonymousB.ID {
		t.Fatalf("expected max id %d, got %d", anonymousB.ID, maxID)
	}

	if _, err := events.GetEvent(ctx, 9999); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("expected event not found, got %v", err)
	}
}

func TestSubscriptionStore_EligibilityAndFlags(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	subscriptions := factory.SubscriptionStore()
	now := time.Now().UTC()

	created, err := subscriptions.CreateSubscription(ctx, core.NewSubscription{
		EventType:   "order.created",
		CallbackURL: "https://example.com/hooks",
	}, now)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if !created.Active || created.Verified {
		t.Fatalf("expected new subscription to be active and unverified: %#v", created)
	}

	if _, err := subscriptions.CreateSubscription(ctx, core.NewSubscription{
		EventType:   "order.created",
		CallbackURL: "http://example.com/plain",
	}, now); err == nil {
		t.Fatalf("expected non-https callback to be rejected")
	}

	eligible, err := factory.SubscriptionStore().(core.EligibleSubscriptionReader).ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("list eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected unverified subscription to be ineligible")
	}

	verified, err := subscriptions.SetSubscriptionVerified(ctx, created.ID, true, now)
	if err != nil {
		t.Fatalf("verify subscription: %v", err)
	}
	if !verified.Verified {
		t.Fatalf("expected subscription to be verified")
	}
	eligible, err = factory.SubscriptionStore().(core.EligibleSubscriptionReader).ListEligibleSubscriptions(ctx, "order.created")
	if err != nil {
		t.Fatalf("list eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != created.ID {
		t.Fatalf("expected verified subscription to be eligible, got %#v", eligible)
	}

	if _, err := subscriptions.SetSubscriptionActive(ctx, created.ID, false, now); err != nil {
		t.Fatalf("deactivate subscription: %v", err)
	}
	inactive := false
	listed, err := subscriptions.ListSubscriptions(ctx, core.SubscriptionFilter{Active: &inactive})
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(listed) != 1 || listed[0].Active {
		t.Fatalf("expected one inactive subscription, got %#v", listed)
	}

	if _, err := subscriptions.SetSubscriptionActive(ctx, 9999, true, now); !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected subscription not found, got %v", err)
	}
}

func TestSagaStore_CreateSagaIfAbsentIsIdempotentPerActivePair(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	event, subscription := seedEventAndSubscription(t, factory)
	sagas := factory.SagaStore()
	now := time.Now().UTC()

	first, created, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	if !created || first.Status != core.SagaPending || first.AttemptCount != 0 {
		t.Fatalf("expected pending saga, got %#v created=%v", first, created)
	}

	again, created, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga again: %v", err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("expected existing saga to be returned, got %#v created=%v", again, created)
	}

	deadLettered := driveToDeadLetter(t, sagas, first, 1)

	replacement, created, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create replacement saga: %v", err)
	}
	if !created || replacement.ID == deadLettered.ID || replacement.AttemptCount != 0 {
		t.Fatalf("expected a fresh saga beside the dead-lettered one, got %#v", replacement)
	}
	old, err := sagas.GetSaga(ctx, deadLettered.ID)
	if err != nil {
		t.Fatalf("get dead-lettered saga: %v", err)
	}
	if old.Status != core.SagaDeadLettered || old.AttemptCount != 1 {
		t.Fatalf("expected dead-lettered saga untouched, got %#v", old)
	}
}

func TestSagaStore_StartAttemptEnforcesSingleActiveJob(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	event, subscription := seedEventAndSubscription(t, factory)
	sagas := factory.SagaStore()
	jobs := factory.JobStore()
	now := time.Now().UTC()

	saga, _, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	next, err := saga.Start(now)
	if err != nil {
		t.Fatalf("start transition: %v", err)
	}
	job, started, err := sagas.StartAttempt(ctx, saga, next)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if !started || job.Status != core.JobPending || job.SagaID != saga.ID {
		t.Fatalf("expected pending job for saga, got %#v started=%v", job, started)
	}

	if _, started, err := sagas.StartAttempt(ctx, saga, next); err != nil || started {
		t.Fatalf("expected stale start to be rejected, started=%v err=%v", started, err)
	}

	current, err := sagas.GetSaga(ctx, saga.ID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if current.Status != core.SagaInProgress {
		t.Fatalf("expected in_progress saga, got %s", current.Status)
	}
	active, err := jobs.HasActiveJob(ctx, saga.ID)
	if err != nil {
		t.Fatalf("has active job: %v", err)
	}
	if !active {
		t.Fatalf("expected active job")
	}
	all, err := jobs.ListJobsForSaga(ctx, saga.ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one job, got %d", len(all))
	}

	// A retry cannot start while the previous job is still active.
	forced := current
	forced.Status = core.SagaPendingRetry
	if _, err := factory.DB().NewUpdate().
		Table("webhook_delivery_sagas").
		Set("status = ?", string(core.SagaPendingRetry)).
		Where("id = ?", saga.ID).
		Exec(ctx); err != nil {
		t.Fatalf("force pending_retry: %v", err)
	}
	restart, err := forced.Start(now)
	if err != nil {
		t.Fatalf("restart transition: %v", err)
	}
	if _, started, err := sagas.StartAttempt(ctx, forced, restart); err != nil || started {
		t.Fatalf("expected start to be refused while a job is active, started=%v err=%v", started, err)
	}
	rolledBack, err := sagas.GetSaga(ctx, saga.ID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if rolledBack.Status != core.SagaPendingRetry {
		t.Fatalf("expected refused start to roll back the saga update, got %s", rolledBack.Status)
	}
}

func TestSagaStore_TerminalSagasAreImmutable(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	event, subscription := seedEventAndSubscription(t, factory)
	sagas := factory.SagaStore()
	now := time.Now().UTC()

	saga, _, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	inFlight, _ := saga.Start(now)
	if _, started, err := sagas.StartAttempt(ctx, saga, inFlight); err != nil || !started {
		t.Fatalf("start attempt: started=%v err=%v", started, err)
	}
	completed, err := inFlight.Complete(now)
	if err != nil {
		t.Fatalf("complete transition: %v", err)
	}
	updated, err := sagas.UpdateSaga(ctx, inFlight, completed)
	if err != nil || !updated {
		t.Fatalf("expected completion to apply, updated=%v err=%v", updated, err)
	}

	failed, err := inFlight.Fail("HTTP_500", core.DefaultRetryPolicy(), now)
	if err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	updated, err = sagas.UpdateSaga(ctx, inFlight, failed)
	if err != nil {
		t.Fatalf("update stale saga: %v", err)
	}
	if updated {
		t.Fatalf("expected stale update against completed saga to be rejected")
	}

	if _, err := sagas.UpdateSaga(ctx, completed, failed); !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from completed, got %v", err)
	}

	stored, err := sagas.GetSaga(ctx, saga.ID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if stored.Status != core.SagaCompleted || stored.AttemptCount != 0 {
		t.Fatalf("expected completed saga to stay untouched, got %#v", stored)
	}
}

func TestSagaStore_ListRetryableSagasHonorsWindowAndMax(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	event, subscription := seedEventAndSubscription(t, factory)
	sagas := factory.SagaStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := core.RetryPolicy{MaxRetries: 5, BaseDelay: 30 * time.Second}

	saga, _, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	inFlight, _ := saga.Start(now)
	if _, started, err := sagas.StartAttempt(ctx, saga, inFlight); err != nil || !started {
		t.Fatalf("start attempt: started=%v err=%v", started, err)
	}
	retry, err := inFlight.Fail("HTTP_503", policy, now)
	if err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	if updated, err := sagas.UpdateSaga(ctx, inFlight, retry); err != nil || !updated {
		t.Fatalf("update saga: updated=%v err=%v", updated, err)
	}

	due, err := sagas.ListRetryableSagas(ctx, now.Add(10*time.Second), policy.MaxRetries, 10)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no retryable sagas inside the backoff window")
	}

	due, err = sagas.ListRetryableSagas(ctx, now.Add(30*time.Second), policy.MaxRetries, 10)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(due) != 1 || due[0].ID != saga.ID {
		t.Fatalf("expected saga to be retryable at the window edge, got %#v", due)
	}

	due, err = sagas.ListRetryableSagas(ctx, now.Add(time.Hour), 1, 10)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected saga at max retries to be excluded")
	}
}

func TestJobStore_ConcurrentAcquireLeasesJobOnce(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	job, _ := seedPendingJob(t, factory)
	jobs := factory.JobStore()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	results := make(chan []core.Job, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := jobs.AcquireJobs(ctx, 1, now.Add(time.Minute), now)
			if err != nil {
				errs <- err
				return
			}
			results <- acquired
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("acquire jobs: %v", err)
	}

	total := 0
	for acquired := range results {
		for _, leased := range acquired {
			total++
			if leased.ID != job.ID || leased.Status != core.JobLeased || leased.LeaseToken == "" || leased.LeaseUntil == nil {
				t.Fatalf("unexpected leased job: %#v", leased)
			}
		}
	}
	if total != 1 {
		t.Fatalf("expected exactly one lease across workers, got %d", total)
	}
}

func TestJobStore_ReportRequiresCurrentLease(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	seedPendingJob(t, factory)
	jobs := factory.JobStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	acquired, err := jobs.AcquireJobs(ctx, 10, now.Add(time.Minute), now)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire jobs: %d %v", len(acquired), err)
	}
	leased := acquired[0]

	forged := leased
	forged.LeaseToken = "someone-else"
	if reported, err := jobs.ReportJob(ctx, forged, core.CompletedOutcome(200), now); err != nil || reported {
		t.Fatalf("expected report with a foreign token to be rejected, reported=%v err=%v", reported, err)
	}

	reset, err := jobs.ResetExpiredLeases(ctx, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("reset leases: %v", err)
	}
	if reset != 0 {
		t.Fatalf("expected live lease to survive, reset %d", reset)
	}

	reset, err = jobs.ResetExpiredLeases(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("reset leases: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected expired lease to be reset, got %d", reset)
	}

	if reported, err := jobs.ReportJob(ctx, leased, core.CompletedOutcome(200), now); err != nil || reported {
		t.Fatalf("expected report after lease expiry to be rejected, reported=%v err=%v", reported, err)
	}

	reacquired, err := jobs.AcquireJobs(ctx, 10, now.Add(5*time.Minute), now.Add(2*time.Minute))
	if err != nil || len(reacquired) != 1 {
		t.Fatalf("reacquire: %d %v", len(reacquired), err)
	}
	if reacquired[0].LeaseToken == leased.LeaseToken {
		t.Fatalf("expected a fresh lease token on reacquire")
	}

	status := 502
	reported, err := jobs.ReportJob(ctx, reacquired[0], core.FailedOutcome(core.HTTPStatusErrorCode(status), &status), now)
	if err != nil || !reported {
		t.Fatalf("expected current holder to report, reported=%v err=%v", reported, err)
	}
	stored, err := jobs.GetJob(ctx, leased.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != core.JobFailed || stored.ErrorCode != "HTTP_502" || stored.ResponseStatus == nil || *stored.ResponseStatus != 502 {
		t.Fatalf("unexpected stored job: %#v", stored)
	}
	if stored.LeaseUntil != nil {
		t.Fatalf("expected lease to be cleared on report")
	}

	terminal, err := jobs.ListTerminalJobs(ctx, stored.SagaID)
	if err != nil {
		t.Fatalf("list terminal jobs: %v", err)
	}
	if len(terminal) != 1 || terminal[0].ID != stored.ID {
		t.Fatalf("expected reported job in terminal list, got %#v", terminal)
	}
}

func TestRouterCursorStore_OnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	cursor := factory.RouterCursorStore()
	now := time.Now().UTC()

	if _, found, err := cursor.LoadCursor(ctx); err != nil || found {
		t.Fatalf("expected no cursor yet, found=%v err=%v", found, err)
	}
	value, err := cursor.InitCursor(ctx, 7, now)
	if err != nil || value != 7 {
		t.Fatalf("init cursor: %d %v", value, err)
	}
	value, err = cursor.InitCursor(ctx, 2, now)
	if err != nil || value != 7 {
		t.Fatalf("expected second init to keep 7, got %d %v", value, err)
	}

	advanced, err := cursor.SaveCursor(ctx, 10, now)
	if err != nil || !advanced {
		t.Fatalf("expected cursor to advance, advanced=%v err=%v", advanced, err)
	}
	advanced, err = cursor.SaveCursor(ctx, 9, now)
	if err != nil || advanced {
		t.Fatalf("expected cursor to refuse moving backwards, advanced=%v err=%v", advanced, err)
	}
	value, found, err := cursor.LoadCursor(ctx)
	if err != nil || !found || value != 10 {
		t.Fatalf("expected persisted cursor 10, got %d found=%v err=%v", value, found, err)
	}
}

func TestDeadLetterStore_CreateIsIdempotentPerSaga(t *testing.T) {
	ctx := context.Background()
	factory := storetest.NewFactory(t)
	event, subscription := seedEventAndSubscription(t, factory)
	sagas := factory.SagaStore()
	deadLetters := factory.DeadLetterStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	saga, _, err := sagas.CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	deadLettered := driveToDeadLetter(t, sagas, saga, 1)

	missing, err := sagas.ListDeadLetteredWithoutSnapshot(ctx, 10)
	if err != nil {
		t.Fatalf("list dead-lettered without snapshot: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != saga.ID {
		t.Fatalf("expected saga to need a snapshot, got %#v", missing)
	}

	record := core.DeadLetter{
		SagaID:          deadLettered.ID,
		EventID:         event.ID,
		SubscriptionID:  subscription.ID,
		FinalErrorCode:  deadLettered.FinalErrorCode,
		AttemptCount:    deadLettered.AttemptCount,
		FailedAt:        now,
		PayloadSnapshot: event.PayloadSnapshot(),
	}
	first, created, err := deadLetters.CreateDeadLetter(ctx, record)
	if err != nil || !created {
		t.Fatalf("create dead letter: created=%v err=%v", created, err)
	}
	second, created, err := deadLetters.CreateDeadLetter(ctx, record)
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("expected existing dead letter, got %#v created=%v err=%v", second, created, err)
	}
	if string(first.PayloadSnapshot) != string(event.Payload) {
		t.Fatalf("expected payload snapshot %s, got %s", event.Payload, first.PayloadSnapshot)
	}

	missing, err = sagas.ListDeadLetteredWithoutSnapshot(ctx, 10)
	if err != nil {
		t.Fatalf("list dead-lettered without snapshot: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no sagas missing snapshots")
	}

	page, err := deadLetters.ListDeadLetters(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != first.ID {
		t.Fatalf("unexpected dead letter page: %#v", page)
	}

	if _, err := deadLetters.GetDeadLetter(ctx, 9999); !errors.Is(err, core.ErrDeadLetterNotFound) {
		t.Fatalf("expected dead letter not found, got %v", err)
	}
}

func seedEventAndSubscription(t *testing.T, factory *sqlstore.RepositoryFactory) (core.Event, core.Subscription) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	event, _, err := factory.EventStore().AppendEvent(ctx, core.NewEvent{
		ExternalID: "seed-event",
		EventType:  "order.created",
		Payload:    json.RawMessage(`{"order":42}`),
	}, now)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	subscription, err := factory.SubscriptionStore().CreateSubscription(ctx, core.NewSubscription{
		EventType:   "order.created",
		CallbackURL: "https://example.com/hooks",
	}, now)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	subscription, err = factory.SubscriptionStore().SetSubscriptionVerified(ctx, subscription.ID, true, now)
	if err != nil {
		t.Fatalf("verify subscription: %v", err)
	}
	return event, subscription
}

func seedPendingJob(t *testing.T, factory *sqlstore.RepositoryFactory) (core.Job, core.Saga) {
	t.Helper()
	ctx := context.Background()
	event, subscription := seedEventAndSubscription(t, factory)
	now := time.Now().UTC()
	saga, _, err := factory.SagaStore().CreateSagaIfAbsent(ctx, event.ID, subscription.ID, now)
	if err != nil {
		t.Fatalf("create saga: %v", err)
	}
	next, err := saga.Start(now)
	if err != nil {
		t.Fatalf("start transition: %v", err)
	}
	job, started, err := factory.SagaStore().StartAttempt(ctx, saga, next)
	if err != nil || !started {
		t.Fatalf("start attempt: started=%v err=%v", started, err)
	}
	return job, next
}

func driveToDeadLetter(t *testing.T, sagas *sqlstore.SagaStore, saga core.Saga, maxRetries int) core.Saga {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	inFlight, err := saga.Start(now)
	if err != nil {
		t.Fatalf("start transition: %v", err)
	}
	if _, started, err := sagas.StartAttempt(ctx, saga, inFlight); err != nil || !started {
		t.Fatalf("start attempt: started=%v err=%v", started, err)
	}
	failed, err := inFlight.Fail("HTTP_500", core.RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Second}, now)
	if err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	if failed.Status != core.SagaDeadLettered {
		t.Fatalf("expected dead-lettered saga, got %s", failed.Status)
	}
	if updated, err := sagas.UpdateSaga(ctx, inFlight, failed); err != nil || !updated {
		t.Fatalf("update saga: updated=%v err=%v", updated, err)
	}
	return failed
}
