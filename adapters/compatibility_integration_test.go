package adapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	delivery "github.com/goliatone/go-webhook-delivery"
	"github.com/goliatone/go-webhook-delivery/adapters/gocommand"
	"github.com/goliatone/go-webhook-delivery/adapters/gojob"
	"github.com/goliatone/go-webhook-delivery/adapters/gologger"
	webhookcommand "github.com/goliatone/go-webhook-delivery/command"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/deadletter"
	"github.com/goliatone/go-webhook-delivery/ingest"
	"github.com/goliatone/go-webhook-delivery/internal/storetest"
	"github.com/goliatone/go-webhook-delivery/subscriptions"
)

func TestRuntimeCompatibility_TickFailuresReachGoJobLogger(t *testing.T) {
	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("webhooks", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	loop, err := core.NewLoop(
		core.LoopConfig{Component: core.ComponentLeaseCleaner, Instance: "cleaner-1"},
		core.TickFunc(func(context.Context) error { return errors.New("database unavailable") }),
		core.NewObserver(nil, nil),
		gojob.NewTickHookAdapter(gojob.NewLoggingHook(jobLogger)),
	)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	if err := loop.RunOnce(context.Background(), 4); err == nil {
		t.Fatalf("expected tick failure")
	}

	if logger.lastError.msg != "tick failed" {
		t.Fatalf("expected go-job hook to log the failure, got %#v", logger.lastError)
	}
	if !containsPair(logger.lastError.args, "job_id", gojob.JobIDLeaseCleanerTick) {
		t.Fatalf("expected job id in bridged args, got %#v", logger.lastError.args)
	}
	if !containsPair(logger.lastError.args, "error", "database unavailable") {
		t.Fatalf("expected error in bridged args, got %#v", logger.lastError.args)
	}
}

func TestRuntimeCompatibility_FacadeCommandsMirrorIntoGoJobQueue(t *testing.T) {
	factory := storetest.NewFactory(t)
	observer := core.NewObserver(nil, nil)
	events, err := ingest.New(factory.EventStore(), observer)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	subs, err := subscriptions.New(factory.SubscriptionStore(), observer)
	if err != nil {
		t.Fatalf("new subscription service: %v", err)
	}
	deadLetters, err := deadletter.New(factory.DeadLetterDeps(), deadletter.Config{}, observer)
	if err != nil {
		t.Fatalf("new dead letter manager: %v", err)
	}
	facade, err := delivery.NewFacade(delivery.FacadeServices{
		Events:        events,
		Subscriptions: subs,
		DeadLetters:   deadLetters,
		Sagas:         factory.SagaStore(),
	})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	registered, err := facade.Register(adapter)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer registered.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}

	for _, messageType := range []string{webhookcommand.TypeAppendEvent, webhookcommand.TypeRequeueDeadLetter} {
		if _, ok := queueRegistry.Get(messageType); !ok {
			t.Fatalf("expected %q to be mirrored into the go-job queue registry", messageType)
		}
	}

	if err := gocommand.Dispatch(context.Background(), webhookcommand.RequeueDeadLetterMessage{DeadLetterID: 77}); err == nil {
		t.Fatalf("expected unknown dead letter to fail through the dispatcher")
	}
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type logCall struct {
	msg  string
	args []any
}

type compatLogger struct {
	lastError logCall
}

func (*compatLogger) Trace(string, ...any) {}
func (*compatLogger) Debug(string, ...any) {}
func (*compatLogger) Info(string, ...any)  {}
func (*compatLogger) Warn(string, ...any)  {}
func (*compatLogger) Fatal(string, ...any) {}

func (l *compatLogger) Error(msg string, args ...any) {
	l.lastError = logCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *compatLogger) WithContext(context.Context) glog.Logger { return l }

func containsPair(args []any, key string, value any) bool {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}
