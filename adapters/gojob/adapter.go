package gojob

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-webhook-delivery/core"
)

const (
	JobIDRouterTick       = "webhooks.router.tick"
	JobIDOrchestratorTick = "webhooks.orchestrator.tick"
	JobIDWorkerTick       = "webhooks.worker.tick"
	JobIDLeaseCleanerTick = "webhooks.lease_cleaner.tick"
)

// JobIDForComponent returns the go-job id used for a component's ticks.
func JobIDForComponent(component string) string {
	switch strings.TrimSpace(component) {
	case core.ComponentRouter:
		return JobIDRouterTick
	case core.ComponentOrchestrator:
		return JobIDOrchestratorTick
	case core.ComponentWorker:
		return JobIDWorkerTick
	case core.ComponentLeaseCleaner:
		return JobIDLeaseCleanerTick
	default:
		return fmt.Sprintf("webhooks.%s.tick", strings.TrimSpace(component))
	}
}

// ToExecutionMessage describes a polling tick as a go-job message. The
// correlation id doubles as the idempotency key.
func ToExecutionMessage(event core.TickEvent) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDForComponent(event.Component),
		ScriptPath: strings.TrimSpace(event.Component),
		Parameters: map[string]any{
			"component":      event.Component,
			"instance":       event.Instance,
			"tick":           event.Tick,
			"correlation_id": event.CorrelationID,
		},
		IdempotencyKey: strings.TrimSpace(event.CorrelationID),
	}
}

// FromExecutionMessage recovers the tick identity carried by msg.
func FromExecutionMessage(msg *job.ExecutionMessage) core.TickEvent {
	if msg == nil {
		return core.TickEvent{}
	}
	event := core.TickEvent{
		Component:     stringParam(msg.Parameters, "component"),
		Instance:      stringParam(msg.Parameters, "instance"),
		CorrelationID: strings.TrimSpace(msg.IdempotencyKey),
	}
	if event.Component == "" {
		event.Component = strings.TrimSpace(msg.ScriptPath)
	}
	if tick, ok := msg.Parameters["tick"].(int); ok {
		event.Tick = tick
	}
	return event
}

// TickHookAdapter forwards loop tick lifecycle events to go-job worker hooks.
type TickHookAdapter struct {
	hooks []worker.Hook
}

func NewTickHookAdapter(hooks ...worker.Hook) *TickHookAdapter {
	filtered := make([]worker.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			filtered = append(filtered, hook)
		}
	}
	return &TickHookAdapter{hooks: filtered}
}

func (a *TickHookAdapter) OnTickStart(ctx context.Context, event core.TickEvent) {
	if a == nil {
		return
	}
	mapped := toWorkerEvent(event)
	for _, hook := range a.hooks {
		hook.OnStart(ctx, mapped)
	}
}

func (a *TickHookAdapter) OnTickSuccess(ctx context.Context, event core.TickEvent) {
	if a == nil {
		return
	}
	mapped := toWorkerEvent(event)
	for _, hook := range a.hooks {
		hook.OnSuccess(ctx, mapped)
	}
}

func (a *TickHookAdapter) OnTickFailure(ctx context.Context, event core.TickEvent) {
	if a == nil {
		return
	}
	mapped := toWorkerEvent(event)
	for _, hook := range a.hooks {
		hook.OnFailure(ctx, mapped)
	}
}

func toWorkerEvent(event core.TickEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event),
		Attempt:   event.Tick,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// LoggingHook is a go-job worker hook that writes tick outcomes through a
// go-job logger. Successful ticks are not logged.
type LoggingHook struct {
	logger job.Logger
}

func NewLoggingHook(logger job.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(context.Context, worker.Event)   {}
func (h *LoggingHook) OnSuccess(context.Context, worker.Event) {}
func (h *LoggingHook) OnRetry(context.Context, worker.Event)   {}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	jobID := ""
	if event.Message != nil {
		jobID = event.Message.JobID
	}
	args := []any{"job_id", jobID, "attempt", event.Attempt, "duration", event.Duration.String()}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	h.logger.Error("tick failed", args...)
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

var (
	_ core.TickHook = (*TickHookAdapter)(nil)
	_ worker.Hook   = (*LoggingHook)(nil)
)
