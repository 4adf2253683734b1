package core

import (
	"fmt"
	"strings"
	"time"
)

type SagaStatus string

const (
	SagaPending      SagaStatus = "pending"
	SagaInProgress   SagaStatus = "in_progress"
	SagaPendingRetry SagaStatus = "pending_retry"
	SagaCompleted    SagaStatus = "completed"
	SagaDeadLettered SagaStatus = "dead_lettered"
)

// TerminalSagaStatuses lists statuses after which a saga row must never change.
var TerminalSagaStatuses = []SagaStatus{SagaCompleted, SagaDeadLettered}

func (s SagaStatus) Valid() bool {
	switch s {
	case SagaPending, SagaInProgress, SagaPendingRetry, SagaCompleted, SagaDeadLettered:
		return true
	default:
		return false
	}
}

func (s SagaStatus) Terminal() bool {
	return s == SagaCompleted || s == SagaDeadLettered
}

func ParseSagaStatus(raw string) (SagaStatus, error) {
	status := SagaStatus(strings.TrimSpace(strings.ToLower(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("core: unknown saga status %q", raw)
	}
	return status, nil
}

var allowedSagaTransitions = map[SagaStatus]map[SagaStatus]struct{}{
	SagaPending: {
		SagaInProgress: {},
	},
	SagaPendingRetry: {
		SagaInProgress: {},
	},
	SagaInProgress: {
		SagaCompleted:    {},
		SagaPendingRetry: {},
		SagaDeadLettered: {},
	},
	SagaCompleted:    {},
	SagaDeadLettered: {},
}

func CanTransitionSaga(from, to SagaStatus) bool {
	next, ok := allowedSagaTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobLeased    JobStatus = "leased"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

var (
	ActiveJobStatuses   = []JobStatus{JobPending, JobLeased}
	TerminalJobStatuses = []JobStatus{JobCompleted, JobFailed}
)

func (s JobStatus) Active() bool {
	return s == JobPending || s == JobLeased
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// RetryPolicy bounds the retry loop for a saga.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  30 * time.Second,
		MaxDelay:   MaxRetryBackoff,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 || p.MaxDelay > MaxRetryBackoff {
		p.MaxDelay = MaxRetryBackoff
	}
	return p
}

// Start moves a pending or retryable saga into flight.
func (s Saga) Start(now time.Time) (Saga, error) {
	if !CanTransitionSaga(s.Status, SagaInProgress) {
		return s, fmt.Errorf("%w: saga %d cannot start from %s", ErrInvalidTransition, s.ID, s.Status)
	}
	next := s
	next.Status = SagaInProgress
	next.NextAttemptAt = nil
	next.UpdatedAt = now.UTC()
	return next, nil
}

func (s Saga) Complete(now time.Time) (Saga, error) {
	if !CanTransitionSaga(s.Status, SagaCompleted) {
		return s, fmt.Errorf("%w: saga %d cannot complete from %s", ErrInvalidTransition, s.ID, s.Status)
	}
	next := s
	next.Status = SagaCompleted
	next.NextAttemptAt = nil
	next.FinalErrorCode = ""
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Fail counts one failed attempt and records errorCode. The saga is
// dead-lettered once the count reaches policy.MaxRetries, otherwise it waits
// for the backoff window.
func (s Saga) Fail(errorCode string, policy RetryPolicy, now time.Time) (Saga, error) {
	if !CanTransitionSaga(s.Status, SagaPendingRetry) {
		return s, fmt.Errorf("%w: saga %d cannot fail from %s", ErrInvalidTransition, s.ID, s.Status)
	}
	policy = policy.normalized()
	errorCode = strings.TrimSpace(errorCode)
	if errorCode == "" {
		errorCode = ErrorCodeWorkerException
	}

	next := s
	next.AttemptCount = s.AttemptCount + 1
	next.FinalErrorCode = errorCode
	next.UpdatedAt = now.UTC()
	if next.AttemptCount >= policy.MaxRetries {
		next.Status = SagaDeadLettered
		next.NextAttemptAt = nil
		return next, nil
	}
	retryAt := now.UTC().Add(RetryBackoff(policy.BaseDelay, next.AttemptCount, policy.MaxDelay))
	next.Status = SagaPendingRetry
	next.NextAttemptAt = &retryAt
	return next, nil
}

// ReadyForRetry reports whether a pending_retry saga may start a new attempt.
func (s Saga) ReadyForRetry(now time.Time, maxRetries int) bool {
	if s.Status != SagaPendingRetry {
		return false
	}
	if maxRetries > 0 && s.AttemptCount >= maxRetries {
		return false
	}
	return s.NextAttemptAt == nil || !s.NextAttemptAt.After(now)
}

func (s Saga) Clone() Saga {
	out := s
	out.NextAttemptAt = cloneTime(s.NextAttemptAt)
	return out
}
