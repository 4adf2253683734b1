package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Event struct {
	ID         int64
	ExternalID string
	EventType  string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// PayloadSnapshot returns an independent copy of the payload bytes.
func (e Event) PayloadSnapshot() json.RawMessage {
	return cloneRaw(e.Payload)
}

type NewEvent struct {
	ExternalID string
	EventType  string
	Payload    json.RawMessage
}

func (e NewEvent) Normalize() NewEvent {
	out := e
	out.ExternalID = strings.TrimSpace(e.ExternalID)
	out.EventType = strings.TrimSpace(e.EventType)
	if len(out.Payload) == 0 {
		out.Payload = json.RawMessage(`{}`)
	}
	return out
}

func (e NewEvent) Validate() error {
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("core: event type is required")
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return fmt.Errorf("core: event payload must be valid json")
	}
	return nil
}

type Subscription struct {
	ID          int64
	EventType   string
	CallbackURL string
	Active      bool
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Eligible reports whether the router may fan events out to the subscription.
func (s Subscription) Eligible() bool {
	return s.Active && s.Verified
}

type NewSubscription struct {
	EventType   string
	CallbackURL string
}

func (s NewSubscription) Validate() error {
	if strings.TrimSpace(s.EventType) == "" {
		return fmt.Errorf("core: subscription event type is required")
	}
	return ValidateCallbackURL(s.CallbackURL)
}

// ValidateCallbackURL requires an absolute https url with a host.
func ValidateCallbackURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("core: callback url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("core: callback url is invalid: %w", err)
	}
	if !parsed.IsAbs() || !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("core: callback url must be an absolute https url")
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("core: callback url host is required")
	}
	return nil
}

type SubscriptionFilter struct {
	EventType string
	Active    *bool
	Verified  *bool
}

type Saga struct {
	ID             int64
	EventID        int64
	SubscriptionID int64
	Status         SagaStatus
	AttemptCount   int
	NextAttemptAt  *time.Time
	FinalErrorCode string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Job struct {
	ID             int64
	SagaID         int64
	Status         JobStatus
	LeaseUntil     *time.Time
	LeaseToken     string
	AttemptAt      time.Time
	ResponseStatus *int
	ErrorCode      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobOutcome is the terminal result a worker reports for a leased job.
type JobOutcome struct {
	Status         JobStatus
	ResponseStatus *int
	ErrorCode      string
}

func CompletedOutcome(statusCode int) JobOutcome {
	code := statusCode
	return JobOutcome{Status: JobCompleted, ResponseStatus: &code}
}

func FailedOutcome(errorCode string, statusCode *int) JobOutcome {
	errorCode = strings.TrimSpace(errorCode)
	if errorCode == "" {
		errorCode = ErrorCodeWorkerException
	}
	var status *int
	if statusCode != nil {
		value := *statusCode
		status = &value
	}
	return JobOutcome{Status: JobFailed, ResponseStatus: status, ErrorCode: errorCode}
}

func (o JobOutcome) Validate() error {
	if !o.Status.Terminal() {
		return fmt.Errorf("core: job outcome status %q is not terminal", o.Status)
	}
	if o.Status == JobFailed && strings.TrimSpace(o.ErrorCode) == "" {
		return fmt.Errorf("core: failed job outcome requires an error code")
	}
	return nil
}

type DeadLetter struct {
	ID              int64
	SagaID          int64
	EventID         int64
	SubscriptionID  int64
	FinalErrorCode  string
	AttemptCount    int
	FailedAt        time.Time
	PayloadSnapshot json.RawMessage
	CreatedAt       time.Time
}

type DeadLetterPage struct {
	Items  []DeadLetter
	Total  int
	Limit  int
	Offset int
}

type DeliveryRequest struct {
	SagaID      int64
	CallbackURL string
	Payload     json.RawMessage
	DeliveredAt time.Time
}

type DeliveryResponse struct {
	StatusCode int
	Duration   time.Duration
}

func (r DeliveryResponse) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func cloneRaw(value json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	return append(json.RawMessage(nil), value...)
}
