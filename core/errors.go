package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Job error codes recorded on failed delivery attempts.
const (
	ErrorCodeSagaNotFound         = "SAGA_NOT_FOUND"
	ErrorCodeEventNotFound        = "EVENT_NOT_FOUND"
	ErrorCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrorCodeHTTPRequestFailed    = "HTTP_REQUEST_FAILED"
	ErrorCodeTimeout              = "TIMEOUT"
	ErrorCodeWorkerException      = "WORKER_EXCEPTION"
)

func HTTPStatusErrorCode(status int) string {
	return fmt.Sprintf("HTTP_%d", status)
}

const (
	WebhookErrorBadInput           = "WEBHOOK_BAD_INPUT"
	WebhookErrorNotFound           = "WEBHOOK_NOT_FOUND"
	WebhookErrorConflict           = "WEBHOOK_CONFLICT"
	WebhookErrorInvariantViolation = "WEBHOOK_INVARIANT_VIOLATION"
	WebhookErrorExternal           = "WEBHOOK_EXTERNAL"
	WebhookErrorInternal           = "WEBHOOK_INTERNAL_ERROR"
)

var (
	ErrEventNotFound        = errors.New("core: event not found")
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
	ErrSagaNotFound         = errors.New("core: saga not found")
	ErrJobNotFound          = errors.New("core: job not found")
	ErrDeadLetterNotFound   = errors.New("core: dead letter not found")

	ErrInvalidTransition  = errors.New("core: invalid saga transition")
	ErrInvariantViolation = errors.New("core: invariant violation")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrSagaNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrDeadLetterNotFound)
}

// InvariantViolation builds a structural-bug error. Callers must surface it.
func InvariantViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// MapError converts any error into the rich envelope used by the command and
// query surface.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case IsNotFound(err):
		return newWebhookError(err.Error(), goerrors.CategoryNotFound, WebhookErrorNotFound)
	case errors.Is(err, ErrInvariantViolation):
		return newWebhookError(err.Error(), goerrors.CategoryInternal, WebhookErrorInvariantViolation)
	case errors.Is(err, ErrInvalidTransition):
		return newWebhookError(err.Error(), goerrors.CategoryConflict, WebhookErrorConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func NewBadInputError(message string) *goerrors.Error {
	return newWebhookError(message, goerrors.CategoryBadInput, WebhookErrorBadInput)
}

func NewValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(WebhookErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func newWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorBadInput
	case goerrors.CategoryNotFound:
		return WebhookErrorNotFound
	case goerrors.CategoryConflict:
		return WebhookErrorConflict
	case goerrors.CategoryExternal:
		return WebhookErrorExternal
	default:
		return WebhookErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
