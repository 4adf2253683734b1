package transport

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-delivery/core"
)

// DeliveryError is a failed attempt that produced no http status. Code is
// the job error code reported for the attempt.
type DeliveryError struct {
	Code string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("transport: delivery failed (%s)", e.Code)
	}
	return e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// rejected reports a request that could not be sent at all.
func rejected(req core.DeliveryRequest, code string, message string, cause error) *DeliveryError {
	err := goerrors.Wrap(cause, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.WebhookErrorBadInput).
		WithMetadata(map[string]any{"saga_id": req.SagaID, "error_code": code})
	return &DeliveryError{Code: code, Err: err}
}

// unreachable reports a request that was sent but got no response.
func unreachable(req core.DeliveryRequest, cause error) *DeliveryError {
	code := ClassifyError(cause)
	err := goerrors.Wrap(cause, goerrors.CategoryExternal, "transport: delivery request failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.WebhookErrorExternal).
		WithMetadata(map[string]any{"saga_id": req.SagaID, "error_code": code})
	return &DeliveryError{Code: code, Err: err}
}
