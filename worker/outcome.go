package worker

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/transport"
)

// Classify maps a delivery result to the job outcome. Errors that did not
// come from the HTTP exchange are WORKER_EXCEPTION.
func Classify(response core.DeliveryResponse, err error) core.JobOutcome {
	if err == nil {
		return transport.Outcome(response, nil)
	}
	var deliveryErr *transport.DeliveryError
	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.As(err, &deliveryErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &urlErr),
		errors.As(err, &netErr):
		return transport.Outcome(response, err)
	default:
		return core.FailedOutcome(core.ErrorCodeWorkerException, nil)
	}
}
