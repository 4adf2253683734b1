package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/webhooks"
)

const (
	DefaultTimeout              = 30 * time.Second
	DefaultMaxResponseBodyBytes = int64(64 * 1024)
	DefaultUserAgent            = "go-webhook-delivery"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts signed delivery envelopes to subscriber callback urls.
type Client struct {
	doer                 HTTPDoer
	signer               webhooks.Signer
	userAgent            string
	timeout              time.Duration
	maxResponseBodyBytes int64
	now                  func() time.Time
}

type Option func(*Client)

func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

func WithSigningKey(secret string) Option {
	return func(c *Client) {
		c.signer = webhooks.NewSigner(secret)
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(userAgent); trimmed != "" {
			c.userAgent = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxResponseBodyBytes = limit
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		userAgent:            DefaultUserAgent,
		timeout:              DefaultTimeout,
		maxResponseBodyBytes: DefaultMaxResponseBodyBytes,
		now:                  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.doer == nil {
		// The per-request context carries the deadline.
		client.doer = &http.Client{}
	}
	return client
}

// NewClientFromConfig builds a client from the worker section.
func NewClientFromConfig(cfg core.WorkerConfig, opts ...Option) *Client {
	base := []Option{
		WithSigningKey(cfg.WebhookSigningKey),
		WithUserAgent(cfg.UserAgent),
		WithTimeout(cfg.HTTPTimeout()),
	}
	return NewClient(append(base, opts...)...)
}

// Deliver sends one attempt. A non-2xx answer is not an error: the caller
// classifies the status code. Errors are *DeliveryError values carrying the
// job error code.
func (c *Client) Deliver(ctx context.Context, req core.DeliveryRequest) (core.DeliveryResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := core.ValidateCallbackURL(req.CallbackURL); err != nil {
		return core.DeliveryResponse{}, rejected(req, core.ErrorCodeHTTPRequestFailed, "transport: invalid callback url", err)
	}
	if req.DeliveredAt.IsZero() {
		req.DeliveredAt = c.now().UTC()
	}

	body, err := webhooks.NewEnvelope(req).Encode()
	if err != nil {
		return core.DeliveryResponse{}, rejected(req, core.ErrorCodeWorkerException, "transport: encode delivery envelope", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, strings.TrimSpace(req.CallbackURL), bytes.NewReader(body))
	if err != nil {
		return core.DeliveryResponse{}, rejected(req, core.ErrorCodeHTTPRequestFailed, "transport: build delivery request", err)
	}
	httpReq.Header.Set("Content-Type", webhooks.ContentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)
	c.signer.Apply(httpReq, body)

	started := c.now()
	res, err := c.doer.Do(httpReq)
	duration := c.now().Sub(started)
	if err != nil {
		return core.DeliveryResponse{Duration: duration}, unreachable(req, err)
	}
	defer res.Body.Close()
	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, c.maxResponseBodyBytes))

	return core.DeliveryResponse{
		StatusCode: res.StatusCode,
		Duration:   duration,
	}, nil
}

// ClassifyError maps a transport failure to a job error code.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var delivery *DeliveryError
	if errors.As(err, &delivery) && strings.TrimSpace(delivery.Code) != "" {
		return delivery.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrorCodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.ErrorCodeTimeout
	}
	return core.ErrorCodeHTTPRequestFailed
}

// Outcome converts a delivery result into the job outcome to report.
func Outcome(res core.DeliveryResponse, err error) core.JobOutcome {
	if err != nil {
		var status *int
		if res.StatusCode > 0 {
			status = &res.StatusCode
		}
		return core.FailedOutcome(ClassifyError(err), status)
	}
	if res.Succeeded() {
		return core.CompletedOutcome(res.StatusCode)
	}
	return core.FailedOutcome(core.HTTPStatusErrorCode(res.StatusCode), &res.StatusCode)
}

var _ core.Deliverer = (*Client)(nil)
