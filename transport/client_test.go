package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/webhooks"
)

func TestClient_DeliversSignedEnvelope(t *testing.T) {
	var (
		gotBody      []byte
		gotHeaders   http.Header
		verifyErr    error
		deliveredAt  = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		callbackPath = "/hooks/orders"
	)
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != callbackPath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		verifyErr = webhooks.NewVerifier("signing-key").Verify(r.Header, gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(
		WithHTTPDoer(server.Client()),
		WithSigningKey("signing-key"),
		WithUserAgent("delivery-test"),
	)
	res, err := client.Deliver(context.Background(), core.DeliveryRequest{
		SagaID:      9,
		CallbackURL: server.URL + callbackPath,
		Payload:     json.RawMessage(`{"order":7}`),
		DeliveredAt: deliveredAt,
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.StatusCode != http.StatusAccepted || !res.Succeeded() {
		t.Fatalf("unexpected response %#v", res)
	}
	if verifyErr != nil {
		t.Fatalf("expected receiver to verify the signature: %v", verifyErr)
	}
	expected := `{"sagaId":9,"deliveredAt":"2026-03-04T05:06:07Z","payload":{"order":7}}`
	if string(gotBody) != expected {
		t.Fatalf("expected body %s, got %s", expected, gotBody)
	}
	if gotHeaders.Get("Content-Type") != webhooks.ContentTypeJSON {
		t.Fatalf("unexpected content type %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("User-Agent") != "delivery-test" {
		t.Fatalf("unexpected user agent %q", gotHeaders.Get("User-Agent"))
	}

	outcome := Outcome(res, nil)
	if outcome.Status != core.JobCompleted || outcome.ResponseStatus == nil || *outcome.ResponseStatus != http.StatusAccepted {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
}

func TestClient_OmitsSignatureWithoutKey(t *testing.T) {
	signature := "unset"
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(webhooks.SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithHTTPDoer(server.Client()))
	if _, err := client.Deliver(context.Background(), core.DeliveryRequest{SagaID: 1, CallbackURL: server.URL}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if signature != "" {
		t.Fatalf("expected no signature header, got %q", signature)
	}
}

func TestClient_NonSuccessStatusMapsToHTTPCode(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(WithHTTPDoer(server.Client()))
	res, err := client.Deliver(context.Background(), core.DeliveryRequest{SagaID: 2, CallbackURL: server.URL})
	if err != nil {
		t.Fatalf("non-2xx should not be a transport error: %v", err)
	}
	outcome := Outcome(res, err)
	if outcome.Status != core.JobFailed || outcome.ErrorCode != "HTTP_503" {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	if outcome.ResponseStatus == nil || *outcome.ResponseStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected response status to be recorded")
	}
}

func TestClient_TimeoutMapsToTimeoutCode(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithHTTPDoer(server.Client()), WithTimeout(50*time.Millisecond))
	res, err := client.Deliver(context.Background(), core.DeliveryRequest{SagaID: 3, CallbackURL: server.URL})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if code := ClassifyError(err); code != core.ErrorCodeTimeout {
		t.Fatalf("expected TIMEOUT, got %q (%v)", code, err)
	}
	outcome := Outcome(res, err)
	if outcome.Status != core.JobFailed || outcome.ErrorCode != core.ErrorCodeTimeout || outcome.ResponseStatus != nil {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
}

func TestClient_TransportFailureCarriesErrorEnvelope(t *testing.T) {
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client := NewClient(WithHTTPDoer(doer))
	_, err := client.Deliver(context.Background(), core.DeliveryRequest{SagaID: 4, CallbackURL: "https://receiver.example.com/hook"})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if code := ClassifyError(err); code != core.ErrorCodeHTTPRequestFailed {
		t.Fatalf("expected HTTP_REQUEST_FAILED, got %q", code)
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.WebhookErrorExternal {
		t.Fatalf("expected text code %q, got %q", core.WebhookErrorExternal, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestClient_RejectsInvalidCallbackURL(t *testing.T) {
	called := false
	client := NewClient(WithHTTPDoer(doerFunc(func(*http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("unexpected call")
	})))
	_, err := client.Deliver(context.Background(), core.DeliveryRequest{SagaID: 5, CallbackURL: "http://plain.example.com"})
	if err == nil {
		t.Fatalf("expected invalid callback url error")
	}
	if called {
		t.Fatalf("expected no request for an invalid callback url")
	}
	if code := ClassifyError(err); code != core.ErrorCodeHTTPRequestFailed {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestClassifyError_DeadlineWithoutEnvelope(t *testing.T) {
	if code := ClassifyError(context.DeadlineExceeded); code != core.ErrorCodeTimeout {
		t.Fatalf("expected TIMEOUT, got %q", code)
	}
	if code := ClassifyError(errors.New("boom")); code != core.ErrorCodeHTTPRequestFailed {
		t.Fatalf("expected HTTP_REQUEST_FAILED, got %q", code)
	}
	if code := ClassifyError(nil); code != "" {
		t.Fatalf("expected empty code for nil error, got %q", code)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
