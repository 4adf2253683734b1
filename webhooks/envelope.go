package webhooks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-webhook-delivery/core"
)

const ContentTypeJSON = "application/json"

type Envelope struct {
	SagaID      int64           `json:"sagaId"`
	DeliveredAt time.Time       `json:"deliveredAt"`
	Payload     json.RawMessage `json:"payload"`
}

func NewEnvelope(req core.DeliveryRequest) Envelope {
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	deliveredAt := req.DeliveredAt.UTC()
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}
	return Envelope{
		SagaID:      req.SagaID,
		DeliveredAt: deliveredAt,
		Payload:     payload,
	}
}

// Encode serializes the envelope. The payload is embedded verbatim.
func (e Envelope) Encode() ([]byte, error) {
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return nil, fmt.Errorf("webhooks: envelope payload must be valid json")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("webhooks: encode envelope: %w", err)
	}
	return body, nil
}

func DecodeEnvelope(body []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("webhooks: decode envelope: %w", err)
	}
	return envelope, nil
}
