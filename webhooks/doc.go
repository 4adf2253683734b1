// Package webhooks defines the outbound delivery wire format.
//
// Every delivery is an HTTP POST whose JSON body is an Envelope:
//
//	{"sagaId": 42, "deliveredAt": "2026-01-02T03:04:05Z", "payload": {...}}
//
// When a signing key is configured the request carries X-Webhook-Signature,
// the lowercase hex HMAC-SHA256 of the exact body bytes. Receivers verify it
// with HeaderHMACVerifier.
package webhooks
