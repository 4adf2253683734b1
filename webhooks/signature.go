package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const SignatureHeader = "X-Webhook-Signature"

// Signer computes the delivery signature. An empty secret disables signing.
type Signer struct {
	Secret string
}

func NewSigner(secret string) Signer {
	return Signer{Secret: strings.TrimSpace(secret)}
}

func (s Signer) Enabled() bool {
	return strings.TrimSpace(s.Secret) != ""
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func (s Signer) Sign(body []byte) string {
	return hex.EncodeToString(computeHMAC(s.Secret, body))
}

// Apply sets the signature header on req when signing is enabled.
func (s Signer) Apply(req *http.Request, body []byte) {
	if req == nil || !s.Enabled() {
		return
	}
	req.Header.Set(SignatureHeader, s.Sign(body))
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

// NewVerifier returns the verifier matching Signer for secret.
func NewVerifier(secret string) HeaderHMACVerifier {
	return HeaderHMACVerifier{
		Header:   SignatureHeader,
		Secret:   strings.TrimSpace(secret),
		Encoding: "hex",
	}
}

func (v HeaderHMACVerifier) Verify(headers http.Header, body []byte) error {
	headerName := strings.TrimSpace(v.Header)
	if headerName == "" {
		headerName = SignatureHeader
	}
	header := strings.TrimSpace(headers.Get(headerName))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", headerName)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	expected := computeHMAC(secret, body)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

func computeHMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
