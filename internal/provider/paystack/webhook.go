package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Webhook event discriminators we act on; anything else is acknowledged and
// ignored.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// WebhookEvent is the typed, signature-authenticated push payload. Amount is
// kobo. No untyped JSON flows past this package.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		Metadata  struct {
			OrderID string `json:"order_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// VerifySignature checks the x-paystack-signature header: hex HMAC-SHA512 of
// the raw request body under the secret key. Must run before any parsing.
func (g *Gateway) VerifySignature(rawBody []byte, signature string) bool {
	if signature == "" || g.secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook decodes a signature-verified raw body into a typed event.
func ParseWebhook(rawBody []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	if event.Event == "" {
		return WebhookEvent{}, fmt.Errorf("webhook missing event type")
	}
	return event, nil
}
