package paystack_test

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/provider/paystack"
)

const testSecret = "sk_test_webhook_secret"

func newTestGateway(secret string) *paystack.Gateway {
	cfg := config.Config{}
	cfg.Payments.Paystack.SecretKey = secret
	cfg.Payments.Paystack.BaseURL = "https://api.paystack.co"
	return paystack.New(cfg)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1"}}`)

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"valid signature", testSecret, sign(testSecret, body), true},
		{"wrong secret", testSecret, sign("sk_other", body), false},
		{"empty signature", testSecret, "", false},
		{"garbage signature", testSecret, "deadbeef", false},
		{"no secret configured", "", sign(testSecret, body), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(tt.secret)
			require.Equal(t, tt.want, g.VerifySignature(body, tt.signature))
		})
	}
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":200000}}`)
	signature := sign(testSecret, body)

	tampered := []byte(`{"event":"charge.success","data":{"reference":"REF-1","amount":1}}`)
	g := newTestGateway(testSecret)
	require.True(t, g.VerifySignature(body, signature))
	require.False(t, g.VerifySignature(tampered, signature))
}

func TestParseWebhook(t *testing.T) {
	raw := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "REF-42",
			"amount": 200000,
			"currency": "NGN",
			"status": "success",
			"metadata": {"order_id": "order-42"}
		}
	}`)

	event, err := paystack.ParseWebhook(raw)
	require.NoError(t, err)
	require.Equal(t, paystack.EventChargeSuccess, event.Event)
	require.Equal(t, "REF-42", event.Data.Reference)
	require.Equal(t, int64(200000), event.Data.Amount)
	require.Equal(t, "NGN", event.Data.Currency)
	require.Equal(t, "order-42", event.Data.Metadata.OrderID)
}

func TestParseWebhookRejectsJunk(t *testing.T) {
	_, err := paystack.ParseWebhook([]byte(`not json`))
	require.Error(t, err)

	_, err = paystack.ParseWebhook([]byte(`{"data":{}}`))
	require.Error(t, err)
}
