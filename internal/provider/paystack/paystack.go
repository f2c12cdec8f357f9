// Package paystack adapts the card/bank gateway. Paystack speaks minor units
// (kobo) natively, so amounts pass through this adapter unconverted.
package paystack

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/provider"
)

// GatewayName is the provider identifier used in ledger entries and routes.
const GatewayName = "paystack"

// Gateway implements provider.Gateway against the Paystack REST API.
type Gateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// New constructs a Gateway from payment configuration.
func New(cfg config.Config) *Gateway {
	return &Gateway{
		secretKey: cfg.Payments.Paystack.SecretKey,
		baseURL:   strings.TrimRight(cfg.Payments.Paystack.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Payments.ProviderTimeout},
	}
}

// Name implements provider.Gateway.
func (g *Gateway) Name() string { return GatewayName }

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// verifyResponse is the typed shape of GET /transaction/verify. Amount is kobo.
type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"data"`
}

// Initiate starts a checkout transaction and returns the handoff data.
func (g *Gateway) Initiate(ctx context.Context, req provider.InitiateRequest) (provider.InitiateResult, error) {
	reference, err := newReference()
	if err != nil {
		return provider.InitiateResult{}, err
	}

	payload, err := json.Marshal(initializeRequest{
		Email:       req.PayerEmail,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   reference,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return provider.InitiateResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return provider.InitiateResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return provider.InitiateResult{}, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return provider.InitiateResult{}, fmt.Errorf("%w: status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return provider.InitiateResult{}, fmt.Errorf("%w: status %d", provider.ErrInvalidRequest, resp.StatusCode)
	}

	var body initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.InitiateResult{}, fmt.Errorf("%w: decode: %v", provider.ErrProviderUnavailable, err)
	}
	if !body.Status {
		return provider.InitiateResult{}, fmt.Errorf("%w: %s", provider.ErrInvalidRequest, body.Message)
	}

	return provider.InitiateResult{
		Reference:   reference,
		CheckoutURL: body.Data.AuthorizationURL,
		AccessCode:  body.Data.AccessCode,
	}, nil
}

// QueryStatus polls the verify endpoint for the authoritative charge state.
func (g *Gateway) QueryStatus(ctx context.Context, reference string) (provider.StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return provider.StatusResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return provider.StatusResult{}, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return provider.StatusResult{}, provider.ErrNotFound
	case resp.StatusCode >= 500:
		return provider.StatusResult{}, fmt.Errorf("%w: status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return provider.StatusResult{}, fmt.Errorf("%w: status %d", provider.ErrInvalidRequest, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.StatusResult{}, fmt.Errorf("%w: decode: %v", provider.ErrProviderUnavailable, err)
	}
	if !body.Status {
		return provider.StatusResult{}, provider.ErrNotFound
	}

	return provider.StatusResult{
		Status:   mapChargeStatus(body.Data.Status),
		Amount:   body.Data.Amount,
		Currency: body.Data.Currency,
	}, nil
}

func mapChargeStatus(s string) provider.ChargeStatus {
	switch s {
	case "success":
		return provider.StatusSucceeded
	case "failed", "abandoned", "reversed":
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

// newReference builds a provider-scoped transaction reference.
func newReference() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return strings.ToUpper(ts + "-" + hex.EncodeToString(buf[:])), nil
}
