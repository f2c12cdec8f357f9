// Package momo adapts the MTN MoMo collection gateway. MoMo speaks
// major-unit decimal strings on the wire; this adapter converts to and from
// minor units at its boundary so nothing outside it ever mixes units.
package momo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/provider"
)

// GatewayName is the provider identifier used in ledger entries and routes.
const GatewayName = "momo"

const defaultTokenTTL = time.Hour

// Gateway implements provider.Gateway against the MoMo collection API.
type Gateway struct {
	cfg    config.Momo
	client *http.Client
	tokens *tokenSource
}

// New constructs a Gateway; the token cache is scoped to this instance.
func New(cfg config.Config) *Gateway {
	g := &Gateway{
		cfg:    cfg.Payments.Momo,
		client: &http.Client{Timeout: cfg.Payments.ProviderTimeout},
	}
	g.tokens = newTokenSource(g.fetchAccessToken, cfg.Payments.Momo.TokenBuffer)
	return g
}

// Name implements provider.Gateway.
func (g *Gateway) Name() string { return GatewayName }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// fetchAccessToken exchanges basic credentials for a bearer token.
func (g *Gateway) fetchAccessToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", 0, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(g.cfg.APIUser + ":" + g.cfg.APIKey))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.cfg.SubscriptionKey)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: token: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: token status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("%w: token decode: %v", provider.ErrProviderUnavailable, err)
	}

	ttl := defaultTokenTTL
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}
	return body.AccessToken, ttl, nil
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
	Payer        struct {
		PartyIDType string `json:"partyIdType"`
		PartyID     string `json:"partyId"`
	} `json:"payer"`
}

// Initiate issues a request-to-pay against the payer's wallet.
func (g *Gateway) Initiate(ctx context.Context, req provider.InitiateRequest) (provider.InitiateResult, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return provider.InitiateResult{}, err
	}

	reference := uuid.NewString()

	currency := req.Currency
	if g.cfg.Sandbox {
		// Sandbox only accepts EUR.
		currency = "EUR"
	}

	body := requestToPayBody{
		Amount:       formatMajor(req.Amount, g.cfg.MinorPerMajor),
		Currency:     currency,
		ExternalID:   reference,
		PayerMessage: "Payment for order",
		PayeeNote:    "Thank you for your payment",
	}
	body.Payer.PartyIDType = "MSISDN"
	body.Payer.PartyID = req.PayerPhone

	payload, err := json.Marshal(body)
	if err != nil {
		return provider.InitiateResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(payload))
	if err != nil {
		return provider.InitiateResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Reference-Id", reference)
	httpReq.Header.Set("X-Target-Environment", g.cfg.TargetEnv)
	httpReq.Header.Set("X-Callback-Url", req.CallbackURL)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", g.cfg.SubscriptionKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return provider.InitiateResult{}, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return provider.InitiateResult{Reference: reference}, nil
	case resp.StatusCode >= 500:
		return provider.InitiateResult{}, fmt.Errorf("%w: status %d", provider.ErrProviderUnavailable, resp.StatusCode)
	default:
		return provider.InitiateResult{}, fmt.Errorf("%w: status %d", provider.ErrInvalidRequest, resp.StatusCode)
	}
}

// statusResponse is the typed request-to-pay status payload. Amount is a
// major-unit decimal string.
type statusResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// QueryStatus polls the authoritative request-to-pay state.
func (g *Gateway) QueryStatus(ctx context.Context, reference string) (provider.StatusResult, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return provider.StatusResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/collection/v1_0/requesttopay/"+reference, nil)
	if err != nil {
		return provider.StatusResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Target-Environment", g.cfg.TargetEnv)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", g.cfg.SubscriptionKey)

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
	case resp.StatusCode != http.StatusOK:
		return provider.StatusResult{}, fmt.Errorf("%w: status %d", provider.ErrInvalidRequest, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.StatusResult{}, fmt.Errorf("%w: decode: %v", provider.ErrProviderUnavailable, err)
	}

	amount, err := parseMajor(body.Amount, g.cfg.MinorPerMajor)
	if err != nil {
		return provider.StatusResult{}, fmt.Errorf("%w: parse amount: %v", provider.ErrProviderUnavailable, err)
	}

	return provider.StatusResult{
		Status:   mapChargeStatus(body.Status),
		Amount:   amount,
		Currency: body.Currency,
	}, nil
}

func mapChargeStatus(s string) provider.ChargeStatus {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return provider.StatusSucceeded
	case "FAILED", "REJECTED", "TIMEOUT":
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

// fracWidth reports the decimal-digit count of the minor unit, e.g. 2 for
// minorPerMajor 100. minorPerMajor must be a power of ten.
func fracWidth(minorPerMajor int64) (int, error) {
	width := 0
	pow := int64(1)
	for pow < minorPerMajor {
		pow *= 10
		width++
	}
	if pow != minorPerMajor {
		return 0, fmt.Errorf("minor units per major %d is not a power of ten", minorPerMajor)
	}
	return width, nil
}

// formatMajor renders minor units as the major-unit decimal string the wire
// expects, with no trailing decimals for whole amounts.
func formatMajor(minor, minorPerMajor int64) string {
	major := minor / minorPerMajor
	rem := minor % minorPerMajor
	if rem == 0 {
		return strconv.FormatInt(major, 10)
	}
	width, err := fracWidth(minorPerMajor)
	if err != nil || width == 0 {
		return strconv.FormatInt(minor/minorPerMajor, 10)
	}
	return fmt.Sprintf("%d.%0*d", major, width, rem)
}

// parseMajor converts a major-unit decimal string into minor units. Amounts
// finer than the minor unit are rejected, never rounded, so a reported
// amount either converts exactly or surfaces as a parse error.
func parseMajor(s string, minorPerMajor int64) (int64, error) {
	width, err := fracWidth(minorPerMajor)
	if err != nil {
		return 0, err
	}
	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	minor := major * minorPerMajor
	if !hasFrac {
		return minor, nil
	}
	if len(frac) == 0 || len(frac) > width {
		return 0, fmt.Errorf("amount %q has more than %d fractional digits", s, width)
	}
	for len(frac) < width {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if cents < 0 {
		return 0, fmt.Errorf("amount %q has a malformed fraction", s)
	}
	return minor + cents, nil
}
