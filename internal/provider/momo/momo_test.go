package momo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chopdirect/chopdirect/internal/config"
	"github.com/chopdirect/chopdirect/internal/provider"
)

func newTestGateway(t *testing.T, status statusResponse) *Gateway {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/collection/token/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/collection/v1_0/requesttopay/", func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		_ = json.NewEncoder(w).Encode(status)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Payments.ProviderTimeout = 5 * time.Second
	cfg.Payments.Momo = config.Momo{
		BaseURL:         srv.URL,
		APIUser:         "user",
		APIKey:          "key",
		SubscriptionKey: "sub",
		TargetEnv:       "sandbox",
		Sandbox:         true,
		TokenBuffer:     30 * time.Second,
		MinorPerMajor:   100,
	}
	return New(cfg)
}

func TestQueryStatusConvertsMajorAmount(t *testing.T) {
	gw := newTestGateway(t, statusResponse{
		Amount:   "2000",
		Currency: "EUR",
		Status:   "SUCCESSFUL",
	})

	result, err := gw.QueryStatus(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Equal(t, provider.StatusSucceeded, result.Status)
	require.Equal(t, int64(200_000), result.Amount)
	require.Equal(t, "EUR", result.Currency)
}

func TestQueryStatusRejectsSubMinorAmount(t *testing.T) {
	gw := newTestGateway(t, statusResponse{
		Amount:   "2000.009",
		Currency: "EUR",
		Status:   "SUCCESSFUL",
	})

	_, err := gw.QueryStatus(context.Background(), "ref-1")
	require.Error(t, err)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}
