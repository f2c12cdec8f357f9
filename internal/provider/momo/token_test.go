package momo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenSourceReusesUntilBuffer(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	fetches := 0

	src := newTokenSource(func(context.Context) (string, time.Duration, error) {
		fetches++
		return "token-" + string(rune('0'+fetches)), time.Hour, nil
	}, 30*time.Second)
	src.now = func() time.Time { return clock }

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", token)
	require.Equal(t, 1, fetches)

	// Just outside the buffer window: still reused.
	clock = issued.Add(time.Hour - 31*time.Second)
	token, err = src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", token)
	require.Equal(t, 1, fetches)

	// Inside the buffer window: refreshed.
	clock = issued.Add(time.Hour - 29*time.Second)
	token, err = src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-2", token)
	require.Equal(t, 2, fetches)
}

func TestTokenSourceFetchError(t *testing.T) {
	wantErr := errors.New("auth rejected")
	src := newTokenSource(func(context.Context) (string, time.Duration, error) {
		return "", 0, wantErr
	}, 30*time.Second)

	_, err := src.Token(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestTokenSourceErrorKeepsNothingCached(t *testing.T) {
	calls := 0
	src := newTokenSource(func(context.Context) (string, time.Duration, error) {
		calls++
		if calls == 1 {
			return "", 0, errors.New("transient")
		}
		return "fresh", time.Hour, nil
	}, 30*time.Second)

	_, err := src.Token(context.Background())
	require.Error(t, err)

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", token)
	require.Equal(t, 2, calls)
}

func TestFormatMajor(t *testing.T) {
	tests := []struct {
		name          string
		minor         int64
		minorPerMajor int64
		want          string
	}{
		{"whole units", 200_000, 100, "2000"},
		{"with remainder", 150, 100, "1.50"},
		{"below one unit", 5, 100, "0.05"},
		{"zero", 0, 100, "0"},
		{"three digit minor unit", 1_005, 1000, "1.005"},
		{"unitless currency", 7, 1, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, formatMajor(tt.minor, tt.minorPerMajor))
		})
	}
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		name          string
		in            string
		minorPerMajor int64
		want          int64
		wantErr       bool
	}{
		{"whole units", "2000", 100, 200_000, false},
		{"decimal", "1.50", 100, 150, false},
		{"single decimal digit", "0.5", 100, 50, false},
		{"empty", "", 100, 0, true},
		{"not a number", "abc", 100, 0, true},
		{"excess fractional digits rejected", "2000.009", 100, 0, true},
		{"bare decimal point", "2000.", 100, 0, true},
		{"fraction on unitless currency", "7.0", 1, 0, true},
		{"three digit minor unit", "1.005", 1000, 1_005, false},
		{"minor unit not a power of ten", "1.50", 250, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMajor(tt.in, tt.minorPerMajor)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
