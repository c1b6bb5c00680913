package ratefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedCurrentRatesFiltersUnknownLoanTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rates", r.URL.Path)
		assert.Equal(t, "Bearer feed-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"loanType": "30-Year Fixed", "currentRate": 6.1},
			{"loanType": "FHA", "currentRate": "5.75"},
			{"loanType": "Balloon", "currentRate": 4.0},
			{"loanType": "VA", "currentRate": 0},
		})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, APIKey: "feed-key", Timeout: time.Second}, zerolog.Nop())
	quotes, err := feed.CurrentRates(context.Background())
	require.NoError(t, err)

	rates := Index(quotes)
	assert.Len(t, rates, 2)
	assert.True(t, rates["30-Year Fixed"].Equal(decimal.RequireFromString("6.1")))
	assert.True(t, rates["FHA"].Equal(decimal.RequireFromString("5.75")))
}

func TestFeedCurrentRatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "maintenance"})
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := feed.CurrentRates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestStaticOverridesAndValidation(t *testing.T) {
	static, err := NewStatic(map[string]float64{"fha": 5.5, "30-year fixed": 6.0})
	require.NoError(t, err)

	quotes, err := static.CurrentRates(context.Background())
	require.NoError(t, err)
	rates := Index(quotes)
	assert.Len(t, rates, len(DefaultRates))
	assert.True(t, rates["FHA"].Equal(decimal.RequireFromString("5.5")))
	assert.True(t, rates["30-Year Fixed"].Equal(decimal.RequireFromString("6")))

	_, err = NewStatic(map[string]float64{"Balloon": 5})
	assert.Error(t, err)
}

func TestOverrideReplacesSelectedLoanTypes(t *testing.T) {
	base := NewStaticFromTable(map[string]decimal.Decimal{
		"FHA": decimal.RequireFromString("6.5"),
		"VA":  decimal.RequireFromString("6.2"),
	})
	override := NewOverride(base, map[string]decimal.Decimal{"FHA": decimal.RequireFromString("5.0")})

	quotes, err := override.CurrentRates(context.Background())
	require.NoError(t, err)
	rates := Index(quotes)
	assert.True(t, rates["FHA"].Equal(decimal.RequireFromString("5.0")))
	assert.True(t, rates["VA"].Equal(decimal.RequireFromString("6.2")))
}
