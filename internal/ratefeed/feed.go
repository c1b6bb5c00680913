package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/storage"
)

const ratesPath = "/rates"

// FeedOptions parameterise the live rate feed.
type FeedOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
}

// Feed fetches current rates from an HTTP market data service.
type Feed struct {
	client *resty.Client
	logger zerolog.Logger
}

type feedQuote struct {
	LoanType    string          `json:"loanType"`
	CurrentRate decimal.Decimal `json:"currentRate"`
}

type feedError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewFeed constructs a Feed.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "rate-alerts/1.0"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}

	return &Feed{
		client: client,
		logger: logger.With().Str("component", "rate_feed").Logger(),
	}
}

// CurrentRates retrieves the feed and keeps known loan types with positive rates.
func (f *Feed) CurrentRates(ctx context.Context) ([]Quote, error) {
	var payload []feedQuote
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(ratesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	if resp.IsError() {
		return nil, parseHTTPError(resp.StatusCode(), resp.Body())
	}

	quotes := make([]Quote, 0, len(payload))
	for _, item := range payload {
		if !storage.ValidLoanType(item.LoanType) {
			f.logger.Debug().Str("loan_type", item.LoanType).Msg("ignoring unknown loan type from feed")
			continue
		}
		if !item.CurrentRate.IsPositive() {
			f.logger.Warn().Str("loan_type", item.LoanType).Str("rate", item.CurrentRate.String()).Msg("ignoring non-positive rate from feed")
			continue
		}
		quotes = append(quotes, Quote{LoanType: item.LoanType, Rate: item.CurrentRate})
	}

	f.logger.Debug().Int("quotes", len(quotes)).Msg("rates fetched")
	return quotes, nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr feedError
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("rate feed error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("rate feed error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("rate feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("rate feed error (%d)", status)
}

var _ Provider = (*Feed)(nil)
