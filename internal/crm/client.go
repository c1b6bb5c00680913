// Package crm creates sales leads for new rate alerts.
package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const leadsPath = "/leads"

// Lead is the payload recorded in the CRM for a new alert.
type Lead struct {
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Source        string `json:"source"`
	AlertID       string `json:"alertId"`
	LoanType      string `json:"loanType"`
	TargetRate    string `json:"targetRate"`
	LoanAmount    string `json:"loanAmount,omitempty"`
	BrokerID      string `json:"brokerId,omitempty"`
	LoanOfficerID string `json:"loanOfficerId,omitempty"`
}

// Client posts leads to the CRM HTTP API.
type Client struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewClient builds a lead client for baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Client{
		client: client,
		logger: logger.With().Str("component", "crm").Logger(),
	}
}

// CreateLead records lead. Callers treat failures as non-fatal.
func (c *Client) CreateLead(ctx context.Context, lead Lead) error {
	if lead.Source == "" {
		lead.Source = "rate_alert"
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(lead).
		Post(leadsPath)
	if err != nil {
		return fmt.Errorf("create lead request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("crm returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	c.logger.Debug().Str("alert_id", lead.AlertID).Msg("lead created")
	return nil
}

// Noop discards leads when no CRM is configured.
type Noop struct{}

func (Noop) CreateLead(context.Context, Lead) error { return nil }
