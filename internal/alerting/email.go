package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const emailsPath = "/emails"

// EmailNotifier posts messages to a transactional email HTTP API.
type EmailNotifier struct {
	client *resty.Client
	from   string
	logger zerolog.Logger
}

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// NewEmailNotifier builds an email notifier for apiBase authenticated by apiKey.
func NewEmailNotifier(apiBase, apiKey, from string, timeout time.Duration, logger zerolog.Logger) *EmailNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(apiBase, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &EmailNotifier{
		client: client,
		from:   from,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

func (n *EmailNotifier) SendRateAlertTriggered(ctx context.Context, note Triggered) error {
	if note.Email == "" {
		return fmt.Errorf("email notifier: alert %s has no recipient", note.AlertID)
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(emailPayload{
			From:    n.from,
			To:      []string{note.Email},
			Subject: Subject(note),
			Text:    renderText(note),
		}).
		Post(emailsPath)
	if err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("email api returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	n.logger.Info().Str("alert_id", note.AlertID).Str("loan_type", note.LoanType).Msg("rate alert email sent")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
