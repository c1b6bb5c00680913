package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送运营副本。
type TelegramNotifier struct {
	client *resty.Client
	path   string
	chatID string
	logger zerolog.Logger
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// NewTelegramNotifier 构造 Telegram 通知器，baseURL 为空时使用官方 Bot API。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{
		client: client,
		path:   "/bot" + botToken + "/sendMessage",
		chatID: chatID,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramNotifier) SendRateAlertTriggered(ctx context.Context, note Triggered) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(telegramMessage{ChatID: n.chatID, Text: renderOpsText(note)}).
		Post(n.path)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode())
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err == nil && !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}

	n.logger.Info().Str("alert_id", note.AlertID).Str("loan_type", note.LoanType).Msg("trigger posted to telegram")
	return nil
}

func renderOpsText(note Triggered) string {
	var b strings.Builder
	b.WriteString("[Rate Alert Triggered]\n")
	fmt.Fprintf(&b, "Alert: %s\n", note.AlertID)
	fmt.Fprintf(&b, "Email: %s\n", note.Email)
	fmt.Fprintf(&b, "Loan type: %s\n", note.LoanType)
	fmt.Fprintf(&b, "Current: %s%% (target %s%%)\n", note.CurrentRate.StringFixed(3), note.TargetRate.StringFixed(3))
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
