package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Triggered 封装已达到目标利率的提醒上下文。
type Triggered struct {
	AlertID     string
	Email       string
	FirstName   string
	LoanType    string
	CurrentRate decimal.Decimal
	TargetRate  decimal.Decimal
	TriggeredAt time.Time
}

// Notifier 定义利率提醒触发后的通知输送接口。
type Notifier interface {
	SendRateAlertTriggered(ctx context.Context, note Triggered) error
}

// Subject is the short headline used by email-like channels.
func Subject(note Triggered) string {
	return fmt.Sprintf("Rate alert: %s rates hit %s%%", note.LoanType, note.CurrentRate.StringFixed(3))
}

// Message renders the human readable body stored with the notification record.
func Message(note Triggered) string {
	return fmt.Sprintf("%s rates are now %s%%, at or below your target of %s%%.",
		note.LoanType, note.CurrentRate.StringFixed(3), note.TargetRate.StringFixed(3))
}

func renderText(note Triggered) string {
	builder := strings.Builder{}
	if note.FirstName != "" {
		builder.WriteString(fmt.Sprintf("Hi %s,\n\n", note.FirstName))
	}
	builder.WriteString(Message(note))
	builder.WriteString("\n\n")
	builder.WriteString(fmt.Sprintf("Loan type: %s\n", note.LoanType))
	builder.WriteString(fmt.Sprintf("Current rate: %s%%\n", note.CurrentRate.StringFixed(3)))
	builder.WriteString(fmt.Sprintf("Your target: %s%%\n", note.TargetRate.StringFixed(3)))
	if !note.TriggeredAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Checked at: %s UTC\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Alert ID: %s\n", note.AlertID))
	return builder.String()
}

// LogNotifier 仅写日志，未配置任何渠道时使用。
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) SendRateAlertTriggered(_ context.Context, note Triggered) error {
	n.logger.Info().
		Str("alert_id", note.AlertID).
		Str("email", note.Email).
		Str("loan_type", note.LoanType).
		Str("current_rate", note.CurrentRate.String()).
		Str("target_rate", note.TargetRate.String()).
		Msg("rate alert triggered")
	return nil
}

// Fanout 依次发送到所有渠道，并合并失败原因。
type Fanout []Notifier

func (f Fanout) SendRateAlertTriggered(ctx context.Context, note Triggered) error {
	var errs []error
	for _, n := range f {
		if err := n.SendRateAlertTriggered(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Fanout(nil)
)
