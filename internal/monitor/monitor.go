package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/alerting"
	"mortgage-rate-alerts/internal/metrics"
	"mortgage-rate-alerts/internal/ratefeed"
	"mortgage-rate-alerts/internal/scheduler"
	"mortgage-rate-alerts/internal/storage"
)

// ErrPassInProgress is returned when another pass holds the monitor.
var ErrPassInProgress = errors.New("rate check already in progress")

// Summary counts the outcome of one pass. Checked is every ACTIVE alert
// examined; Skipped covers unknown loan types and alerts that left ACTIVE mid-pass.
type Summary struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type outcome int

const (
	outcomeChecked outcome = iota
	outcomeTriggered
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeTriggered:
		return "triggered"
	case outcomeSkipped:
		return "skipped"
	case outcomeFailed:
		return "failed"
	default:
		return "checked"
	}
}

// Monitor reconciles ACTIVE alerts against current market rates.
type Monitor struct {
	scheduler *scheduler.Scheduler
	rates     ratefeed.Provider
	store     storage.MonitorStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
	running sync.Mutex

	now   func() time.Time
	newID func() string
}

// New constructs the monitor. sched may be nil when only RunCheck is used.
// A non-zero lockKey guards each pass with a PostgreSQL advisory lock when the
// store supports it.
func New(sched *scheduler.Scheduler, rates ratefeed.Provider, store storage.MonitorStore, notifier alerting.Notifier, lockKey int64, logger zerolog.Logger) *Monitor {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	if notifier == nil {
		notifier = alerting.NewLogNotifier(logger)
	}

	return &Monitor{
		scheduler: sched,
		rates:     rates,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "monitor").Logger(),
		locker:    locker,
		lockKey:   lockKey,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run drives RunCheck from the scheduler until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return m.scheduler.Run(ctx, m.tick)
}

func (m *Monitor) tick(ctx context.Context, at time.Time) error {
	_, err := m.RunCheck(ctx)
	if errors.Is(err, ErrPassInProgress) {
		m.logger.Info().Time("at", at).Msg("skip scheduled pass because another pass is running")
		return nil
	}
	return err
}

// RunCheck evaluates every ACTIVE alert once. Failures on individual alerts are
// logged and counted; rate or listing failures abort the pass.
func (m *Monitor) RunCheck(ctx context.Context) (Summary, error) {
	if !m.running.TryLock() {
		return Summary{}, ErrPassInProgress
	}
	defer m.running.Unlock()

	unlock, proceed, err := m.acquireLock(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !proceed {
		m.logger.Debug().Msg("advisory lock held elsewhere")
		return Summary{}, ErrPassInProgress
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	defer func() { metrics.PassDuration.Observe(time.Since(started).Seconds()) }()

	quotes, err := m.rates.CurrentRates(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch current rates: %w", err)
	}
	rates := ratefeed.Index(quotes)

	alerts, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active alerts: %w", err)
	}

	var summary Summary
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			m.logger.Warn().Err(err).Int("remaining", len(alerts)-summary.Checked).Msg("pass interrupted")
			return summary, err
		}

		result := m.evaluate(ctx, alert, rates)
		metrics.AlertEvaluations.WithLabelValues(result.String()).Inc()

		summary.Checked++
		switch result {
		case outcomeTriggered:
			summary.Triggered++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
		}
	}

	m.logger.Info().
		Int("checked", summary.Checked).
		Int("triggered", summary.Triggered).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("took", time.Since(started)).
		Msg("rate check completed")

	return summary, nil
}

func (m *Monitor) evaluate(ctx context.Context, alert storage.RateAlert, rates map[string]decimal.Decimal) outcome {
	current, ok := rates[alert.LoanType]
	if !ok {
		m.logger.Debug().Str("alert_id", alert.ID).Str("loan_type", alert.LoanType).Msg("no rate for loan type")
		return outcomeSkipped
	}

	now := m.now().UTC()
	if current.GreaterThan(alert.TargetRate) {
		if err := m.store.MarkChecked(ctx, alert.ID, now); err != nil {
			m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to record check")
			return outcomeFailed
		}
		return outcomeChecked
	}

	note := alerting.Triggered{
		AlertID:     alert.ID,
		Email:       alert.Email,
		LoanType:    alert.LoanType,
		CurrentRate: current,
		TargetRate:  alert.TargetRate,
		TriggeredAt: now,
	}
	if alert.FirstName != nil {
		note.FirstName = *alert.FirstName
	}

	_, err := m.store.MarkTriggered(ctx, storage.Trigger{
		AlertID:        alert.ID,
		NotificationID: m.newID(),
		CurrentRate:    current,
		Message:        alerting.Message(note),
		At:             now,
	})
	if errors.Is(err, storage.ErrNotActive) {
		m.logger.Info().Str("alert_id", alert.ID).Msg("alert left ACTIVE before trigger")
		return outcomeSkipped
	}
	if err != nil {
		m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to trigger alert")
		return outcomeFailed
	}

	m.logger.Info().
		Str("alert_id", alert.ID).
		Str("loan_type", alert.LoanType).
		Str("current_rate", current.String()).
		Str("target_rate", alert.TargetRate.String()).
		Msg("rate alert triggered")

	if err := m.notifier.SendRateAlertTriggered(ctx, note); err != nil {
		metrics.NotificationFailures.Inc()
		m.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to deliver trigger notification")
	}
	return outcomeTriggered
}

func (m *Monitor) acquireLock(ctx context.Context) (func(), bool, error) {
	if m.lockKey == 0 || m.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.locker.TryAdvisoryLock(ctx, m.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
