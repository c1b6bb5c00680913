package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	chart "github.com/wcharczuk/go-chart/v2"

	"mortgage-rate-alerts/internal/storage"
)

type exportRow struct {
	ID                string `csv:"id"`
	Email             string `csv:"email"`
	LoanType          string `csv:"loan_type"`
	TargetRate        string `csv:"target_rate"`
	LoanAmount        string `csv:"loan_amount"`
	Timeframe         string `csv:"timeframe"`
	Status            string `csv:"status"`
	NotificationsSent int    `csv:"notifications_sent"`
	BrokerID          string `csv:"broker_id"`
	LoanOfficerID     string `csv:"loan_officer_id"`
	CreatedAt         string `csv:"created_at"`
	LastChecked       string `csv:"last_checked"`
	TriggeredAt       string `csv:"triggered_at"`
}

// Export writes every alert as CSV and/or a PNG bar chart of alerts per loan type.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := collectAlerts(ctx, store, a.Config.ResolvePageSize(opts.PageSize))
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts to export")
		return nil
	}
	a.Logger.Info().Int("alerts", len(alerts)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, alerts); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeLoanTypePNG(opts.PNGPath, alerts); err != nil {
			return err
		}
	}
	return nil
}

func collectAlerts(ctx context.Context, store storage.AlertStore, pageSize int) ([]storage.RateAlert, error) {
	var all []storage.RateAlert
	for offset := 0; ; offset += pageSize {
		page, err := store.ListAlerts(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list alerts at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func writeAlertsCSV(path string, alerts []storage.RateAlert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	rows := make([]*exportRow, 0, len(alerts))
	for _, alert := range alerts {
		row := &exportRow{
			ID:                alert.ID,
			Email:             alert.Email,
			LoanType:          alert.LoanType,
			TargetRate:        alert.TargetRate.String(),
			Timeframe:         alert.Timeframe,
			Status:            string(alert.Status),
			NotificationsSent: alert.NotificationsSent,
			BrokerID:          deref(alert.BrokerID),
			LoanOfficerID:     deref(alert.LoanOfficerID),
			CreatedAt:         alert.CreatedAt.UTC().Format(time.RFC3339),
		}
		if alert.LoanAmount != nil {
			row.LoanAmount = alert.LoanAmount.String()
		}
		if alert.LastChecked != nil {
			row.LastChecked = alert.LastChecked.UTC().Format(time.RFC3339)
		}
		if alert.TriggeredAt != nil {
			row.TriggeredAt = alert.TriggeredAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return gocsv.MarshalFile(&rows, file)
}

func writeLoanTypePNG(path string, alerts []storage.RateAlert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	counts := map[string]int{}
	for _, alert := range alerts {
		counts[alert.LoanType]++
	}

	bars := make([]chart.Value, 0, len(storage.LoanTypes))
	peak := 0
	for _, loanType := range storage.LoanTypes {
		n := counts[loanType]
		if n > peak {
			peak = n
		}
		bars = append(bars, chart.Value{Label: loanType, Value: float64(n)})
	}

	graph := chart.BarChart{
		Title:    "Rate alerts by loan type",
		Width:    1280,
		Height:   720,
		BarWidth: 90,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(peak + 1)},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
