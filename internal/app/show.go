package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/storage"
)

// Show prints an email's alerts, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := a.newService(store).List(ctx, opts.Email, opts.All)
	if err != nil {
		return err
	}
	if res.Total == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	alerts := make([]storage.RateAlert, 0, len(res.Alerts))
	for _, summary := range res.Alerts {
		alert, err := store.GetAlert(ctx, summary.ID)
		if err != nil {
			return err
		}
		alerts = append(alerts, alert)
	}
	return writeAlertTable(os.Stdout, alerts)
}

func writeAlertTable(out io.Writer, alerts []storage.RateAlert) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tLoan Type\tTarget%\tStatus\tTimeframe\tNotified\tCreated (UTC)\tLast Checked (UTC)")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			alert.ID,
			alert.LoanType,
			formatDecimal(alert.TargetRate, 3),
			alert.Status,
			alert.Timeframe,
			alert.NotificationsSent,
			alert.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(alert.LastChecked),
		)
	}

	return writer.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
