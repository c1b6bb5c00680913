package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/monitor"
	"mortgage-rate-alerts/internal/ratefeed"
	"mortgage-rate-alerts/internal/storage"
)

// RunCheck performs one monitor pass against the configured rate source.
func (a *App) RunCheck(ctx context.Context) (monitor.Summary, error) {
	rates, err := a.newRates()
	if err != nil {
		return monitor.Summary{}, err
	}
	return a.runPass(ctx, rates)
}

// SimulateTrigger runs one pass with the given loan type rates replacing the
// configured ones.
func (a *App) SimulateTrigger(ctx context.Context, overrides map[string]decimal.Decimal) (monitor.Summary, error) {
	canonical := make(map[string]decimal.Decimal, len(overrides))
	for name, rate := range overrides {
		loanType, ok := storage.CanonicalLoanType(name)
		if !ok {
			return monitor.Summary{}, fmt.Errorf("unknown loan type %q", name)
		}
		if !rate.IsPositive() {
			return monitor.Summary{}, fmt.Errorf("rate for %s must be positive", loanType)
		}
		canonical[loanType] = rate
	}

	base, err := a.newRates()
	if err != nil {
		return monitor.Summary{}, err
	}
	return a.runPass(ctx, ratefeed.NewOverride(base, canonical))
}

func (a *App) runPass(ctx context.Context, rates ratefeed.Provider) (monitor.Summary, error) {
	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return monitor.Summary{}, err
	}
	defer closeStore()

	summary, err := a.newMonitor(store, rates, false).RunCheck(ctx)
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(os.Stdout, "checked=%d triggered=%d skipped=%d failed=%d\n",
		summary.Checked, summary.Triggered, summary.Skipped, summary.Failed)
	return summary, nil
}
