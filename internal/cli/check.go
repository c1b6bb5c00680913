package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var runCheckCmd = &cobra.Command{
	Use:   "run-check",
	Short: "Run one rate monitor pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().RunCheck(cmd.Context())
		return err
	},
}

var simulateRates []string

var simulateCmd = &cobra.Command{
	Use:   "simulate-trigger",
	Short: "Run one monitor pass with overridden market rates",
	Example: `  rate-alerts simulate-trigger --rate "30-Year Fixed=5.9"
  rate-alerts simulate-trigger --rate FHA=5.5 --rate VA=5.25`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseRateOverrides(simulateRates)
		if err != nil {
			return err
		}
		_, err = getApp().SimulateTrigger(cmd.Context(), overrides)
		return err
	},
}

func parseRateOverrides(values []string) (map[string]decimal.Decimal, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one --rate LOAN_TYPE=RATE is required")
	}
	out := make(map[string]decimal.Decimal, len(values))
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --rate %q, want LOAN_TYPE=RATE", raw)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate in %q: %w", raw, err)
		}
		out[strings.TrimSpace(name)] = rate
	}
	return out, nil
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simulateRates, "rate", nil, "Override as LOAN_TYPE=RATE (repeatable)")
}
