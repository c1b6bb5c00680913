package ratefeed

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"mortgage-rate-alerts/internal/storage"
)

// DefaultRates is the built-in market table.
var DefaultRates = map[string]decimal.Decimal{
	"30-Year Fixed": decimal.RequireFromString("6.875"),
	"15-Year Fixed": decimal.RequireFromString("6.125"),
	"20-Year Fixed": decimal.RequireFromString("6.625"),
	"FHA":           decimal.RequireFromString("6.500"),
	"VA":            decimal.RequireFromString("6.250"),
	"ARM":           decimal.RequireFromString("6.375"),
	"Jumbo":         decimal.RequireFromString("7.000"),
	"USDA":          decimal.RequireFromString("6.375"),
}

// Static serves a fixed rate table.
type Static struct {
	rates map[string]decimal.Decimal
}

// NewStatic builds a Static provider from DefaultRates with overrides applied.
// Overrides must name known loan types.
func NewStatic(overrides map[string]float64) (*Static, error) {
	rates := make(map[string]decimal.Decimal, len(DefaultRates))
	for loanType, rate := range DefaultRates {
		rates[loanType] = rate
	}
	for name, rate := range overrides {
		loanType, ok := storage.CanonicalLoanType(name)
		if !ok {
			return nil, fmt.Errorf("unknown loan type in rate table: %q", name)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("rate for %q must be positive", name)
		}
		rates[loanType] = decimal.NewFromFloat(rate)
	}
	return &Static{rates: rates}, nil
}

// NewStaticFromTable serves exactly the given table.
func NewStaticFromTable(rates map[string]decimal.Decimal) *Static {
	cp := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Static{rates: cp}
}

func (s *Static) CurrentRates(context.Context) ([]Quote, error) {
	quotes := make([]Quote, 0, len(s.rates))
	for loanType, rate := range s.rates {
		quotes = append(quotes, Quote{LoanType: loanType, Rate: rate})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].LoanType < quotes[j].LoanType })
	return quotes, nil
}

var _ Provider = (*Static)(nil)
