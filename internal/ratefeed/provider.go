// Package ratefeed supplies current market rates per loan type.
package ratefeed

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is the current market rate of one loan type, in percent.
type Quote struct {
	LoanType string
	Rate     decimal.Decimal
}

// Provider returns current rates. Coverage may be partial; callers treat a
// missing loan type as unknown rather than as an error.
type Provider interface {
	CurrentRates(ctx context.Context) ([]Quote, error)
}

// Index maps quotes by loan type. Later duplicates win.
func Index(quotes []Quote) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		out[q.LoanType] = q.Rate
	}
	return out
}
