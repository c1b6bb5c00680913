package ratefeed

import (
	"context"

	"github.com/shopspring/decimal"
)

// Override replaces selected loan types of an underlying provider.
type Override struct {
	base      Provider
	overrides map[string]decimal.Decimal
}

// NewOverride wraps base. A nil base serves only the overrides.
func NewOverride(base Provider, overrides map[string]decimal.Decimal) *Override {
	return &Override{base: base, overrides: overrides}
}

func (o *Override) CurrentRates(ctx context.Context) ([]Quote, error) {
	merged := map[string]decimal.Decimal{}
	if o.base != nil {
		quotes, err := o.base.CurrentRates(ctx)
		if err != nil {
			return nil, err
		}
		merged = Index(quotes)
	}
	for loanType, rate := range o.overrides {
		merged[loanType] = rate
	}
	return NewStaticFromTable(merged).CurrentRates(ctx)
}

var _ Provider = (*Override)(nil)
