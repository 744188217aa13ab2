package exchange

import "github.com/shopspring/decimal"

// Fx converts prices between a source and target currency pair. A concrete
// price provider is out of scope for this module (spec.md §1); Reactor and
// Strategy only depend on this interface.
type Fx interface {
	// Ready reports whether a rate has been produced yet.
	Ready() bool
	// Rate returns the current conversion rate. Callers must check Ready
	// first; Rate on a not-ready Fx returns the zero decimal.
	Rate() decimal.Decimal
	// Apply divides price by the current rate, the inverse of how the
	// strategy multiplies when converting a source price into target terms.
	Apply(price decimal.Decimal) decimal.Decimal
}
