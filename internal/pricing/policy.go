package pricing

import (
	"github.com/aerovia/flight-booking/internal/model"
)

// feeTier is one row of a fare class's cancellation fee table: the
// fee applied when cancellation happens at least MinHours before
// departure.
type feeTier struct {
	MinHours  float64
	Percent   uint32 // percentage of the amount paid
	FlatCents uint32 // flat fee added on top
}

// feeTables keys the cancellation fee tiers by fare class.  Tiers are
// ordered from most to least notice; the first tier whose MinHours is
// satisfied applies.  Fees are capped at the amount paid.
var feeTables = map[string][]feeTier{
	model.FareEconomy: {
		{MinHours: 24, Percent: 10, FlatCents: 2500},
		{MinHours: 2, Percent: 25, FlatCents: 5000},
		{MinHours: 0, Percent: 50, FlatCents: 10000},
	},
	model.FareBusiness: {
		{MinHours: 24, Percent: 5, FlatCents: 2500},
		{MinHours: 2, Percent: 15, FlatCents: 5000},
		{MinHours: 0, Percent: 30, FlatCents: 10000},
	},
	model.FareFirst: {
		{MinHours: 24, Percent: 0, FlatCents: 2500},
		{MinHours: 2, Percent: 10, FlatCents: 5000},
		{MinHours: 0, Percent: 25, FlatCents: 10000},
	},
}

// processingFeeCents is withheld from every refund regardless of
// notice.
const processingFeeCents uint32 = 2500

// CancellationPolicy computes cancellation fees and refunds from the
// fare-class fee tables.  It is deterministic: same inputs, same fee.
type CancellationPolicy interface {
	ComputeFee(hoursUntilDeparture float64, amountPaidCents uint32, fareClass string) uint32
	ComputeRefund(hoursUntilDeparture float64, amountPaidCents uint32, fareClass string) uint32
}

// TablePolicy is the standard CancellationPolicy backed by the static
// fee tables above.
type TablePolicy struct{}

// NewTablePolicy returns the standard policy.
func NewTablePolicy() TablePolicy { return TablePolicy{} }

// ComputeFee returns the cancellation fee in cents.  Unknown fare
// classes fall back to the economy table, the strictest one.  The fee
// never exceeds the amount paid.
func (TablePolicy) ComputeFee(hoursUntilDeparture float64, amountPaidCents uint32, fareClass string) uint32 {
	tiers, ok := feeTables[fareClass]
	if !ok {
		tiers = feeTables[model.FareEconomy]
	}
	var tier feeTier
	for _, t := range tiers {
		if hoursUntilDeparture >= t.MinHours {
			tier = t
			break
		}
	}
	fee := amountPaidCents*tier.Percent/100 + tier.FlatCents
	if fee > amountPaidCents {
		fee = amountPaidCents
	}
	return fee
}

// ComputeRefund returns the amount returned to the customer after the
// cancellation fee and the processing fee.  Never negative.
func (p TablePolicy) ComputeRefund(hoursUntilDeparture float64, amountPaidCents uint32, fareClass string) uint32 {
	fee := p.ComputeFee(hoursUntilDeparture, amountPaidCents, fareClass)
	withheld := fee + processingFeeCents
	if withheld >= amountPaidCents {
		return 0
	}
	return amountPaidCents - withheld
}
