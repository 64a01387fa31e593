package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aerovia/flight-booking/internal/model"
)

func TestComputeFeeEconomy(t *testing.T) {
	p := NewTablePolicy()
	cases := []struct {
		name  string
		hours float64
		paid  uint32
		fee   uint32
	}{
		// $500 paid, 10h notice: 2-hour tier, 25% + $50 flat = $175.
		{"ten hours notice", 10, 50000, 17500},
		// 48h notice: 24-hour tier, 10% + $25 flat = $75.
		{"two days notice", 48, 50000, 7500},
		// 1h notice: last-minute tier, 50% + $100 flat = $350.
		{"one hour notice", 1, 50000, 35000},
		// Fee is capped at the amount paid.
		{"cap at amount paid", 1, 15000, 15000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fee, p.ComputeFee(tc.hours, tc.paid, model.FareEconomy))
		})
	}
}

func TestComputeRefundEconomyExample(t *testing.T) {
	// Economy fare, $500 paid, cancelled 10 hours before departure:
	// fee $175, processing fee $25, refund $300.
	p := NewTablePolicy()
	assert.Equal(t, uint32(17500), p.ComputeFee(10, 50000, model.FareEconomy))
	assert.Equal(t, uint32(30000), p.ComputeRefund(10, 50000, model.FareEconomy))
}

func TestComputeRefundNeverNegative(t *testing.T) {
	p := NewTablePolicy()
	// Fee caps at the amount paid; processing fee would push the
	// refund below zero, so it floors at zero instead.
	assert.Equal(t, uint32(0), p.ComputeRefund(1, 10000, model.FareEconomy))
	assert.Equal(t, uint32(0), p.ComputeRefund(0.5, 0, model.FareEconomy))
}

func TestComputeFeeFareClasses(t *testing.T) {
	p := NewTablePolicy()
	// Business and First take smaller cuts than Economy at the same notice.
	economy := p.ComputeFee(10, 50000, model.FareEconomy)
	business := p.ComputeFee(10, 50000, model.FareBusiness)
	first := p.ComputeFee(10, 50000, model.FareFirst)
	assert.Greater(t, economy, business)
	assert.Greater(t, business, first)

	// Unknown fare classes fall back to the economy table.
	assert.Equal(t, economy, p.ComputeFee(10, 50000, "PREMIUM_PLUS"))
}
