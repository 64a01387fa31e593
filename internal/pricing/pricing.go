// Package pricing holds the price-lookup seam and the cancellation
// fee/refund policy.  Prices are consumed at hold time only; the
// policy is consulted at cancellation time with the hours left until
// departure.
package pricing

import "context"

// PriceLookup supplies the price captured onto a seat hold.  The
// flight repository implements it against the fare_classes table; a
// rule-engine service can replace it without touching the hold
// manager.
type PriceLookup interface {
	GetSeatPrice(ctx context.Context, seatID uint64) (priceCents, extraFeeCents uint32, fareClass string, err error)
}
