package model

import "time"

// Seat hold statuses.  A hold starts as HELD and transitions exactly
// once: to CONFIRMED by booking confirmation, to RELEASED by an
// explicit release (compensation, cancellation) or to EXPIRED by the
// sweeper.  Hold rows are never physically deleted so the full
// history of who held which seat remains queryable.
const (
	HoldHeld      = "HELD"
	HoldConfirmed = "CONFIRMED"
	HoldReleased  = "RELEASED"
	HoldExpired   = "EXPIRED"
)

// SeatHold represents a time-bounded exclusive reservation on a seat
// prior to payment confirmation.  At most one hold per seat may be in
// status HELD at any instant; the database enforces this with a
// unique index rather than application flags.
//
// Fields:
//  ID             – primary key identifier.
//  SeatID         – seat being held.
//  FlightID       – flight the seat belongs to (denormalised for sweeps).
//  BookingID      – owning booking, set at confirmation (nullable).
//  HolderID       – user or guest identifier who requested the hold.
//  Status         – HELD, CONFIRMED, RELEASED or EXPIRED.
//  PriceCents     – seat price captured at hold time.
//  ExtraFeeCents  – per-seat surcharge captured at hold time.
//  HeldAt         – when the hold was created.
//  ExpiresAt      – when the hold lapses unless confirmed.
//  ReleasedAt     – when the hold was released or expired (nullable).
//  ReleaseReason  – why the hold was released (nullable).
type SeatHold struct {
	ID            uint64     // seat_holds.id
	SeatID        uint64     // seat_holds.seat_id
	FlightID      uint64     // seat_holds.flight_id
	BookingID     *uint64    // seat_holds.booking_id (nullable)
	HolderID      string     // seat_holds.holder_id
	Status        string     // seat_holds.status
	PriceCents    uint32     // seat_holds.price_cents
	ExtraFeeCents uint32     // seat_holds.extra_fee_cents
	HeldAt        time.Time  // seat_holds.held_at
	ExpiresAt     time.Time  // seat_holds.expires_at
	ReleasedAt    *time.Time // seat_holds.released_at (nullable)
	ReleaseReason *string    // seat_holds.release_reason (nullable)
}

// Active reports whether the hold is still usable for confirmation at
// the given instant, i.e. status HELD and not past its deadline.
func (h SeatHold) Active(now time.Time) bool {
	return h.Status == HoldHeld && now.Before(h.ExpiresAt)
}

// TotalCents returns the captured price plus surcharge for this seat.
func (h SeatHold) TotalCents() uint32 {
	return h.PriceCents + h.ExtraFeeCents
}
