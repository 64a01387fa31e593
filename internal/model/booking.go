package model

import "time"

// Booking statuses.  The main line is DRAFT -> PAYMENT_PENDING ->
// CONFIRMED -> CHECKED_IN -> COMPLETED; CANCELLED, EXPIRED and
// REFUNDED are side branches reachable from any non-terminal state
// per policy.  Transitions are monotonic: once a booking reaches a
// terminal state it never moves again.
const (
	BookingDraft          = "DRAFT"
	BookingPaymentPending = "PAYMENT_PENDING"
	BookingConfirmed      = "CONFIRMED"
	BookingCheckedIn      = "CHECKED_IN"
	BookingCompleted      = "COMPLETED"
	BookingCancelled      = "CANCELLED"
	BookingExpired        = "EXPIRED"
	BookingRefunded       = "REFUNDED"
)

// Booking aggregates the passengers and seats purchased in a single
// transaction and tracks lifecycle status and total amount.
//
// Fields:
//  ID               – primary key identifier.
//  Reference        – public booking reference code (e.g. "BK-7F3A2C").
//  FlightID         – flight being booked.
//  ContactEmail     – contact e-mail for the booking.
//  ContactPhone     – contact phone for the booking.
//  Status           – booking lifecycle status.
//  TotalAmountCents – total price in cents for all seats.
//  Currency         – ISO currency code for the amount.
//  ExpiresAt        – payment deadline while PAYMENT_PENDING (nullable).
//  ConfirmedAt      – when payment was confirmed (nullable).
//  CancelledAt      – when the booking was cancelled/expired (nullable).
//  CheckedInAt      – when the passengers checked in (nullable).
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
	ID               uint64     // bookings.id
	Reference        string     // bookings.reference
	FlightID         uint64     // bookings.flight_id
	ContactEmail     string     // bookings.contact_email
	ContactPhone     string     // bookings.contact_phone
	Status           string     // bookings.status
	TotalAmountCents uint32     // bookings.total_amount_cents
	Currency         string     // bookings.currency
	ExpiresAt        *time.Time // bookings.expires_at (nullable)
	ConfirmedAt      *time.Time // bookings.confirmed_at (nullable)
	CancelledAt      *time.Time // bookings.cancelled_at (nullable)
	CheckedInAt      *time.Time // bookings.checked_in_at (nullable)
	CreatedAt        time.Time  // bookings.created_at
	UpdatedAt        time.Time  // bookings.updated_at
}

// BookingPassenger holds identity and travel-document fields for one
// traveller tied to exactly one booking.
//
// Fields:
//  ID          – primary key identifier.
//  BookingID   – owning booking.
//  FirstName   – passenger given name.
//  LastName    – passenger family name.
//  DocumentNo  – travel document number.
//  DateOfBirth – passenger date of birth.
type BookingPassenger struct {
	ID          uint64    // booking_passengers.id
	BookingID   uint64    // booking_passengers.booking_id
	FirstName   string    // booking_passengers.first_name
	LastName    string    // booking_passengers.last_name
	DocumentNo  string    // booking_passengers.document_no
	DateOfBirth time.Time // booking_passengers.date_of_birth
}

// BookingSeat links one seat, one booking and one passenger, with the
// price captured at hold time.  A seat may have at most one active
// (non-released) BookingSeat at a time, enforced by a unique index.
//
// Fields:
//  ID          – primary key identifier.
//  BookingID   – owning booking.
//  SeatID      – seat that has been booked.
//  PassengerID – passenger assigned to the seat.
//  SeatHoldID  – hold this row was confirmed from.
//  PriceCents  – captured price for this seat in cents.
//  ReleasedAt  – when the seat was given back, if ever (nullable).
type BookingSeat struct {
	ID          uint64     // booking_seats.id
	BookingID   uint64     // booking_seats.booking_id
	SeatID      uint64     // booking_seats.seat_id
	PassengerID uint64     // booking_seats.passenger_id
	SeatHoldID  uint64     // booking_seats.seat_hold_id
	PriceCents  uint32     // booking_seats.price_cents
	ReleasedAt  *time.Time // booking_seats.released_at (nullable)
}

// bookingTransitions enumerates the allowed status transitions.  The
// side branches (CANCELLED, EXPIRED, REFUNDED) are restricted here;
// the service layer adds time-based guards such as the check-in
// cutoff and the payment deadline.
var bookingTransitions = map[string][]string{
	BookingDraft:          {BookingPaymentPending, BookingCancelled},
	BookingPaymentPending: {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingConfirmed:      {BookingCheckedIn, BookingCancelled, BookingRefunded},
	BookingCheckedIn:      {BookingCompleted, BookingCancelled},
	BookingCompleted:      {},
	BookingCancelled:      {},
	BookingExpired:        {},
	BookingRefunded:       {},
}

// CanTransition reports whether a booking in status from may move to
// status to.  Terminal states admit no further transitions.
func CanTransition(from, to string) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	next, ok := bookingTransitions[status]
	return ok && len(next) == 0
}
