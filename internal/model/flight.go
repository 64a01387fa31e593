package model

import "time"

// Flight describes a scheduled departure for which seats are sold.
// The booking core only needs the departure time (check-in cutoff,
// cancellation-fee tiers) and the active flag; route and equipment
// data live with the catalog owner.
//
// Fields:
//  ID          – primary key identifier.
//  FlightNo    – public flight designator (e.g. "AV412").
//  DepartureAt – scheduled departure timestamp (UTC).
//  IsActive    – whether the flight is open for booking.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Flight struct {
	ID          uint64    // flights.id
	FlightNo    string    // flights.flight_no
	DepartureAt time.Time // flights.departure_at
	IsActive    bool      // flights.is_active
	CreatedAt   time.Time // flights.created_at
	UpdatedAt   time.Time // flights.updated_at
}

// FareClass is a priced seating tier on a flight (Economy, Business,
// First).  Seat prices are captured from the fare class at hold time
// and never re-fetched afterwards.
//
// Fields:
//  ID            – primary key identifier.
//  FlightID      – flight this fare class belongs to.
//  Code          – tier code (ECONOMY, BUSINESS, FIRST).
//  PriceCents    – base seat price in cents.
//  ExtraFeeCents – per-seat surcharge in cents (baggage, service).
type FareClass struct {
	ID            uint64 // fare_classes.id
	FlightID      uint64 // fare_classes.flight_id
	Code          string // fare_classes.code
	PriceCents    uint32 // fare_classes.price_cents
	ExtraFeeCents uint32 // fare_classes.extra_fee_cents
}

// Fare class codes recognised by the cancellation policy.
const (
	FareEconomy  = "ECONOMY"
	FareBusiness = "BUSINESS"
	FareFirst    = "FIRST"
)
