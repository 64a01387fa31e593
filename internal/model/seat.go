package model

import "time"

// Seat statuses.  A seat moves AVAILABLE -> RESERVED when a hold is
// created, RESERVED -> OCCUPIED when the owning booking is confirmed,
// and back to AVAILABLE when a hold or booking is released.
const (
	SeatAvailable = "AVAILABLE"
	SeatReserved  = "RESERVED"
	SeatOccupied  = "OCCUPIED"
)

// Seat describes a physical seat on a flight.  Seats are uniquely
// identified by their flight and seat number.  Only the hold manager
// and booking confirmation/cancellation mutate the status field.
// Seats are never deleted, only deactivated.
//
// Fields:
//  ID          – primary key identifier.
//  FlightID    – flight to which this seat belongs.
//  FareClassID – fare class that prices this seat.
//  SeatNumber  – cabin seat designator (e.g. "12C").
//  Status      – AVAILABLE, RESERVED or OCCUPIED.
//  IsActive    – whether the seat is sellable.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Seat struct {
	ID          uint64    // seats.id
	FlightID    uint64    // seats.flight_id
	FareClassID uint64    // seats.fare_class_id
	SeatNumber  string    // seats.seat_number
	Status      string    // seats.status
	IsActive    bool      // seats.is_active
	CreatedAt   time.Time // seats.created_at
	UpdatedAt   time.Time // seats.updated_at
}
