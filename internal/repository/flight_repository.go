package repository

import (
	"context"
	"database/sql"

	"github.com/aerovia/flight-booking/internal/model"
)

// FlightRepo reads the flight catalog and seat pricing.  It also
// serves as the priced-seat lookup the hold manager consumes: prices
// come from the seat's fare class and are captured onto the hold, so
// this repository is never consulted again after hold time.
type FlightRepo struct {
	db *sql.DB
}

// NewFlightRepo returns a FlightRepo bound to the given database.
func NewFlightRepo(db *sql.DB) *FlightRepo { return &FlightRepo{db: db} }

// GetByID loads a flight.  Returns ErrNotFound when absent or
// inactive.
func (r *FlightRepo) GetByID(ctx context.Context, id uint64) (*model.Flight, error) {
	const q = `SELECT id, flight_no, departure_at, is_active, created_at, updated_at
	           FROM flights WHERE id = ? AND is_active = 1`
	var f model.Flight
	err := r.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.FlightNo, &f.DepartureAt, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetSeatPrice returns the fare-class price and surcharge for a seat
// together with the fare class code.  Returns ErrNotFound for unknown
// seats.
func (r *FlightRepo) GetSeatPrice(ctx context.Context, seatID uint64) (priceCents, extraFeeCents uint32, fareClass string, err error) {
	const q = `SELECT fc.price_cents, fc.extra_fee_cents, fc.code
	           FROM seats s
	           JOIN fare_classes fc ON fc.id = s.fare_class_id
	           WHERE s.id = ?`
	err = r.db.QueryRowContext(ctx, q, seatID).Scan(&priceCents, &extraFeeCents, &fareClass)
	if err == sql.ErrNoRows {
		return 0, 0, "", ErrNotFound
	}
	return priceCents, extraFeeCents, fareClass, err
}

// FareClassBySeatTx resolves the fare class of a seat inside a
// transaction, used by cancellation to key the fee table.
func (r *FlightRepo) FareClassBySeatTx(ctx context.Context, tx *sql.Tx, seatID uint64) (string, error) {
	const q = `SELECT fc.code FROM seats s JOIN fare_classes fc ON fc.id = s.fare_class_id WHERE s.id = ?`
	var code string
	err := tx.QueryRowContext(ctx, q, seatID).Scan(&code)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return code, err
}
