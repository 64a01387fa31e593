package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aerovia/flight-booking/internal/model"
)

// SeatRepo encapsulates database operations for seats.  Seat status is
// only ever changed by the hold manager and by booking
// confirmation/cancellation; everything else reads.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo given a DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// DB exposes the underlying handle so orchestrating services can open
// transactions spanning several repositories.
func (r *SeatRepo) DB() *sql.DB { return r.db }

// LockForUpdateTx reads the requested seats of a flight with a
// row-exclusivity lock (SELECT ... FOR UPDATE) inside the provided
// transaction.  The returned seats carry their current status; the
// caller decides whether the batch is holdable.  Rows are locked in
// ascending seat id order to keep concurrent batches deadlock-free.
func (r *SeatRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, flightID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(seatIDs))
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, flightID)
	for i, id := range seatIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `SELECT id, flight_id, fare_class_id, seat_number, status, is_active, created_at, updated_at
	          FROM seats
	          WHERE flight_id = ? AND id IN (` + strings.Join(placeholders, ",") + `)
	          ORDER BY id
	          FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.FlightID, &s.FareClassID, &s.SeatNumber, &s.Status, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// BulkUpdateStatusTx sets the status of the given seats within the
// provided transaction.  Passing an empty slice has no effect and
// returns nil.
func (r *SeatRepo) BulkUpdateStatusTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, status string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(seatIDs))
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, status)
	for i, id := range seatIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE seats SET status = ? WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// SeatNumbersTx returns the cabin designators of the given seats, in
// seat id order.
func (r *SeatRepo) SeatNumbersTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(seatIDs))
	args := make([]interface{}, len(seatIDs))
	for i, id := range seatIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT seat_number FROM seats WHERE id IN (` + strings.Join(placeholders, ",") + `) ORDER BY id`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// ListByFlight returns all active seats of a flight ordered by seat
// number, for availability displays.
func (r *SeatRepo) ListByFlight(ctx context.Context, flightID uint64) ([]model.Seat, error) {
	const q = `SELECT id, flight_id, fare_class_id, seat_number, status, is_active, created_at, updated_at
	           FROM seats
	           WHERE flight_id = ? AND is_active = 1
	           ORDER BY seat_number`
	rows, err := r.db.QueryContext(ctx, q, flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.FlightID, &s.FareClassID, &s.SeatNumber, &s.Status, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// Deactivate marks a seat unsellable.  Seats are never deleted; a
// deactivated seat keeps its history of holds and bookings.
func (r *SeatRepo) Deactivate(ctx context.Context, seatID uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE seats SET is_active = 0 WHERE id = ?`, seatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
