package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aerovia/flight-booking/internal/model"
)

// BookingRepo provides CRUD operations for bookings, their passengers
// and their seats.  Status changes are guarded UPDATEs: the WHERE
// clause names the expected current status, so an interleaved writer
// makes the statement affect zero rows instead of overwriting a
// transition.  All timestamp fields are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so orchestrating services can open
// transactions spanning several repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, reference, flight_id, contact_email, contact_phone, status, total_amount_cents, currency, expires_at, confirmed_at, cancelled_at, checked_in_at, created_at, updated_at`

func scanBooking(scan func(dest ...interface{}) error) (model.Booking, error) {
	var b model.Booking
	var expiresAt, confirmedAt, cancelledAt, checkedInAt sql.NullTime
	err := scan(&b.ID, &b.Reference, &b.FlightID, &b.ContactEmail, &b.ContactPhone,
		&b.Status, &b.TotalAmountCents, &b.Currency,
		&expiresAt, &confirmedAt, &cancelledAt, &checkedInAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		b.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	if checkedInAt.Valid {
		t := checkedInAt.Time
		b.CheckedInAt = &t
	}
	return b, nil
}

// CreateTx inserts a new booking within the scope of an existing
// transaction and populates the generated ID on the provided record.
// The caller must commit or roll back the transaction.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (reference, flight_id, contact_email, contact_phone, status, total_amount_cents, currency, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var expires interface{}
	if b.ExpiresAt != nil {
		expires = b.ExpiresAt.UTC()
	}
	res, err := tx.ExecContext(ctx, q, b.Reference, b.FlightID, b.ContactEmail, b.ContactPhone,
		b.Status, b.TotalAmountCents, b.Currency, expires)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// CreatePassengersBulkTx inserts the passenger rows for a booking in a
// single statement and populates the generated IDs in input order.
// MySQL assigns consecutive ids for a multi-row insert, so the first
// insert id plus the offset recovers each row's key.
func (r *BookingRepo) CreatePassengersBulkTx(ctx context.Context, tx *sql.Tx, passengers []model.BookingPassenger) error {
	if len(passengers) == 0 {
		return nil
	}
	query := `INSERT INTO booking_passengers (booking_id, first_name, last_name, document_no, date_of_birth) VALUES `
	args := make([]interface{}, 0, len(passengers)*5)
	for i, p := range passengers {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, p.BookingID, p.FirstName, p.LastName, p.DocumentNo, p.DateOfBirth.UTC().Format("2006-01-02"))
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i := range passengers {
		passengers[i].ID = uint64(first) + uint64(i)
	}
	return nil
}

// CreateSeatsBulkTx inserts the booking_seats rows linking seats to
// passengers in a single statement.  The unique index on active seat
// rows turns a double-sell into ErrConflict.
func (r *BookingRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, passenger_id, seat_hold_id, price_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*5)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, s.BookingID, s.SeatID, s.PassengerID, s.SeatHoldID, s.PriceCents)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetByReference loads a booking by its public reference code.
// Returns ErrNotFound when no such booking exists.
func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, reference).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByReferenceTx is GetByReference inside a transaction with a row
// lock, for use by status transitions.
func (r *BookingRepo) GetByReferenceTx(ctx context.Context, tx *sql.Tx, reference string) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = ? FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, reference).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// transitionTimestamps maps a target status to the timestamp column
// recorded alongside the transition.
var transitionTimestamps = map[string]string{
	model.BookingConfirmed: "confirmed_at",
	model.BookingCancelled: "cancelled_at",
	model.BookingExpired:   "cancelled_at",
	model.BookingCheckedIn: "checked_in_at",
}

// UpdateStatusTx moves a booking from one status to another inside
// the provided transaction.  The update is guarded on the expected
// current status; ErrStale is returned when another actor already
// transitioned the row.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, bookingID uint64, from, to string) error {
	query := `UPDATE bookings SET status = ?`
	if col, ok := transitionTimestamps[to]; ok {
		query += `, ` + col + ` = UTC_TIMESTAMP()`
	}
	query += ` WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, query, to, bookingID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// SeatsByBookingTx returns the active (non-released) booking seats of
// a booking, with their seat ids, locked for update.
func (r *BookingRepo) SeatsByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.BookingSeat, error) {
	const q = `SELECT id, booking_id, seat_id, passenger_id, seat_hold_id, price_cents, released_at
	           FROM booking_seats
	           WHERE booking_id = ? AND released_at IS NULL
	           FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.BookingSeat
	for rows.Next() {
		var s model.BookingSeat
		var releasedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.BookingID, &s.SeatID, &s.PassengerID, &s.SeatHoldID, &s.PriceCents, &releasedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// ReleaseSeatsTx marks the given booking seats released so the unique
// active-seat index stops counting them.  The caller flips the seats
// back to AVAILABLE in the same transaction.
func (r *BookingRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, bookingSeatIDs []uint64) error {
	if len(bookingSeatIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(bookingSeatIDs))
	args := make([]interface{}, len(bookingSeatIDs))
	for i, id := range bookingSeatIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `UPDATE booking_seats SET released_at = UTC_TIMESTAMP()
	          WHERE id IN (` + strings.Join(placeholders, ",") + `) AND released_at IS NULL`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ExpiredPendingTx returns bookings stuck in PAYMENT_PENDING past
// their deadline, locked and capped for batch processing by the
// sweeper.  SKIP LOCKED lets overlapping sweepers partition the
// backlog instead of blocking on each other.
func (r *BookingRepo) ExpiredPendingTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE status = 'PAYMENT_PENDING' AND expires_at IS NOT NULL AND expires_at <= ?
	           ORDER BY expires_at
	           LIMIT ?
	           FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// PassengersByBooking returns the passenger rows of a booking in
// insertion order.
func (r *BookingRepo) PassengersByBooking(ctx context.Context, bookingID uint64) ([]model.BookingPassenger, error) {
	const q = `SELECT id, booking_id, first_name, last_name, document_no, date_of_birth
	           FROM booking_passengers WHERE booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var passengers []model.BookingPassenger
	for rows.Next() {
		var p model.BookingPassenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.FirstName, &p.LastName, &p.DocumentNo, &p.DateOfBirth); err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	return passengers, rows.Err()
}
