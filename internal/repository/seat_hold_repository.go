package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aerovia/flight-booking/internal/model"
)

// SeatHoldRepo provides data access to the seat_holds table.  Holds
// transition exactly once out of HELD and are never physically
// deleted, so every method that ends a hold is a status-guarded
// UPDATE.  All timestamps are UTC.
type SeatHoldRepo struct {
	db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

const holdColumns = `id, seat_id, flight_id, booking_id, holder_id, status, price_cents, extra_fee_cents, held_at, expires_at, released_at, release_reason`

func scanHold(scan func(dest ...interface{}) error) (model.SeatHold, error) {
	var h model.SeatHold
	var bookingID sql.NullInt64
	var releasedAt sql.NullTime
	var reason sql.NullString
	err := scan(&h.ID, &h.SeatID, &h.FlightID, &bookingID, &h.HolderID, &h.Status,
		&h.PriceCents, &h.ExtraFeeCents, &h.HeldAt, &h.ExpiresAt, &releasedAt, &reason)
	if err != nil {
		return h, err
	}
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		h.BookingID = &id
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		h.ReleasedAt = &t
	}
	if reason.Valid {
		s := reason.String
		h.ReleaseReason = &s
	}
	return h, nil
}

// CreateTx inserts a hold row for one seat within the provided
// transaction and populates the generated ID.  The unique index on
// the active seat column makes a racing insert for the same seat fail
// with a duplicate-key error, which is mapped to ErrConflict so the
// loser can report the seat as unavailable.
func (r *SeatHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.SeatHold) error {
	const q = `INSERT INTO seat_holds (seat_id, flight_id, holder_id, status, price_cents, extra_fee_cents, held_at, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, h.SeatID, h.FlightID, h.HolderID, model.HoldHeld,
		h.PriceCents, h.ExtraFeeCents, h.HeldAt.UTC(), h.ExpiresAt.UTC())
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
	h.ID = uint64(id)
	h.Status = model.HoldHeld
	return nil
}

// GetByIDsTx loads the holds with the given ids inside the provided
// transaction, locking the rows so a concurrent sweep cannot expire
// them mid-confirmation.
func (r *SeatHoldRepo) GetByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.SeatHold, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT ` + holdColumns + ` FROM seat_holds WHERE id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.SeatHold
	for rows.Next() {
		h, err := scanHold(rows.Scan)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

// ConfirmTx transitions the given holds from HELD to CONFIRMED and
// attaches the owning booking.  The status guard in the WHERE clause
// means an expired or released hold is simply not updated; the caller
// compares the affected count against len(ids) to detect a lapsed
// hold.
func (r *SeatHoldRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, ids []uint64, bookingID uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, model.HoldConfirmed, bookingID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE seat_holds SET status = ?, booking_id = ?
	          WHERE id IN (` + strings.Join(placeholders, ",") + `) AND status = 'HELD' AND expires_at > UTC_TIMESTAMP()`
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseTx transitions the given holds from HELD to RELEASED with a
// reason and frees nothing else; the caller flips the seats back to
// AVAILABLE in the same transaction.  Releasing a hold that already
// left HELD is a no-op, which makes compensation idempotent.  It
// returns the seat ids of the holds that actually transitioned.
func (r *SeatHoldRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, ids []uint64, reason string) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	// Collect the seats that will transition before updating.
	selQ := `SELECT id, seat_id FROM seat_holds WHERE id IN (` +
		strings.Join(placeholders, ",") + `) AND status = 'HELD' FOR UPDATE`
	rows, err := tx.QueryContext(ctx, selQ, args...)
	if err != nil {
		return nil, err
	}
	var holdIDs, seatIDs []uint64
	for rows.Next() {
		var hid, sid uint64
		if scanErr := rows.Scan(&hid, &sid); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		holdIDs = append(holdIDs, hid)
		seatIDs = append(seatIDs, sid)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(holdIDs) == 0 {
		return nil, nil
	}
	updPlaceholders := make([]string, len(holdIDs))
	updArgs := make([]interface{}, 0, len(holdIDs)+1)
	updArgs = append(updArgs, reason)
	for i, id := range holdIDs {
		updPlaceholders[i] = "?"
		updArgs = append(updArgs, id)
	}
	updQ := `UPDATE seat_holds SET status = 'RELEASED', released_at = UTC_TIMESTAMP(), release_reason = ?
	         WHERE id IN (` + strings.Join(updPlaceholders, ",") + `) AND status = 'HELD'`
	if _, err := tx.ExecContext(ctx, updQ, updArgs...); err != nil {
		return nil, err
	}
	return seatIDs, nil
}

// ReleaseByBookingTx releases all still-HELD holds attached to a
// booking, returning the freed seat ids.
func (r *SeatHoldRepo) ReleaseByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64, reason string) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM seat_holds WHERE booking_id = ? AND status = 'HELD' FOR UPDATE`, bookingID)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if scanErr := rows.Scan(&id); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	return r.ReleaseTx(ctx, tx, ids, reason)
}

// ReleaseConfirmedByBookingTx releases the CONFIRMED holds of a
// booking when the booking itself is cancelled or expired, keeping
// the audit trail of why each seat went back on the market.  Returns
// the freed seat ids.
func (r *SeatHoldRepo) ReleaseConfirmedByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64, reason string) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, seat_id FROM seat_holds WHERE booking_id = ? AND status = 'CONFIRMED' FOR UPDATE`, bookingID)
	if err != nil {
		return nil, err
	}
	var holdIDs, seatIDs []uint64
	for rows.Next() {
		var hid, sid uint64
		if scanErr := rows.Scan(&hid, &sid); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		holdIDs = append(holdIDs, hid)
		seatIDs = append(seatIDs, sid)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(holdIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(holdIDs))
	args := make([]interface{}, 0, len(holdIDs)+1)
	args = append(args, reason)
	for i, id := range holdIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	updQ := `UPDATE seat_holds SET status = 'RELEASED', released_at = UTC_TIMESTAMP(), release_reason = ?
	         WHERE id IN (` + strings.Join(placeholders, ",") + `) AND status = 'CONFIRMED'`
	if _, err := tx.ExecContext(ctx, updQ, args...); err != nil {
		return nil, err
	}
	return seatIDs, nil
}

// ExpireBatchTx transitions every hold past its deadline from HELD to
// EXPIRED and returns the seat ids that were freed.  Because the
// UPDATE is guarded on status, concurrent sweeper instances are safe:
// each hold transitions exactly once and a second sweeper finds
// nothing to do.  The batch is capped so a large backlog is worked
// off across successive sweeps instead of one giant transaction.
func (r *SeatHoldRepo) ExpireBatchTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]uint64, []uint64, error) {
	const selQ = `SELECT id, seat_id FROM seat_holds
	              WHERE status = 'HELD' AND expires_at <= ?
	              ORDER BY expires_at
	              LIMIT ?
	              FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, selQ, now.UTC(), limit)
	if err != nil {
		return nil, nil, err
	}
	var holdIDs, seatIDs []uint64
	for rows.Next() {
		var hid, sid uint64
		if scanErr := rows.Scan(&hid, &sid); scanErr != nil {
			rows.Close()
			return nil, nil, scanErr
		}
		holdIDs = append(holdIDs, hid)
		seatIDs = append(seatIDs, sid)
	}
	if err = rows.Close(); err != nil {
		return nil, nil, err
	}
	if len(holdIDs) == 0 {
		return nil, nil, nil
	}
	placeholders := make([]string, len(holdIDs))
	args := make([]interface{}, len(holdIDs))
	for i, id := range holdIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	updQ := `UPDATE seat_holds SET status = 'EXPIRED', released_at = UTC_TIMESTAMP(), release_reason = 'ttl elapsed'
	         WHERE id IN (` + strings.Join(placeholders, ",") + `) AND status = 'HELD'`
	if _, err := tx.ExecContext(ctx, updQ, args...); err != nil {
		return nil, nil, err
	}
	return holdIDs, seatIDs, nil
}
