package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aerovia/flight-booking/internal/model"
)

// BookingRequestRepo persists the idempotency ledger.  The unique
// index on idempotency_key is the mechanism that resolves concurrent
// first inserts: exactly one inserter wins, every loser re-reads the
// existing row and follows the "existing entry" path.
type BookingRequestRepo struct {
	db *sql.DB
}

// NewBookingRequestRepo returns a BookingRequestRepo bound to the
// given database.
func NewBookingRequestRepo(db *sql.DB) *BookingRequestRepo {
	return &BookingRequestRepo{db: db}
}

const requestColumns = `id, idempotency_key, payload_hash, status, booking_id, booking_ref, error_message, expires_at, created_at, updated_at`

func scanRequest(scan func(dest ...interface{}) error) (model.BookingRequest, error) {
	var r model.BookingRequest
	var bookingID sql.NullInt64
	err := scan(&r.ID, &r.IdempotencyKey, &r.PayloadHash, &r.Status, &bookingID,
		&r.BookingRef, &r.ErrorMessage, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		r.BookingID = &id
	}
	return r, nil
}

// Insert creates a new ledger row in status PENDING.  It returns
// ErrConflict when a row for the key already exists; the caller then
// loads the existing row with GetByKey and resolves it.
func (r *BookingRequestRepo) Insert(ctx context.Context, key, payloadHash string, expiresAt time.Time) (*model.BookingRequest, error) {
	const q = `INSERT INTO booking_requests (idempotency_key, payload_hash, status, expires_at)
	           VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, key, payloadHash, model.RequestPending, expiresAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.BookingRequest{
		ID:             uint64(id),
		IdempotencyKey: key,
		PayloadHash:    payloadHash,
		Status:         model.RequestPending,
		ExpiresAt:      expiresAt.UTC(),
	}, nil
}

// GetByKey loads the ledger row for an idempotency key.  Returns
// ErrNotFound when no row exists.
func (r *BookingRequestRepo) GetByKey(ctx context.Context, key string) (*model.BookingRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM booking_requests WHERE idempotency_key = ?`
	req, err := scanRequest(r.db.QueryRowContext(ctx, q, key).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkProcessing claims a ledger row for processing.  The guard on
// the current status means only one caller can claim a PENDING,
// FAILED or RETRYING row; everyone else gets ErrStale and reports
// "already being processed".
func (r *BookingRequestRepo) MarkProcessing(ctx context.Context, id uint64) error {
	const q = `UPDATE booking_requests SET status = ?
	           WHERE id = ? AND status IN ('PENDING','FAILED','RETRYING')`
	res, err := r.db.ExecContext(ctx, q, model.RequestProcessing, id)
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

// MarkCompleted records the resulting booking on a PROCESSING row.
func (r *BookingRequestRepo) MarkCompleted(ctx context.Context, id, bookingID uint64, bookingRef string) error {
	const q = `UPDATE booking_requests SET status = ?, booking_id = ?, booking_ref = ?, error_message = ''
	           WHERE id = ? AND status = 'PROCESSING'`
	_, err := r.db.ExecContext(ctx, q, model.RequestCompleted, bookingID, bookingRef, id)
	return err
}

// MarkFailed records a failure and whether a retry with the same key
// is allowed.  Validation and conflict failures are terminal (FAILED
// still allows reprocessing once the client fixes nothing — the hash
// must match — so retryable distinguishes transient infrastructure
// failures, which are marked RETRYING).
func (r *BookingRequestRepo) MarkFailed(ctx context.Context, id uint64, msg string, retryable bool) error {
	status := model.RequestFailed
	if retryable {
		status = model.RequestRetrying
	}
	const q = `UPDATE booking_requests SET status = ?, error_message = ?
	           WHERE id = ? AND status = 'PROCESSING'`
	_, err := r.db.ExecContext(ctx, q, status, msg, id)
	return err
}

// DeleteExpired hard-deletes ledger rows past their retention window.
// Completed results only need to be replayable for as long as a
// client could plausibly still be retrying.
func (r *BookingRequestRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM booking_requests WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
