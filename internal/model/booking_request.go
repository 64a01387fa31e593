package model

import "time"

// Booking request (idempotency ledger) statuses.
const (
	RequestPending    = "PENDING"
	RequestProcessing = "PROCESSING"
	RequestCompleted  = "COMPLETED"
	RequestFailed     = "FAILED"
	RequestRetrying   = "RETRYING"
)

// BookingRequest is one row of the idempotency ledger.  Exactly one
// row exists per client-supplied idempotency key; the unique index on
// the key is what makes concurrent duplicate submissions collapse to
// a single processor.  The payload hash guards against the same key
// being reused for a different request.
//
// Fields:
//  ID             – primary key identifier.
//  IdempotencyKey – client-supplied key, unique across the table.
//  PayloadHash    – sha256 hex of the canonical request payload.
//  Status         – ledger status (PENDING..RETRYING).
//  BookingID      – resulting booking, once completed (nullable).
//  BookingRef     – public reference of the resulting booking.
//  ErrorMessage   – failure reason for FAILED entries.
//  ExpiresAt      – when the ledger entry may be garbage collected.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type BookingRequest struct {
	ID             uint64    // booking_requests.id
	IdempotencyKey string    // booking_requests.idempotency_key
	PayloadHash    string    // booking_requests.payload_hash
	Status         string    // booking_requests.status
	BookingID      *uint64   // booking_requests.booking_id (nullable)
	BookingRef     string    // booking_requests.booking_ref
	ErrorMessage   string    // booking_requests.error_message
	ExpiresAt      time.Time // booking_requests.expires_at
	CreatedAt      time.Time // booking_requests.created_at
	UpdatedAt      time.Time // booking_requests.updated_at
}

// Reprocessable reports whether a retried request with a matching
// payload may run the booking flow again.  Only failed entries (or
// ones already marked for retry) qualify; completed entries replay
// their stored result, in-flight ones must be polled.
func (r BookingRequest) Reprocessable() bool {
	return r.Status == RequestFailed || r.Status == RequestRetrying
}
