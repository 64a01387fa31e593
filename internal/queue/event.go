// Package queue defines the message payloads exchanged over the
// broker and the background job runtime that consumes them.
package queue

import "encoding/json"

// Job types dispatched by the background consumer.
const (
	JobSweepExpired    = "sweep.expired"
	JobDLQCleanup      = "dlq.cleanup"
	JobNotifyConfirmed = "notify.booking_confirmed"
	JobLedgerCleanup   = "ledger.cleanup"
)

// JobMessage is the envelope for every background job.  Args carries
// the job-specific payload verbatim so a dead-lettered job can be
// requeued byte-for-byte.
type JobMessage struct {
	JobID         string          `json:"job_id"`
	CorrelationID string          `json:"correlation_id"`
	Type          string          `json:"type"`
	Args          json.RawMessage `json:"args"`
}

// BookingConfirmedEvent is the payload of notify.booking_confirmed
// jobs, published when a booking is successfully created.  It carries
// enough information for downstream senders to notify the customer
// without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64   `json:"booking_id"`
	Reference        string   `json:"reference"`
	FlightID         uint64   `json:"flight_id"`
	ContactEmail     string   `json:"contact_email"`
	SeatNumbers      []string `json:"seats"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	Currency         string   `json:"currency"`
	CreatedAt        string   `json:"created_at"`
}
