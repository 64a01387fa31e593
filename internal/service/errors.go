// Package service orchestrates the booking core: seat holds, the
// create-booking saga with its idempotency ledger and compensation,
// the expiration sweeper and the dead letter queue.  Expected business
// failures are sentinel errors so callers can branch deterministically;
// infrastructure failures are wrapped and logged with a correlation id.
package service

import "errors"

// ErrValidation marks malformed input, rejected before any
// transaction is opened.
var ErrValidation = errors.New("validation failed")

// ErrSeatUnavailable is returned when one or more requested seats
// cannot be held; the accompanying result lists which ones.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrIdempotencyConflict is returned when an idempotency key is
// reused with a different payload.  The request is rejected and
// nothing is processed.
var ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")

// ErrAlreadyProcessing is returned when a request with the same
// idempotency key is still in flight.  The caller should poll or
// retry later; the side-effecting path never runs twice.
var ErrAlreadyProcessing = errors.New("request already being processed")

// ErrHoldExpired is returned when confirmation references a hold that
// lapsed or was released.  No partial confirmation happens.
var ErrHoldExpired = errors.New("hold expired or released")

// ErrInvalidTransition is returned when a booking lifecycle operation
// is not allowed from the current status.
var ErrInvalidTransition = errors.New("invalid booking state transition")

// ErrCheckInClosed is returned when check-in is attempted past the
// cutoff relative to departure.
var ErrCheckInClosed = errors.New("check-in window closed")

// ErrAlreadyRequeued is returned when a dead letter entry was already
// requeued by another operator.
var ErrAlreadyRequeued = errors.New("entry already requeued")
