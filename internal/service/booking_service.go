package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/repository"
)

// Ledger records booking requests for idempotent retry handling.
type Ledger interface {
	Insert(ctx context.Context, key, payloadHash string, expiresAt time.Time) (*model.BookingRequest, error)
	GetByKey(ctx context.Context, key string) (*model.BookingRequest, error)
	MarkProcessing(ctx context.Context, id uint64) error
	MarkCompleted(ctx context.Context, id, bookingID uint64, bookingRef string) error
	MarkFailed(ctx context.Context, id uint64, msg string, retryable bool) error
}

// Holder places and releases seat holds.
type Holder interface {
	HoldSeats(ctx context.Context, flightID uint64, seatIDs []uint64, holderID string) (*HoldResult, error)
	ReleaseHolds(ctx context.Context, holdIDs []uint64, reason string) (int, error)
}

// Store runs the transactional booking operations.
type Store interface {
	Confirm(ctx context.Context, in ConfirmInput) (*model.Booking, []string, error)
	ConfirmPayment(ctx context.Context, reference string) (*model.Booking, error)
	Cancel(ctx context.Context, reference, reason string) (*CancellationResult, error)
	CheckIn(ctx context.Context, reference string) (*model.Booking, error)
	GetByReference(ctx context.Context, reference string) (*model.Booking, error)
	Passengers(ctx context.Context, bookingID uint64) ([]model.BookingPassenger, error)
}

// Notifier delivers booking confirmations to interested consumers.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, booking *model.Booking, seatNumbers []string) error
}

// CreateBookingInput is the end-to-end booking request: hold the
// seats and confirm them in one call, deduplicated by the
// idempotency key.
type CreateBookingInput struct {
	IdempotencyKey string           `json:"-" validate:"required,max=128"`
	FlightID       uint64           `json:"flight_id" validate:"required"`
	SeatIDs        []uint64         `json:"seat_ids" validate:"required,min=1"`
	Passengers     []PassengerInput `json:"passengers" validate:"required,min=1,dive"`
	Contact        ContactInput     `json:"contact"`
}

// CreateBookingResult is the outcome of CreateBooking.
// AlreadyExisted is true when the idempotency key matched a completed
// earlier request and the stored result was replayed.
type CreateBookingResult struct {
	Booking        *model.Booking
	SeatNumbers    []string
	AlreadyExisted bool
}

// BookingService orchestrates the booking saga: ledger entry, seat
// holds, transactional confirmation, compensation on failure and the
// confirmation notification.  Collaborators are interfaces so the
// flow is testable without a database.
type BookingService struct {
	ledger    Ledger
	holder    Holder
	store     Store
	notifier  Notifier
	validate  *validator.Validate
	ledgerTTL time.Duration
	log       zerolog.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(ledger Ledger, holder Holder, store Store, notifier Notifier, ledgerTTL time.Duration, log zerolog.Logger) *BookingService {
	return &BookingService{
		ledger:    ledger,
		holder:    holder,
		store:     store,
		notifier:  notifier,
		validate:  validator.New(),
		ledgerTTL: ledgerTTL,
		log:       log,
	}
}

// CreateBooking runs the whole flow for one request.  The
// idempotency ledger makes retries safe: a completed earlier request
// replays its stored booking, an in-flight one returns
// ErrAlreadyProcessing, and a failed one runs the flow again.  When
// confirmation fails after the holds were placed, the holds are
// released before the error is returned so no seat stays blocked.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(in.SeatIDs) != len(in.Passengers) {
		return nil, fmt.Errorf("%w: %d seats but %d passengers", ErrValidation, len(in.SeatIDs), len(in.Passengers))
	}

	hash, err := payloadHash(in)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}

	entry, err := s.ledger.Insert(ctx, in.IdempotencyKey, hash, time.Now().UTC().Add(s.ledgerTTL))
	if errors.Is(err, repository.ErrConflict) {
		existing, getErr := s.ledger.GetByKey(ctx, in.IdempotencyKey)
		if getErr != nil {
			return nil, fmt.Errorf("load ledger entry: %w", getErr)
		}
		result, resolved, resErr := s.resolveExisting(ctx, existing, hash)
		if resErr != nil || resolved {
			return result, resErr
		}
		entry = existing
	} else if err != nil {
		return nil, fmt.Errorf("record request: %w", err)
	}

	if err := s.ledger.MarkProcessing(ctx, entry.ID); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, ErrAlreadyProcessing
		}
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	held, err := s.holder.HoldSeats(ctx, in.FlightID, in.SeatIDs, in.IdempotencyKey)
	if err != nil {
		retryable := !errors.Is(err, ErrSeatUnavailable)
		s.fail(ctx, entry.ID, err, retryable)
		return nil, err
	}

	holdIDs := make([]uint64, len(held.Held))
	for i, h := range held.Held {
		holdIDs[i] = h.ID
	}
	booking, seatNumbers, err := s.store.Confirm(ctx, ConfirmInput{
		HoldIDs:    holdIDs,
		Passengers: in.Passengers,
		Contact:    in.Contact,
	})
	if err != nil {
		// Compensate: free the holds we just placed so other
		// customers can take the seats.
		if _, relErr := s.holder.ReleaseHolds(ctx, holdIDs, "confirmation failed"); relErr != nil {
			s.log.Error().Err(relErr).
				Uints64("hold_ids", holdIDs).
				Msg("compensation release failed, sweeper will reclaim")
		}
		s.fail(ctx, entry.ID, err, true)
		return nil, err
	}

	if err := s.ledger.MarkCompleted(ctx, entry.ID, booking.ID, booking.Reference); err != nil {
		s.log.Error().Err(err).Str("reference", booking.Reference).Msg("failed to complete ledger entry")
	}
	s.notify(ctx, booking, seatNumbers)
	return &CreateBookingResult{Booking: booking, SeatNumbers: seatNumbers}, nil
}

// resolveExisting decides what a duplicate idempotency key means.
// The second return value reports whether the request was resolved
// here (replay or error); false means the caller may reprocess the
// entry.
func (s *BookingService) resolveExisting(ctx context.Context, entry *model.BookingRequest, hash string) (*CreateBookingResult, bool, error) {
	if entry.PayloadHash != hash {
		return nil, true, ErrIdempotencyConflict
	}
	switch entry.Status {
	case model.RequestCompleted:
		booking, err := s.store.GetByReference(ctx, entry.BookingRef)
		if err != nil {
			return nil, true, fmt.Errorf("replay booking %s: %w", entry.BookingRef, err)
		}
		return &CreateBookingResult{Booking: booking, AlreadyExisted: true}, true, nil
	case model.RequestPending, model.RequestProcessing:
		return nil, true, ErrAlreadyProcessing
	default:
		return nil, false, nil
	}
}

// ConfirmFromHolds is the two-step flow: the client held seats
// earlier and now confirms them.  Compensation mirrors
// CreateBooking: a failed confirmation releases the holds.
func (s *BookingService) ConfirmFromHolds(ctx context.Context, in ConfirmInput) (*CreateBookingResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	booking, seatNumbers, err := s.store.Confirm(ctx, in)
	if err != nil {
		if _, relErr := s.holder.ReleaseHolds(ctx, in.HoldIDs, "confirmation failed"); relErr != nil {
			s.log.Error().Err(relErr).
				Uints64("hold_ids", in.HoldIDs).
				Msg("compensation release failed, sweeper will reclaim")
		}
		return nil, err
	}
	s.notify(ctx, booking, seatNumbers)
	return &CreateBookingResult{Booking: booking, SeatNumbers: seatNumbers}, nil
}

// ConfirmPayment marks a pending booking as paid.
func (s *BookingService) ConfirmPayment(ctx context.Context, reference string) (*model.Booking, error) {
	return s.store.ConfirmPayment(ctx, reference)
}

// Cancel cancels a booking and reports the fee and refund.
func (s *BookingService) Cancel(ctx context.Context, reference, reason string) (*CancellationResult, error) {
	return s.store.Cancel(ctx, reference, reason)
}

// CheckIn checks a confirmed booking in before the departure cutoff.
func (s *BookingService) CheckIn(ctx context.Context, reference string) (*model.Booking, error) {
	return s.store.CheckIn(ctx, reference)
}

// GetByReference loads a booking by its public reference.
func (s *BookingService) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return s.store.GetByReference(ctx, reference)
}

// Passengers lists the passenger manifest of a booking.
func (s *BookingService) Passengers(ctx context.Context, bookingID uint64) ([]model.BookingPassenger, error) {
	return s.store.Passengers(ctx, bookingID)
}

func (s *BookingService) fail(ctx context.Context, entryID uint64, cause error, retryable bool) {
	if err := s.ledger.MarkFailed(ctx, entryID, cause.Error(), retryable); err != nil {
		s.log.Error().Err(err).Uint64("request_id", entryID).Msg("failed to record request failure")
	}
}

// notify sends the confirmation without blocking the booking result.
// Delivery failures are logged; the queue consumer side retries
// through the dead letter pipeline.
func (s *BookingService) notify(ctx context.Context, booking *model.Booking, seatNumbers []string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendBookingConfirmation(ctx, booking, seatNumbers); err != nil {
		s.log.Error().Err(err).Str("reference", booking.Reference).Msg("confirmation notification failed")
	}
}

// payloadHash computes a stable sha256 over the request body,
// excluding the idempotency key itself so the same payload under the
// same key always hashes identically.
func payloadHash(in CreateBookingInput) (string, error) {
	body, err := json.Marshal(struct {
		FlightID   uint64           `json:"flight_id"`
		SeatIDs    []uint64         `json:"seat_ids"`
		Passengers []PassengerInput `json:"passengers"`
		Contact    ContactInput     `json:"contact"`
	}{in.FlightID, in.SeatIDs, in.Passengers, in.Contact})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
