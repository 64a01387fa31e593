package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/pricing"
	"github.com/aerovia/flight-booking/internal/repository"
)

// ConfirmInput carries the data needed to turn a set of holds into a
// booking.  Passengers pair with holds by position: Passengers[i] is
// seated on the seat of HoldIDs[i].
type ConfirmInput struct {
	HoldIDs    []uint64         `json:"hold_ids" validate:"required,min=1"`
	Passengers []PassengerInput `json:"passengers" validate:"required,min=1,dive"`
	Contact    ContactInput     `json:"contact"`
}

// PassengerInput is one traveller of a booking request.
type PassengerInput struct {
	FirstName   string    `json:"first_name" validate:"required,max=64"`
	LastName    string    `json:"last_name" validate:"required,max=64"`
	DocumentNo  string    `json:"document_no" validate:"required,max=32"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
}

// ContactInput is the booking contact.
type ContactInput struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// CancellationResult reports the financial outcome of a cancellation.
type CancellationResult struct {
	Booking     *model.Booking
	FeeCents    uint32
	RefundCents uint32
}

// BookingStore executes the transactional booking lifecycle
// operations against the database.  Confirmation and every status
// transition each run in a single transaction; the saga around them
// (hold first, compensate on failure) lives in BookingService.
type BookingStore struct {
	db            *sql.DB
	bookings      *repository.BookingRepo
	holds         *repository.SeatHoldRepo
	seats         *repository.SeatRepo
	flights       *repository.FlightRepo
	policy        pricing.CancellationPolicy
	paymentTTL    time.Duration
	checkInCutoff time.Duration
	log           zerolog.Logger
}

// NewBookingStore constructs a BookingStore.
func NewBookingStore(db *sql.DB, bookings *repository.BookingRepo, holds *repository.SeatHoldRepo, seats *repository.SeatRepo, flights *repository.FlightRepo, policy pricing.CancellationPolicy, paymentTTL, checkInCutoff time.Duration, log zerolog.Logger) *BookingStore {
	return &BookingStore{
		db:            db,
		bookings:      bookings,
		holds:         holds,
		seats:         seats,
		flights:       flights,
		policy:        policy,
		paymentTTL:    paymentTTL,
		checkInCutoff: checkInCutoff,
		log:           log,
	}
}

// Confirm creates a booking from the given holds in one transaction:
// re-validates every hold is still HELD and unexpired, creates the
// booking in PAYMENT_PENDING with the sum of the prices captured at
// hold time, creates passenger and seat rows pairing passengers to
// holds in input order, transitions the holds to CONFIRMED and flips
// the seats to OCCUPIED.  Any failure rolls the transaction back and
// leaves the holds untouched; releasing them is the caller's
// compensation step.
func (s *BookingStore) Confirm(ctx context.Context, in ConfirmInput) (*model.Booking, []string, error) {
	if len(in.HoldIDs) != len(in.Passengers) {
		return nil, nil, fmt.Errorf("%w: %d holds but %d passengers", ErrValidation, len(in.HoldIDs), len(in.Passengers))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	holds, err := s.holds.GetByIDsTx(ctx, tx, in.HoldIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("load holds: %w", err)
	}
	if len(holds) != len(in.HoldIDs) {
		return nil, nil, fmt.Errorf("%w: unknown hold reference", repository.ErrNotFound)
	}

	now := time.Now().UTC()
	byID := make(map[uint64]model.SeatHold, len(holds))
	flightID := holds[0].FlightID
	var total uint32
	for _, h := range holds {
		if !h.Active(now) {
			return nil, nil, fmt.Errorf("%w: hold %d", ErrHoldExpired, h.ID)
		}
		if h.FlightID != flightID {
			return nil, nil, fmt.Errorf("%w: holds span multiple flights", ErrValidation)
		}
		byID[h.ID] = h
		total += h.TotalCents()
	}

	reference, err := newReference()
	if err != nil {
		return nil, nil, fmt.Errorf("generate reference: %w", err)
	}
	expiresAt := now.Add(s.paymentTTL)
	booking := model.Booking{
		Reference:        reference,
		FlightID:         flightID,
		ContactEmail:     in.Contact.Email,
		ContactPhone:     in.Contact.Phone,
		Status:           model.BookingPaymentPending,
		TotalAmountCents: total,
		Currency:         "USD",
		ExpiresAt:        &expiresAt,
	}
	if err := s.bookings.CreateTx(ctx, tx, &booking); err != nil {
		return nil, nil, fmt.Errorf("create booking: %w", err)
	}

	passengers := make([]model.BookingPassenger, len(in.Passengers))
	for i, p := range in.Passengers {
		passengers[i] = model.BookingPassenger{
			BookingID:   booking.ID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DocumentNo:  p.DocumentNo,
			DateOfBirth: p.DateOfBirth,
		}
	}
	if err := s.bookings.CreatePassengersBulkTx(ctx, tx, passengers); err != nil {
		return nil, nil, fmt.Errorf("create passengers: %w", err)
	}

	bookingSeats := make([]model.BookingSeat, len(in.HoldIDs))
	seatIDs := make([]uint64, len(in.HoldIDs))
	for i, holdID := range in.HoldIDs {
		h := byID[holdID]
		seatIDs[i] = h.SeatID
		bookingSeats[i] = model.BookingSeat{
			BookingID:   booking.ID,
			SeatID:      h.SeatID,
			PassengerID: passengers[i].ID,
			SeatHoldID:  h.ID,
			PriceCents:  h.TotalCents(),
		}
	}
	if err := s.bookings.CreateSeatsBulkTx(ctx, tx, bookingSeats); err != nil {
		return nil, nil, fmt.Errorf("create booking seats: %w", err)
	}

	confirmed, err := s.holds.ConfirmTx(ctx, tx, in.HoldIDs, booking.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("confirm holds: %w", err)
	}
	if confirmed != int64(len(in.HoldIDs)) {
		// A hold lapsed between the read and the guarded update.
		return nil, nil, fmt.Errorf("%w: hold lapsed during confirmation", ErrHoldExpired)
	}
	if err := s.seats.BulkUpdateStatusTx(ctx, tx, seatIDs, model.SeatOccupied); err != nil {
		return nil, nil, fmt.Errorf("occupy seats: %w", err)
	}
	seatNumbers, err := s.seats.SeatNumbersTx(ctx, tx, seatIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("seat numbers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit confirm tx: %w", err)
	}
	committed = true

	s.log.Info().
		Str("reference", booking.Reference).
		Uint64("flight_id", flightID).
		Uint32("total_cents", total).
		Int("seats", len(seatIDs)).
		Msg("booking confirmed from holds")
	return &booking, seatNumbers, nil
}

// ConfirmPayment moves a booking from PAYMENT_PENDING to CONFIRMED
// once payment has succeeded.
func (s *BookingStore) ConfirmPayment(ctx context.Context, reference string) (*model.Booking, error) {
	return s.transition(ctx, reference, model.BookingConfirmed, nil)
}

// CheckIn moves a booking from CONFIRMED to CHECKED_IN, allowed only
// before the cutoff relative to departure.
func (s *BookingStore) CheckIn(ctx context.Context, reference string) (*model.Booking, error) {
	return s.transition(ctx, reference, model.BookingCheckedIn, func(ctx context.Context, b *model.Booking) error {
		flight, err := s.flights.GetByID(ctx, b.FlightID)
		if err != nil {
			return fmt.Errorf("load flight: %w", err)
		}
		if time.Now().UTC().After(flight.DepartureAt.Add(-s.checkInCutoff)) {
			return ErrCheckInClosed
		}
		return nil
	})
}

// transition applies a guarded status change inside one transaction.
// guard, when non-nil, runs after the row is locked and may veto the
// transition.
func (s *BookingStore) transition(ctx context.Context, reference, to string, guard func(context.Context, *model.Booking) error) (*model.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := s.bookings.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(b.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	if guard != nil {
		if err := guard(ctx, b); err != nil {
			return nil, err
		}
	}
	if err := s.bookings.UpdateStatusTx(ctx, tx, b.ID, b.Status, to); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	b.Status = to
	return b, nil
}

// GetByReference loads a booking by its public reference.
func (s *BookingStore) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return s.bookings.GetByReference(ctx, reference)
}

// Passengers lists the passenger manifest of a booking.
func (s *BookingStore) Passengers(ctx context.Context, bookingID uint64) ([]model.BookingPassenger, error) {
	return s.bookings.PassengersByBooking(ctx, bookingID)
}

// Cancel cancels a booking, releases its seats back to the market and
// computes the cancellation fee and refund from the policy tables.
// The fee is keyed by the fare class of the booked seats and the
// hours remaining until departure.
func (s *BookingStore) Cancel(ctx context.Context, reference, reason string) (*CancellationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := s.bookings.GetByReferenceTx(ctx, tx, reference)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(b.Status, model.BookingCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, model.BookingCancelled)
	}

	freedSeats, fareClass, err := s.releaseBookingSeatsTx(ctx, tx, b.ID, reason)
	if err != nil {
		return nil, err
	}

	var fee, refund uint32
	if b.Status == model.BookingConfirmed || b.Status == model.BookingCheckedIn {
		flight, err := s.flights.GetByID(ctx, b.FlightID)
		if err != nil {
			return nil, fmt.Errorf("load flight: %w", err)
		}
		hoursLeft := time.Until(flight.DepartureAt).Hours()
		if hoursLeft < 0 {
			hoursLeft = 0
		}
		fee = s.policy.ComputeFee(hoursLeft, b.TotalAmountCents, fareClass)
		refund = s.policy.ComputeRefund(hoursLeft, b.TotalAmountCents, fareClass)
	}

	if err := s.bookings.UpdateStatusTx(ctx, tx, b.ID, b.Status, model.BookingCancelled); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}
	committed = true

	b.Status = model.BookingCancelled
	s.log.Info().
		Str("reference", b.Reference).
		Str("reason", reason).
		Int("seats_freed", len(freedSeats)).
		Uint32("fee_cents", fee).
		Uint32("refund_cents", refund).
		Msg("booking cancelled")
	return &CancellationResult{Booking: b, FeeCents: fee, RefundCents: refund}, nil
}

// expireBookingBatchSize caps how many bookings one sweep transaction
// touches.
const expireBookingBatchSize = 200

// ExpireBookings moves every PAYMENT_PENDING booking past its payment
// deadline to EXPIRED and frees its seats, the same side effect as a
// cancellation.  Status-guarded updates make overlapping sweepers
// safe.  Returns the number of bookings expired.
func (s *BookingStore) ExpireBookings(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		n, err := s.expireBatch(ctx, now)
		if err != nil {
			return total, err
		}
		total += n
		if n < expireBookingBatchSize {
			return total, nil
		}
	}
}

func (s *BookingStore) expireBatch(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expire tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	expired, err := s.bookings.ExpiredPendingTx(ctx, tx, now, expireBookingBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired bookings: %w", err)
	}
	count := 0
	for _, b := range expired {
		if err := s.bookings.UpdateStatusTx(ctx, tx, b.ID, model.BookingPaymentPending, model.BookingExpired); err != nil {
			if errors.Is(err, repository.ErrStale) {
				continue // another sweeper got there first
			}
			return 0, fmt.Errorf("expire booking %s: %w", b.Reference, err)
		}
		if _, _, err := s.releaseBookingSeatsTx(ctx, tx, b.ID, "payment deadline elapsed"); err != nil {
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expire tx: %w", err)
	}
	committed = true
	return count, nil
}

// releaseBookingSeatsTx frees every seat of a booking inside the
// given transaction: booking_seat rows are marked released, the
// owning holds move to RELEASED for the audit trail and the seats go
// back to AVAILABLE.  Returns the freed seat ids and the fare class
// of the first seat for fee computation (economy when the booking
// holds no seats).
func (s *BookingStore) releaseBookingSeatsTx(ctx context.Context, tx *sql.Tx, bookingID uint64, reason string) ([]uint64, string, error) {
	bookingSeats, err := s.bookings.SeatsByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, "", fmt.Errorf("load booking seats: %w", err)
	}
	fareClass := model.FareEconomy
	if len(bookingSeats) > 0 {
		if fc, err := s.flights.FareClassBySeatTx(ctx, tx, bookingSeats[0].SeatID); err == nil {
			fareClass = fc
		}
	}

	seatRowIDs := make([]uint64, len(bookingSeats))
	seatIDs := make([]uint64, len(bookingSeats))
	for i, bs := range bookingSeats {
		seatRowIDs[i] = bs.ID
		seatIDs[i] = bs.SeatID
	}
	if err := s.bookings.ReleaseSeatsTx(ctx, tx, seatRowIDs); err != nil {
		return nil, "", fmt.Errorf("release booking seats: %w", err)
	}
	if _, err := s.holds.ReleaseConfirmedByBookingTx(ctx, tx, bookingID, reason); err != nil {
		return nil, "", fmt.Errorf("release confirmed holds: %w", err)
	}
	// Pre-confirmation holds attached to the booking, if any, are
	// released the same way.
	if _, err := s.holds.ReleaseByBookingTx(ctx, tx, bookingID, reason); err != nil {
		return nil, "", fmt.Errorf("release held holds: %w", err)
	}
	if err := s.seats.BulkUpdateStatusTx(ctx, tx, seatIDs, model.SeatAvailable); err != nil {
		return nil, "", fmt.Errorf("free seats: %w", err)
	}
	return seatIDs, fareClass, nil
}

// newReference generates a short public booking reference of the form
// BK-XXXXXX using crypto/rand.
func newReference() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "BK-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
