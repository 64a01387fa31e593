package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/pricing"
	"github.com/aerovia/flight-booking/internal/repository"
)

// HoldResult reports the outcome of a hold request.  The batch is
// all-or-nothing: either every requested seat is in Held, or none is
// and Unavailable lists the seats that blocked the batch so the
// caller can retry with alternates.
type HoldResult struct {
	Held        []model.SeatHold
	Unavailable []uint64
	ExpiresAt   time.Time
}

// HoldService creates, releases and expires time-bounded exclusive
// seat holds.  Each operation runs in a single database transaction;
// the row locks taken by SELECT ... FOR UPDATE and the unique
// active-hold index are the mutual exclusion, not anything held in
// process memory.
type HoldService struct {
	db     *sql.DB
	seats  *repository.SeatRepo
	holds  *repository.SeatHoldRepo
	prices pricing.PriceLookup
	sweep  holdSweepStore
	ttl    time.Duration
	log    zerolog.Logger
}

// NewHoldService constructs a HoldService.  ttl bounds how long a
// hold keeps a seat off the market without confirmation.
func NewHoldService(db *sql.DB, seats *repository.SeatRepo, holds *repository.SeatHoldRepo, prices pricing.PriceLookup, ttl time.Duration, log zerolog.Logger) *HoldService {
	return &HoldService{
		db:     db,
		seats:  seats,
		holds:  holds,
		prices: prices,
		sweep:  &dbHoldSweep{db: db, seats: seats, holds: holds},
		ttl:    ttl,
		log:    log,
	}
}

// HoldSeats places exclusive holds on the requested seats of a
// flight.  Within one transaction it locks the seat rows, verifies
// every seat is AVAILABLE and active, captures the current fare-class
// price onto each hold and flips the seats to RESERVED.  If any seat
// is unavailable the whole batch fails and the unavailable ids are
// reported.  A racing request that loses the unique-index race on a
// hold insert is treated the same way: the database is the single
// arbiter, and the loser sees the seat as unavailable.
func (s *HoldService) HoldSeats(ctx context.Context, flightID uint64, seatIDs []uint64, holderID string) (*HoldResult, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: no seats requested", ErrValidation)
	}
	if holderID == "" {
		return nil, fmt.Errorf("%w: holder id required", ErrValidation)
	}

	// Capture prices before opening the transaction: the lookup is
	// read-only and keeping it outside shortens the critical section.
	type pricedSeat struct {
		price uint32
		extra uint32
	}
	prices := make(map[uint64]pricedSeat, len(seatIDs))
	for _, id := range seatIDs {
		price, extra, _, err := s.prices.GetSeatPrice(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &HoldResult{Unavailable: []uint64{id}}, ErrSeatUnavailable
			}
			return nil, fmt.Errorf("price lookup for seat %d: %w", id, err)
		}
		prices[id] = pricedSeat{price: price, extra: extra}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin hold tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seats, err := s.seats.LockForUpdateTx(ctx, tx, flightID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	if unavailable := unavailableSeats(seatIDs, seats); len(unavailable) > 0 {
		return &HoldResult{Unavailable: unavailable}, ErrSeatUnavailable
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	held := make([]model.SeatHold, 0, len(seatIDs))
	for _, id := range seatIDs {
		h := model.SeatHold{
			SeatID:        id,
			FlightID:      flightID,
			HolderID:      holderID,
			PriceCents:    prices[id].price,
			ExtraFeeCents: prices[id].extra,
			HeldAt:        now,
			ExpiresAt:     expiresAt,
		}
		if err := s.holds.CreateTx(ctx, tx, &h); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Lost the unique-index race to a concurrent holder.
				return &HoldResult{Unavailable: []uint64{id}}, ErrSeatUnavailable
			}
			return nil, fmt.Errorf("create hold for seat %d: %w", id, err)
		}
		held = append(held, h)
	}
	if err := s.seats.BulkUpdateStatusTx(ctx, tx, seatIDs, model.SeatReserved); err != nil {
		return nil, fmt.Errorf("reserve seats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit hold tx: %w", err)
	}
	committed = true

	s.log.Info().
		Uint64("flight_id", flightID).
		Ints64("seat_ids", toInt64(seatIDs)).
		Str("holder_id", holderID).
		Time("expires_at", expiresAt).
		Msg("seats held")
	return &HoldResult{Held: held, ExpiresAt: expiresAt}, nil
}

// ReleaseHolds releases the given holds and returns seats to the
// market.  Releasing a hold that already left HELD (confirmed,
// released, expired) is a no-op, which makes saga compensation safe
// to retry.  Returns the number of holds actually released.
func (s *HoldService) ReleaseHolds(ctx context.Context, holdIDs []uint64, reason string) (int, error) {
	if len(holdIDs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin release tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seatIDs, err := s.holds.ReleaseTx(ctx, tx, holdIDs, reason)
	if err != nil {
		return 0, fmt.Errorf("release holds: %w", err)
	}
	if err := s.seats.BulkUpdateStatusTx(ctx, tx, seatIDs, model.SeatAvailable); err != nil {
		return 0, fmt.Errorf("free seats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit release tx: %w", err)
	}
	committed = true

	if len(seatIDs) > 0 {
		s.log.Info().Ints64("seat_ids", toInt64(seatIDs)).Str("reason", reason).Msg("holds released")
	}
	return len(seatIDs), nil
}

// expireBatchSize caps how many holds a single sweep transaction
// touches.
const expireBatchSize = 500

// holdSweepStore executes one transactional expiry batch: every HELD
// hold past its deadline (up to limit) moves to EXPIRED and the seats
// return to AVAILABLE.  Returns how many holds transitioned.
type holdSweepStore interface {
	ExpireBatch(ctx context.Context, now time.Time, limit int) (int, error)
}

// ExpireHolds transitions every hold past its deadline to EXPIRED and
// frees the seats.  Status-guarded updates make overlapping sweeper
// instances safe: each hold transitions exactly once.  Returns the
// number of holds expired.
func (s *HoldService) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		n, err := s.sweep.ExpireBatch(ctx, now, expireBatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < expireBatchSize {
			return total, nil
		}
	}
}

// dbHoldSweep is the database-backed holdSweepStore.
type dbHoldSweep struct {
	db    *sql.DB
	seats *repository.SeatRepo
	holds *repository.SeatHoldRepo
}

func (d *dbHoldSweep) ExpireBatch(ctx context.Context, now time.Time, limit int) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expire tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	holdIDs, seatIDs, err := d.holds.ExpireBatchTx(ctx, tx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("expire holds: %w", err)
	}
	if err := d.seats.BulkUpdateStatusTx(ctx, tx, seatIDs, model.SeatAvailable); err != nil {
		return 0, fmt.Errorf("free expired seats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expire tx: %w", err)
	}
	committed = true
	return len(holdIDs), nil
}

// dedupe removes zero and duplicate ids preserving first-seen order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// unavailableSeats compares the requested ids against the locked seat
// rows and returns every id that is missing, inactive or not
// AVAILABLE.
func unavailableSeats(requested []uint64, seats []model.Seat) []uint64 {
	available := make(map[uint64]struct{}, len(seats))
	for _, s := range seats {
		if s.IsActive && s.Status == model.SeatAvailable {
			available[s.ID] = struct{}{}
		}
	}
	var unavailable []uint64
	for _, id := range requested {
		if _, ok := available[id]; !ok {
			unavailable = append(unavailable, id)
		}
	}
	return unavailable
}

func toInt64(ids []uint64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
