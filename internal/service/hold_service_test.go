package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovia/flight-booking/internal/model"
)

func TestDedupe(t *testing.T) {
	assert.Equal(t, []uint64{3, 1, 2}, dedupe([]uint64{3, 1, 3, 0, 2, 1}))
	assert.Empty(t, dedupe([]uint64{0, 0}))
	assert.Empty(t, dedupe(nil))
}

func TestUnavailableSeats(t *testing.T) {
	seats := []model.Seat{
		{ID: 1, Status: model.SeatAvailable, IsActive: true},
		{ID: 2, Status: model.SeatReserved, IsActive: true},
		{ID: 3, Status: model.SeatAvailable, IsActive: false},
	}
	// Seat 4 is not in the locked rows at all.
	got := unavailableSeats([]uint64{1, 2, 3, 4}, seats)
	assert.Equal(t, []uint64{2, 3, 4}, got)

	assert.Empty(t, unavailableSeats([]uint64{1}, seats))
}

func TestHoldActiveWindow(t *testing.T) {
	now := time.Now().UTC()
	h := model.SeatHold{Status: model.HoldHeld, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, h.Active(now))
	assert.False(t, h.Active(now.Add(2*time.Minute)))

	h.Status = model.HoldReleased
	assert.False(t, h.Active(now))
}

func TestHoldTotalIncludesExtraFee(t *testing.T) {
	h := model.SeatHold{PriceCents: 45000, ExtraFeeCents: 3500}
	assert.Equal(t, uint32(48500), h.TotalCents())
}

// fakeHoldSweep applies the expiry transition in memory with the same
// guards the database enforces: only HELD holds past their deadline
// move to EXPIRED, and only their seats flip back to AVAILABLE.
type fakeHoldSweep struct {
	holds   map[uint64]*model.SeatHold
	seats   map[uint64]string
	batches int
}

func (f *fakeHoldSweep) ExpireBatch(_ context.Context, now time.Time, limit int) (int, error) {
	f.batches++
	n := 0
	for id := uint64(1); id <= uint64(len(f.holds)) && n < limit; id++ {
		h := f.holds[id]
		if h.Status != model.HoldHeld || h.ExpiresAt.After(now) {
			continue
		}
		h.Status = model.HoldExpired
		f.seats[h.SeatID] = model.SeatAvailable
		n++
	}
	return n, nil
}

func newExpiryFixture(sweep *fakeHoldSweep, ttl time.Duration) *HoldService {
	s := NewHoldService(nil, nil, nil, nil, ttl, zerolog.Nop())
	s.sweep = sweep
	return s
}

func TestExpireHoldsFreesLapsedSeats(t *testing.T) {
	heldAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute
	sweep := &fakeHoldSweep{
		holds: map[uint64]*model.SeatHold{
			1: {ID: 1, SeatID: 10, Status: model.HoldHeld, ExpiresAt: heldAt.Add(ttl)},
			2: {ID: 2, SeatID: 11, Status: model.HoldHeld, ExpiresAt: heldAt.Add(ttl + time.Hour)},
			3: {ID: 3, SeatID: 12, Status: model.HoldConfirmed, ExpiresAt: heldAt.Add(ttl)},
		},
		seats: map[uint64]string{10: model.SeatReserved, 11: model.SeatReserved, 12: model.SeatOccupied},
	}
	s := newExpiryFixture(sweep, ttl)

	n, err := s.ExpireHolds(context.Background(), heldAt.Add(ttl+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.HoldExpired, sweep.holds[1].Status)
	assert.Equal(t, model.SeatAvailable, sweep.seats[10])
	// A hold still inside its window keeps the seat reserved.
	assert.Equal(t, model.HoldHeld, sweep.holds[2].Status)
	assert.Equal(t, model.SeatReserved, sweep.seats[11])
	// Confirmed holds are a booking's business, not the sweeper's.
	assert.Equal(t, model.HoldConfirmed, sweep.holds[3].Status)
	assert.Equal(t, model.SeatOccupied, sweep.seats[12])
}

func TestExpireHoldsSecondSweepIsNoOp(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 15, 0, 0, time.UTC)
	sweep := &fakeHoldSweep{
		holds: map[uint64]*model.SeatHold{
			1: {ID: 1, SeatID: 10, Status: model.HoldHeld, ExpiresAt: deadline},
		},
		seats: map[uint64]string{10: model.SeatReserved},
	}
	s := newExpiryFixture(sweep, 15*time.Minute)
	now := deadline.Add(time.Second)

	n, err := s.ExpireHolds(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// An overlapping or repeated sweep finds nothing left to do.
	n, err = s.ExpireHolds(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.HoldExpired, sweep.holds[1].Status)
	assert.Equal(t, model.SeatAvailable, sweep.seats[10])
}

func TestExpireHoldsDrainsAcrossBatches(t *testing.T) {
	deadline := time.Date(2026, 8, 1, 12, 15, 0, 0, time.UTC)
	sweep := &fakeHoldSweep{
		holds: map[uint64]*model.SeatHold{},
		seats: map[uint64]string{},
	}
	total := expireBatchSize + 3
	for i := 1; i <= total; i++ {
		id := uint64(i)
		sweep.holds[id] = &model.SeatHold{ID: id, SeatID: id + 1000, Status: model.HoldHeld, ExpiresAt: deadline}
		sweep.seats[id+1000] = model.SeatReserved
	}
	s := newExpiryFixture(sweep, 15*time.Minute)

	n, err := s.ExpireHolds(context.Background(), deadline.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Equal(t, 2, sweep.batches, "a full first batch forces a second pass")
}
