package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHoldExpirer struct {
	expired int
	err     error
	calls   int
}

func (f *fakeHoldExpirer) ExpireHolds(_ context.Context, _ time.Time) (int, error) {
	f.calls++
	return f.expired, f.err
}

type fakeBookingExpirer struct {
	expired int
	err     error
	calls   int
}

func (f *fakeBookingExpirer) ExpireBookings(_ context.Context, _ time.Time) (int, error) {
	f.calls++
	return f.expired, f.err
}

func TestSweepOnceCountsBothPasses(t *testing.T) {
	holds := &fakeHoldExpirer{expired: 3}
	bookings := &fakeBookingExpirer{expired: 2}
	sw := NewSweeper(holds, bookings, zerolog.Nop())

	res, err := sw.SweepOnce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, res.HoldsExpired)
	assert.Equal(t, 2, res.BookingsExpired)
}

func TestSweepOnceContinuesPastHoldFailure(t *testing.T) {
	holds := &fakeHoldExpirer{err: errors.New("lock timeout")}
	bookings := &fakeBookingExpirer{expired: 1}
	sw := NewSweeper(holds, bookings, zerolog.Nop())

	res, err := sw.SweepOnce(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Equal(t, 1, bookings.calls, "booking pass must still run")
	assert.Equal(t, 1, res.BookingsExpired)
}

func TestSweepOnceReportsFirstError(t *testing.T) {
	holdErr := errors.New("hold pass failed")
	holds := &fakeHoldExpirer{err: holdErr}
	bookings := &fakeBookingExpirer{err: errors.New("booking pass failed")}
	sw := NewSweeper(holds, bookings, zerolog.Nop())

	_, err := sw.SweepOnce(context.Background(), time.Now())
	assert.ErrorIs(t, err, holdErr)
}
