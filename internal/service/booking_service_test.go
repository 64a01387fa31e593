package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/repository"
)

type fakeLedger struct {
	byKey  map[string]*model.BookingRequest
	nextID uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byKey: map[string]*model.BookingRequest{}}
}

func (f *fakeLedger) Insert(_ context.Context, key, payloadHash string, expiresAt time.Time) (*model.BookingRequest, error) {
	if _, ok := f.byKey[key]; ok {
		return nil, repository.ErrConflict
	}
	f.nextID++
	e := &model.BookingRequest{
		ID:             f.nextID,
		IdempotencyKey: key,
		PayloadHash:    payloadHash,
		Status:         model.RequestPending,
		ExpiresAt:      expiresAt,
	}
	f.byKey[key] = e
	return e, nil
}

func (f *fakeLedger) GetByKey(_ context.Context, key string) (*model.BookingRequest, error) {
	e, ok := f.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeLedger) find(id uint64) *model.BookingRequest {
	for _, e := range f.byKey {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *fakeLedger) MarkProcessing(_ context.Context, id uint64) error {
	e := f.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	switch e.Status {
	case model.RequestPending, model.RequestFailed, model.RequestRetrying:
		e.Status = model.RequestProcessing
		return nil
	}
	return repository.ErrStale
}

func (f *fakeLedger) MarkCompleted(_ context.Context, id, bookingID uint64, bookingRef string) error {
	e := f.find(id)
	e.Status = model.RequestCompleted
	e.BookingID = &bookingID
	e.BookingRef = bookingRef
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, id uint64, msg string, retryable bool) error {
	e := f.find(id)
	if retryable {
		e.Status = model.RequestRetrying
	} else {
		e.Status = model.RequestFailed
	}
	e.ErrorMessage = msg
	return nil
}

type fakeHolder struct {
	holdCalls    int
	releaseCalls int
	released     []uint64
	holdErr      error
	unavailable  []uint64
	nextHoldID   uint64
}

func (f *fakeHolder) HoldSeats(_ context.Context, flightID uint64, seatIDs []uint64, holderID string) (*HoldResult, error) {
	f.holdCalls++
	if f.holdErr != nil {
		return &HoldResult{Unavailable: f.unavailable}, f.holdErr
	}
	held := make([]model.SeatHold, len(seatIDs))
	for i, id := range seatIDs {
		f.nextHoldID++
		held[i] = model.SeatHold{ID: f.nextHoldID, SeatID: id, FlightID: flightID, HolderID: holderID}
	}
	return &HoldResult{Held: held, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (f *fakeHolder) ReleaseHolds(_ context.Context, holdIDs []uint64, _ string) (int, error) {
	f.releaseCalls++
	f.released = append(f.released, holdIDs...)
	return len(holdIDs), nil
}

type fakeStore struct {
	confirmCalls int
	confirmErr   error
	bookings     map[string]*model.Booking
	passengers   map[uint64][]model.BookingPassenger
	nextID       uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings:   map[string]*model.Booking{},
		passengers: map[uint64][]model.BookingPassenger{},
	}
}

func (f *fakeStore) Confirm(_ context.Context, in ConfirmInput) (*model.Booking, []string, error) {
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, nil, f.confirmErr
	}
	f.nextID++
	b := &model.Booking{
		ID:           f.nextID,
		Reference:    "BK-TEST01",
		Status:       model.BookingPaymentPending,
		ContactEmail: in.Contact.Email,
	}
	f.bookings[b.Reference] = b
	for _, p := range in.Passengers {
		f.passengers[b.ID] = append(f.passengers[b.ID], model.BookingPassenger{
			BookingID: b.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		})
	}
	return b, []string{"12A"}, nil
}

func (f *fakeStore) ConfirmPayment(_ context.Context, reference string) (*model.Booking, error) {
	return f.bookings[reference], nil
}

func (f *fakeStore) Cancel(_ context.Context, reference, _ string) (*CancellationResult, error) {
	return &CancellationResult{Booking: f.bookings[reference]}, nil
}

func (f *fakeStore) CheckIn(_ context.Context, reference string) (*model.Booking, error) {
	return f.bookings[reference], nil
}

func (f *fakeStore) GetByReference(_ context.Context, reference string) (*model.Booking, error) {
	b, ok := f.bookings[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) Passengers(_ context.Context, bookingID uint64) ([]model.BookingPassenger, error) {
	return f.passengers[bookingID], nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) SendBookingConfirmation(_ context.Context, _ *model.Booking, _ []string) error {
	f.calls++
	return f.err
}

func validInput(key string) CreateBookingInput {
	return CreateBookingInput{
		IdempotencyKey: key,
		FlightID:       7,
		SeatIDs:        []uint64{21, 22},
		Passengers: []PassengerInput{
			{FirstName: "Ada", LastName: "Lovelace", DocumentNo: "P1234567", DateOfBirth: time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)},
			{FirstName: "Alan", LastName: "Turing", DocumentNo: "P7654321", DateOfBirth: time.Date(1988, 6, 23, 0, 0, 0, 0, time.UTC)},
		},
		Contact: ContactInput{Email: "ada@example.com", Phone: "+15550101"},
	}
}

func newTestService(ledger Ledger, holder Holder, store Store, notifier Notifier) *BookingService {
	return NewBookingService(ledger, holder, store, notifier, 48*time.Hour, zerolog.Nop())
}

func TestCreateBookingSuccess(t *testing.T) {
	ledger := newFakeLedger()
	holder := &fakeHolder{}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newTestService(ledger, holder, store, notifier)

	res, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)
	require.NotNil(t, res.Booking)
	assert.False(t, res.AlreadyExisted)
	assert.Equal(t, []string{"12A"}, res.SeatNumbers)
	assert.Equal(t, 1, holder.holdCalls)
	assert.Equal(t, 1, store.confirmCalls)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, model.RequestCompleted, ledger.byKey["key-1"].Status)
	assert.Equal(t, "BK-TEST01", ledger.byKey["key-1"].BookingRef)
}

func TestCreateBookingReplaysCompletedRequest(t *testing.T) {
	ledger := newFakeLedger()
	holder := &fakeHolder{}
	store := newFakeStore()
	svc := newTestService(ledger, holder, store, &fakeNotifier{})

	first, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)

	second, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyExisted)
	assert.Equal(t, first.Booking.Reference, second.Booking.Reference)
	assert.Equal(t, 1, holder.holdCalls, "retry must not hold seats again")
	assert.Equal(t, 1, store.confirmCalls, "retry must not confirm again")
}

func TestCreateBookingRejectsPayloadMismatch(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(ledger, &fakeHolder{}, newFakeStore(), &fakeNotifier{})

	_, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)

	other := validInput("key-1")
	other.SeatIDs = []uint64{99, 100}
	_, err = svc.CreateBooking(context.Background(), other)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCreateBookingInFlightKey(t *testing.T) {
	ledger := newFakeLedger()
	in := validInput("key-1")
	hash, err := payloadHash(in)
	require.NoError(t, err)
	entry, err := ledger.Insert(context.Background(), "key-1", hash, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, ledger.MarkProcessing(context.Background(), entry.ID))

	holder := &fakeHolder{}
	svc := newTestService(ledger, holder, newFakeStore(), &fakeNotifier{})
	_, err = svc.CreateBooking(context.Background(), in)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.Zero(t, holder.holdCalls)
}

func TestCreateBookingSeatUnavailable(t *testing.T) {
	ledger := newFakeLedger()
	holder := &fakeHolder{holdErr: ErrSeatUnavailable, unavailable: []uint64{21}}
	store := newFakeStore()
	svc := newTestService(ledger, holder, store, &fakeNotifier{})

	_, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.Zero(t, store.confirmCalls)
	// Unavailable seats are a terminal failure for this payload.
	assert.Equal(t, model.RequestFailed, ledger.byKey["key-1"].Status)
}

func TestCreateBookingCompensatesOnConfirmFailure(t *testing.T) {
	ledger := newFakeLedger()
	holder := &fakeHolder{}
	store := newFakeStore()
	store.confirmErr = errors.New("deadlock detected")
	svc := newTestService(ledger, holder, store, &fakeNotifier{})

	_, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.Error(t, err)
	assert.Equal(t, 1, holder.releaseCalls, "holds must be released on confirm failure")
	assert.Len(t, holder.released, 2)
	assert.Equal(t, model.RequestRetrying, ledger.byKey["key-1"].Status)
}

func TestCreateBookingRetriesAfterFailure(t *testing.T) {
	ledger := newFakeLedger()
	holder := &fakeHolder{}
	store := newFakeStore()
	store.confirmErr = errors.New("deadlock detected")
	svc := newTestService(ledger, holder, store, &fakeNotifier{})

	_, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.Error(t, err)

	store.confirmErr = nil
	res, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyExisted)
	assert.Equal(t, model.RequestCompleted, ledger.byKey["key-1"].Status)
	assert.Equal(t, 2, holder.holdCalls)
}

func TestCreateBookingValidation(t *testing.T) {
	svc := newTestService(newFakeLedger(), &fakeHolder{}, newFakeStore(), &fakeNotifier{})

	in := validInput("key-1")
	in.Contact.Email = "not-an-email"
	_, err := svc.CreateBooking(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)

	in = validInput("key-2")
	in.SeatIDs = []uint64{21}
	_, err = svc.CreateBooking(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateBookingNotifierFailureDoesNotFailBooking(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{err: errors.New("broker down")}
	svc := newTestService(ledger, &fakeHolder{}, newFakeStore(), notifier)

	res, err := svc.CreateBooking(context.Background(), validInput("key-1"))
	require.NoError(t, err)
	assert.NotNil(t, res.Booking)
	assert.Equal(t, model.RequestCompleted, ledger.byKey["key-1"].Status)
}

func TestConfirmFromHoldsCompensatesOnFailure(t *testing.T) {
	holder := &fakeHolder{}
	store := newFakeStore()
	store.confirmErr = ErrHoldExpired
	svc := newTestService(newFakeLedger(), holder, store, &fakeNotifier{})

	_, err := svc.ConfirmFromHolds(context.Background(), ConfirmInput{
		HoldIDs:    []uint64{5, 6},
		Passengers: validInput("x").Passengers,
		Contact:    ContactInput{Email: "ada@example.com"},
	})
	assert.ErrorIs(t, err, ErrHoldExpired)
	assert.Equal(t, []uint64{5, 6}, holder.released)
}
