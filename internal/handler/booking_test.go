package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/repository"
	"github.com/aerovia/flight-booking/internal/service"
)

// storeStub serves bookings from memory so handler routing and JSON
// shaping can be tested without a database.
type storeStub struct {
	bookings   map[string]*model.Booking
	passengers map[uint64][]model.BookingPassenger
}

func (s *storeStub) Confirm(_ context.Context, _ service.ConfirmInput) (*model.Booking, []string, error) {
	return nil, nil, repository.ErrNotFound
}

func (s *storeStub) ConfirmPayment(_ context.Context, _ string) (*model.Booking, error) {
	return nil, repository.ErrNotFound
}

func (s *storeStub) Cancel(_ context.Context, _, _ string) (*service.CancellationResult, error) {
	return nil, repository.ErrNotFound
}

func (s *storeStub) CheckIn(_ context.Context, _ string) (*model.Booking, error) {
	return nil, repository.ErrNotFound
}

func (s *storeStub) GetByReference(_ context.Context, reference string) (*model.Booking, error) {
	b, ok := s.bookings[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (s *storeStub) Passengers(_ context.Context, bookingID uint64) ([]model.BookingPassenger, error) {
	return s.passengers[bookingID], nil
}

func newTestHandler(store *storeStub) *BookingHandler {
	log := zerolog.Nop()
	bookings := service.NewBookingService(nil, nil, store, nil, 48*time.Hour, log)
	holds := service.NewHoldService(nil, nil, nil, nil, 15*time.Minute, log)
	sweeper := service.NewSweeper(nil, nil, log)
	return NewBookingHandler(bookings, holds, sweeper, repository.NewSeatRepo(nil), log)
}

func getBooking(t *testing.T, h *BookingHandler, ref string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/"+ref, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings/:ref")
	c.SetParamNames("ref")
	c.SetParamValues(ref)
	require.NoError(t, h.GetBooking(c))
	return rec
}

func TestGetBookingReturnsBookingWithPassengers(t *testing.T) {
	store := &storeStub{
		bookings: map[string]*model.Booking{
			"BK-AB12CD": {
				ID:               9,
				Reference:        "BK-AB12CD",
				FlightID:         3,
				Status:           model.BookingConfirmed,
				ContactEmail:     "ada@example.com",
				TotalAmountCents: 48500,
				Currency:         "USD",
			},
		},
		passengers: map[uint64][]model.BookingPassenger{
			9: {
				{BookingID: 9, FirstName: "Ada", LastName: "Lovelace", DocumentNo: "P1234567"},
			},
		},
	}
	rec := getBooking(t, newTestHandler(store), "BK-AB12CD")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Booking struct {
			Reference        string `json:"reference"`
			Status           string `json:"status"`
			TotalAmountCents uint32 `json:"total_amount_cents"`
		} `json:"booking"`
		Passengers []struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"passengers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BK-AB12CD", body.Booking.Reference)
	assert.Equal(t, model.BookingConfirmed, body.Booking.Status)
	assert.Equal(t, uint32(48500), body.Booking.TotalAmountCents)
	require.Len(t, body.Passengers, 1)
	assert.Equal(t, "Ada", body.Passengers[0].FirstName)
}

func TestGetBookingUnknownReference(t *testing.T) {
	store := &storeStub{bookings: map[string]*model.Booking{}}
	rec := getBooking(t, newTestHandler(store), "BK-MISSING")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
