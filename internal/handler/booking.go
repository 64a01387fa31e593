package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/repository"
	"github.com/aerovia/flight-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle over HTTP: seat holds,
// idempotent booking creation, confirmation from existing holds,
// payment, cancellation and check-in.  All business rules live in the
// service layer; handlers translate transport concerns (binding,
// status codes, the Idempotency-Key header) only.
type BookingHandler struct {
	Bookings *service.BookingService
	Holds    *service.HoldService
	Sweeper  *service.Sweeper
	SeatRepo *repository.SeatRepo // direct read access for the seat map
	Log      zerolog.Logger
}

// NewBookingHandler constructs a BookingHandler.  All dependencies
// must be non-nil.
func NewBookingHandler(bookings *service.BookingService, holds *service.HoldService, sweeper *service.Sweeper, seatRepo *repository.SeatRepo, log zerolog.Logger) *BookingHandler {
	if bookings == nil || holds == nil || sweeper == nil || seatRepo == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Holds: holds, Sweeper: sweeper, SeatRepo: seatRepo, Log: log}
}

// bookingResponse is the JSON shape returned for a booking.
type bookingResponse struct {
	Reference        string   `json:"reference"`
	Status           string   `json:"status"`
	FlightID         uint64   `json:"flight_id"`
	ContactEmail     string   `json:"contact_email"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	Currency         string   `json:"currency"`
	SeatNumbers      []string `json:"seat_numbers,omitempty"`
	ExpiresAt        *string  `json:"expires_at,omitempty"`
}

func toBookingResponse(b *model.Booking, seatNumbers []string) bookingResponse {
	resp := bookingResponse{
		Reference:        b.Reference,
		Status:           b.Status,
		FlightID:         b.FlightID,
		ContactEmail:     b.ContactEmail,
		TotalAmountCents: b.TotalAmountCents,
		Currency:         b.Currency,
		SeatNumbers:      seatNumbers,
	}
	if b.ExpiresAt != nil {
		s := b.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

// HoldSeats handles POST /v1/flights/:id/hold.  The body carries a
// "seat_ids" array and a "holder_id" string.  On success it returns
// 201 with the hold ids and expiration; when any seat is taken it
// returns 409 with the list of unavailable seat ids and no seat is
// held.
func (h *BookingHandler) HoldSeats(c echo.Context) error {
	flightID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || flightID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flight id"})
	}
	var body struct {
		SeatIDs  []uint64 `json:"seat_ids"`
		HolderID string   `json:"holder_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.Holds.HoldSeats(c.Request().Context(), flightID, body.SeatIDs, body.HolderID)
	if err != nil {
		if errors.Is(err, service.ErrSeatUnavailable) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":             "seats unavailable",
				"unavailable_seats": res.Unavailable,
			})
		}
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		h.Log.Error().Err(err).Uint64("flight_id", flightID).Msg("hold seats failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	holdIDs := make([]uint64, len(res.Held))
	for i, hold := range res.Held {
		holdIDs[i] = hold.ID
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"hold_ids":   holdIDs,
		"expires_at": res.ExpiresAt.UTC(),
	})
}

// ReleaseHolds handles DELETE /v1/holds.  The body carries a
// "hold_ids" array.  Releasing holds that already left HELD is a
// no-op, so the endpoint is safe to retry; it returns 200 with the
// count actually released.
func (h *BookingHandler) ReleaseHolds(c echo.Context) error {
	var body struct {
		HoldIDs []uint64 `json:"hold_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.HoldIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_ids is required"})
	}
	released, err := h.Holds.ReleaseHolds(c.Request().Context(), body.HoldIDs, "released by client")
	if err != nil {
		h.Log.Error().Err(err).Msg("release holds failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// CreateBooking handles POST /v1/bookings.  The Idempotency-Key
// header is mandatory; retries with the same key and payload replay
// the stored result with a 200 instead of a 201.  A reused key with a
// different payload gets 422, a still-running request 409.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key header is required"})
	}
	var in service.CreateBookingInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in.IdempotencyKey = key

	res, err := h.Bookings.CreateBooking(c.Request().Context(), in)
	if err != nil {
		return h.bookingError(c, err)
	}
	status := http.StatusCreated
	if res.AlreadyExisted {
		status = http.StatusOK
	}
	return c.JSON(status, toBookingResponse(res.Booking, res.SeatNumbers))
}

// ConfirmHolds handles POST /v1/bookings/confirm: the two-step flow
// where the client held seats earlier and now turns them into a
// booking.  Expired or released holds get 410 and nothing is
// confirmed.
func (h *BookingHandler) ConfirmHolds(c echo.Context) error {
	var in service.ConfirmInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Bookings.ConfirmFromHolds(c.Request().Context(), in)
	if err != nil {
		return h.bookingError(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(res.Booking, res.SeatNumbers))
}

// ListSeats handles GET /v1/flights/:id/seats: the seat map with the
// current status of every sellable seat.
func (h *BookingHandler) ListSeats(c echo.Context) error {
	flightID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || flightID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid flight id"})
	}
	seats, err := h.SeatRepo.ListByFlight(c.Request().Context(), flightID)
	if err != nil {
		h.Log.Error().Err(err).Uint64("flight_id", flightID).Msg("list seats failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	type seatView struct {
		ID         uint64 `json:"id"`
		SeatNumber string `json:"seat_number"`
		Status     string `json:"status"`
	}
	out := make([]seatView, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatView{ID: s.ID, SeatNumber: s.SeatNumber, Status: s.Status})
	}
	return c.JSON(http.StatusOK, echo.Map{"flight_id": flightID, "seats": out})
}

// GetBooking handles GET /v1/bookings/:ref, including the passenger
// manifest.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	b, err := h.Bookings.GetByReference(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return h.bookingError(c, err)
	}
	passengers, err := h.Bookings.Passengers(c.Request().Context(), b.ID)
	if err != nil {
		h.Log.Error().Err(err).Str("reference", b.Reference).Msg("load passengers failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	type passengerView struct {
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		DocumentNo string `json:"document_no"`
	}
	pv := make([]passengerView, 0, len(passengers))
	for _, p := range passengers {
		pv = append(pv, passengerView{FirstName: p.FirstName, LastName: p.LastName, DocumentNo: p.DocumentNo})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":    toBookingResponse(b, nil),
		"passengers": pv,
	})
}

// DeactivateSeat handles POST /v1/admin/seats/:id/deactivate, taking
// a seat out of sale (maintenance, blocked row).  Existing holds and
// bookings on the seat are unaffected.
func (h *BookingHandler) DeactivateSeat(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	if err := h.SeatRepo.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
		}
		h.Log.Error().Err(err).Uint64("seat_id", id).Msg("deactivate seat failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmPayment handles POST /v1/bookings/:ref/pay.
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	b, err := h.Bookings.ConfirmPayment(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return h.bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b, nil))
}

// Cancel handles POST /v1/bookings/:ref/cancel.  The response carries
// the cancellation fee and refund computed from the fare rules.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	if body.Reason == "" {
		body.Reason = "cancelled by customer"
	}
	res, err := h.Bookings.Cancel(c.Request().Context(), c.Param("ref"), body.Reason)
	if err != nil {
		return h.bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":      toBookingResponse(res.Booking, nil),
		"fee_cents":    res.FeeCents,
		"refund_cents": res.RefundCents,
	})
}

// CheckIn handles POST /v1/bookings/:ref/checkin.  Past the cutoff
// before departure it returns 409.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	b, err := h.Bookings.CheckIn(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return h.bookingError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b, nil))
}

// Sweep handles POST /v1/admin/sweep: an on-demand pass of the
// expiration sweeper, useful in operations and tests.
func (h *BookingHandler) Sweep(c echo.Context) error {
	res, err := h.Sweeper.SweepOnce(c.Request().Context(), time.Now().UTC())
	if err != nil {
		h.Log.Error().Err(err).Msg("manual sweep failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"holds_expired":    res.HoldsExpired,
		"bookings_expired": res.BookingsExpired,
	})
}

// bookingError maps service errors to HTTP status codes.
func (h *BookingHandler) bookingError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable"})
	case errors.Is(err, service.ErrIdempotencyConflict):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "idempotency key reused with different payload"})
	case errors.Is(err, service.ErrAlreadyProcessing):
		return c.JSON(http.StatusConflict, echo.Map{"error": "request is still being processed"})
	case errors.Is(err, service.ErrHoldExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired or released"})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrCheckInClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "check-in window closed"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("booking operation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
