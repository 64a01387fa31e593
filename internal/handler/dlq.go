package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/repository"
	"github.com/aerovia/flight-booking/internal/service"
)

// DLQHandler exposes the dead letter store to operators: listing with
// filters, stats, single and bulk requeue, delete and CSV export.
type DLQHandler struct {
	DLQ *service.DLQService
	Log zerolog.Logger
}

// NewDLQHandler constructs a DLQHandler.
func NewDLQHandler(dlq *service.DLQService, log zerolog.Logger) *DLQHandler {
	if dlq == nil {
		panic("nil service passed to NewDLQHandler")
	}
	return &DLQHandler{DLQ: dlq, Log: log}
}

// filterFromQuery builds a DeadLetterFilter from query parameters:
// job_type, queue, correlation_id, include_requeued, moved_after,
// moved_before (RFC 3339).
func filterFromQuery(c echo.Context) (repository.DeadLetterFilter, error) {
	f := repository.DeadLetterFilter{
		JobType:         c.QueryParam("job_type"),
		Queue:           c.QueryParam("queue"),
		CorrelationID:   c.QueryParam("correlation_id"),
		IncludeRequeued: c.QueryParam("include_requeued") == "true",
	}
	if v := c.QueryParam("moved_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid moved_after timestamp")
		}
		f.MovedAfter = t
	}
	if v := c.QueryParam("moved_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid moved_before timestamp")
		}
		f.MovedBefore = t
	}
	return f, nil
}

// List handles GET /v1/admin/dlq.  Requeued entries are hidden unless
// include_requeued=true; offset and limit page through the results.
func (h *DLQHandler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	page, err := h.DLQ.Query(c.Request().Context(), f, offset, limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("dlq list failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"total": page.Total, "entries": page.Entries})
}

// Get handles GET /v1/admin/dlq/:id.
func (h *DLQHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entry id"})
	}
	entry, err := h.DLQ.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "entry not found"})
		}
		h.Log.Error().Err(err).Uint64("entry_id", id).Msg("dlq get failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, entry)
}

// Requeue handles POST /v1/admin/dlq/:id/requeue.  The body may carry
// "requeued_by" and an optional "target_queue" override.  An entry
// already requeued gets 409.
func (h *DLQHandler) Requeue(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entry id"})
	}
	var body struct {
		RequeuedBy  string `json:"requeued_by"`
		TargetQueue string `json:"target_queue"`
	}
	_ = c.Bind(&body)
	if body.RequeuedBy == "" {
		body.RequeuedBy = "api"
	}
	entry, err := h.DLQ.Requeue(c.Request().Context(), id, body.RequeuedBy, body.TargetQueue)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "entry not found"})
		case errors.Is(err, service.ErrAlreadyRequeued):
			return c.JSON(http.StatusConflict, echo.Map{"error": "entry already requeued"})
		default:
			h.Log.Error().Err(err).Uint64("entry_id", id).Msg("dlq requeue failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, entry)
}

// BulkRequeue handles POST /v1/admin/dlq/requeue.  The filter comes
// from the same query parameters as List; "limit" caps the batch.
func (h *DLQHandler) BulkRequeue(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	var body struct {
		RequeuedBy string `json:"requeued_by"`
	}
	_ = c.Bind(&body)
	if body.RequeuedBy == "" {
		body.RequeuedBy = "api"
	}
	requeued, failed, err := h.DLQ.BulkRequeue(c.Request().Context(), f, limit, body.RequeuedBy)
	if err != nil {
		h.Log.Error().Err(err).Msg("dlq bulk requeue failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requeued": requeued, "failed": failed})
}

// Delete handles DELETE /v1/admin/dlq/:id.
func (h *DLQHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid entry id"})
	}
	if err := h.DLQ.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "entry not found"})
		}
		h.Log.Error().Err(err).Uint64("entry_id", id).Msg("dlq delete failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats handles GET /v1/admin/dlq/stats.
func (h *DLQHandler) Stats(c echo.Context) error {
	stats, err := h.DLQ.Stats(c.Request().Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("dlq stats failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, stats)
}

// Export handles GET /v1/admin/dlq/export, streaming matching entries
// as a CSV attachment.
func (h *DLQHandler) Export(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="dead_letters.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	if err := h.DLQ.ExportCsv(c.Request().Context(), f, c.Response()); err != nil {
		h.Log.Error().Err(err).Msg("dlq export failed")
		return err
	}
	return nil
}
