// Package router wires HTTP routes to their handlers.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/aerovia/flight-booking/internal/handler"
)

// RegisterRoutes registers the health check on the provided Echo
// instance.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterBooking registers the booking lifecycle endpoints under
// /v1: seat holds, idempotent creation, confirmation, payment,
// cancellation, check-in and the on-demand sweep.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler) {
	g := e.Group("/v1")
	g.GET("/flights/:id/seats", b.ListSeats)
	g.POST("/flights/:id/hold", b.HoldSeats)
	g.DELETE("/holds", b.ReleaseHolds)
	g.POST("/bookings", b.CreateBooking)
	g.POST("/bookings/confirm", b.ConfirmHolds)
	g.GET("/bookings/:ref", b.GetBooking)
	g.POST("/bookings/:ref/pay", b.ConfirmPayment)
	g.POST("/bookings/:ref/cancel", b.Cancel)
	g.POST("/bookings/:ref/checkin", b.CheckIn)
	g.POST("/admin/sweep", b.Sweep)
	g.POST("/admin/seats/:id/deactivate", b.DeactivateSeat)
}

// RegisterDLQ registers the dead letter administration endpoints
// under /v1/admin/dlq.
func RegisterDLQ(e *echo.Echo, d *handler.DLQHandler) {
	g := e.Group("/v1/admin/dlq")
	g.GET("", d.List)
	g.GET("/stats", d.Stats)
	g.GET("/export", d.Export)
	g.POST("/requeue", d.BulkRequeue)
	g.GET("/:id", d.Get)
	g.POST("/:id/requeue", d.Requeue)
	g.DELETE("/:id", d.Delete)
}
