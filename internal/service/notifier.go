package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aerovia/flight-booking/internal/model"
	"github.com/aerovia/flight-booking/internal/queue"
)

// QueueNotifier publishes booking confirmations as background jobs.
// Downstream consumers turn them into customer-facing messages.
type QueueNotifier struct {
	pub       *queue.Publisher
	queueName string
}

// NewQueueNotifier constructs a QueueNotifier publishing to the given
// queue.
func NewQueueNotifier(pub *queue.Publisher, queueName string) *QueueNotifier {
	return &QueueNotifier{pub: pub, queueName: queueName}
}

// SendBookingConfirmation publishes a notify.booking_confirmed job
// for the given booking.
func (n *QueueNotifier) SendBookingConfirmation(ctx context.Context, booking *model.Booking, seatNumbers []string) error {
	event := queue.BookingConfirmedEvent{
		BookingID:        booking.ID,
		Reference:        booking.Reference,
		FlightID:         booking.FlightID,
		ContactEmail:     booking.ContactEmail,
		SeatNumbers:      seatNumbers,
		TotalAmountCents: booking.TotalAmountCents,
		Currency:         booking.Currency,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	args, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal confirmation event: %w", err)
	}
	return n.pub.PublishJob(ctx, n.queueName, queue.JobMessage{
		JobID:         uuid.NewString(),
		CorrelationID: booking.Reference,
		Type:          queue.JobNotifyConfirmed,
		Args:          args,
	})
}
