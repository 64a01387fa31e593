package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"draft to payment pending", BookingDraft, BookingPaymentPending, true},
		{"payment pending to confirmed", BookingPaymentPending, BookingConfirmed, true},
		{"payment pending to expired", BookingPaymentPending, BookingExpired, true},
		{"confirmed to checked in", BookingConfirmed, BookingCheckedIn, true},
		{"confirmed to refunded", BookingConfirmed, BookingRefunded, true},
		{"checked in to completed", BookingCheckedIn, BookingCompleted, true},

		// No path back into the main line.
		{"confirmed back to payment pending", BookingConfirmed, BookingPaymentPending, false},
		{"cancelled back to draft", BookingCancelled, BookingDraft, false},
		{"expired to confirmed", BookingExpired, BookingConfirmed, false},

		// Terminal states never move.
		{"completed to cancelled", BookingCompleted, BookingCancelled, false},
		{"cancelled to cancelled", BookingCancelled, BookingCancelled, false},
		{"refunded to cancelled", BookingRefunded, BookingCancelled, false},

		// Expire only applies to payment pending.
		{"confirmed to expired", BookingConfirmed, BookingExpired, false},
		{"draft to expired", BookingDraft, BookingExpired, false},

		// Check-in only from confirmed.
		{"payment pending to checked in", BookingPaymentPending, BookingCheckedIn, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{BookingCompleted, BookingCancelled, BookingExpired, BookingRefunded} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{BookingDraft, BookingPaymentPending, BookingConfirmed, BookingCheckedIn} {
		assert.False(t, IsTerminal(s), s)
	}
}
