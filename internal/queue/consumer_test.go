package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestAttemptsFromHeaders(t *testing.T) {
	assert.Equal(t, 0, attemptsFromHeaders(nil))
	assert.Equal(t, 0, attemptsFromHeaders(amqp.Table{}))
	assert.Equal(t, 2, attemptsFromHeaders(amqp.Table{headerAttempts: int32(2)}))
	assert.Equal(t, 5, attemptsFromHeaders(amqp.Table{headerAttempts: int64(5)}))
	assert.Equal(t, 0, attemptsFromHeaders(amqp.Table{headerAttempts: "junk"}))
}

func TestFirstFailedFromHeaders(t *testing.T) {
	want := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	got := firstFailedFromHeaders(amqp.Table{headerFirstFailed: want.Format(time.RFC3339)})
	assert.True(t, got.Equal(want))

	// Missing or malformed headers fall back to now.
	before := time.Now().UTC()
	got = firstFailedFromHeaders(nil)
	assert.False(t, got.Before(before))

	got = firstFailedFromHeaders(amqp.Table{headerFirstFailed: "not-a-time"})
	assert.False(t, got.Before(before))
}
