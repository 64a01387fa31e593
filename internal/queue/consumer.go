package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Header keys carrying retry state across redeliveries.
const (
	headerAttempts    = "x-attempts"
	headerFirstFailed = "x-first-failed-at"
)

// JobHandler processes one job.  A nil return acknowledges the job; an
// error consumes one attempt of the retry budget.
type JobHandler func(ctx context.Context, job JobMessage) error

// DeadLetterSink receives jobs whose retry budget is exhausted.  The
// DLQ service implements it; a captured job is never silently dropped.
type DeadLetterSink interface {
	Capture(ctx context.Context, job JobMessage, queueName string, attempts int, firstFailedAt time.Time, jobErr error) error
}

// Consumer is the background job runtime: it consumes the jobs queue,
// dispatches on job type and retries failures up to a budget.  A job
// that exhausts the budget is captured into the dead letter store
// with its arguments, exception and attempt count, then acknowledged.
type Consumer struct {
	url      string
	queue    string
	budget   int
	handlers map[string]JobHandler
	sink     DeadLetterSink
	pub      *Publisher
	log      zerolog.Logger
}

// NewConsumer constructs a Consumer.  budget is the total number of
// attempts a job gets before moving to the dead letter store.
func NewConsumer(url, queueName string, budget int, sink DeadLetterSink, log zerolog.Logger) *Consumer {
	if budget < 1 {
		budget = 1
	}
	return &Consumer{
		url:      url,
		queue:    queueName,
		budget:   budget,
		handlers: map[string]JobHandler{},
		sink:     sink,
		pub:      NewPublisher(url),
		log:      log,
	}
}

// Handle registers the handler for a job type.  Must be called before
// Start.
func (c *Consumer) Handle(jobType string, h JobHandler) { c.handlers[jobType] = h }

// Start connects to RabbitMQ, declares the jobs queue (durable) and
// consumes until the context is cancelled.  It runs a reconnect loop
// with exponential backoff so a broker restart does not take the
// worker down.
func (c *Consumer) Start(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("job consumer: dial failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			c.log.Warn().Err(err).Msg("job consumer: consume loop ended, reconnecting")
			_ = conn.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("job consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var job JobMessage
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// Unparseable payloads can never succeed: capture immediately.
		job = JobMessage{Type: "unparseable", Args: d.Body}
		c.capture(ctx, job, c.budget, time.Now().UTC(), fmt.Errorf("unmarshal job: %w", err))
		_ = d.Ack(false)
		return
	}

	handler, ok := c.handlers[job.Type]
	if !ok {
		c.capture(ctx, job, c.budget, time.Now().UTC(), fmt.Errorf("no handler for job type %q", job.Type))
		_ = d.Ack(false)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempts := attemptsFromHeaders(d.Headers) + 1
	firstFailed := firstFailedFromHeaders(d.Headers)
	c.log.Warn().Err(err).
		Str("job_id", job.JobID).
		Str("job_type", job.Type).
		Str("correlation_id", job.CorrelationID).
		Int("attempt", attempts).
		Msg("job attempt failed")

	if attempts >= c.budget {
		c.capture(ctx, job, attempts, firstFailed, err)
		_ = d.Ack(false)
		return
	}

	// Re-publish with the incremented attempt count instead of a bare
	// Nack, so the retry state survives the broker round trip.
	headers := amqp.Table{
		headerAttempts:    int32(attempts),
		headerFirstFailed: firstFailed.Format(time.RFC3339),
	}
	if pubErr := c.pub.PublishJobWithHeaders(ctx, c.queue, job, headers); pubErr != nil {
		c.log.Error().Err(pubErr).Str("job_id", job.JobID).Msg("re-publish failed, capturing")
		c.capture(ctx, job, attempts, firstFailed, err)
	}
	_ = d.Ack(false)
}

func (c *Consumer) capture(ctx context.Context, job JobMessage, attempts int, firstFailed time.Time, jobErr error) {
	if err := c.sink.Capture(ctx, job, c.queue, attempts, firstFailed, jobErr); err != nil {
		// Last resort: the job could not be dead-lettered either.  Log
		// loudly; the message is still acknowledged by the caller so the
		// queue does not loop, but the operator alert is the log line.
		c.log.Error().Err(err).
			Str("job_id", job.JobID).
			Str("job_type", job.Type).
			Msg("failed to capture job into dead letter store")
	}
}

func attemptsFromHeaders(h amqp.Table) int {
	if h == nil {
		return 0
	}
	switch v := h[headerAttempts].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func firstFailedFromHeaders(h amqp.Table) time.Time {
	if h != nil {
		if s, ok := h[headerFirstFailed].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return time.Now().UTC()
}
