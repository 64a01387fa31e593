package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes job messages to RabbitMQ.  It dials per publish
// and never panics; any error is returned so the caller can choose to
// ignore it.  Messages are durable and marked persistent, so a broker
// restart loses nothing.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher for the given broker URL.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// PublishJob publishes a JobMessage to the named queue, declaring the
// queue first (idempotent).
func (p *Publisher) PublishJob(ctx context.Context, queueName string, job JobMessage) error {
	return p.publish(ctx, queueName, job, nil)
}

// PublishJobWithHeaders is PublishJob with AMQP headers, used by the
// consumer to carry the retry attempt count across redeliveries.
func (p *Publisher) PublishJobWithHeaders(ctx context.Context, queueName string, job JobMessage, headers amqp.Table) error {
	return p.publish(ctx, queueName, job, headers)
}

func (p *Publisher) publish(ctx context.Context, queueName string, job JobMessage, headers amqp.Table) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    job.JobID,
		Headers:      headers,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
