// internal/mailer/amqp.go
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	appErrors "github.com/roshaldsouza/Email-Scheduler/internal/errors"
	"github.com/roshaldsouza/Email-Scheduler/internal/service"
)

const outboundQueueName = "outbound_emails"

// outboundEmail is the wire format handed to the SMTP relay consuming the
// outbound_emails queue.
type outboundEmail struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// AMQPTransport hands rendered messages to a durable RabbitMQ queue consumed
// by the SMTP relay. An accepted publish counts as a successful handoff; what
// the relay does afterwards is outside this system.
type AMQPTransport struct {
	conn   *amqp.Connection
	logger zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQPTransport connects to RabbitMQ and declares the outbound queue.
func DialAMQPTransport(url string, logger zerolog.Logger) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	t := &AMQPTransport{
		conn:   conn,
		logger: logger.With().Str("transport", "amqp").Logger(),
	}
	if _, err := t.channel(); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *AMQPTransport) channel() (*amqp.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ch != nil {
		return t.ch, nil
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		outboundQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	t.ch = ch
	return ch, nil
}

func (t *AMQPTransport) Send(_ context.Context, from, to, subject, body string) error {
	ch, err := t.channel()
	if err != nil {
		return appErrors.NewTransport(to, err)
	}

	payload, err := json.Marshal(outboundEmail{
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
		QueuedAt: time.Now(),
	})
	if err != nil {
		return appErrors.NewTransport(to, err)
	}

	if err := ch.Publish(
		"",
		outboundQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	); err != nil {
		// A publish error can leave the channel unusable; drop it so the
		// next send opens a fresh one.
		t.mu.Lock()
		t.ch = nil
		t.mu.Unlock()
		return appErrors.NewTransport(to, err)
	}

	t.logger.Info().Str("to", to).Msg("handed off to outbound queue")
	return nil
}

func (t *AMQPTransport) Close() error {
	return t.conn.Close()
}

var _ service.Transport = (*AMQPTransport)(nil)
