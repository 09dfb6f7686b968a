// Package notify publishes registration lifecycle events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	KeyRegistrationCreated   = "registration.created"
	KeyRegistrationPaid      = "registration.paid"
	KeyRegistrationCancelled = "registration.cancelled"
)

// LifecycleEvent is the message body for every routing key.
type LifecycleEvent struct {
	RegistrationID      string    `json:"registration_id"`
	EventID             string    `json:"event_id"`
	UserID              string    `json:"user_id"`
	Amount              int64     `json:"amount,omitempty"`
	PaymentReference    string    `json:"payment_reference,omitempty"`
	CurrentParticipants int       `json:"current_participants"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, key string, ev LifecycleEvent) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// Publish drops ev.
func (Nop) Publish(context.Context, string, LifecycleEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// AMQPPublisher publishes JSON messages to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends ev with the given routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, ev LifecycleEvent) error {
	msg, err := NewMessage(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NewMessage encodes ev as a persistent JSON message.
func NewMessage(ev LifecycleEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode lifecycle event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.RegistrationID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}, nil
}
