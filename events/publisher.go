// Package events publishes competition domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events to a topic exchange, routed by event name.
// A channel is opened per publish; amqp channels are not safe for
// concurrent use and publishes are rare.
type AMQPPublisher struct {
	Exchange string
	Log      *logrus.Logger

	open func() (channel, error)
	now  func() time.Time
}

// NewAMQPPublisher declares the exchange on conn and returns a publisher
// bound to it.
func NewAMQPPublisher(conn *amqp.Connection, exchange string, log *logrus.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		Exchange: exchange,
		Log:      log,
		open: func() (channel, error) {
			c, err := conn.Channel()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		now: time.Now,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Event:      routingKey,
		OccurredAt: p.now().UTC(),
		Data:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", routingKey, err)
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	err = ch.Publish(
		p.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	if p.Log != nil {
		p.Log.WithFields(logrus.Fields{"event": routingKey, "id": env.ID}).Debug("📨 event published")
	}
	return nil
}

// Noop discards events. Used when no broker is configured.
type Noop struct {
	Log *logrus.Logger
}

func (n Noop) Publish(_ context.Context, routingKey string, _ any) error {
	if n.Log != nil {
		n.Log.WithField("event", routingKey).Debug("event dropped, no broker configured")
	}
	return nil
}
