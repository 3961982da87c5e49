package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"whatsapp-campaign-launcher/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "campaigns"
const queueName = "campaigns.launch-events"
const routingKey = "launch.event"

// Publisher implements ports.EventPublisher using RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ, declares the exchange and queue, and binds them.
func NewPublisher(amqpURL string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// Publish serialises a launch event and sends it to the exchange.
func (p *Publisher) Publish(ctx context.Context, ev domain.LaunchEvent) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, msg)
}

// Close cleanly shuts down the channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

func encode(ev domain.LaunchEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal launch event: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Type:          string(ev.Event.Type),
		CorrelationId: ev.LaunchID.String(),
		Timestamp:     ev.EmittedAt,
		Body:          body,
	}, nil
}

func decode(body []byte) (domain.LaunchEvent, error) {
	var ev domain.LaunchEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.LaunchEvent{}, fmt.Errorf("unmarshal launch event: %w", err)
	}
	return ev, nil
}

// declare idempotently sets up the exchange, queue, and binding.
func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}
