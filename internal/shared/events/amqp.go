package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gramseva/complaint-portal/internal/shared/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBus publishes events to a RabbitMQ topic exchange using the event
// type as routing key. Each subscriber gets a durable queue named
// <queue>.<consumer>.
type AMQPBus struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

// NewAMQPBus dials RabbitMQ and declares the exchange
func NewAMQPBus(cfg config.RabbitMQConfig) (*AMQPBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPBus{conn: conn, channel: ch, exchange: cfg.Exchange, queue: cfg.Queue}, nil
}

// Publish serializes the event to JSON and sends it to the exchange
func (b *AMQPBus) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.channel.PublishWithContext(ctx, b.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.ID,
		CorrelationId: event.CorrelationID,
		Timestamp:     event.Timestamp,
		Type:          event.Type,
		Body:          body,
	})
}

// Subscribe binds a durable consumer queue to the pattern and delivers
// messages to handler, acknowledging on success
func (b *AMQPBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare(fmt.Sprintf("%s.%s", b.queue, consumerName), true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey(pattern), b.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, consumerName, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					log.Printf("AMQP delivery channel closed for %s", consumerName)
					return
				}
				b.deliver(ctx, msg, handler)
			}
		}
	}()
	return nil
}

func (b *AMQPBus) deliver(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("Failed to decode AMQP message %s: %v", msg.MessageId, err)
		msg.Nack(false, false)
		return
	}
	if err := handler(ctx, event); err != nil {
		log.Printf("Handler error for event %s: %v", event.ID, err)
		msg.Nack(false, !msg.Redelivered)
		return
	}
	msg.Ack(false)
}

// bindingKey converts a wildcard pattern to an AMQP topic binding key
func bindingKey(pattern string) string {
	if pattern == "*" || pattern == ">" {
		return "#"
	}
	return pattern
}

// Close terminates the connection
func (b *AMQPBus) Close() {
	if err := b.channel.Close(); err != nil {
		log.Printf("close channel: %v", err)
	}
	if err := b.conn.Close(); err != nil {
		log.Printf("close connection: %v", err)
	}
}

// Health reports whether the connection is still open
func (b *AMQPBus) Health() error {
	if b.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection closed")
	}
	return nil
}
