package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "orders.events"
	exchangeType = "topic"
)

// orderEvent is the wire payload published for every order lifecycle change.
type orderEvent struct {
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RabbitMQEventBus publishes order lifecycle events to a durable topic
// exchange. Routing keys follow the order.<event> scheme so consumers can
// bind to a subset (for example order.paid only).
type RabbitMQEventBus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQEventBus dials the broker, opens a channel, and declares the
// exchange.
func NewRabbitMQEventBus(url string) (*RabbitMQEventBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}

	return &RabbitMQEventBus{conn: conn, ch: ch}, nil
}

// Close releases the channel and connection.
func (b *RabbitMQEventBus) Close() error {
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return b.conn.Close()
}

func (b *RabbitMQEventBus) PublishOrderPlaced(ctx context.Context, orderID string) error {
	return b.publish(ctx, "order.placed", orderID)
}

func (b *RabbitMQEventBus) PublishOrderPaid(ctx context.Context, orderID string) error {
	return b.publish(ctx, "order.paid", orderID)
}

func (b *RabbitMQEventBus) PublishOrderCanceled(ctx context.Context, orderID string) error {
	return b.publish(ctx, "order.canceled", orderID)
}

func (b *RabbitMQEventBus) PublishOrderShipped(ctx context.Context, orderID string) error {
	return b.publish(ctx, "order.shipped", orderID)
}

func (b *RabbitMQEventBus) publish(ctx context.Context, routingKey, orderID string) error {
	body, err := json.Marshal(orderEvent{OrderID: orderID, OccurredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	err = b.ch.PublishWithContext(ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s for order %s: %w", routingKey, orderID, err)
	}
	return nil
}
