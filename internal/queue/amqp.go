package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ignite/listvault/internal/config"
	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/logger"
)

// connect dials the broker and declares the topology both sides rely on:
// a durable topic exchange and a durable queue bound to the routing key.
func connect(cfg config.AMQPConfig) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declare(ch *amqp091.Channel, cfg config.AMQPConfig) error {
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Publisher dispatches batches to the broker. It is safe for concurrent use.
type Publisher struct {
	cfg     config.AMQPConfig
	conn    *amqp091.Connection
	mu      sync.Mutex // amqp channels are not goroutine safe
	channel *amqp091.Channel
}

// NewPublisher connects to cfg.URL.
func NewPublisher(cfg config.AMQPConfig) (*Publisher, error) {
	conn, ch, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, conn: conn, channel: ch}, nil
}

// Dispatch publishes a persistent message for batchID.
func (p *Publisher) Dispatch(ctx context.Context, batchID int64) error {
	body, err := encodeMessage(batchID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			MessageId:    strconv.FormatInt(batchID, 10),
		},
	)
	p.mu.Unlock()

	metrics.RecordDispatch(err)
	if err != nil {
		return fmt.Errorf("publish batch %d: %w", batchID, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is still open.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Consumer receives dispatched batches with manual acknowledgement.
type Consumer struct {
	cfg     config.AMQPConfig
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewConsumer connects to cfg.URL and applies the prefetch limit.
func NewConsumer(cfg config.AMQPConfig) (*Consumer, error) {
	conn, ch, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	logger.Info("Consumer initialized",
		"queue", cfg.Queue,
		"routing_key", cfg.RoutingKey,
		"exchange", cfg.Exchange,
		"prefetch", cfg.Prefetch)

	return &Consumer{cfg: cfg, conn: conn, channel: ch}, nil
}

// Consume blocks delivering messages to h until ctx is done or the channel
// closes. Deliveries are handled one at a time; run several consumers for
// parallelism up to the prefetch limit.
func (c *Consumer) Consume(ctx context.Context, h BatchHandler) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.cfg.Queue,
		"",    // generated consumer tag
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handleDelivery(ctx, h, d.Body, d.Redelivered, d)
		}
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// acknowledger is the ack side of amqp091.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// handleDelivery guarantees every message is acked or nacked exactly once.
// A failed handler gets one redelivery; after that the message is dropped
// and the batch is left for the database poller or a resubmit.
func handleDelivery(ctx context.Context, h BatchHandler, body []byte, redelivered bool, ack acknowledger) {
	batchID, err := decodeMessage(body)
	if err != nil {
		logger.Error("Dropping malformed message", "error", err, "size", len(body))
		if nerr := ack.Nack(false, false); nerr != nil {
			logger.Error("Failed to nack message", "error", nerr)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Handler panic recovered", "batch_id", batchID, "panic", r)
			if nerr := ack.Nack(false, !redelivered); nerr != nil {
				logger.Error("Failed to nack message after panic", "batch_id", batchID, "error", nerr)
			}
		}
	}()

	if err := h(ctx, batchID); err != nil {
		logger.Error("Handler error", "batch_id", batchID, "redelivered", redelivered, "error", err)
		if nerr := ack.Nack(false, !redelivered); nerr != nil {
			logger.Error("Failed to nack message", "batch_id", batchID, "error", nerr)
		}
		return
	}

	if err := ack.Ack(false); err != nil {
		logger.Error("Failed to ack message", "batch_id", batchID, "error", err)
	}
}
