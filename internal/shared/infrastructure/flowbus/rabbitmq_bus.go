package flowbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the topic exchange flow messages are routed through.
	DefaultExchange = "billingsim.flow"
)

// RabbitMQConfig configures the RabbitMQ transport.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Logger   *slog.Logger
}

// RabbitMQBus carries channels over a RabbitMQ topic exchange. The channel
// name is the routing key; each subscribed channel gets an exclusive,
// auto-deleted queue, so publishing to a channel nobody listens on is dropped
// by the broker.
type RabbitMQBus struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	exchange string
	registry *Registry
	logger   *slog.Logger

	mu        sync.Mutex
	consumers map[string]*amqpConsumer
	closed    bool
	wg        sync.WaitGroup
}

type amqpConsumer struct {
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQBus connects to RabbitMQ and declares the exchange.
func NewRabbitMQBus(cfg RabbitMQConfig) (*RabbitMQBus, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	cfg.Logger.Info("RabbitMQ flow bus connected", "exchange", cfg.Exchange)

	return &RabbitMQBus{
		conn:      conn,
		pubCh:     ch,
		exchange:  cfg.Exchange,
		registry:  NewRegistry(cfg.Logger),
		logger:    cfg.Logger,
		consumers: make(map[string]*amqpConsumer),
	}, nil
}

// Subscribe registers h on channel, starting a consumer for the channel's
// first handler.
func (b *RabbitMQBus) Subscribe(channel string, h Handler) error {
	if err := validate(channel, h); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	first, added := b.registry.Add(channel, h)
	if !added || !first {
		return nil
	}

	if err := b.startConsumer(channel); err != nil {
		b.registry.Remove(channel, h)
		return err
	}
	return nil
}

func (b *RabbitMQBus) startConsumer(channel string) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, channel, b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// One unacked message at a time keeps delivery ordered.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (we'll manually ack)
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	b.consumers[channel] = &amqpConsumer{ch: ch, queue: q.Name}
	b.wg.Add(1)
	go b.consume(channel, msgs)

	b.logger.Debug("bound queue to channel", "queue", q.Name, "channel", channel)
	return nil
}

func (b *RabbitMQBus) consume(channel string, msgs <-chan amqp.Delivery) {
	defer b.wg.Done()

	for d := range msgs {
		var msg Message
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			b.logger.Error("failed to unmarshal flow message",
				"channel", channel,
				"error", err,
			)
			// Malformed messages are not requeued.
			_ = d.Nack(false, false)
			continue
		}
		if msg.Channel == "" {
			msg.Channel = channel
		}

		b.registry.Dispatch(context.Background(), msg)
		if err := d.Ack(false); err != nil {
			b.logger.Warn("failed to ack flow message", "channel", channel, "error", err)
		}
	}
	b.logger.Debug("consumer stopped", "channel", channel)
}

// Unsubscribe removes h from channel and stops the channel's consumer when
// the last handler leaves.
func (b *RabbitMQBus) Unsubscribe(channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	last, removed := b.registry.Remove(channel, h)
	if !removed || !last {
		return nil
	}
	return b.stopConsumer(channel)
}

func (b *RabbitMQBus) stopConsumer(channel string) error {
	c, ok := b.consumers[channel]
	if !ok {
		return nil
	}
	delete(b.consumers, channel)

	// Closing the channel closes its delivery stream and drops the exclusive queue.
	if err := c.ch.Close(); err != nil {
		return fmt.Errorf("failed to close consumer channel: %w", err)
	}
	return nil
}

// Publish sends payload to the exchange with the channel as routing key.
func (b *RabbitMQBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}

	body, err := json.Marshal(NewMessage(channel, payload))
	if err != nil {
		return fmt.Errorf("failed to encode flow message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	err = b.pubCh.PublishWithContext(ctx,
		b.exchange, // exchange
		channel,    // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		b.logger.Error("failed to publish flow message",
			"channel", channel,
			"error", err,
		)
		return fmt.Errorf("failed to publish flow message: %w", err)
	}

	b.logger.Debug("flow message published",
		"channel", channel,
		"size", len(body),
	)
	return nil
}

// Close stops every consumer and closes the connection.
func (b *RabbitMQBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for channel := range b.consumers {
		if err := b.stopConsumer(channel); err != nil {
			b.logger.Warn("error stopping consumer", "channel", channel, "error", err)
		}
	}
	if err := b.pubCh.Close(); err != nil {
		b.logger.Warn("error closing channel", "error", err)
	}
	b.mu.Unlock()

	b.wg.Wait()
	if err := b.conn.Close(); err != nil {
		return err
	}

	b.logger.Info("RabbitMQ flow bus closed")
	return nil
}

var _ Bus = (*RabbitMQBus)(nil)
