package flowbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes every channel subject.
const DefaultSubjectPrefix = "billingsim.flow"

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Logger        *slog.Logger
}

// NATSBus carries channels over core NATS subjects. Core NATS does not
// retain messages, so a channel without subscribers drops what is published.
type NATSBus struct {
	nc       *nats.Conn
	prefix   string
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool
}

// NewNATSBus connects to NATS.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	logger := cfg.Logger

	nc, err := nats.Connect(cfg.URL,
		nats.Name("billingsim"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS flow bus connected", "subject_prefix", cfg.SubjectPrefix)

	return &NATSBus{
		nc:       nc,
		prefix:   cfg.SubjectPrefix,
		registry: NewRegistry(logger),
		logger:   logger,
		subs:     make(map[string]*nats.Subscription),
	}, nil
}

// Subject returns the NATS subject a channel maps to.
func (b *NATSBus) Subject(channel string) string {
	return b.prefix + "." + channel
}

// Subscribe registers h on channel. The first handler opens an asynchronous
// subscription whose callback runs messages one at a time, in order.
func (b *NATSBus) Subscribe(channel string, h Handler) error {
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

	sub, err := b.nc.Subscribe(b.Subject(channel), func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Error("failed to unmarshal flow message",
				"subject", m.Subject,
				"error", err,
			)
			return
		}
		if msg.Channel == "" {
			msg.Channel = channel
		}
		b.registry.Dispatch(context.Background(), msg)
	})
	if err != nil {
		b.registry.Remove(channel, h)
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b.subs[channel] = sub
	return nil
}

// Unsubscribe removes h and drops the NATS subscription with the last handler.
func (b *NATSBus) Unsubscribe(channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	last, removed := b.registry.Remove(channel, h)
	if !removed || !last {
		return nil
	}

	sub, ok := b.subs[channel]
	if !ok {
		return nil
	}
	delete(b.subs, channel)
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", channel, err)
	}
	return nil
}

// Publish sends payload on the channel's subject.
func (b *NATSBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(NewMessage(channel, payload))
	if err != nil {
		return fmt.Errorf("failed to encode flow message: %w", err)
	}
	if err := b.nc.Publish(b.Subject(channel), data); err != nil {
		return fmt.Errorf("failed to publish flow message: %w", err)
	}

	b.logger.Debug("flow message published", "channel", channel, "size", len(data))
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subs = make(map[string]*nats.Subscription)
	b.mu.Unlock()

	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	b.logger.Info("NATS flow bus closed")
	return nil
}

var _ Bus = (*NATSBus)(nil)
