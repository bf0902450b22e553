package flowbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// InProcessBus is an in-memory Bus for local mode (no broker).
// Each channel has its own queue drained by at most one goroutine at a time,
// which keeps delivery ordered per channel while Publish returns immediately.
type InProcessBus struct {
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	queues map[string]*channelQueue
	closed bool
	wg     sync.WaitGroup
}

type channelQueue struct {
	pending  []Message
	draining bool
}

// NewInProcessBus creates a new in-process bus.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{
		registry: NewRegistry(logger),
		logger:   logger,
		queues:   make(map[string]*channelQueue),
	}
}

// Subscribe registers h on channel.
func (b *InProcessBus) Subscribe(channel string, h Handler) error {
	if err := validate(channel, h); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.registry.Add(channel, h)
	return nil
}

// Unsubscribe removes h from channel. Messages already queued for the channel
// are only delivered to handlers still subscribed at delivery time.
func (b *InProcessBus) Unsubscribe(channel string, h Handler) error {
	b.registry.Remove(channel, h)
	return nil
}

// Publish queues payload for delivery. With no subscriber the message is dropped.
func (b *InProcessBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if !b.registry.HasHandlers(channel) {
		b.logger.Debug("publish without subscriber dropped", "channel", channel)
		return nil
	}

	msg := NewMessage(channel, payload)
	q, ok := b.queues[channel]
	if !ok {
		q = &channelQueue{}
		b.queues[channel] = q
	}
	q.pending = append(q.pending, msg)

	if !q.draining {
		q.draining = true
		b.wg.Add(1)
		go b.drain(context.WithoutCancel(ctx), channel, q)
	}
	return nil
}

func (b *InProcessBus) drain(ctx context.Context, channel string, q *channelQueue) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			b.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		b.mu.Unlock()

		start := time.Now()
		b.registry.Dispatch(ctx, msg)
		b.logger.Debug("message delivered",
			"channel", channel,
			"message_id", msg.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Close stops accepting messages and waits for queued deliveries to finish.
func (b *InProcessBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Registry returns the underlying handler registry.
func (b *InProcessBus) Registry() *Registry {
	return b.registry
}

func validate(channel string, h Handler) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}
	if h == nil {
		return ErrNilHandler
	}
	return nil
}

var _ Bus = (*InProcessBus)(nil)
