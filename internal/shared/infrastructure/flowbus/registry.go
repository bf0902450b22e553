package flowbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Registry tracks the handlers subscribed to each channel and dispatches to them.
type Registry struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Add registers h on channel and reports whether it is the channel's first handler.
func (r *Registry) Add(channel string, h Handler) (first bool, added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.handlers[channel]
	if slices.Contains(current, h) {
		return false, false
	}
	r.handlers[channel] = append(current, h)
	r.logger.Debug("handler subscribed", "channel", channel, "handlers", len(current)+1)
	return len(current) == 0, true
}

// Remove unregisters h from channel and reports whether the channel has no handlers left.
func (r *Registry) Remove(channel string, h Handler) (last bool, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.handlers[channel]
	idx := slices.Index(current, h)
	if idx < 0 {
		return false, false
	}
	current = slices.Delete(current, idx, idx+1)
	if len(current) == 0 {
		delete(r.handlers, channel)
	} else {
		r.handlers[channel] = current
	}
	r.logger.Debug("handler unsubscribed", "channel", channel, "handlers", len(current))
	return len(current) == 0, true
}

// Handlers returns a snapshot of the handlers on channel.
func (r *Registry) Handlers(channel string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.handlers[channel])
}

// HasHandlers reports whether channel has at least one handler.
func (r *Registry) HasHandlers(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers[channel]) > 0
}

// Channels returns the channels that currently have handlers.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.handlers))
	for c := range r.handlers {
		channels = append(channels, c)
	}
	slices.Sort(channels)
	return channels
}

// Dispatch delivers msg to the channel's current handlers in subscription order.
// A panicking handler is logged and does not stop delivery to the others.
func (r *Registry) Dispatch(ctx context.Context, msg Message) {
	handlers := r.Handlers(msg.Channel)
	if len(handlers) == 0 {
		r.logger.Debug("no handlers for message, dropped",
			"channel", msg.Channel,
			"message_id", msg.ID,
		)
		return
	}

	for _, h := range handlers {
		r.deliver(ctx, h, msg)
	}
}

func (r *Registry) deliver(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				"channel", msg.Channel,
				"message_id", msg.ID,
				"panic", rec,
			)
		}
	}()
	h.HandleMessage(ctx, msg)
}
