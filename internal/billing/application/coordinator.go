package application

import (
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// Connector is the part of the client the coordinator drives.
type Connector interface {
	IsReady() bool
	StartConnection(listener StateListener)
}

// Coordinator runs actions once the client is connected, starting at most one
// connection attempt at a time. Actions submitted while an attempt is in
// flight, or while its queue is draining, are queued and run in submission
// order when it resolves, whether it succeeded or not.
type Coordinator struct {
	client   Connector
	observer StateListener
	logger   *slog.Logger

	mu         sync.Mutex
	connecting bool
	pending    []func()
	lastResult domain.Result
}

// NewCoordinator creates a coordinator for client. observer, if not nil,
// receives every setup outcome and disconnect notification.
func NewCoordinator(client Connector, observer StateListener, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:   client,
		observer: observer,
		logger:   logger,
	}
}

// EnsureConnectedThen runs action on a connected client. When already
// connected the action runs immediately in the caller's goroutine.
func (c *Coordinator) EnsureConnectedThen(action func()) {
	c.mu.Lock()
	if c.connecting {
		c.pending = append(c.pending, action)
		queued := len(c.pending)
		c.mu.Unlock()
		c.logger.Debug("action queued behind connection attempt", "queued", queued)
		return
	}
	if c.client.IsReady() {
		c.mu.Unlock()
		action()
		return
	}
	c.connecting = true
	c.pending = append(c.pending, action)
	c.mu.Unlock()

	c.logger.Debug("starting connection attempt")
	c.client.StartConnection(c)
}

// OnSetupFinished drains the queue. It is called by the client. Actions
// submitted while the queue drains are appended to it, so every action runs
// in submission order.
func (c *Coordinator) OnSetupFinished(result domain.Result) {
	c.mu.Lock()
	c.lastResult = result
	queued := len(c.pending)
	c.mu.Unlock()

	if !result.OK() {
		c.logger.Warn("connection attempt failed", "result", result.String(), "queued", queued)
	}
	if c.observer != nil {
		c.observer.OnSetupFinished(result)
	}

	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		if len(batch) == 0 {
			c.connecting = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, action := range batch {
			action()
		}
	}
}

// OnServiceDisconnected forwards the disconnect to the observer.
func (c *Coordinator) OnServiceDisconnected() {
	c.logger.Info("billing service disconnected")
	if c.observer != nil {
		c.observer.OnServiceDisconnected()
	}
}

// LastResult returns the outcome of the most recent connection attempt.
func (c *Coordinator) LastResult() domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

var _ StateListener = (*Coordinator)(nil)
