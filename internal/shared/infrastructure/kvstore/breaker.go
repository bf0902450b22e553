package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the backend circuit is open.
var ErrCircuitOpen = errors.New("key/value backend circuit open")

// BreakerStore guards a remote Store with a circuit breaker so a dead
// backend fails fast instead of stalling every record operation.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerStore wraps inner with a circuit breaker named name.
func NewBreakerStore(inner Store, name string, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("store circuit breaker state changed",
				"backend", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A missing key is an answer, not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}

	return &BreakerStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

// State returns the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *BreakerStore) execute(fn func() (string, error)) (string, error) {
	value, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return value, err
}

// Get returns the value for key.
func (s *BreakerStore) Get(ctx context.Context, key string) (string, error) {
	return s.execute(func() (string, error) {
		return s.inner.Get(ctx, key)
	})
}

// Put stores value under key.
func (s *BreakerStore) Put(ctx context.Context, key, value string) error {
	_, err := s.execute(func() (string, error) {
		return "", s.inner.Put(ctx, key, value)
	})
	return err
}

// Delete removes key.
func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.execute(func() (string, error) {
		return "", s.inner.Delete(ctx, key)
	})
	return err
}

// Close closes the wrapped store.
func (s *BreakerStore) Close() error {
	return s.inner.Close()
}

var _ Store = (*BreakerStore)(nil)
