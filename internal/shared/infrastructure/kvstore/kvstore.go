// Package kvstore provides the durable string-keyed key/value surface the
// simulator persists its records in, with pluggable backends.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrUnsupportedDriver is returned when no backend is registered for a driver.
	ErrUnsupportedDriver = errors.New("unsupported key/value driver")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("key/value store closed")
)

// Store is a durable string-keyed key/value surface.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// GetOrDefault returns the stored value for key, or def when the key is absent.
func GetOrDefault(ctx context.Context, s Store, key, def string) (string, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
