package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

func init() {
	kvstore.RegisterDriver(kvstore.DriverRedis, Open)
}

// Store keeps entries as Redis string keys.
// Keys are namespaced: billingsim:{namespace}:{key}
type Store struct {
	client    *redis.Client
	namespace string
}

// Open creates a Redis-backed store and verifies the connection.
func Open(ctx context.Context, cfg kvstore.Config) (kvstore.Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, cfg.Namespace), nil
}

// New wraps an existing client.
func New(client *redis.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespaceKey(key string) string {
	return fmt.Sprintf("billingsim:%s:%s", s.namespace, key)
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.namespaceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", kvstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key without expiry.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.namespaceKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespaceKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ kvstore.Store = (*Store)(nil)
