// Package redis connects to the shared Redis used for rate limiting and
// adapts it to fiber's storage interface.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Storage implements fiber.Storage on top of go-redis, so the global
// fiber limiter shares counters across instances.
type Storage struct {
	db      redis.UniversalClient
	timeout time.Duration
}

func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{db: client, timeout: 2 * time.Second}
}

func (s *Storage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.db.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.Set(ctx, key, val, exp).Err()
}

func (s *Storage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.Del(ctx, key).Err()
}

// Reset flushes the whole database.
func (s *Storage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.FlushDB(ctx).Err()
}

func (s *Storage) Close() error {
	return s.db.Close()
}
