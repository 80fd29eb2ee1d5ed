// Package kv wraps the Redis key-value store shared by all pipeline stages.
// It is the only mutable shared resource in the system: open candles,
// evidence buffers, alert cooldowns, watchlists and dedup marks all live
// here. Compound updates go through single-round-trip Lua scripts or
// pipelines so multiple service instances stay safe without in-process
// locks.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Key layout. A shared prefix per concern enables enumeration in tests.
const (
	candleKeyPrefix  = "candle:1m:"
	newsKeyPrefix    = "fusion:news:"
	socialKeyPrefix  = "fusion:social:"
	latestClosePref  = "fusion:latest_close:"
	cooldownKeyPref  = "alert:cooldown:"
	dedupKeyPrefix   = "news:seen:"
	watchKeyPrefix   = "watch:"
)

// Config configures the store connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is the shared KV abstraction over Redis.
type Store struct {
	rdb *goredis.Client
}

// New creates a Store and pings the server.
func New(cfg Config) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv ping: %w", err)
	}

	slog.Info("kv connected", "addr", cfg.Addr)
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client. Used by tests with redismock.
func NewWithClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client returns the underlying Redis client for health checks and the bus.
func (s *Store) Client() *goredis.Client { return s.rdb }

// Close closes the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

func secsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
