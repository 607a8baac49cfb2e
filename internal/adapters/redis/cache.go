// Package redis provides a ports.Cache backed by a Redis server, for
// deployments where workers should share analysis results.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/domain"
)

// DefaultTTL bounds entries when no TTL option is given.
const DefaultTTL = 15 * time.Minute

// Cache implements ports.Cache using Redis.
type Cache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the expiration for entries. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithKeyPrefix sets the key prefix for entries.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New creates a cache connected to the given address.
func New(address, password string, db int, opts ...Option) *Cache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a cache from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Cache {
	cache := &Cache{
		client: client,
		prefix: "passbook:analysis:",
		ttl:    DefaultTTL,
		log:    logging.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get retrieves the value for key. redis.Nil maps to domain.ErrCacheMiss;
// any other failure is reported as a cache error, never a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCacheMiss
		}
		c.log.Warn("redis get failed", "key", key, "err", err)
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", "key", key, "err", err)
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping verifies the server is reachable. Called once at startup so a bad
// address fails fast instead of surfacing as misses.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
