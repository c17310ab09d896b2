// Package redis implements the Store interface using Redis/Valkey streams and
// hashes, for bins that keep their event log on an edge cache.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*RedisProvider)(nil)

const (
	defaultPrefix    = "sortimate:"
	defaultStreamMax = 10000
)

// RedisProvider implements the Store interface backed by Redis/Valkey.
type RedisProvider struct {
	client    *goredis.Client
	prefix    string
	streamMax int64
}

// New creates a new RedisProvider.
func New(cfg *types.RedisConfig) *RedisProvider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := NewFromClient(client, cfg.KeyPrefix)
	if cfg.StreamMax > 0 {
		p.streamMax = cfg.StreamMax
	}
	return p
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProvider{
		client:    client,
		prefix:    prefix,
		streamMax: defaultStreamMax,
	}
}

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (p *RedisProvider) attemptsKey(binID string) string {
	return p.prefix + "bin:" + binID + ":attempts"
}
func (p *RedisProvider) alertsKey(binID string) string { return p.prefix + "bin:" + binID + ":alerts" }
func (p *RedisProvider) statusKey(binID string) string { return p.prefix + "bin:" + binID + ":status" }
