// Package redis builds the shared go-redis client for the proof registry and
// the idempotency cache.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"lexbounty/internal/platform/config"
)

// Client is a pinged go-redis client plus the key namespace every store
// writes under.
type Client struct {
	*redis.Client
	Namespace string
}

// New connects to cfg.URL. An empty URL means Redis is not configured and
// yields a nil client.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPool(opts, cfg)

	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Client{Client: rc, Namespace: strings.TrimSuffix(cfg.KeyPrefix, ":")}, nil
}

func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Key joins parts under the namespace, e.g. "lexbounty:proof:sha256:ab".
func Key(namespace string, parts ...string) string {
	if namespace == "" {
		return strings.Join(parts, ":")
	}
	return namespace + ":" + strings.Join(parts, ":")
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
