// Package redis wraps go-redis for the core: its Lock backs the identifier
// service's per-(namespace, type) allocation lock, and Get/Set/Del expose
// plain key access. Per-venue transition locks are held in-process by the
// inbound pipeline, and no identifier sequence cache is kept here.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection.
type Config struct {
	Host     string
	Port     int
	Password string
	Database int
}

// Client wraps a *redis.Client with the core's health-check conventions.
type Client struct {
	rdb *redis.Client
	kg  *KeyGenerator
}

// NewClient dials Redis and verifies connectivity before returning.
func NewClient(cfg *Config, kg *KeyGenerator) (*Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   3,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 2,
	}

	rdb := redis.NewClient(opts)
	client := &Client{rdb: rdb, kg: kg}

	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.rdb != nil {
		c.rdb.Close()
	}
}

func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	result := c.rdb.Get(ctx, key)
	if result.Err() == redis.Nil {
		return "", redis.Nil
	}
	return result.Val(), result.Err()
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Lock acquires a short-lived exclusive lock on key via SETNX, returning a
// release function. The identifier service takes its per-(namespace,type)
// allocation lock through it; per-venue transition locks do not use it.
func (c *Client) Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	locked, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !locked {
		return nil, false, nil
	}
	release = func() {
		c.rdb.Del(context.Background(), key)
	}
	return release, true, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	stats := c.rdb.PoolStats()
	if stats.TotalConns == 0 {
		return fmt.Errorf("no redis connections available")
	}
	return nil
}

func (c *Client) Keys() *KeyGenerator {
	return c.kg
}
