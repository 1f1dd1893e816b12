package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/agentruntime/coordinator/config"
	"github.com/redis/go-redis/v9"
)

// Client is a narrow wrapper around go-redis used only as an external
// liveness dependency check (§6.4's redis_url is optional ambient config,
// not load-bearing for any C1-C8 component).
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error if
// the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

// Ping reports whether Redis is reachable, with a 2s ceiling.
func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (r *Client) Close() error {
	return r.c.Close()
}
