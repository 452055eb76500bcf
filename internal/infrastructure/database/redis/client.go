// Package redis provides the Redis connection and the read-path cache
// for completed result bundles.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
)

// Client wraps the go-redis client with lifecycle logging.
type Client struct {
	rdb    redis.UniversalClient
	logger logging.Logger
}

// NewClient connects and verifies the connection with a ping.
func NewClient(cfg config.RedisConfig, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "redis connection failed")
	}

	log.Info("Connected to Redis", logging.String("addr", cfg.Addr), logging.Int("db", cfg.DB))
	return &Client{rdb: rdb, logger: log}, nil
}

// NewClientWithRDB wraps an existing redis client (for testing).
func NewClientWithRDB(rdb redis.UniversalClient, log logging.Logger) *Client {
	if log == nil {
		log = logging.Default()
	}
	return &Client{rdb: rdb, logger: log}
}

// RDB exposes the underlying client.
func (c *Client) RDB() redis.UniversalClient {
	return c.rdb
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis ping failed")
	}
	return nil
}

// Close shuts the connection pool down.
func (c *Client) Close() error {
	err := c.rdb.Close()
	if err != nil {
		c.logger.Error("Failed to close Redis client", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to close redis client")
	}
	c.logger.Info("Closed Redis connection")
	return nil
}
