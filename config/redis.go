package config

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects using the configured address, which may be a
// bare host:port or a redis:// / rediss:// URL.
func NewRedisClient(c *Config) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(c.RedisAddr, "redis://") || strings.HasPrefix(c.RedisAddr, "rediss://") {
		opt, err := redis.ParseURL(c.RedisAddr)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
