package redis

import (
	"context"

	"github.com/aislen404/mapabalizasv16/common/config"

	"github.com/go-redis/redis/v8"
)

// Client is the go-redis client type
type Client = redis.Client

// NewRedisClient builds a client from cfg; it does not dial
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks the connection
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client
func Close(client *redis.Client) error {
	return client.Close()
}
