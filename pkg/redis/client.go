package redis

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// Config - параметры подключения к Redis
type Config struct {
	Addr     string // "host:port"
	Password string
	DB       int
}

// NewClient создает клиент и проверяет соединение пингом
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR configuration is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
