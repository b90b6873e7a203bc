package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// RedisConfig locates the packet stream used as a transport.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`

	Stream string `env:"REDIS_STREAM, default=soundcodec:packets"`
	// MaxLen caps the stream with approximate trimming. Zero disables it.
	MaxLen int64         `env:"REDIS_STREAM_MAXLEN, default=10000"`
	Block  time.Duration `env:"REDIS_BLOCK, default=1s"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	return NewRedisConfig(context.Background(), nil)
}

func NewRedisConfig(ctx context.Context, l envconfig.Lookuper) (*RedisConfig, error) {
	cfg, err := load[RedisConfig](ctx, l)
	if err != nil {
		return nil, err
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("REDIS_STREAM must not be empty")
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("REDIS_STREAM_MAXLEN must not be negative, got %d", cfg.MaxLen)
	}
	return cfg, nil
}
