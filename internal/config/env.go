package config

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LoadEnv loads variables from .env style files into the process environment
// without overriding what is already set. With no arguments it reads ./.env.
// A missing file is reported as an error satisfying os.IsNotExist.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

// load fills a T from the process environment, or from l when it is not nil.
func load[T any](ctx context.Context, l envconfig.Lookuper) (*T, error) {
	var cfg T
	if l == nil {
		if err := envconfig.Process(ctx, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
