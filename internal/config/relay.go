package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// RelayConfig drives cmd/relay.
type RelayConfig struct {
	// Transport is either "redis" or "rtp".
	Transport   string        `env:"RELAY_TRANSPORT, default=redis"`
	RTPListen   string        `env:"RELAY_RTP_LISTEN, default=:5004"`
	JitterDepth int           `env:"RELAY_JITTER_DEPTH, default=4"`
	Output      string        `env:"RELAY_OUTPUT, default=-"`
	MetricsAddr string        `env:"RELAY_METRICS_ADDR, default=:9090"`
	IdleTimeout time.Duration `env:"RELAY_IDLE_TIMEOUT, default=0s"`
}

func NewRelayConfigFromEnv() (*RelayConfig, error) {
	return NewRelayConfig(context.Background(), nil)
}

func NewRelayConfig(ctx context.Context, l envconfig.Lookuper) (*RelayConfig, error) {
	cfg, err := load[RelayConfig](ctx, l)
	if err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case "redis", "rtp":
	default:
		return nil, fmt.Errorf("RELAY_TRANSPORT must be redis or rtp, got %q", cfg.Transport)
	}
	if cfg.JitterDepth < 1 {
		return nil, fmt.Errorf("RELAY_JITTER_DEPTH must be at least 1, got %d", cfg.JitterDepth)
	}
	return cfg, nil
}
