package config

import (
	"context"
	"fmt"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/sethvargo/go-envconfig"
)

// CodecConfig is the stream shape shared by the CLI and the relay.
type CodecConfig struct {
	SampleRate    int           `env:"CODEC_SAMPLE_RATE, default=48000"`
	Channels      int           `env:"CODEC_CHANNELS, default=2"`
	FrameDuration time.Duration `env:"CODEC_FRAME_DURATION, default=20ms"`
	Bitrate       int           `env:"CODEC_BITRATE, default=64000"`
	VBR           bool          `env:"CODEC_VBR, default=false"`
	Application   string        `env:"CODEC_APPLICATION, default=audio"`
	Backend       string        `env:"CODEC_BACKEND, default=adpcm"`
	Tail          string        `env:"CODEC_TAIL, default=pad"`
}

func NewCodecConfigFromEnv() (*CodecConfig, error) {
	return NewCodecConfig(context.Background(), nil)
}

// NewCodecConfig reads the codec settings from l, or from the process
// environment when l is nil, and checks that they describe a valid stream.
func NewCodecConfig(ctx context.Context, l envconfig.Lookuper) (*CodecConfig, error) {
	cfg, err := LoadCodecConfig(ctx, l)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCodecConfig reads the codec settings without validating them, for
// callers that override fields before use.
func LoadCodecConfig(ctx context.Context, l envconfig.Lookuper) (*CodecConfig, error) {
	return load[CodecConfig](ctx, l)
}

func (c *CodecConfig) Validate() error {
	_, err := c.Segmenter()
	return err
}

// Codec converts the settings into a validated codec.Config.
func (c *CodecConfig) Codec() (codec.Config, error) {
	app, err := codec.ParseApplication(c.Application)
	if err != nil {
		return codec.Config{}, err
	}
	cfg := codec.Config{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		FrameDuration: c.FrameDuration,
		Bitrate:       c.Bitrate,
		VBR:           c.VBR,
		Application:   app,
	}
	if err := cfg.Validate(); err != nil {
		return codec.Config{}, fmt.Errorf("codec settings: %w", err)
	}
	return cfg, nil
}

// Segmenter derives the segmenter settings.
func (c *CodecConfig) Segmenter() (segment.Config, error) {
	cfg, err := c.Codec()
	if err != nil {
		return segment.Config{}, err
	}
	tail, err := segment.ParseTailPolicy(c.Tail)
	if err != nil {
		return segment.Config{}, err
	}
	return segment.ConfigFor(cfg, tail), nil
}
