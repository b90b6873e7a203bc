//go:build libopus

// Package libopus registers the "opus" backend, which hands the transform to
// libopus through cgo. Import it for side effects:
//
//	import _ "github.com/glizzus/soundcodec/internal/codec/libopus"
package libopus

import (
	"fmt"

	"github.com/glizzus/soundcodec/internal/codec"
	"layeh.com/gopus"
)

// Name is the registry key of this backend.
const Name = "opus"

// maxPacketBytes is the largest packet libopus is asked to produce.
const maxPacketBytes = 4000

func init() {
	codec.Register(Backend{})
}

type Backend struct{}

func (Backend) Name() string { return Name }

func (Backend) Validate(cfg codec.Config) error {
	if _, err := application(cfg.Application); err != nil {
		return err
	}
	return nil
}

func application(a codec.Application) (gopus.Application, error) {
	switch a {
	case codec.ApplicationVoIP:
		return gopus.Voip, nil
	case codec.ApplicationAudio:
		return gopus.Audio, nil
	case codec.ApplicationLowDelay:
		return gopus.RestrictedLowDelay, nil
	}
	return 0, &codec.ConfigError{Field: "application", Value: a, Reason: "no libopus equivalent"}
}

func (Backend) NewCompressor(cfg codec.Config) (codec.Compressor, error) {
	app, err := application(cfg.Application)
	if err != nil {
		return nil, err
	}
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, app)
	if err != nil {
		return nil, fmt.Errorf("libopus: create encoder: %w", err)
	}
	enc.SetBitrate(cfg.TargetBitrate())
	enc.SetVbr(cfg.VBR)
	return &compressor{enc: enc, frameSamples: cfg.FrameSamples(), frameLen: cfg.FrameLen()}, nil
}

func (Backend) NewExpander(cfg codec.Config) (codec.Expander, error) {
	dec, err := gopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("libopus: create decoder: %w", err)
	}
	return &expander{dec: dec, frameSamples: cfg.FrameSamples(), frameLen: cfg.FrameLen()}, nil
}

type compressor struct {
	enc          *gopus.Encoder
	frameSamples int
	frameLen     int
}

func (c *compressor) Compress(samples []int16) ([]byte, error) {
	if len(samples) != c.frameLen {
		return nil, fmt.Errorf("libopus: got %d samples, want %d: %w", len(samples), c.frameLen, codec.ErrFrameSizeMismatch)
	}
	data, err := c.enc.Encode(samples, c.frameSamples, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("libopus: encode: %w", err)
	}
	return data, nil
}

// Close drops the encoder; gopus frees the native state through a finalizer.
func (c *compressor) Close() error {
	c.enc = nil
	return nil
}

type expander struct {
	dec          *gopus.Decoder
	frameSamples int
	frameLen     int
}

func (e *expander) Expand(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("libopus: empty payload: %w", codec.ErrPacketCorrupt)
	}
	pcm, err := e.dec.Decode(payload, e.frameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("libopus: decode: %v: %w", err, codec.ErrPacketCorrupt)
	}
	if len(pcm) != e.frameLen {
		return nil, fmt.Errorf("libopus: packet holds %d samples, want %d: %w", len(pcm), e.frameLen, codec.ErrPacketCorrupt)
	}
	return pcm, nil
}

func (e *expander) Close() error {
	e.dec = nil
	return nil
}
