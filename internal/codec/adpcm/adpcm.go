// Package adpcm is the pure Go backend: a decimating IMA ADPCM coder.
//
// Each channel is reduced to one anchor sample every D samples, where D is the
// smallest divisor of the frame size that brings 4 bits per anchor under the
// target bitrate. Anchors are coded with 4-bit IMA ADPCM and the expander
// rebuilds the skipped samples by linear interpolation from the previous
// anchor, which it carries across frames.
//
// Payload layout:
//
//	[mode u8] then, per channel, [predictor i16 BE][step index u8], then, per
//	channel, ceil(M/2) bytes of codes, high nibble first
//
// where M is the number of anchors per channel. The predictor state at the
// start of every frame travels in the payload, so a lost packet never
// desynchronizes the expander for longer than one frame. In VBR mode the
// part after the mode byte is replaced by its raw DEFLATE encoding (mode 1)
// whenever that is shorter.
package adpcm

import (
	"fmt"

	"github.com/glizzus/soundcodec/internal/codec"
)

// Name is the registry key of this backend.
const Name = "adpcm"

const bitsPerAnchor = 4

func init() {
	codec.Register(Backend{})
}

// Backend implements codec.Backend.
type Backend struct{}

func (Backend) Name() string { return Name }

// Validate accepts every configuration codec.Config.Validate accepts; the
// decimation factor always exists because the frame size divides itself.
func (Backend) Validate(cfg codec.Config) error {
	if Decimation(cfg) > cfg.FrameSamples() {
		return &codec.ConfigError{Field: "bitrate", Value: cfg.TargetBitrate(), Reason: "too low for this frame size"}
	}
	return nil
}

func (Backend) NewCompressor(cfg codec.Config) (codec.Compressor, error) {
	l, err := newLayout(cfg)
	if err != nil {
		return nil, err
	}
	return &Compressor{
		layout: l,
		vbr:    cfg.VBR,
		states: make([]channelState, cfg.Channels),
		codes:  make([]byte, l.codeBytes()),
	}, nil
}

func (Backend) NewExpander(cfg codec.Config) (codec.Expander, error) {
	l, err := newLayout(cfg)
	if err != nil {
		return nil, err
	}
	return &Expander{
		layout: l,
		prev:   make([]int32, cfg.Channels),
	}, nil
}

// Decimation returns the anchor spacing D used for cfg.
func Decimation(cfg codec.Config) int {
	n := cfg.FrameSamples()
	rate := cfg.TargetBitrate()
	need := (cfg.SampleRate*bitsPerAnchor*cfg.Channels + rate - 1) / rate
	for d := max(need, 1); d <= n; d++ {
		if n%d == 0 {
			return d
		}
	}
	return n + 1
}

// layout holds the frame geometry shared by both directions.
type layout struct {
	channels   int
	samples    int // per channel
	decimation int
	anchors    int // per channel
}

func newLayout(cfg codec.Config) (layout, error) {
	if err := (Backend{}).Validate(cfg); err != nil {
		return layout{}, err
	}
	d := Decimation(cfg)
	return layout{
		channels:   cfg.Channels,
		samples:    cfg.FrameSamples(),
		decimation: d,
		anchors:    cfg.FrameSamples() / d,
	}, nil
}

func (l layout) headerBytes() int { return 3 * l.channels }

func (l layout) codesPerChannel() int { return (l.anchors + 1) / 2 }

func (l layout) codeBytes() int { return l.headerBytes() + l.channels*l.codesPerChannel() }

// PayloadSize is the length of every uncompressed payload. CBR sessions emit
// exactly this many bytes per frame.
func PayloadSize(cfg codec.Config) (int, error) {
	l, err := newLayout(cfg)
	if err != nil {
		return 0, err
	}
	return 1 + l.codeBytes(), nil
}

func (l layout) frameLen() int { return l.samples * l.channels }

func (l layout) checkFrame(samples []int16) error {
	if len(samples) != l.frameLen() {
		return fmt.Errorf("adpcm: got %d samples, want %d: %w", len(samples), l.frameLen(), codec.ErrFrameSizeMismatch)
	}
	return nil
}
