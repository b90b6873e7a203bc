//go:build libopus

package libopus_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/codec/libopus"
)

func TestRoundTrip(t *testing.T) {
	cfg := codec.Config{SampleRate: 48000, Channels: 2, FrameDuration: 20 * time.Millisecond, Bitrate: 64000, Application: codec.ApplicationAudio}

	c, err := libopus.Backend{}.NewCompressor(cfg)
	if err != nil {
		t.Fatalf("failed to create compressor: %v", err)
	}
	defer c.Close()
	e, err := libopus.Backend{}.NewExpander(cfg)
	if err != nil {
		t.Fatalf("failed to create expander: %v", err)
	}
	defer e.Close()

	frame := make([]int16, cfg.FrameLen())
	for i := range cfg.FrameSamples() {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
		frame[2*i], frame[2*i+1] = v, v
	}

	for k := range 5 {
		payload, err := c.Compress(frame)
		if err != nil {
			t.Fatalf("frame %d: compress failed: %v", k, err)
		}
		out, err := e.Expand(payload)
		if err != nil {
			t.Fatalf("frame %d: expand failed: %v", k, err)
		}
		if len(out) != len(frame) {
			t.Fatalf("frame %d: expected %d samples, got %d", k, len(frame), len(out))
		}
	}
}

func TestExpandEmpty(t *testing.T) {
	cfg := codec.Config{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond, Bitrate: 32000}
	e, err := libopus.Backend{}.NewExpander(cfg)
	if err != nil {
		t.Fatalf("failed to create expander: %v", err)
	}
	if _, err := e.Expand(nil); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt, got %v", err)
	}
}
