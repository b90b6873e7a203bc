package segment_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/google/go-cmp/cmp"
)

func ramp(from, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(from + i)
	}
	return out
}

func mustNew(t *testing.T, cfg segment.Config) *segment.Segmenter {
	t.Helper()
	s, err := segment.New(cfg)
	if err != nil {
		t.Fatalf("failed to create segmenter: %v", err)
	}
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  segment.Config
	}{
		{"duration", segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 15 * time.Millisecond}},
		{"sample rate", segment.Config{SampleRate: 22050, Channels: 1, FrameDuration: 20 * time.Millisecond}},
		{"channels", segment.Config{SampleRate: 48000, Channels: 0, FrameDuration: 20 * time.Millisecond}},
		{"tail", segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond, Tail: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := segment.New(tt.cfg); !errors.Is(err, codec.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestPushExactFrame(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond})

	frames, err := s.Push(ramp(0, 960))
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	got := slices.Collect(frames)
	if len(got) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(got))
	}
	if got[0].Index != 0 || len(got[0].Samples) != 960 {
		t.Errorf("unexpected frame: index %d, %d samples", got[0].Index, len(got[0].Samples))
	}
	if s.Buffered() != 0 {
		t.Errorf("expected empty buffer, got %d samples", s.Buffered())
	}
}

func TestPushBuffersRemainder(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 8000, Channels: 2, FrameDuration: 2500 * time.Microsecond})
	frameLen := s.FrameLen()
	if frameLen != 40 {
		t.Fatalf("expected 40 interleaved samples per frame, got %d", frameLen)
	}

	var got []codec.Frame
	input := ramp(0, 130)
	for _, chunk := range [][]int16{input[:7], input[7:55], input[55:56], input[56:130]} {
		frames, err := s.Push(chunk)
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
		got = append(got, slices.Collect(frames)...)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	for i, f := range got {
		if f.Index != uint64(i) {
			t.Errorf("frame %d: expected index %d, got %d", i, i, f.Index)
		}
		if diff := cmp.Diff(input[i*frameLen:(i+1)*frameLen], f.Samples); diff != "" {
			t.Errorf("frame %d samples mismatch (-want +got):\n%s", i, diff)
		}
	}
	if s.Buffered() != 10 {
		t.Errorf("expected 10 buffered samples, got %d", s.Buffered())
	}
}

func TestPushIsLazy(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 2500 * time.Microsecond})

	frames, err := s.Push(ramp(0, 360))
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	for f := range frames {
		if f.Index != 0 {
			t.Fatalf("expected first frame, got index %d", f.Index)
		}
		break
	}
	if s.Buffered() != 240 {
		t.Fatalf("expected unpulled frames to stay buffered, got %d samples", s.Buffered())
	}

	frames, err = s.Push(nil)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	got := slices.Collect(frames)
	if len(got) != 2 || got[0].Index != 1 || got[1].Samples[0] != 240 {
		t.Errorf("expected frames 1 and 2 on the next pull, got %d frames", len(got))
	}
}

func TestFramesDoNotAliasInput(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 2500 * time.Microsecond})

	input := ramp(0, 120)
	frames, err := s.Push(input)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	got := slices.Collect(frames)
	input[0] = 999
	if got[0].Samples[0] != 0 {
		t.Errorf("expected frame to own its samples, got %d", got[0].Samples[0])
	}
}

func TestCloseTail(t *testing.T) {
	tests := []struct {
		tail   segment.TailPolicy
		frames int
	}{
		{segment.TailPad, 2},
		{segment.TailDiscard, 1},
	}

	for _, tt := range tests {
		t.Run(tt.tail.String(), func(t *testing.T) {
			s := mustNew(t, segment.Config{SampleRate: 48000, Channels: 1, FrameDuration: 2500 * time.Microsecond, Tail: tt.tail})

			// Nothing is pulled from Push, so Close must emit the whole frame too.
			if _, err := s.Push(ramp(1, 150)); err != nil {
				t.Fatalf("push failed: %v", err)
			}
			rest, err := s.Close()
			if err != nil {
				t.Fatalf("close failed: %v", err)
			}
			got := slices.Collect(rest)
			if len(got) != tt.frames {
				t.Fatalf("expected %d frames, got %d", tt.frames, len(got))
			}
			if tt.tail == segment.TailPad {
				tail := got[1]
				if len(tail.Samples) != 120 || tail.Index != 1 {
					t.Fatalf("unexpected tail: index %d, %d samples", tail.Index, len(tail.Samples))
				}
				if tail.Samples[29] != 150 || tail.Samples[30] != 0 || tail.Samples[119] != 0 {
					t.Errorf("expected zero padding after the last real sample")
				}
				if s.Padded() != 90 {
					t.Errorf("expected 90 padded samples, got %d", s.Padded())
				}
			}
		})
	}
}

func TestCloseEmptyEmitsNothing(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 16000, Channels: 1, FrameDuration: 20 * time.Millisecond})
	rest, err := s.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if n := len(slices.Collect(rest)); n != 0 {
		t.Errorf("expected no frames, got %d", n)
	}
}

func TestUseAfterClose(t *testing.T) {
	s := mustNew(t, segment.Config{SampleRate: 16000, Channels: 1, FrameDuration: 20 * time.Millisecond})
	if _, err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := s.Push(ramp(0, 10)); !errors.Is(err, codec.ErrStateCorruption) {
		t.Errorf("expected ErrStateCorruption from Push, got %v", err)
	}
	if _, err := s.Close(); !errors.Is(err, codec.ErrStateCorruption) {
		t.Errorf("expected ErrStateCorruption from Close, got %v", err)
	}
}
