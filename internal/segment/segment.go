// Package segment splits a continuous interleaved PCM stream into the fixed
// duration frames the encoder consumes.
package segment

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
)

// TailPolicy decides what happens to a partial frame when the stream closes.
type TailPolicy int

const (
	// TailPad zero-pads the partial frame to full length and emits it.
	TailPad TailPolicy = iota
	// TailDiscard drops the partial frame.
	TailDiscard
)

func (p TailPolicy) String() string {
	switch p {
	case TailPad:
		return "pad"
	case TailDiscard:
		return "discard"
	default:
		return fmt.Sprintf("tail(%d)", int(p))
	}
}

// ParseTailPolicy maps "pad" or "discard" onto a TailPolicy.
func ParseTailPolicy(s string) (TailPolicy, error) {
	switch s {
	case "pad", "":
		return TailPad, nil
	case "discard":
		return TailDiscard, nil
	}
	return 0, &codec.ConfigError{Field: "tail", Value: s, Reason: "must be pad or discard"}
}

type Config struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
	Tail          TailPolicy
}

// ConfigFor derives a segmenter configuration from a codec configuration.
func ConfigFor(cfg codec.Config, tail TailPolicy) Config {
	return Config{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		FrameDuration: cfg.FrameDuration,
		Tail:          tail,
	}
}

// Segmenter buffers samples until whole frames are available. It is not safe
// for concurrent use.
type Segmenter struct {
	cfg      Config
	frameLen int

	buf  []int16
	head int

	next   uint64
	padded int
	state  codec.State
}

// New returns an active segmenter.
func New(cfg Config) (*Segmenter, error) {
	if err := codec.ValidateFormat(cfg.SampleRate, cfg.Channels, cfg.FrameDuration); err != nil {
		return nil, err
	}
	if cfg.Tail != TailPad && cfg.Tail != TailDiscard {
		return nil, &codec.ConfigError{Field: "tail", Value: cfg.Tail, Reason: "must be pad or discard"}
	}

	frameLen := int(int64(cfg.SampleRate)*int64(cfg.FrameDuration)/int64(time.Second)) * cfg.Channels
	return &Segmenter{
		cfg:      cfg,
		frameLen: frameLen,
		state:    codec.StateActive,
	}, nil
}

func (s *Segmenter) Config() Config { return s.cfg }

// FrameLen is the number of interleaved samples in every emitted frame.
func (s *Segmenter) FrameLen() int { return s.frameLen }

// Buffered is the number of interleaved samples waiting to be emitted.
func (s *Segmenter) Buffered() int { return len(s.buf) - s.head }

// Frames is the number of frames emitted so far, including a padded tail.
func (s *Segmenter) Frames() uint64 { return s.next }

// Padded is the number of zero samples added to the tail frame.
func (s *Segmenter) Padded() int { return s.padded }

// Push appends samples to the buffer and returns a sequence of the complete
// frames now available. The sequence is lazy: frames are cut when they are
// pulled, and frames left unpulled stay buffered for the next call. Every
// frame owns its samples.
func (s *Segmenter) Push(samples []int16) (iter.Seq[codec.Frame], error) {
	if err := s.state.RequireActive("push"); err != nil {
		return nil, err
	}

	s.compact()
	s.buf = append(s.buf, samples...)

	return func(yield func(codec.Frame) bool) {
		for s.state == codec.StateActive && s.Buffered() >= s.frameLen {
			frame := s.cut(slices.Clone(s.buf[s.head : s.head+s.frameLen]))
			s.head += s.frameLen
			if !yield(frame) {
				return
			}
		}
	}, nil
}

// Close ends the stream. The returned sequence yields every complete frame
// still buffered and then, under TailPad, the zero-padded remainder. Any
// further call fails with ErrStateCorruption.
func (s *Segmenter) Close() (iter.Seq[codec.Frame], error) {
	if err := s.state.RequireActive("close"); err != nil {
		return nil, err
	}
	s.state = codec.StateClosed

	rest := slices.Clone(s.buf[s.head:])
	s.buf, s.head = nil, 0

	return func(yield func(codec.Frame) bool) {
		for len(rest) >= s.frameLen {
			frame := s.cut(rest[:s.frameLen:s.frameLen])
			rest = rest[s.frameLen:]
			if !yield(frame) {
				return
			}
		}
		if len(rest) == 0 || s.cfg.Tail == TailDiscard {
			return
		}

		tail := make([]int16, s.frameLen)
		copy(tail, rest)
		s.padded += s.frameLen - len(rest)
		rest = nil
		yield(s.cut(tail))
	}, nil
}

func (s *Segmenter) cut(samples []int16) codec.Frame {
	frame := codec.Frame{
		Samples:    samples,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Duration:   s.cfg.FrameDuration,
		Index:      s.next,
	}
	s.next++
	return frame
}

// compact drops consumed samples from the front of the buffer.
func (s *Segmenter) compact() {
	if s.head == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.head:])
	s.buf = s.buf[:n]
	s.head = 0
}
