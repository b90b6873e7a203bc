// Package decoder turns packets back into PCM frames. A Session owns the
// backend expander of one stream and conceals lost packets.
//
// Loss is an input, not an error: passing a nil packet to Decode (or calling
// Conceal) yields a frame extrapolated from the audio decoded so far. The
// first real frame after a loss is cross-faded out of the extrapolation.
//
// Packets must arrive in order. The session never reorders; it logs sequence
// gaps and regressions and decodes what it is given.
package decoder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/glizzus/soundcodec/internal/codec"
)

type options struct {
	backend string
	logger  *slog.Logger
}

type Option func(*options)

// WithBackend selects a registered backend by name. It must match the backend
// that produced the packets.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Stats counts what a session has seen.
type Stats struct {
	Decoded     uint64
	Concealed   uint64
	Corrupt     uint64
	Gaps        uint64
	Regressions uint64
}

// Session is one decoding stream. The zero value is an unopened session and
// rejects every call. A Session is not safe for concurrent use.
type Session struct {
	cfg     codec.Config
	backend string
	exp     codec.Expander
	plc     *concealer
	logger  *slog.Logger

	state    codec.State
	index    uint64
	expected uint32
	started  bool
	stats    Stats
}

func Open(cfg codec.Config, opts ...Option) (*Session, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := codec.Lookup(o.backend)
	if err != nil {
		return nil, err
	}
	if err := backend.Validate(cfg); err != nil {
		return nil, err
	}
	exp, err := backend.NewExpander(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s decoder: %w", backend.Name(), err)
	}

	logger := o.logger.With("component", "decoder", "backend", backend.Name())
	logger.Debug("Opened decoder session", "config", cfg.String())

	return &Session{
		cfg:     cfg,
		backend: backend.Name(),
		exp:     exp,
		plc:     newConcealer(cfg.SampleRate, cfg.Channels, cfg.FrameSamples()),
		logger:  logger,
		state:   codec.StateActive,
	}, nil
}

func (s *Session) Config() codec.Config { return s.cfg }

func (s *Session) Backend() string { return s.backend }

func (s *Session) State() codec.State { return s.state }

func (s *Session) Stats() Stats { return s.stats }

// Decode reconstructs the frame carried by p, or conceals one if p is nil.
//
// A packet whose metadata disagrees with its payload or with the session, or
// whose payload the backend cannot parse, is rejected with ErrPacketCorrupt.
// Such a packet does not advance the stream and the session stays usable. If
// the backend fails in any other way the session is closed and the error
// wraps ErrStateCorruption.
func (s *Session) Decode(p *codec.Packet) (codec.Frame, error) {
	if err := s.state.RequireActive("decode"); err != nil {
		return codec.Frame{}, err
	}
	if p == nil {
		return s.conceal(), nil
	}

	if err := p.Check(s.cfg); err != nil {
		s.stats.Corrupt++
		return codec.Frame{}, err
	}
	samples, err := s.exp.Expand(p.Payload)
	if err == nil && len(samples) != s.cfg.FrameLen() {
		err = fmt.Errorf("backend produced %d samples, want %d: %w", len(samples), s.cfg.FrameLen(), codec.ErrPacketCorrupt)
	}
	if errors.Is(err, codec.ErrPacketCorrupt) {
		s.stats.Corrupt++
		var corrupt *codec.CorruptError
		if errors.As(err, &corrupt) {
			return codec.Frame{}, err
		}
		return codec.Frame{}, &codec.CorruptError{Sequence: p.Sequence, Reason: err.Error()}
	}
	if err != nil {
		s.logger.Error("Backend failed, closing decoder session", "sequence", p.Sequence, "error", err)
		s.release()
		return codec.Frame{}, fmt.Errorf("decode packet %d: %w: %w", p.Sequence, codec.ErrStateCorruption, err)
	}

	s.trackSequence(p.Sequence)
	if n := s.plc.losses(); n > 0 {
		s.logger.Debug("Recovered after concealment", "sequence", p.Sequence, "concealed", n)
	}
	samples = s.plc.recover(samples)
	s.expected = p.Sequence + 1
	s.started = true
	s.stats.Decoded++

	return s.frame(samples, false), nil
}

// Conceal is Decode(nil).
func (s *Session) Conceal() (codec.Frame, error) {
	return s.Decode(nil)
}

func (s *Session) conceal() codec.Frame {
	samples := s.plc.conceal()
	if r, ok := s.exp.(codec.Resyncer); ok {
		r.Resync(samples)
	}
	if s.started {
		s.expected++
	}
	s.stats.Concealed++
	return s.frame(samples, true)
}

func (s *Session) trackSequence(seq uint32) {
	if !s.started || seq == s.expected {
		return
	}
	if int32(seq-s.expected) > 0 {
		s.stats.Gaps++
		s.logger.Warn("Sequence gap", "expected", s.expected, "got", seq, "missing", seq-s.expected)
		return
	}
	s.stats.Regressions++
	s.logger.Warn("Sequence regression", "expected", s.expected, "got", seq)
}

func (s *Session) frame(samples []int16, concealed bool) codec.Frame {
	f := codec.NewFrame(s.cfg, s.index, samples)
	f.Concealed = concealed
	s.index++
	return f
}

// Close releases the backend state. Closing twice fails with
// ErrStateCorruption.
func (s *Session) Close() error {
	if err := s.state.RequireActive("close"); err != nil {
		return err
	}
	s.logger.Debug("Closing decoder session", "decoded", s.stats.Decoded, "concealed", s.stats.Concealed, "corrupt", s.stats.Corrupt)
	return s.release()
}

func (s *Session) release() error {
	s.state = codec.StateClosed
	exp := s.exp
	s.exp = nil
	s.plc = nil
	if err := exp.Close(); err != nil {
		return fmt.Errorf("close %s expander: %w", s.backend, err)
	}
	return nil
}
