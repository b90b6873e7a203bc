// Package encoder turns PCM frames into packets. A Session owns the backend
// compressor of one stream and numbers its packets.
package encoder

import (
	"fmt"
	"log/slog"

	"github.com/glizzus/soundcodec/internal/codec"
)

type options struct {
	backend string
	logger  *slog.Logger
}

// Option customizes a Session at open.
type Option func(*options)

// WithBackend selects a registered backend by name.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Stats counts what a session has produced.
type Stats struct {
	Packets      uint64
	PayloadBytes uint64
	Rejected     uint64
}

// Session is one encoding stream. The zero value is an unopened session and
// rejects every call. A Session is not safe for concurrent use.
type Session struct {
	cfg     codec.Config
	backend string
	comp    codec.Compressor
	logger  *slog.Logger

	seq   uint32
	state codec.State
	stats Stats
}

// Open validates cfg against the engine and the backend and returns an active
// session.
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
	comp, err := backend.NewCompressor(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s encoder: %w", backend.Name(), err)
	}

	logger := o.logger.With("component", "encoder", "backend", backend.Name())
	logger.Debug("Opened encoder session", "config", cfg.String())

	return &Session{
		cfg:     cfg,
		backend: backend.Name(),
		comp:    comp,
		logger:  logger,
		state:   codec.StateActive,
	}, nil
}

func (s *Session) Config() codec.Config { return s.cfg }

func (s *Session) Backend() string { return s.backend }

func (s *Session) State() codec.State { return s.state }

func (s *Session) Stats() Stats { return s.stats }

// Encode compresses one frame into the next packet of the stream. A frame of
// the wrong shape is rejected with ErrFrameSizeMismatch and leaves the session
// as it was. If the backend fails the session is closed and the error wraps
// ErrStateCorruption.
func (s *Session) Encode(frame codec.Frame) (codec.Packet, error) {
	if err := s.state.RequireActive("encode"); err != nil {
		return codec.Packet{}, err
	}
	if err := s.checkFrame(frame); err != nil {
		s.stats.Rejected++
		return codec.Packet{}, err
	}

	payload, err := s.comp.Compress(frame.Samples)
	if err == nil && len(payload) > codec.MaxPayloadSize {
		err = fmt.Errorf("payload of %d bytes does not fit a packet", len(payload))
	}
	if err != nil {
		s.logger.Error("Backend failed, closing encoder session", "sequence", s.seq, "error", err)
		s.release()
		return codec.Packet{}, fmt.Errorf("encode frame %d: %w: %w", s.seq, codec.ErrStateCorruption, err)
	}

	p := codec.NewPacket(s.seq, s.cfg, payload)
	s.seq++
	s.stats.Packets++
	s.stats.PayloadBytes += uint64(len(payload))
	return p, nil
}

func (s *Session) checkFrame(frame codec.Frame) error {
	if frame.Channels != 0 && frame.Channels != s.cfg.Channels {
		return fmt.Errorf("frame has %d channel(s), session has %d: %w", frame.Channels, s.cfg.Channels, codec.ErrFrameSizeMismatch)
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate {
		return fmt.Errorf("frame sampled at %d Hz, session at %d Hz: %w", frame.SampleRate, s.cfg.SampleRate, codec.ErrFrameSizeMismatch)
	}
	if want := s.cfg.FrameLen(); len(frame.Samples) != want {
		return fmt.Errorf("frame has %d samples, session expects %d: %w", len(frame.Samples), want, codec.ErrFrameSizeMismatch)
	}
	return nil
}

// Close releases the backend state. Closing twice fails with
// ErrStateCorruption.
func (s *Session) Close() error {
	if err := s.state.RequireActive("close"); err != nil {
		return err
	}
	s.logger.Debug("Closing encoder session", "packets", s.stats.Packets, "bytes", s.stats.PayloadBytes)
	return s.release()
}

func (s *Session) release() error {
	s.state = codec.StateClosed
	comp := s.comp
	s.comp = nil
	if err := comp.Close(); err != nil {
		return fmt.Errorf("close %s compressor: %w", s.backend, err)
	}
	return nil
}
