package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when a stream cannot be opened with
	// the requested parameters. It is never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrFrameSizeMismatch is returned when a frame does not carry the number
	// of samples negotiated at open. The session remains usable.
	ErrFrameSizeMismatch = errors.New("frame size mismatch")

	// ErrStateCorruption is returned when a session is used outside of its
	// active state. The session must be discarded.
	ErrStateCorruption = errors.New("state corruption")

	// ErrPacketCorrupt is returned when a packet violates the framing contract.
	// The session remains usable.
	ErrPacketCorrupt = errors.New("packet corrupt")
)

// ConfigError describes which configuration field was rejected.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

var _ error = (*ConfigError)(nil)

// CorruptError describes a detectable framing violation in a packet.
type CorruptError struct {
	Sequence uint32
	Reason   string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("packet %d corrupt: %s", e.Sequence, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return ErrPacketCorrupt
}

var _ error = (*CorruptError)(nil)
