package codec

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// WireVersion is the only packet layout version understood.
	WireVersion = 1

	// HeaderSize is the number of bytes preceding the payload on the wire.
	HeaderSize = 9

	// MaxPayloadSize bounds a payload so its length fits the header.
	MaxPayloadSize = math.MaxUint16
)

// Packet is the compressed representation of one frame.
type Packet struct {
	Sequence uint32
	Duration time.Duration
	Channels int

	// Length is the payload length declared by the producer. It travels in
	// the wire header and must match len(Payload).
	Length  int
	Payload []byte
}

// NewPacket builds a packet whose declared length matches its payload.
func NewPacket(seq uint32, cfg Config, payload []byte) Packet {
	return Packet{
		Sequence: seq,
		Duration: cfg.FrameDuration,
		Channels: cfg.Channels,
		Length:   len(payload),
		Payload:  payload,
	}
}

// Check verifies that the packet's metadata is consistent with its payload
// and with the stream it is about to be decoded into.
func (p Packet) Check(cfg Config) error {
	if p.Length != len(p.Payload) {
		return &CorruptError{Sequence: p.Sequence, Reason: fmt.Sprintf("declared payload length %d, got %d bytes", p.Length, len(p.Payload))}
	}
	if p.Channels != cfg.Channels {
		return &CorruptError{Sequence: p.Sequence, Reason: fmt.Sprintf("declares %d channel(s), stream has %d", p.Channels, cfg.Channels)}
	}
	if p.Duration != cfg.FrameDuration {
		return &CorruptError{Sequence: p.Sequence, Reason: fmt.Sprintf("declares %s frames, stream uses %s", p.Duration, cfg.FrameDuration)}
	}
	return nil
}

// MarshalBinary encodes the packet in wire format.
func (p Packet) MarshalBinary() ([]byte, error) {
	tag, ok := DurationTag(p.Duration)
	if !ok {
		return nil, fmt.Errorf("marshal packet %d: unsupported frame duration %s", p.Sequence, p.Duration)
	}
	if p.Channels < 1 || p.Channels > math.MaxUint8 {
		return nil, fmt.Errorf("marshal packet %d: invalid channel count %d", p.Sequence, p.Channels)
	}
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("marshal packet %d: payload of %d bytes exceeds %d", p.Sequence, len(p.Payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = WireVersion
	buf[1] = tag
	buf[2] = uint8(p.Channels)
	binary.BigEndian.PutUint32(buf[3:7], p.Sequence)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// UnmarshalBinary decodes a wire packet. Any inconsistency between the header
// and the number of bytes that follow it is reported as ErrPacketCorrupt.
// The payload is copied out of data.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return &CorruptError{Reason: fmt.Sprintf("short header: %d bytes", len(data))}
	}
	seq := binary.BigEndian.Uint32(data[3:7])
	if data[0] != WireVersion {
		return &CorruptError{Sequence: seq, Reason: fmt.Sprintf("unknown wire version %d", data[0])}
	}
	duration, ok := DurationFromTag(data[1])
	if !ok {
		return &CorruptError{Sequence: seq, Reason: fmt.Sprintf("unknown duration tag %d", data[1])}
	}
	if data[2] == 0 {
		return &CorruptError{Sequence: seq, Reason: "zero channels"}
	}
	declared := int(binary.BigEndian.Uint16(data[7:9]))
	if actual := len(data) - HeaderSize; declared != actual {
		return &CorruptError{Sequence: seq, Reason: fmt.Sprintf("declared payload length %d, got %d bytes", declared, actual)}
	}

	*p = Packet{
		Sequence: seq,
		Duration: duration,
		Channels: int(data[2]),
		Length:   declared,
		Payload:  bytes.Clone(data[HeaderSize:]),
	}
	return nil
}

// ParsePacket is a convenience wrapper around UnmarshalBinary.
func ParsePacket(data []byte) (Packet, error) {
	var p Packet
	if err := p.UnmarshalBinary(data); err != nil {
		return Packet{}, err
	}
	return p, nil
}

var (
	_ encoding.BinaryMarshaler   = Packet{}
	_ encoding.BinaryUnmarshaler = (*Packet)(nil)
)
