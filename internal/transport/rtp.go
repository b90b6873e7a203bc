package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/pion/rtp"
)

// DynamicPayloadType is the first RTP payload type free for dynamic use.
const DynamicPayloadType = 96

// maxDatagram bounds a received RTP datagram.
const maxDatagram = 1 << 16

// Packetizer maps codec packets onto RTP packets. The RTP sequence number is
// the low 16 bits of the packet sequence and the timestamp advances one frame
// per packet.
type Packetizer struct {
	PayloadType  uint8
	SSRC         uint32
	FrameSamples uint32
	// Timestamp is the RTP timestamp of packet 0.
	Timestamp uint32
}

func NewPacketizer(cfg codec.Config, payloadType uint8, ssrc uint32) *Packetizer {
	return &Packetizer{
		PayloadType:  payloadType,
		SSRC:         ssrc,
		FrameSamples: uint32(cfg.FrameSamples()),
	}
}

func (p *Packetizer) Packetize(pkt codec.Packet) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         pkt.Sequence == 0,
			PayloadType:    p.PayloadType,
			SequenceNumber: uint16(pkt.Sequence),
			Timestamp:      p.Timestamp + pkt.Sequence*p.FrameSamples,
			SSRC:           p.SSRC,
		},
		Payload: pkt.Payload,
	}
}

// Depacketizer turns RTP packets back into codec packets for one stream,
// extending 16-bit sequence numbers across rollovers.
type Depacketizer struct {
	cfg         codec.Config
	payloadType uint8

	started bool
	highest uint32
}

func NewDepacketizer(cfg codec.Config, payloadType uint8) *Depacketizer {
	return &Depacketizer{cfg: cfg, payloadType: payloadType}
}

// extend returns the 32-bit sequence closest to the highest one seen so far.
func (d *Depacketizer) extend(seq uint16) uint32 {
	if !d.started {
		d.started = true
		d.highest = uint32(seq)
		return d.highest
	}
	ext := d.highest&^0xffff | uint32(seq)
	switch {
	case ext+0x8000 < d.highest && ext < ext+0x10000:
		ext += 0x10000
	case ext > d.highest+0x8000 && ext >= 0x10000:
		ext -= 0x10000
	}
	if ext > d.highest {
		d.highest = ext
	}
	return ext
}

func (d *Depacketizer) Depacketize(rp *rtp.Packet) (codec.Packet, error) {
	if rp.PayloadType != d.payloadType {
		return codec.Packet{}, &codec.CorruptError{
			Sequence: uint32(rp.SequenceNumber),
			Reason:   fmt.Sprintf("payload type %d, expected %d", rp.PayloadType, d.payloadType),
		}
	}
	seq := d.extend(rp.SequenceNumber)
	return codec.NewPacket(seq, d.cfg, bytes.Clone(rp.Payload)), nil
}

// RTPConn sends and receives codec packets as RTP over a packet connection.
// Send and Receive may be used from different goroutines.
type RTPConn struct {
	conn net.PacketConn
	peer net.Addr

	packetizer   *Packetizer
	depacketizer *Depacketizer
	buf          []byte
}

// NewRTPConn wraps conn. peer is where Send writes and may be nil for a
// receive-only connection.
func NewRTPConn(conn net.PacketConn, peer net.Addr, cfg codec.Config, ssrc uint32) *RTPConn {
	return &RTPConn{
		conn:         conn,
		peer:         peer,
		packetizer:   NewPacketizer(cfg, DynamicPayloadType, ssrc),
		depacketizer: NewDepacketizer(cfg, DynamicPayloadType),
		buf:          make([]byte, maxDatagram),
	}
}

// WritePacket is Send.
func (c *RTPConn) WritePacket(pkt codec.Packet) error { return c.Send(pkt) }

func (c *RTPConn) Send(pkt codec.Packet) error {
	if c.peer == nil {
		return errors.New("rtp connection has no peer")
	}
	data, err := c.packetizer.Packetize(pkt).Marshal()
	if err != nil {
		return fmt.Errorf("marshal rtp packet %d: %w", pkt.Sequence, err)
	}
	if _, err := c.conn.WriteTo(data, c.peer); err != nil {
		return fmt.Errorf("send rtp packet %d: %w", pkt.Sequence, err)
	}
	return nil
}

// Receive blocks until a packet arrives or ctx is done. Datagrams that are
// not RTP, or carry another payload type, are returned as ErrPacketCorrupt
// errors and the connection stays usable.
func (c *RTPConn) Receive(ctx context.Context) (codec.Packet, error) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
		close(fired)
	})

	n, _, err := c.conn.ReadFrom(c.buf)
	if !stop() {
		// The deadline was moved into the past; clear it for the next read.
		<-fired
		c.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return codec.Packet{}, ctxErr
		}
		return codec.Packet{}, fmt.Errorf("receive rtp packet: %w", err)
	}

	var rp rtp.Packet
	if err := rp.Unmarshal(c.buf[:n]); err != nil {
		return codec.Packet{}, fmt.Errorf("%w: %w", codec.ErrPacketCorrupt, err)
	}
	return c.depacketizer.Depacketize(&rp)
}

func (c *RTPConn) Close() error {
	return c.conn.Close()
}
