package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/jonas747/ogg"
)

const (
	pageContinued = 0x01
	pageBOS       = 0x02
	pageEOS       = 0x04

	maxSegments   = 255
	maxSegmentLen = 255
)

var crcTable = func() (t [256]uint32) {
	for i := range t {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func pageCRC(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// pageWriter lays packets out in Ogg pages of one logical bitstream.
type pageWriter struct {
	w      io.Writer
	serial uint32
	seq    uint32
	buf    []byte
}

// writePacket emits packet on as many pages as its lacing needs. Only the
// page on which the packet ends carries granule; earlier ones carry -1.
func (pw *pageWriter) writePacket(packet []byte, granule int64, flags byte) error {
	var lacing []byte
	for n := len(packet); ; n -= maxSegmentLen {
		if n < maxSegmentLen {
			lacing = append(lacing, byte(n))
			break
		}
		lacing = append(lacing, maxSegmentLen)
	}

	continued := false
	for len(lacing) > 0 {
		segs := lacing[:min(len(lacing), maxSegments)]
		lacing = lacing[len(segs):]

		size := 0
		for _, s := range segs {
			size += int(s)
		}
		body := packet[:size]
		packet = packet[size:]

		var typ byte
		if continued {
			typ |= pageContinued
		}
		last := len(lacing) == 0
		if pw.seq == 0 {
			typ |= flags & pageBOS
		}
		if last {
			typ |= flags & pageEOS
		}
		pageGranule := int64(-1)
		if last {
			pageGranule = granule
		}

		if err := pw.writePage(typ, pageGranule, segs, body); err != nil {
			return err
		}
		continued = true
	}
	return nil
}

func (pw *pageWriter) writePage(typ byte, granule int64, segs, body []byte) error {
	pw.buf = pw.buf[:0]
	pw.buf = append(pw.buf, "OggS"...)
	pw.buf = append(pw.buf, 0, typ)
	pw.buf = binary.LittleEndian.AppendUint64(pw.buf, uint64(granule))
	pw.buf = binary.LittleEndian.AppendUint32(pw.buf, pw.serial)
	pw.buf = binary.LittleEndian.AppendUint32(pw.buf, pw.seq)
	pw.buf = append(pw.buf, 0, 0, 0, 0)
	pw.buf = append(pw.buf, byte(len(segs)))
	pw.buf = append(pw.buf, segs...)
	pw.buf = append(pw.buf, body...)
	binary.LittleEndian.PutUint32(pw.buf[22:26], pageCRC(pw.buf))

	pw.seq++
	if _, err := pw.w.Write(pw.buf); err != nil {
		return fmt.Errorf("write ogg page: %w", err)
	}
	return nil
}

// OggWriter stores packet payloads in an Ogg bitstream. The last page is
// flagged end-of-stream on Close, so one packet is always held back.
type OggWriter struct {
	pages   pageWriter
	header  Header
	frame   int64 // granule increment per packet
	granule int64

	pending []byte
	held    bool
	closed  bool
}

// NewOggWriter writes the header pages for h and returns a writer for the
// audio packets. serial identifies the logical bitstream.
func NewOggWriter(w io.Writer, serial uint32, h Header) (*OggWriter, error) {
	headers, err := h.headerPackets()
	if err != nil {
		return nil, err
	}

	ow := &OggWriter{
		pages:  pageWriter{w: w, serial: serial},
		header: h,
		frame:  h.granuleRate() * int64(h.Config.FrameDuration) / int64(time.Second),
	}
	for i, p := range headers {
		var flags byte
		if i == 0 {
			flags = pageBOS
		}
		if err := ow.pages.writePacket(p, 0, flags); err != nil {
			return nil, err
		}
	}
	return ow, nil
}

// WritePacket appends the payload of p. Packets must belong to the stream
// described by the header.
func (ow *OggWriter) WritePacket(p codec.Packet) error {
	if ow.closed {
		return errors.New("ogg writer is closed")
	}
	if err := p.Check(ow.header.Config); err != nil {
		return err
	}
	if err := ow.flush(0); err != nil {
		return err
	}
	ow.pending = append(ow.pending[:0], p.Payload...)
	ow.held = true
	return nil
}

func (ow *OggWriter) flush(flags byte) error {
	if !ow.held {
		return nil
	}
	ow.granule += ow.frame
	ow.held = false
	return ow.pages.writePacket(ow.pending, ow.granule, flags)
}

// Close writes the held packet on an end-of-stream page. A stream without
// audio gets an empty end-of-stream page.
func (ow *OggWriter) Close() error {
	if ow.closed {
		return nil
	}
	ow.closed = true
	if !ow.held {
		return ow.pages.writePage(pageEOS, ow.granule, []byte{0}, nil)
	}
	return ow.flush(pageEOS)
}

// Granule is the position of the end of the last flushed packet.
func (ow *OggWriter) Granule() int64 { return ow.granule }

// OggReader reads a stream written by OggWriter, or any Ogg Opus stream.
type OggReader struct {
	packets *ogg.PacketDecoder
	header  Header
	seq     uint32
}

// NewOggReader consumes the header packets.
func NewOggReader(r io.Reader) (*OggReader, error) {
	rd := &OggReader{packets: ogg.NewPacketDecoder(ogg.NewDecoder(r))}

	first, err := rd.next()
	if err != nil {
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	switch {
	case len(first) >= len(opusMagic) && string(first[:len(opusMagic)]) == opusMagic:
		h, err := parseOpusHead(first)
		if err != nil {
			return nil, err
		}
		tags, err := rd.next()
		if err != nil {
			return nil, fmt.Errorf("read ogg opus tags: %w", err)
		}
		if err := applyOpusTags(&h, tags); err != nil {
			return nil, err
		}
		rd.header = h
	default:
		h, err := parseStreamHeader(first)
		if err != nil {
			return nil, err
		}
		rd.header = h
	}
	return rd, nil
}

func (rd *OggReader) Header() Header { return rd.header }

func (rd *OggReader) next() ([]byte, error) {
	packet, _, err := rd.packets.Decode()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return packet, nil
}

// ReadPacket returns the next audio packet, numbered from 0 in stream order.
func (rd *OggReader) ReadPacket() (codec.Packet, error) {
	for {
		payload, err := rd.next()
		if err != nil {
			return codec.Packet{}, err
		}
		// Skip the zero-length packet that terminates an empty stream.
		if len(payload) == 0 {
			continue
		}
		p := codec.NewPacket(rd.seq, rd.header.Config, bytes.Clone(payload))
		rd.seq++
		return p, nil
	}
}

var (
	_ PacketWriter = (*OggWriter)(nil)
	_ PacketReader = (*OggReader)(nil)
)
