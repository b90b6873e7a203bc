package adpcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/klauspost/compress/flate"
)

// Expander decodes payloads for one session.
type Expander struct {
	layout

	// prev is the last reconstructed sample of each channel, the left end of
	// the first interpolation segment of the next frame.
	prev []int32
}

func (e *Expander) Expand(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("adpcm: empty payload: %w", codec.ErrPacketCorrupt)
	}

	var body []byte
	switch payload[0] {
	case modeRaw:
		body = payload[1:]
	case modeDeflate:
		inflated, err := e.inflate(payload[1:])
		if err != nil {
			return nil, err
		}
		body = inflated
	default:
		return nil, fmt.Errorf("adpcm: unknown payload mode %d: %w", payload[0], codec.ErrPacketCorrupt)
	}
	if len(body) != e.codeBytes() {
		return nil, fmt.Errorf("adpcm: payload body is %d bytes, want %d: %w", len(body), e.codeBytes(), codec.ErrPacketCorrupt)
	}

	states := make([]channelState, e.channels)
	for ch := range states {
		hdr := body[3*ch:]
		if hdr[2] > maxStepIndex {
			return nil, fmt.Errorf("adpcm: step index %d out of range: %w", hdr[2], codec.ErrPacketCorrupt)
		}
		states[ch] = channelState{
			predictor: int32(int16(binary.BigEndian.Uint16(hdr))),
			index:     int8(hdr[2]),
		}
	}

	out := make([]int16, e.frameLen())
	codes := body[e.headerBytes():]
	d := int32(e.decimation)
	for ch := range e.channels {
		st := &states[ch]
		in := codes[ch*e.codesPerChannel():]
		prev := e.prev[ch]
		pos := ch
		for i := range e.anchors {
			code := in[i/2] >> 4
			if i%2 == 1 {
				code = in[i/2] & 0x0f
			}
			anchor := int32(st.decode(code))
			for j := int32(1); j <= d; j++ {
				out[pos] = int16(prev + (anchor-prev)*j/d)
				pos += e.channels
			}
			prev = anchor
		}
		e.prev[ch] = prev
	}
	return out, nil
}

func (e *Expander) inflate(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, int64(e.codeBytes())+1))
	if err != nil {
		return nil, fmt.Errorf("adpcm: inflate payload: %v: %w", err, codec.ErrPacketCorrupt)
	}
	return out, nil
}

// Resync continues interpolation from the last samples that were played in
// place of a lost frame.
func (e *Expander) Resync(played []int16) {
	if len(played) < e.channels {
		return
	}
	tail := played[len(played)-e.channels:]
	for ch := range e.channels {
		e.prev[ch] = int32(tail[ch])
	}
}

func (e *Expander) Close() error {
	e.prev = nil
	return nil
}

var (
	_ codec.Expander = (*Expander)(nil)
	_ codec.Resyncer = (*Expander)(nil)
)
