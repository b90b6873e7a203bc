package adpcm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/klauspost/compress/flate"
)

const (
	modeRaw     = 0
	modeDeflate = 1
)

// Compressor encodes frames for one session.
type Compressor struct {
	layout
	vbr    bool
	states []channelState
	codes  []byte

	packed bytes.Buffer
	fw     *flate.Writer
}

func (c *Compressor) Compress(samples []int16) ([]byte, error) {
	if err := c.checkFrame(samples); err != nil {
		return nil, err
	}

	clear(c.codes)
	for ch := range c.channels {
		st := &c.states[ch]
		hdr := c.codes[3*ch:]
		binary.BigEndian.PutUint16(hdr, uint16(int16(st.predictor)))
		hdr[2] = uint8(st.index)
	}

	body := c.codes[c.headerBytes():]
	step := c.decimation * c.channels
	for ch := range c.channels {
		st := &c.states[ch]
		out := body[ch*c.codesPerChannel():]
		pos := (c.decimation-1)*c.channels + ch
		for i := range c.anchors {
			code := st.encode(samples[pos])
			if i%2 == 0 {
				out[i/2] = code << 4
			} else {
				out[i/2] |= code
			}
			pos += step
		}
	}

	if c.vbr {
		packed, err := c.deflate(c.codes)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(c.codes) {
			return append([]byte{modeDeflate}, packed...), nil
		}
	}
	return append([]byte{modeRaw}, c.codes...), nil
}

func (c *Compressor) deflate(b []byte) ([]byte, error) {
	c.packed.Reset()
	if c.fw == nil {
		fw, err := flate.NewWriter(&c.packed, flate.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("adpcm: create deflate writer: %w", err)
		}
		c.fw = fw
	} else {
		c.fw.Reset(&c.packed)
	}

	if _, err := c.fw.Write(b); err != nil {
		return nil, fmt.Errorf("adpcm: deflate payload: %w", err)
	}
	if err := c.fw.Close(); err != nil {
		return nil, fmt.Errorf("adpcm: deflate payload: %w", err)
	}
	return c.packed.Bytes(), nil
}

func (c *Compressor) Close() error {
	c.states = nil
	c.codes = nil
	c.fw = nil
	return nil
}

var _ codec.Compressor = (*Compressor)(nil)
