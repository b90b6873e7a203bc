package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
)

const (
	streamMagic  = "SCodHead"
	opusMagic    = "OpusHead"
	tagsMagic    = "OpusTags"
	headerVer    = 1
	opusBackend  = "opus"
	vendorString = "soundcodec"

	flagVBR = 1 << 0
)

// Comment keys used to carry the stream configuration in OpusTags.
const (
	tagFrameDuration = "SOUNDCODEC_FRAME_DURATION"
	tagBitrate       = "SOUNDCODEC_BITRATE"
	tagVBR           = "SOUNDCODEC_VBR"
	tagApplication   = "SOUNDCODEC_APPLICATION"
)

// ErrBadHeader is returned when an Ogg stream does not start with a header
// this package understands.
var ErrBadHeader = errors.New("unrecognized stream header")

// Header describes the stream stored in an Ogg container.
type Header struct {
	Config  codec.Config
	Backend string
}

// isOpus reports whether the stream uses the Ogg Opus header layout.
func (h Header) isOpus() bool { return h.Backend == opusBackend }

// granuleRate is the clock granule positions count in. Ogg Opus always
// counts at 48 kHz.
func (h Header) granuleRate() int64 {
	if h.isOpus() {
		return 48000
	}
	return int64(h.Config.SampleRate)
}

// headerPackets returns the packets that precede the audio.
func (h Header) headerPackets() ([][]byte, error) {
	if err := h.Config.Validate(); err != nil {
		return nil, err
	}
	if h.isOpus() {
		return [][]byte{h.opusHead(), h.opusTags()}, nil
	}

	tag, _ := codec.DurationTag(h.Config.FrameDuration)
	if len(h.Backend) > 255 {
		return nil, fmt.Errorf("backend name %q too long", h.Backend)
	}

	var b bytes.Buffer
	b.WriteString(streamMagic)
	b.WriteByte(headerVer)
	b.WriteByte(uint8(h.Config.Channels))
	binary.Write(&b, binary.LittleEndian, uint32(h.Config.SampleRate))
	b.WriteByte(tag)
	binary.Write(&b, binary.LittleEndian, uint32(h.Config.Bitrate))
	var flags uint8
	if h.Config.VBR {
		flags |= flagVBR
	}
	b.WriteByte(flags)
	b.WriteByte(uint8(h.Config.Application))
	b.WriteByte(uint8(len(h.Backend)))
	b.WriteString(h.Backend)
	return [][]byte{b.Bytes()}, nil
}

func (h Header) opusHead() []byte {
	var b bytes.Buffer
	b.WriteString(opusMagic)
	b.WriteByte(1)
	b.WriteByte(uint8(h.Config.Channels))
	binary.Write(&b, binary.LittleEndian, uint16(0)) // pre-skip
	binary.Write(&b, binary.LittleEndian, uint32(h.Config.SampleRate))
	binary.Write(&b, binary.LittleEndian, int16(0)) // output gain
	b.WriteByte(0)                                  // channel mapping family
	return b.Bytes()
}

func (h Header) opusTags() []byte {
	comments := []string{
		tagFrameDuration + "=" + h.Config.FrameDuration.String(),
		tagBitrate + "=" + strconv.Itoa(h.Config.Bitrate),
		tagVBR + "=" + strconv.FormatBool(h.Config.VBR),
		tagApplication + "=" + h.Config.Application.String(),
	}

	var b bytes.Buffer
	b.WriteString(tagsMagic)
	binary.Write(&b, binary.LittleEndian, uint32(len(vendorString)))
	b.WriteString(vendorString)
	binary.Write(&b, binary.LittleEndian, uint32(len(comments)))
	for _, c := range comments {
		binary.Write(&b, binary.LittleEndian, uint32(len(c)))
		b.WriteString(c)
	}
	return b.Bytes()
}

func parseStreamHeader(p []byte) (Header, error) {
	const fixed = len(streamMagic) + 14
	if len(p) < fixed || string(p[:len(streamMagic)]) != streamMagic {
		return Header{}, ErrBadHeader
	}
	p = p[len(streamMagic):]
	if p[0] != headerVer {
		return Header{}, fmt.Errorf("%w: version %d", ErrBadHeader, p[0])
	}
	duration, ok := codec.DurationFromTag(p[6])
	if !ok {
		return Header{}, fmt.Errorf("%w: duration tag %d", ErrBadHeader, p[6])
	}
	nameLen := int(p[13])
	if len(p) < 14+nameLen {
		return Header{}, fmt.Errorf("%w: truncated backend name", ErrBadHeader)
	}

	h := Header{
		Config: codec.Config{
			Channels:      int(p[1]),
			SampleRate:    int(binary.LittleEndian.Uint32(p[2:6])),
			FrameDuration: duration,
			Bitrate:       int(binary.LittleEndian.Uint32(p[7:11])),
			VBR:           p[11]&flagVBR != 0,
			Application:   codec.Application(p[12]),
		},
		Backend: string(p[14 : 14+nameLen]),
	}
	if err := h.Config.Validate(); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	return h, nil
}

func parseOpusHead(p []byte) (Header, error) {
	if len(p) < 19 || string(p[:len(opusMagic)]) != opusMagic {
		return Header{}, ErrBadHeader
	}
	return Header{
		Backend: opusBackend,
		Config: codec.Config{
			Channels:   int(p[9]),
			SampleRate: int(binary.LittleEndian.Uint32(p[12:16])),
		},
	}, nil
}

// applyOpusTags fills in the parts of the configuration OpusHead cannot
// carry. Missing comments fall back to the usual Ogg Opus defaults.
func applyOpusTags(h *Header, p []byte) error {
	if len(p) < 16 || string(p[:len(tagsMagic)]) != tagsMagic {
		return fmt.Errorf("%w: missing OpusTags", ErrBadHeader)
	}
	comments, err := parseComments(p[len(tagsMagic):])
	if err != nil {
		return err
	}

	h.Config.FrameDuration = 20 * time.Millisecond
	h.Config.Bitrate = codec.DefaultVBRBitratePerChannel * h.Config.Channels
	if v, ok := comments[tagFrameDuration]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrBadHeader, tagFrameDuration, err)
		}
		h.Config.FrameDuration = d
	}
	if v, ok := comments[tagBitrate]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrBadHeader, tagBitrate, err)
		}
		h.Config.Bitrate = n
	}
	if v, ok := comments[tagVBR]; ok {
		h.Config.VBR, _ = strconv.ParseBool(v)
	}
	if v, ok := comments[tagApplication]; ok {
		app, err := codec.ParseApplication(v)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadHeader, err)
		}
		h.Config.Application = app
	}

	if err := h.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	return nil
}

func parseComments(p []byte) (map[string]string, error) {
	next := func() ([]byte, error) {
		if len(p) < 4 {
			return nil, fmt.Errorf("%w: truncated OpusTags", ErrBadHeader)
		}
		n := binary.LittleEndian.Uint32(p)
		if uint64(len(p)-4) < uint64(n) {
			return nil, fmt.Errorf("%w: truncated OpusTags", ErrBadHeader)
		}
		s := p[4 : 4+n]
		p = p[4+n:]
		return s, nil
	}

	if _, err := next(); err != nil { // vendor
		return nil, err
	}
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: truncated OpusTags", ErrBadHeader)
	}
	count := binary.LittleEndian.Uint32(p)
	p = p[4:]

	comments := make(map[string]string)
	for range count {
		c, err := next()
		if err != nil {
			return nil, err
		}
		if k, v, ok := strings.Cut(string(c), "="); ok {
			comments[strings.ToUpper(k)] = v
		}
	}
	return comments, nil
}
