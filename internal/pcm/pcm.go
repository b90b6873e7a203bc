// Package pcm moves signed 16-bit little endian audio between byte streams
// and sample slices.
package pcm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// BytesPerSample is the size of one s16le sample.
const BytesPerSample = 2

// Decode converts s16le bytes to samples. A trailing odd byte is ignored.
func Decode(b []byte) []int16 {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return samples
}

// Encode converts samples to s16le bytes.
func Encode(samples []int16) []byte {
	return AppendEncode(make([]byte, 0, len(samples)*BytesPerSample), samples)
}

// AppendEncode appends the s16le encoding of samples to b.
func AppendEncode(b []byte, samples []int16) []byte {
	for _, s := range samples {
		b = binary.LittleEndian.AppendUint16(b, uint16(s))
	}
	return b
}

// Reader reads samples from an s16le byte stream.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read fills up to len(samples) samples and returns how many were read. It
// returns io.EOF only when no sample was read. A stream that ends in the
// middle of a sample reports io.ErrUnexpectedEOF.
func (r *Reader) Read(samples []int16) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	need := len(samples) * BytesPerSample
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	n, err := io.ReadFull(r.r, buf)
	if n%BytesPerSample != 0 {
		return 0, fmt.Errorf("pcm: stream ended inside a sample: %w", io.ErrUnexpectedEOF)
	}
	for i := range n / BytesPerSample {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*BytesPerSample:]))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n / BytesPerSample, err
}

// Writer writes samples as s16le bytes.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(samples []int16) error {
	w.buf = AppendEncode(w.buf[:0], samples)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("pcm: write: %w", err)
	}
	return nil
}
