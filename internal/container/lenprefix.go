package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/glizzus/soundcodec/internal/codec"
)

// PacketWriter is implemented by every container writer.
type PacketWriter interface {
	WritePacket(p codec.Packet) error
	Close() error
}

// PacketReader is implemented by every container reader. ReadPacket returns
// io.EOF after the last packet.
type PacketReader interface {
	ReadPacket() (codec.Packet, error)
}

// RecordWriter writes length-prefixed wire packets.
type RecordWriter struct {
	w io.Writer
}

func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

func (rw *RecordWriter) WritePacket(p codec.Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) > math.MaxUint16 {
		return fmt.Errorf("packet %d: record of %d bytes exceeds the length prefix", p.Sequence, len(data))
	}

	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(data)))
	if _, err := rw.w.Write(size[:]); err != nil {
		return err
	}
	if _, err := rw.w.Write(data); err != nil {
		return err
	}
	return nil
}

// Close does nothing; the record layout has no trailer.
func (rw *RecordWriter) Close() error { return nil }

// RecordReader reads length-prefixed wire packets from an io.Reader.
type RecordReader struct {
	r io.Reader
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: r}
}

// ReadRecord returns the next raw wire packet. It returns io.EOF when the
// stream ends cleanly between records and io.ErrUnexpectedEOF when it ends
// inside one.
func (rr *RecordReader) ReadRecord() ([]byte, error) {
	var size uint16
	if err := binary.Read(rr.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	record := make([]byte, size)
	if _, err := io.ReadFull(rr.r, record); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return record, nil
}

// ReadPacket reads and parses the next record. A record that does not parse
// is returned as an ErrPacketCorrupt error and the reader stays positioned at
// the following record.
func (rr *RecordReader) ReadPacket() (codec.Packet, error) {
	record, err := rr.ReadRecord()
	if err != nil {
		return codec.Packet{}, err
	}
	return codec.ParsePacket(record)
}

var (
	_ PacketWriter = (*RecordWriter)(nil)
	_ PacketReader = (*RecordReader)(nil)
)
