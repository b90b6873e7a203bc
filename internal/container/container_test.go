package container_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/container"
	"github.com/google/go-cmp/cmp"
)

var stereo = codec.Config{
	SampleRate:    48000,
	Channels:      2,
	FrameDuration: 20 * time.Millisecond,
	Bitrate:       64000,
	VBR:           true,
	Application:   codec.ApplicationVoIP,
}

func packets(cfg codec.Config, sizes ...int) []codec.Packet {
	var out []codec.Packet
	for i, n := range sizes {
		payload := make([]byte, n)
		for j := range payload {
			payload[j] = byte(i*31 + j)
		}
		out = append(out, codec.NewPacket(uint32(i), cfg, payload))
	}
	return out
}

func readAll(t *testing.T, r container.PacketReader) []codec.Packet {
	t.Helper()
	var out []codec.Packet
	for {
		p, err := r.ReadPacket()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		out = append(out, p)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := container.NewRecordWriter(&buf)
	want := packets(stereo, 10, 0, 300)
	for _, p := range want {
		if err := w.WritePacket(p); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	got := readAll(t, container.NewRecordReader(&buf))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := container.NewRecordWriter(&buf).WritePacket(packets(stereo, 20)[0]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := container.NewRecordReader(bytes.NewReader(truncated)).ReadPacket()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestRecordReaderSkipsPastCorruptRecord(t *testing.T) {
	// A record whose header declares more payload than it holds.
	bad := []byte{12, 0, codec.WireVersion, 3, 1, 0, 0, 0, 7, 0, 9, 1, 2, 3}

	var buf bytes.Buffer
	buf.Write(bad)
	good := packets(codec.Config{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond, Bitrate: 32000}, 4)[0]
	if err := container.NewRecordWriter(&buf).WritePacket(good); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r := container.NewRecordReader(&buf)
	if _, err := r.ReadPacket(); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Fatalf("expected ErrPacketCorrupt, got %v", err)
	}
	p, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("expected the next record to parse, got %v", err)
	}
	if diff := cmp.Diff(good, p); diff != "" {
		t.Errorf("packet mismatch (-want +got):\n%s", diff)
	}
}

func TestOggRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		sizes   []int
	}{
		{"adpcm", "adpcm", []int{161, 40, 1, 255, 256}},
		{"opus headers", "opus", []int{120, 80, 95}},
		{"packet spanning pages", "adpcm", []int{codec.MaxPayloadSize, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			header := container.Header{Config: stereo, Backend: tt.backend}
			w, err := container.NewOggWriter(&buf, 0x50c0dec, header)
			if err != nil {
				t.Fatalf("failed to create ogg writer: %v", err)
			}
			want := packets(stereo, tt.sizes...)
			for _, p := range want {
				if err := w.WritePacket(p); err != nil {
					t.Fatalf("write failed: %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}
			if got, wantGranule := w.Granule(), int64(960*len(want)); got != wantGranule {
				t.Errorf("expected granule %d, got %d", wantGranule, got)
			}

			r, err := container.NewOggReader(&buf)
			if err != nil {
				t.Fatalf("failed to open ogg reader: %v", err)
			}
			if diff := cmp.Diff(header, r.Header()); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want, readAll(t, r)); diff != "" {
				t.Errorf("packets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOggEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := container.NewOggWriter(&buf, 1, container.Header{Config: stereo, Backend: "adpcm"})
	if err != nil {
		t.Fatalf("failed to create ogg writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	r, err := container.NewOggReader(&buf)
	if err != nil {
		t.Fatalf("failed to open ogg reader: %v", err)
	}
	if got := readAll(t, r); len(got) != 0 {
		t.Errorf("expected no packets, got %d", len(got))
	}
}

func TestOggWriterRejectsForeignPacket(t *testing.T) {
	w, err := container.NewOggWriter(io.Discard, 1, container.Header{Config: stereo, Backend: "adpcm"})
	if err != nil {
		t.Fatalf("failed to create ogg writer: %v", err)
	}
	mono := codec.Config{SampleRate: 48000, Channels: 1, FrameDuration: 20 * time.Millisecond, Bitrate: 32000}
	if err := w.WritePacket(packets(mono, 5)[0]); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt, got %v", err)
	}
}

func TestOggReaderRejectsUnknownHeader(t *testing.T) {
	if _, err := container.NewOggReader(bytes.NewReader([]byte("not an ogg stream at all"))); err == nil {
		t.Errorf("expected an error for a non-ogg stream")
	}
}
