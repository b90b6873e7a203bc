package transport_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/transport"
	"github.com/google/go-cmp/cmp"
)

func TestPacketizerRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint32
	}{
		{"from zero", []uint32{0, 1, 2}},
		{"across a rollover", []uint32{65533, 65534, 65535, 65536, 65537}},
		{"reordered around a rollover", []uint32{65534, 65536, 65535, 65537}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pz := transport.NewPacketizer(mono, transport.DynamicPayloadType, 0xabcd)
			dz := transport.NewDepacketizer(mono, transport.DynamicPayloadType)

			for _, seq := range tt.seqs {
				rp := pz.Packetize(packet(seq))
				if want := seq * 960; rp.Timestamp != want {
					t.Errorf("packet %d: expected timestamp %d, got %d", seq, want, rp.Timestamp)
				}
				got, err := dz.Depacketize(rp)
				if err != nil {
					t.Fatalf("failed to depacketize %d: %v", seq, err)
				}
				if diff := cmp.Diff(packet(seq), got); diff != "" {
					t.Errorf("packet mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestDepacketizerRejectsPayloadType(t *testing.T) {
	rp := transport.NewPacketizer(mono, 111, 1).Packetize(packet(0))
	_, err := transport.NewDepacketizer(mono, transport.DynamicPayloadType).Depacketize(rp)
	if !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt, got %v", err)
	}
}

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return conn
}

func TestRTPConn(t *testing.T) {
	rxConn := listen(t)
	txConn := listen(t)

	rx := transport.NewRTPConn(rxConn, nil, mono, 0)
	defer rx.Close()
	tx := transport.NewRTPConn(txConn, rxConn.LocalAddr(), mono, 42)
	defer tx.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	want := []codec.Packet{packet(0), packet(1), packet(2)}
	for _, p := range want {
		if err := tx.Send(p); err != nil {
			t.Fatalf("failed to send: %v", err)
		}
	}
	for _, w := range want {
		got, err := rx.Receive(ctx)
		if err != nil {
			t.Fatalf("failed to receive: %v", err)
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("packet mismatch (-want +got):\n%s", diff)
		}
	}

	t.Run("Non-RTP datagrams should be reported as corrupt", func(t *testing.T) {
		if _, err := txConn.WriteTo([]byte("hi"), rxConn.LocalAddr()); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		if _, err := rx.Receive(ctx); !errors.Is(err, codec.ErrPacketCorrupt) {
			t.Errorf("expected ErrPacketCorrupt, got %v", err)
		}
	})

	t.Run("Receive should stop when the context ends", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if _, err := rx.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})

	t.Run("A cancelled receive should not break the next one", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		for i := range 20 {
			if err := tx.Send(packet(uint32(i))); err != nil {
				t.Fatalf("failed to send: %v", err)
			}
			time.Sleep(time.Millisecond)
			_, err := rx.Receive(cancelled)
			if err == nil {
				// The datagram won the race; queue another one.
				if err := tx.Send(packet(uint32(i))); err != nil {
					t.Fatalf("failed to send: %v", err)
				}
			} else if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if _, err := rx.Receive(ctx); err != nil {
				t.Fatalf("receive %d after cancellation failed: %v", i, err)
			}
		}
	})

	t.Run("Send without a peer should fail", func(t *testing.T) {
		if err := rx.Send(packet(0)); err == nil {
			t.Errorf("expected an error")
		}
	})
}
