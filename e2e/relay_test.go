package e2e_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/e2e"
	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/decoder"
	"github.com/glizzus/soundcodec/internal/encoder"
	"github.com/glizzus/soundcodec/internal/pcm"
	"github.com/glizzus/soundcodec/internal/pipeline"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/glizzus/soundcodec/internal/transport"
)

type subscriberSource struct {
	ctx context.Context
	sub *transport.RedisSubscriber
}

func (s subscriberSource) ReadPacket() (codec.Packet, error) {
	return s.sub.ReadPacket(s.ctx)
}

type lossySink struct {
	next pipeline.PacketSink
	loss pipeline.LossModel
}

func (s lossySink) WritePacket(p codec.Packet) error {
	if s.loss.Drop(p.Sequence) {
		return nil
	}
	return s.next.WritePacket(p)
}

func TestRelayOverRedis(t *testing.T) {
	ctx := t.Context()
	client := e2e.UseRedis(t)

	cfg := codec.Config{
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
		Bitrate:       16000,
		Application:   codec.ApplicationVoIP,
	}
	const stream = "e2e:relay"

	seg, err := segment.New(segment.ConfigFor(cfg, segment.TailPad))
	if err != nil {
		t.Fatalf("failed to create segmenter: %v", err)
	}
	enc, err := encoder.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open encoder: %v", err)
	}
	defer enc.Close()

	pub := transport.NewRedisPublisher(client, stream, 0)
	sink := lossySink{next: pub.Writer(ctx), loss: pipeline.DropSequences(3)}
	if _, err := pipeline.EncodeStream(ctx, bytes.NewReader(sine(cfg, 8)), seg, enc, sink); err != nil {
		t.Fatalf("failed to publish stream: %v", err)
	}
	if err := pub.End(ctx); err != nil {
		t.Fatalf("failed to end stream: %v", err)
	}

	dec, err := decoder.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open decoder: %v", err)
	}
	defer dec.Close()

	sub := transport.NewRedisSubscriber(client, stream, "0", 100*time.Millisecond, nil)
	var out bytes.Buffer
	res, err := pipeline.DecodeStream(ctx, subscriberSource{ctx: ctx, sub: sub}, dec, &out, pipeline.WithJitterDepth(2))
	if err != nil {
		t.Fatalf("failed to relay stream: %v", err)
	}

	if res.Frames != 8 || res.Concealed != 1 {
		t.Errorf("expected 8 frames with 1 concealed, got %v", res)
	}
	if want := 8 * cfg.FrameLen() * pcm.BytesPerSample; out.Len() != want {
		t.Errorf("expected %d bytes, got %d", want, out.Len())
	}
	if stats := dec.Stats(); stats.Concealed != 1 || stats.Decoded != 7 {
		t.Errorf("unexpected decoder stats: %+v", stats)
	}
}
