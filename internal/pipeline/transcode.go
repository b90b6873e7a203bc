package pipeline

import (
	"context"
	"io"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/pcm"
	"github.com/glizzus/soundcodec/internal/segment"
	"golang.org/x/sync/errgroup"
)

// Transcode encodes PCM from r and decodes it straight back into w, with
// the encode and decode stages running concurrently. Packets chosen by the
// loss model (see WithLoss) reach the decoder as losses, so w receives one
// frame per encoded frame either way.
func Transcode(ctx context.Context, r io.Reader, seg *segment.Segmenter, enc FrameEncoder, dec FrameDecoder, w io.Writer, opts ...Option) (Result, error) {
	o := newOptions(opts)
	g, gctx := errgroup.WithContext(ctx)
	packets := make(chan *codec.Packet, 8)

	var encRes Result
	sink := &chanSink{ctx: gctx, ch: packets, loss: o.loss}
	g.Go(func() error {
		defer close(packets)
		var err error
		encRes, err = EncodeStream(gctx, r, seg, enc, sink, opts...)
		return err
	})

	var decRes Result
	g.Go(func() error {
		next := func() (*codec.Packet, error) {
			select {
			case p, ok := <-packets:
				if !ok {
					return nil, io.EOF
				}
				return p, nil
			case <-gctx.Done():
				return nil, gctx.Err()
			}
		}
		return decodeLoop(gctx, next, dec, pcm.NewWriter(w), o, &decRes)
	})

	err := g.Wait()
	return Result{
		Frames:       decRes.Frames,
		Packets:      encRes.Packets,
		PayloadBytes: encRes.PayloadBytes,
		Concealed:    decRes.Concealed,
		Corrupt:      decRes.Corrupt,
		Dropped:      sink.dropped,
	}, err
}
