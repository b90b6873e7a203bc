// Package pipeline connects PCM streams, the segmenter, codec sessions and
// packet containers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/metrics"
	"github.com/glizzus/soundcodec/internal/pcm"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/glizzus/soundcodec/internal/transport"
)

// FrameEncoder is implemented by *encoder.Session.
type FrameEncoder interface {
	Encode(frame codec.Frame) (codec.Packet, error)
}

// FrameDecoder is implemented by *decoder.Session. A nil packet asks for a
// concealment frame.
type FrameDecoder interface {
	Decode(p *codec.Packet) (codec.Frame, error)
}

// PacketSink receives encoded packets in order.
type PacketSink interface {
	WritePacket(p codec.Packet) error
}

// PacketSource yields packets until io.EOF. Errors wrapping
// codec.ErrPacketCorrupt are skipped; any other error stops the pipeline.
type PacketSource interface {
	ReadPacket() (codec.Packet, error)
}

// Result summarizes a pipeline run.
type Result struct {
	Frames       uint64
	Packets      uint64
	PayloadBytes uint64
	Concealed    uint64
	Corrupt      uint64
	Dropped      uint64
}

func (r Result) String() string {
	return fmt.Sprintf("frames=%d packets=%d bytes=%d concealed=%d corrupt=%d dropped=%d",
		r.Frames, r.Packets, r.PayloadBytes, r.Concealed, r.Corrupt, r.Dropped)
}

type options struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	pacing      bool
	chunkFrames int
	jitterDepth int
	loss        LossModel
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPacing releases encoded packets in real time, one per frame duration.
func WithPacing() Option {
	return func(o *options) { o.pacing = true }
}

// WithChunkFrames sets how many frames of PCM are read from the input at a
// time.
func WithChunkFrames(n int) Option {
	return func(o *options) { o.chunkFrames = max(n, 1) }
}

// WithJitterDepth sets the reorder window DecodeStream applies to its source.
func WithJitterDepth(depth int) Option {
	return func(o *options) { o.jitterDepth = max(depth, 1) }
}

// WithLoss drops the packets model selects between the stages of Transcode.
func WithLoss(model LossModel) Option {
	return func(o *options) { o.loss = model }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:      slog.Default(),
		chunkFrames: 4,
		jitterDepth: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// pacer blocks until the next frame slot when pacing is enabled.
type pacer struct {
	ticker *time.Ticker
}

func newPacer(enabled bool, every time.Duration) *pacer {
	if !enabled {
		return &pacer{}
	}
	return &pacer{ticker: time.NewTicker(every)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

// EncodeStream reads s16le PCM from r until EOF, segments it with seg and
// writes one packet per frame to sink. seg is closed at the end of input so
// its tail policy decides the fate of a partial final frame.
func EncodeStream(ctx context.Context, r io.Reader, seg *segment.Segmenter, enc FrameEncoder, sink PacketSink, opts ...Option) (Result, error) {
	o := newOptions(opts)

	var res Result
	pace := newPacer(o.pacing, frameDuration(seg))
	defer pace.stop()

	encode := func(frame codec.Frame) error {
		if err := pace.wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		p, err := enc.Encode(frame)
		if err != nil {
			o.metrics.EncodeFailed()
			return fmt.Errorf("encode frame %d: %w", frame.Index, err)
		}
		o.metrics.Encoded(len(p.Payload), time.Since(start))
		if err := sink.WritePacket(p); err != nil {
			return fmt.Errorf("write packet %d: %w", p.Sequence, err)
		}
		res.Frames++
		res.Packets++
		res.PayloadBytes += uint64(len(p.Payload))
		return nil
	}

	in := pcm.NewReader(r)
	buf := make([]int16, seg.FrameLen()*o.chunkFrames)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			frames, err := seg.Push(buf[:n])
			if err != nil {
				return res, err
			}
			for frame := range frames {
				if err := encode(frame); err != nil {
					return res, err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return res, fmt.Errorf("read pcm: %w", readErr)
		}
	}

	tail, err := seg.Close()
	if err != nil {
		return res, err
	}
	for frame := range tail {
		if err := encode(frame); err != nil {
			return res, err
		}
	}

	o.logger.Debug("Encoded stream", "frames", res.Frames, "bytes", res.PayloadBytes, "padded", seg.Padded())
	return res, nil
}

func frameDuration(seg *segment.Segmenter) time.Duration {
	if d := seg.Config().FrameDuration; d > 0 {
		return d
	}
	return 20 * time.Millisecond
}

// DecodeStream reads packets from src, restores their order through a jitter
// buffer and writes the decoded PCM to w as s16le. Gaps in the sequence are
// concealed.
func DecodeStream(ctx context.Context, src PacketSource, dec FrameDecoder, w io.Writer, opts ...Option) (Result, error) {
	o := newOptions(opts)
	jb, err := transport.NewJitterBuffer(o.jitterDepth)
	if err != nil {
		return Result{}, err
	}

	rs := &reorderedSource{src: src, jitter: jb, metrics: o.metrics}
	var res Result
	err = decodeLoop(ctx, rs.next, dec, pcm.NewWriter(w), o, &res)
	res.Corrupt += rs.corrupt
	return res, err
}

// reorderedSource feeds a PacketSource through a JitterBuffer.
type reorderedSource struct {
	src     PacketSource
	jitter  *transport.JitterBuffer
	metrics *metrics.Metrics

	queue   []*codec.Packet
	eof     bool
	corrupt uint64
}

func (rs *reorderedSource) next() (*codec.Packet, error) {
	for len(rs.queue) == 0 {
		if rs.eof {
			return nil, io.EOF
		}
		p, err := rs.src.ReadPacket()
		switch {
		case errors.Is(err, io.EOF):
			rs.eof = true
			rs.queue = rs.jitter.Flush()
		case errors.Is(err, codec.ErrPacketCorrupt):
			rs.corrupt++
			rs.metrics.Corrupt()
		case err != nil:
			return nil, fmt.Errorf("read packet: %w", err)
		default:
			prev := rs.jitter.Stats()
			rs.queue = rs.jitter.Push(p)
			rs.metrics.Jitter(prev, rs.jitter.Stats(), rs.jitter.Pending())
		}
	}
	p := rs.queue[0]
	rs.queue = rs.queue[1:]
	return p, nil
}

// decodeLoop decodes until next returns io.EOF. A packet the decoder rejects
// as corrupt is concealed in place so the output keeps its timing.
func decodeLoop(ctx context.Context, next func() (*codec.Packet, error), dec FrameDecoder, out *pcm.Writer, o *options, res *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		frame, err := dec.Decode(p)
		if errors.Is(err, codec.ErrPacketCorrupt) {
			o.logger.Warn("Concealing corrupt packet", "sequence", p.Sequence, "error", err)
			o.metrics.Corrupt()
			res.Corrupt++
			frame, err = dec.Decode(nil)
		}
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		o.metrics.Decoded(frame.Concealed)
		if frame.Concealed {
			res.Concealed++
		} else {
			res.Packets++
			res.PayloadBytes += uint64(len(p.Payload))
		}
		if err := out.Write(frame.Samples); err != nil {
			return err
		}
		res.Frames++
	}
}

// chanSink hands packets to the decode stage, replacing dropped ones with a
// loss signal.
type chanSink struct {
	ctx     context.Context
	ch      chan<- *codec.Packet
	loss    LossModel
	dropped uint64
}

func (s *chanSink) WritePacket(p codec.Packet) error {
	var out *codec.Packet
	if s.loss == nil || !s.loss.Drop(p.Sequence) {
		out = &p
	} else {
		s.dropped++
	}
	select {
	case s.ch <- out:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
