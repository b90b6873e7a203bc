package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields.
const (
	fieldPacket = "packet"
	fieldEOS    = "eos"
)

// RedisPublisher appends wire packets to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher returns a publisher that trims stream to roughly maxLen
// entries. A maxLen of zero disables trimming.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) args(values map[string]any) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: values,
	}
}

// Publish adds one packet and returns its entry ID.
func (p *RedisPublisher) Publish(ctx context.Context, pkt codec.Packet) (string, error) {
	data, err := pkt.MarshalBinary()
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, p.args(map[string]any{fieldPacket: data})).Result()
	if err != nil {
		return "", fmt.Errorf("publish packet %d to %s: %w", pkt.Sequence, p.stream, err)
	}
	return id, nil
}

// PublishBatch adds packets in one round trip.
func (p *RedisPublisher) PublishBatch(ctx context.Context, pkts ...codec.Packet) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, pkt := range pkts {
			data, err := pkt.MarshalBinary()
			if err != nil {
				return err
			}
			pipe.XAdd(ctx, p.args(map[string]any{fieldPacket: data}))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %d packets to %s: %w", len(pkts), p.stream, err)
	}
	return nil
}

// End marks the end of the stream. Subscribers return io.EOF after it.
func (p *RedisPublisher) End(ctx context.Context) error {
	if err := p.client.XAdd(ctx, p.args(map[string]any{fieldEOS: "1"})).Err(); err != nil {
		return fmt.Errorf("end stream %s: %w", p.stream, err)
	}
	return nil
}

// Writer binds the publisher to ctx for callers that write packets without
// a context.
func (p *RedisPublisher) Writer(ctx context.Context) *RedisPacketWriter {
	return &RedisPacketWriter{ctx: ctx, pub: p}
}

type RedisPacketWriter struct {
	ctx context.Context
	pub *RedisPublisher
}

func (w *RedisPacketWriter) WritePacket(p codec.Packet) error {
	_, err := w.pub.Publish(w.ctx, p)
	return err
}

// RedisSubscriber reads wire packets from a Redis stream in entry order.
type RedisSubscriber struct {
	client *redis.Client
	stream string
	block  time.Duration
	count  int64
	lastID string
	logger *slog.Logger

	queue   []codec.Packet
	ended   bool
	corrupt uint64
}

// NewRedisSubscriber reads entries after lastID. "0" starts at the beginning
// of the stream and "$" at the next entry added.
func NewRedisSubscriber(client *redis.Client, stream, lastID string, block time.Duration, logger *slog.Logger) *RedisSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSubscriber{
		client: client,
		stream: stream,
		block:  block,
		count:  64,
		lastID: lastID,
		logger: logger,
	}
}

// LastID is the ID of the last entry consumed.
func (s *RedisSubscriber) LastID() string { return s.lastID }

// Corrupt counts entries skipped because they did not parse.
func (s *RedisSubscriber) Corrupt() uint64 { return s.corrupt }

// ReadPacket blocks until a packet is available, the stream ends or ctx is
// done. Entries that do not hold a valid packet are logged and skipped.
func (s *RedisSubscriber) ReadPacket(ctx context.Context) (codec.Packet, error) {
	for len(s.queue) == 0 {
		if s.ended {
			return codec.Packet{}, io.EOF
		}
		if err := s.fill(ctx); err != nil {
			return codec.Packet{}, err
		}
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	return p, nil
}

func (s *RedisSubscriber) fill(ctx context.Context) error {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   s.count,
		Block:   s.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return ctx.Err()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read from %s: %w", s.stream, err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			s.lastID = msg.ID
			if _, ok := msg.Values[fieldEOS]; ok {
				s.ended = true
				return nil
			}
			raw, ok := msg.Values[fieldPacket].(string)
			if !ok {
				s.corrupt++
				s.logger.Warn("Skipping stream entry without a packet", "stream", s.stream, "id", msg.ID)
				continue
			}
			p, err := codec.ParsePacket([]byte(raw))
			if err != nil {
				s.corrupt++
				s.logger.Warn("Skipping corrupt stream entry", "stream", s.stream, "id", msg.ID, "error", err)
				continue
			}
			s.queue = append(s.queue, p)
		}
	}
	return nil
}
