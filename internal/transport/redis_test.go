package transport_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/transport"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisPublishSubscribe(t *testing.T) {
	ctx := t.Context()
	redisContainer, err := tcredis.Run(ctx, "redis:7")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate redis container: %v", err)
		}
	}()

	connStr, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	const stream = "test:packets"
	pub := transport.NewRedisPublisher(client, stream, 1000)

	want := []codec.Packet{packet(0), packet(1), packet(2), packet(3)}
	if _, err := pub.Publish(ctx, want[0]); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if err := pub.PublishBatch(ctx, want[1:3]...); err != nil {
		t.Fatalf("failed to publish batch: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]any{"packet": "garbage"}}).Err(); err != nil {
		t.Fatalf("failed to add corrupt entry: %v", err)
	}
	if _, err := pub.Publish(ctx, want[3]); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if err := pub.End(ctx); err != nil {
		t.Fatalf("failed to end stream: %v", err)
	}

	sub := transport.NewRedisSubscriber(client, stream, "0", 100*time.Millisecond, nil)
	var got []codec.Packet
	for {
		p, err := sub.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to read packet: %v", err)
		}
		got = append(got, p)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
	if sub.Corrupt() != 1 {
		t.Errorf("expected 1 corrupt entry, got %d", sub.Corrupt())
	}

	t.Run("A blocked read should stop when the context ends", func(t *testing.T) {
		idle := transport.NewRedisSubscriber(client, "test:idle", "$", 50*time.Millisecond, nil)
		readCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		if _, err := idle.ReadPacket(readCtx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}
