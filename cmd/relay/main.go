package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	_ "github.com/glizzus/soundcodec/internal/codec/adpcm"
	"github.com/glizzus/soundcodec/internal/config"
	"github.com/glizzus/soundcodec/internal/decoder"
	"github.com/glizzus/soundcodec/internal/metrics"
	"github.com/glizzus/soundcodec/internal/pipeline"
	"github.com/glizzus/soundcodec/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// receiver is a transport that blocks for the next packet.
type receiver func(ctx context.Context) (codec.Packet, error)

// source adapts a receiver to pipeline.PacketSource. When idle is positive, a
// wait longer than idle ends the stream.
type source struct {
	ctx     context.Context
	receive receiver
	idle    time.Duration
}

func (s *source) ReadPacket() (codec.Packet, error) {
	if s.idle <= 0 {
		return s.receive(s.ctx)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.idle)
	defer cancel()
	p, err := s.receive(ctx)
	if errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil {
		slog.Info("Stream idle, ending", "idle", s.idle)
		return codec.Packet{}, io.EOF
	}
	return p, err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
}

func openReceiver(ctx context.Context, relayConfig *config.RelayConfig, cfg codec.Config) (receiver, func() error, error) {
	switch relayConfig.Transport {
	case "rtp":
		conn, err := net.ListenPacket("udp", relayConfig.RTPListen)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to listen for rtp: %w", err)
		}
		slog.Info("Listening for RTP", "addr", conn.LocalAddr().String())
		rc := transport.NewRTPConn(conn, nil, cfg, 0)
		return rc.Receive, rc.Close, nil
	default:
		redisConfig, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisConfig.Addr,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Reading Redis stream", "addr", redisConfig.Addr, "stream", redisConfig.Stream)
		sub := transport.NewRedisSubscriber(rdb, redisConfig.Stream, "$", redisConfig.Block, slog.Default())
		return sub.ReadPacket, rdb.Close, nil
	}
}

func runRelay(ctx context.Context) error {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	relayConfig, err := config.NewRelayConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load relay config: %w", err)
	}
	codecConfig, err := config.NewCodecConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load codec config: %w", err)
	}
	cfg, err := codecConfig.Codec()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	serveMetrics(ctx, relayConfig.MetricsAddr, reg)

	receive, closeTransport, err := openReceiver(ctx, relayConfig, cfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	out := os.Stdout
	if relayConfig.Output != "-" {
		if out, err = os.Create(relayConfig.Output); err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer out.Close()
	}

	dec, err := decoder.Open(cfg, decoder.WithBackend(codecConfig.Backend))
	if err != nil {
		return err
	}
	defer dec.Close()

	src := &source{ctx: ctx, receive: receive, idle: relayConfig.IdleTimeout}
	res, err := pipeline.DecodeStream(ctx, src, dec, out,
		pipeline.WithJitterDepth(relayConfig.JitterDepth),
		pipeline.WithMetrics(m),
	)
	slog.Info("Relay finished", "result", res.String(), "decoder", fmt.Sprintf("%+v", dec.Stats()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runRelay(ctx); err != nil {
		slog.Error("Relay encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
