package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/config"
	"github.com/glizzus/soundcodec/internal/container"
	"github.com/glizzus/soundcodec/internal/decoder"
	"github.com/glizzus/soundcodec/internal/encoder"
	"github.com/glizzus/soundcodec/internal/generator"
	"github.com/glizzus/soundcodec/internal/pipeline"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/glizzus/soundcodec/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

const (
	formatOgg     = "ogg"
	formatRecords = "records"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Value: formatOgg,
		Usage: "Container format: ogg or records",
	}
}

// openEncoder creates the segmenter and encoder session for s.
func openEncoder(s streamSettings) (*segment.Segmenter, *encoder.Session, error) {
	seg, err := segment.New(segment.ConfigFor(s.Codec, s.Tail))
	if err != nil {
		return nil, nil, err
	}
	enc, err := encoder.Open(s.Codec, encoder.WithBackend(s.Backend))
	if err != nil {
		return nil, nil, err
	}
	return seg, enc, nil
}

func newPacketWriter(format string, w io.Writer, h container.Header) (container.PacketWriter, error) {
	switch format {
	case formatRecords:
		return container.NewRecordWriter(w), nil
	case formatOgg:
		serial, err := (&generator.SerialGenerator{}).Next()
		if err != nil {
			return nil, err
		}
		return container.NewOggWriter(w, serial, h)
	}
	return nil, cli.Exit(fmt.Sprintf("unknown format %q", format), 1)
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "Encode s16le PCM into a packet container",
		Flags: append(append(codecFlags(), ioFlags()...), formatFlag(),
			&cli.BoolFlag{Name: "pace", Usage: "Emit packets in real time"},
		),
		Action: func(c *cli.Context) error {
			settings, err := loadStreamSettings(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			seg, enc, err := openEncoder(settings)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer enc.Close()

			in, err := openInput(c.String("in"))
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := openOutput(c.String("out"))
			if err != nil {
				return err
			}

			pw, err := newPacketWriter(c.String("format"), out, container.Header{Config: settings.Codec, Backend: enc.Backend()})
			if err != nil {
				out.Close()
				return err
			}

			opts := []pipeline.Option{}
			if c.Bool("pace") {
				opts = append(opts, pipeline.WithPacing())
			}
			res, err := pipeline.EncodeStream(c.Context, in, seg, enc, pw, opts...)
			if err != nil {
				out.Close()
				return err
			}
			if err := pw.Close(); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			slog.Info("Encoded stream", "config", settings.Codec.String(), "backend", enc.Backend(), "result", res.String())
			return nil
		},
	}
}

// openPacketReader detects the container format. Length-prefixed records do
// not carry the sample rate, so their configuration comes from settings.
func openPacketReader(r io.Reader, settings streamSettings) (pipeline.PacketSource, container.Header, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(4)
	if string(magic) == "OggS" {
		rd, err := container.NewOggReader(br)
		if err != nil {
			return nil, container.Header{}, err
		}
		return rd, rd.Header(), nil
	}
	return container.NewRecordReader(br), container.Header{Config: settings.Codec, Backend: settings.Backend}, nil
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode a packet container into s16le PCM",
		Flags: append(append(codecFlags(), ioFlags()...),
			&cli.IntFlag{Name: "jitter-depth", Value: 1, Usage: "Packets held to undo reordering"},
		),
		Action: func(c *cli.Context) error {
			settings, err := loadStreamSettings(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			in, err := openInput(c.String("in"))
			if err != nil {
				return err
			}
			defer in.Close()

			src, header, err := openPacketReader(in, settings)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			dec, err := decoder.Open(header.Config, decoder.WithBackend(header.Backend))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer dec.Close()

			out, err := openOutput(c.String("out"))
			if err != nil {
				return err
			}
			res, err := pipeline.DecodeStream(c.Context, src, dec, out, pipeline.WithJitterDepth(c.Int("jitter-depth")))
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			slog.Info("Decoded stream", "config", header.Config.String(), "backend", header.Backend, "result", res.String())
			return nil
		},
	}
}

func roundtripCommand() *cli.Command {
	return &cli.Command{
		Name:  "roundtrip",
		Usage: "Encode and decode PCM through a simulated lossy channel",
		Flags: append(append(codecFlags(), ioFlags()...),
			&cli.StringFlag{Name: "loss", Usage: "Loss model: random:RATE[:SEED], burst:PERIOD:LENGTH or seq:N,N"},
		),
		Action: func(c *cli.Context) error {
			settings, err := loadStreamSettings(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			loss, err := pipeline.ParseLossModel(c.String("loss"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			seg, enc, err := openEncoder(settings)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer enc.Close()
			dec, err := decoder.Open(settings.Codec, decoder.WithBackend(settings.Backend))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer dec.Close()

			in, err := openInput(c.String("in"))
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := openOutput(c.String("out"))
			if err != nil {
				return err
			}

			res, err := pipeline.Transcode(c.Context, in, seg, enc, dec, out, pipeline.WithLoss(loss))
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			slog.Info("Round trip finished", "config", settings.Codec.String(), "result", res.String())
			return nil
		},
	}
}

// packetWriterFunc adapts a function to container.PacketWriter.
type packetWriterFunc func(codec.Packet) error

func (f packetWriterFunc) WritePacket(p codec.Packet) error { return f(p) }

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Encode PCM and publish the packets to a Redis stream",
		Flags: append(codecFlags(),
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Value: "-", Usage: "Input file, - for stdin"},
			&cli.BoolFlag{Name: "pace", Value: true, Usage: "Publish packets in real time"},
			&cli.StringFlag{Name: "loss", Usage: "Drop packets before publishing, for testing receivers"},
		),
		Action: func(c *cli.Context) error {
			settings, err := loadStreamSettings(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			loss, err := pipeline.ParseLossModel(c.String("loss"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			redisConfig, err := config.NewRedisConfigFromEnv()
			if err != nil {
				return cli.Exit("Failed to load redis config: "+err.Error(), 1)
			}
			rdb := redis.NewClient(&redis.Options{
				Addr:     redisConfig.Addr,
				Password: redisConfig.Password,
				DB:       redisConfig.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(c.Context).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}

			seg, enc, err := openEncoder(settings)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer enc.Close()
			in, err := openInput(c.String("in"))
			if err != nil {
				return err
			}
			defer in.Close()

			pub := transport.NewRedisPublisher(rdb, redisConfig.Stream, redisConfig.MaxLen)
			w := pub.Writer(c.Context)
			sink := packetWriterFunc(func(p codec.Packet) error {
				if loss != nil && loss.Drop(p.Sequence) {
					return nil
				}
				return w.WritePacket(p)
			})

			opts := []pipeline.Option{}
			if c.Bool("pace") {
				opts = append(opts, pipeline.WithPacing())
			}
			res, err := pipeline.EncodeStream(c.Context, in, seg, enc, sink, opts...)
			if err != nil {
				return err
			}
			if err := pub.End(c.Context); err != nil {
				return err
			}
			slog.Info("Published stream", "stream", redisConfig.Stream, "result", res.String())
			return nil
		},
	}
}

func backendsCommand() *cli.Command {
	return &cli.Command{
		Name:  "backends",
		Usage: "List the compression backends built into this binary",
		Action: func(c *cli.Context) error {
			for _, name := range codec.Backends() {
				suffix := ""
				if name == codec.DefaultBackend {
					suffix = " (default)"
				}
				fmt.Fprintf(os.Stdout, "%s%s\n", name, suffix)
			}
			return nil
		},
	}
}
