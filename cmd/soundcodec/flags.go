package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/config"
	"github.com/glizzus/soundcodec/internal/segment"
	"github.com/urfave/cli/v2"
)

// codecFlags override the CODEC_* environment for one invocation.
func codecFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "sample-rate", Usage: "Sample rate in Hz"},
		&cli.IntFlag{Name: "channels", Usage: "Channel count (1 or 2)"},
		&cli.DurationFlag{Name: "frame", Usage: "Frame duration (2.5ms, 5ms, 10ms, 20ms, 40ms or 60ms)"},
		&cli.IntFlag{Name: "bitrate", Usage: "Target bitrate in bits per second"},
		&cli.BoolFlag{Name: "vbr", Usage: "Allow packet sizes to vary"},
		&cli.StringFlag{Name: "application", Usage: "voip, audio or lowdelay"},
		&cli.StringFlag{Name: "backend", Usage: "Compression backend"},
		&cli.StringFlag{Name: "tail", Usage: "pad or discard a partial final frame"},
	}
}

// streamSettings is the stream shape chosen by the environment and flags.
type streamSettings struct {
	Codec   codec.Config
	Backend string
	Tail    segment.TailPolicy
}

func loadStreamSettings(c *cli.Context) (streamSettings, error) {
	env, err := config.LoadCodecConfig(c.Context, nil)
	if err != nil {
		return streamSettings{}, err
	}
	applyCodecFlags(c, env)

	cfg, err := env.Codec()
	if err != nil {
		return streamSettings{}, err
	}
	seg, err := env.Segmenter()
	if err != nil {
		return streamSettings{}, err
	}
	return streamSettings{Codec: cfg, Backend: env.Backend, Tail: seg.Tail}, nil
}

func applyCodecFlags(c *cli.Context, env *config.CodecConfig) {
	if c.IsSet("sample-rate") {
		env.SampleRate = c.Int("sample-rate")
	}
	if c.IsSet("channels") {
		env.Channels = c.Int("channels")
	}
	if c.IsSet("frame") {
		env.FrameDuration = c.Duration("frame")
	}
	if c.IsSet("bitrate") {
		env.Bitrate = c.Int("bitrate")
	}
	if c.IsSet("vbr") {
		env.VBR = c.Bool("vbr")
	}
	if c.IsSet("application") {
		env.Application = c.String("application")
	}
	if c.IsSet("backend") {
		env.Backend = c.String("backend")
	}
	if c.IsSet("tail") {
		env.Tail = c.String("tail")
	}
}

func ioFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Value: "-", Usage: "Input file, - for stdin"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "-", Usage: "Output file, - for stdout"},
	}
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// output buffers writes to a file or stdout.
type output struct {
	*bufio.Writer
	f *os.File
}

func openOutput(name string) (*output, error) {
	f := os.Stdout
	if name != "-" {
		var err error
		if f, err = os.Create(name); err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
	}
	return &output{Writer: bufio.NewWriter(f), f: f}, nil
}

func (o *output) Close() error {
	err := o.Flush()
	if o.f != os.Stdout {
		if cerr := o.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
