package main

import (
	"log/slog"
	"os"

	_ "github.com/glizzus/soundcodec/internal/codec/adpcm"
	"github.com/glizzus/soundcodec/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to load .env file", "error", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "soundcodec",
		Usage: "Encode, decode and archive PCM audio streams",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			encodeCommand(),
			decodeCommand(),
			roundtripCommand(),
			publishCommand(),
			archiveCommand(),
			fetchCommand(),
			listCommand(),
			backendsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running soundcodec", "error", err)
		os.Exit(1)
	}
}
