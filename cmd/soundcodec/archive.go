package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/glizzus/soundcodec/internal/archive"
	"github.com/glizzus/soundcodec/internal/config"
	"github.com/glizzus/soundcodec/internal/datalayer"
	"github.com/glizzus/soundcodec/internal/repository"
	"github.com/urfave/cli/v2"
)

// withArchiver connects to Postgres and MinIO for the duration of fn.
func withArchiver(c *cli.Context, fn func(a *archive.Archiver) error) error {
	pgConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load postgres config: "+err.Error(), 1)
	}
	pool, err := datalayer.NewPostgresPool(c.Context, pgConfig)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	blobs, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return cli.Exit("Failed to create blob storage: "+err.Error(), 1)
	}
	if err := blobs.EnsureBucket(c.Context); err != nil {
		return err
	}

	return fn(archive.New(blobs, repository.NewPostgresStreamRepository(pool)))
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Encode PCM and store it in the stream archive",
		Flags: append(codecFlags(),
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Value: "-", Usage: "Input file, - for stdin"},
			&cli.StringFlag{Name: "name", Required: true, Usage: "Name of the stream"},
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

			return withArchiver(c, func(a *archive.Archiver) error {
				record, err := a.Store(c.Context, archive.StoreRequest{
					Name:    c.String("name"),
					Config:  settings.Codec,
					Backend: settings.Backend,
					Tail:    settings.Tail,
				}, in)
				if err != nil {
					return err
				}
				fmt.Println(record.ID)
				return nil
			})
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Decode an archived stream into s16le PCM",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true, Usage: "ID of the stream"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "-", Usage: "Output file, - for stdout"},
		},
		Action: func(c *cli.Context) error {
			return withArchiver(c, func(a *archive.Archiver) error {
				out, err := openOutput(c.String("out"))
				if err != nil {
					return err
				}
				res, err := a.Decode(c.Context, c.String("id"), out)
				if cerr := out.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				slog.Info("Fetched stream", "id", c.String("id"), "result", res.String())
				return nil
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived streams, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum number of streams to show"},
		},
		Action: func(c *cli.Context) error {
			return withArchiver(c, func(a *archive.Archiver) error {
				records, err := a.List(c.Context, c.Int("limit"))
				if err != nil {
					return err
				}
				if len(records) == 0 {
					slog.Info("No archived streams found")
					return nil
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tBACKEND\tCONFIG\tPACKETS\tBYTES\tCREATED")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
						r.ID, r.Name, r.Backend, r.Config.String(), r.Packets, r.PayloadBytes, r.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
}
