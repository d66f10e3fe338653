package cmd

import (
	"context"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/stepscan/internal/cmd/output"
)

func followCmd() *cli.Command {
	return &cli.Command{
		Name:  "follow",
		Usage: "Prints rows as they are appended to a history until interrupted",
		Flags: flags(
			sourceFlag(),
			columnsFlag(),
			&cli.FloatFlag{
				Name:  "from",
				Usage: "first step to print",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "time between polls",
				Value: 5 * time.Second,
			},
			&cli.IntFlag{
				Name:  "polls",
				Usage: "stop after this many polls, 0 polls until interrupted",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, stop, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			defer cancel()

			source := c.String("source")
			h, err := e.Open(ctx, source, c.StringSlice("columns"))
			if err != nil {
				return err
			}
			defer e.ReleaseHandle(h)

			log := slog.Default().With(slog.String("source", source))
			out := c.Root().Writer
			next := c.Float("from")
			polls := int64(c.Int("polls"))
			tick := time.NewTicker(c.Duration("interval"))
			defer tick.Stop()
			for n := int64(1); ; n++ {
				res, err := e.Scan(ctx, h, next, math.Inf(1))
				if err != nil {
					return err
				}
				if res.Buffer != 0 {
					data, err := e.Bytes(res.Buffer)
					if err != nil {
						e.ReleaseBuffer(res.Buffer)
						return err
					}
					_, err = output.Stream(out, data)
					e.ReleaseBuffer(res.Buffer)
					if err != nil {
						return err
					}
					last, err := e.Last(h)
					if err != nil {
						return err
					}
					log.Debug("new rows", "rows", res.Rows, "from", next, "last", last)
					next = math.Nextafter(last, math.Inf(1))
				}
				if polls > 0 && n >= polls {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
				}
			}
		},
	}
}
