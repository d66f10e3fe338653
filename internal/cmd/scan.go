package cmd

import (
	"context"
	"log/slog"
	"math"
	"os"

	"github.com/urfave/cli/v3"
)

func scanCmd() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Writes rows with min <= _step < max as an Arrow IPC stream",
		Flags: flags(
			sourceFlag(),
			columnsFlag(),
			&cli.FloatFlag{
				Name:  "min",
				Usage: "inclusive lower step bound",
			},
			&cli.FloatFlag{
				Name:  "max",
				Usage: "exclusive upper step bound",
				Value: math.Inf(1),
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "file to write the stream to, stdout when empty",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, stop, err := setup(ctx, c)
			if err != nil {
				return err
			}
			defer stop()

			h, err := e.Open(ctx, c.String("source"), c.StringSlice("columns"))
			if err != nil {
				return err
			}
			defer e.ReleaseHandle(h)

			res, err := e.Scan(ctx, h, c.Float("min"), c.Float("max"))
			if err != nil {
				return err
			}
			defer e.ReleaseBuffer(res.Buffer)

			slog.Info("scanned",
				slog.String("source", c.String("source")),
				slog.Int64("rows", res.Rows),
				slog.Int("bytes", res.Len),
			)
			if res.Buffer == 0 {
				return nil
			}
			data, err := e.Bytes(res.Buffer)
			if err != nil {
				return err
			}
			if path := c.String("out"); path != "" {
				return os.WriteFile(path, data, 0600)
			}
			_, err = c.Root().Writer.Write(data)
			return err
		},
	}
}
