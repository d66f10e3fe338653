package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/stepscan/internal/cmd/output"
)

func schemaCmd() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Prints the Arrow schema of the projected columns",
		Flags: flags(
			sourceFlag(),
			columnsFlag(),
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
			sc, err := e.Schema(h)
			if err != nil {
				return err
			}
			return output.Schema(c.Root().Writer, sc)
		},
	}
}
