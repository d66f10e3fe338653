package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/stepscan"
	"github.com/vinceanalytics/stepscan/internal/config"
	"github.com/vinceanalytics/stepscan/internal/metrics"
	"github.com/vinceanalytics/stepscan/internal/version"
)

func App() *cli.Command {
	return &cli.Command{
		Name:      "stepscan",
		Usage:     "Incrementally read parquet metric histories by step",
		Copyright: "@2024-present",
		Version:   version.Build().String(),
		Commands: []*cli.Command{
			scanCmd(),
			followCmd(),
			schemaCmd(),
			version.Cmd(),
		},
	}
}

func sourceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "source",
		Usage:    "path, file://, http(s):// or bucket:// locator of a parquet file",
		Required: true,
		Sources:  cli.EnvVars("STEPSCAN_SOURCE"),
	}
}

func columnsFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "columns",
		Usage: "columns to read, all when empty",
	}
}

func flags(fs ...cli.Flag) []cli.Flag {
	return append(fs, config.Flags()...)
}

// setup loads options, installs the default logger and starts the metrics
// server when one is configured. The returned func stops everything.
func setup(ctx context.Context, c *cli.Command) (*stepscan.Engine, func(), error) {
	o, err := config.Load(c)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(config.Logger(os.Stderr, o.LogLevel, o.LogFormat))

	e, err := stepscan.New(o)
	if err != nil {
		return nil, nil, err
	}
	if o.Metrics == "" {
		return e, e.Close, nil
	}
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		e.Close()
		return nil, nil, err
	}
	svr := &http.Server{
		Addr:        o.Metrics,
		Handler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.Info("serving metrics", "addr", o.Metrics)
		if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server exited", "err", err)
		}
	}()
	return e, func() {
		svr.Shutdown(context.Background())
		e.Close()
	}, nil
}
