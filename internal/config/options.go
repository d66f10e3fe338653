package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	DefaultBatchSize = 64 << 10
	DefaultBlockSize = 1 << 20
	DefaultCacheSize = 64 << 20
	DefaultRetries   = 3
	DefaultTimeout   = 30 * time.Second
)

type Options struct {
	// BatchSize is the number of rows decoded per record.
	BatchSize int64
	// BlockSize is the unit remote sources are fetched and cached in.
	BlockSize int64
	// CacheSize bounds the shared remote block cache in bytes, 0 disables it.
	CacheSize int64
	Retries   int
	Timeout   time.Duration
	// BucketDir is the root of the filesystem bucket serving bucket://
	// locators. Empty means no bucket.
	BucketDir   string
	StrictOrder bool
	LogLevel    string
	LogFormat   string
	// Metrics is the address prometheus metrics are served on by the cli.
	Metrics string
}

func Defaults() *Options {
	return &Options{
		BatchSize: DefaultBatchSize,
		BlockSize: DefaultBlockSize,
		CacheSize: DefaultCacheSize,
		Retries:   DefaultRetries,
		Timeout:   DefaultTimeout,
		LogLevel:  "INFO",
		LogFormat: "text",
	}
}

func (o *Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive got %d", o.BatchSize)
	}
	if o.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive got %d", o.BlockSize)
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative got %d", o.CacheSize)
	}
	if o.Retries < 0 {
		return fmt.Errorf("retries must not be negative got %d", o.Retries)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative got %s", o.Timeout)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", o.LogLevel)
	}
	switch strings.ToLower(o.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q, expected text or json", o.LogFormat)
	}
	return nil
}

// Logger returns a logger writing to w at the configured level. Unknown
// levels fall back to INFO.
func Logger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	lvl.UnmarshalText([]byte(level))
	h := &slog.HandlerOptions{
		Level: lvl,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, h))
	}
	return slog.New(slog.NewTextHandler(w, h))
}

func Flags() []cli.Flag {
	o := Defaults()
	return []cli.Flag{
		&cli.IntFlag{
			Category: "reader",
			Name:     "batch-size",
			Usage:    "rows decoded per record batch",
			Value:    DefaultBatchSize,
			Sources:  cli.EnvVars("STEPSCAN_BATCH_SIZE"),
		},
		&cli.IntFlag{
			Category: "remote",
			Name:     "block-size",
			Usage:    "size in bytes of blocks fetched from remote sources",
			Value:    DefaultBlockSize,
			Sources:  cli.EnvVars("STEPSCAN_BLOCK_SIZE"),
		},
		&cli.IntFlag{
			Category: "remote",
			Name:     "cache-size",
			Usage:    "bytes of remote blocks kept in memory, 0 disables caching",
			Value:    DefaultCacheSize,
			Sources:  cli.EnvVars("STEPSCAN_CACHE_SIZE"),
		},
		&cli.IntFlag{
			Category: "remote",
			Name:     "retries",
			Usage:    "retries for transient remote read failures",
			Value:    DefaultRetries,
			Sources:  cli.EnvVars("STEPSCAN_RETRIES"),
		},
		&cli.DurationFlag{
			Category: "remote",
			Name:     "timeout",
			Usage:    "timeout of a single remote request",
			Value:    o.Timeout,
			Sources:  cli.EnvVars("STEPSCAN_TIMEOUT"),
		},
		&cli.StringFlag{
			Category: "remote",
			Name:     "bucket-dir",
			Usage:    "directory served as the bucket for bucket:// sources",
			Sources:  cli.EnvVars("STEPSCAN_BUCKET_DIR"),
		},
		&cli.BoolFlag{
			Category: "reader",
			Name:     "strict-order",
			Usage:    "fail scans on files whose _step column decreases",
			Sources:  cli.EnvVars("STEPSCAN_STRICT_ORDER"),
		},
		&cli.StringFlag{
			Category: "core",
			Name:     "log-level",
			Usage:    "log level, values are (debug,info,warn,error)",
			Value:    o.LogLevel,
			Sources:  cli.EnvVars("STEPSCAN_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Category: "core",
			Name:     "log-format",
			Usage:    "log output format, text or json",
			Value:    o.LogFormat,
			Sources:  cli.EnvVars("STEPSCAN_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Category: "core",
			Name:     "config",
			Usage:    "path to a yaml configuration file, flags take precedence",
			Sources:  cli.EnvVars("STEPSCAN_CONFIG"),
		},
		&cli.StringFlag{
			Category: "core",
			Name:     "metrics",
			Usage:    "address to expose prometheus metrics on",
			Sources:  cli.EnvVars("STEPSCAN_METRICS"),
		},
	}
}

// Load builds options from the flags returned by Flags. Values from the
// --config file apply to flags that were not set explicitly.
func Load(c *cli.Command) (*Options, error) {
	o := &Options{
		BatchSize:   int64(c.Int("batch-size")),
		BlockSize:   int64(c.Int("block-size")),
		CacheSize:   int64(c.Int("cache-size")),
		Retries:     int(c.Int("retries")),
		Timeout:     c.Duration("timeout"),
		BucketDir:   c.String("bucket-dir"),
		StrictOrder: c.Bool("strict-order"),
		LogLevel:    c.String("log-level"),
		LogFormat:   c.String("log-format"),
		Metrics:     c.String("metrics"),
	}
	if path := c.String("config"); path != "" {
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		f.merge(o, c)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Env builds options from STEPSCAN_* environment variables alone.
func Env(ctx context.Context) (*Options, error) {
	var o *Options
	cmd := &cli.Command{
		Name:  "env",
		Flags: Flags(),
		Action: func(ctx context.Context, c *cli.Command) (err error) {
			o, err = Load(c)
			return
		},
	}
	if err := cmd.Run(ctx, []string{"env"}); err != nil {
		return nil, err
	}
	return o, nil
}
