package config

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestDefaults(t *testing.T) {
	o := Defaults()
	require.NoError(t, o.Validate())
	require.Equal(t, int64(65536), o.BatchSize)
	require.Equal(t, int64(1<<20), o.BlockSize)
	require.Equal(t, 3, o.Retries)
	require.False(t, o.StrictOrder)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Options)
	}{
		{"batch", func(o *Options) { o.BatchSize = 0 }},
		{"block", func(o *Options) { o.BlockSize = -1 }},
		{"cache", func(o *Options) { o.CacheSize = -1 }},
		{"retries", func(o *Options) { o.Retries = -2 }},
		{"timeout", func(o *Options) { o.Timeout = -time.Second }},
		{"level", func(o *Options) { o.LogLevel = "loud" }},
		{"format", func(o *Options) { o.LogFormat = "xml" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := Defaults()
			c.modify(o)
			require.Error(t, o.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	var b bytes.Buffer
	log := Logger(&b, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	require.NotContains(t, b.String(), "hidden")
	require.Contains(t, b.String(), `"msg":"shown"`)

	b.Reset()
	Logger(&b, "debug", "text").Debug("plain")
	require.Contains(t, b.String(), "msg=plain")
}

func TestLoad(t *testing.T) {
	t.Setenv("STEPSCAN_RETRIES", "7")
	var got *Options
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			o, err := Load(c)
			got = o
			return err
		},
	}
	err := cmd.Run(context.Background(), []string{"test", "--batch-size", "128", "--strict-order", "--timeout", "2s"})
	require.NoError(t, err)
	require.Equal(t, int64(128), got.BatchSize)
	require.Equal(t, int64(DefaultBlockSize), got.BlockSize)
	require.Equal(t, 7, got.Retries)
	require.Equal(t, 2*time.Second, got.Timeout)
	require.True(t, got.StrictOrder)
	require.Equal(t, "INFO", got.LogLevel)

	err = cmd.Run(context.Background(), []string{"test", "--log-format", "xml"})
	require.Error(t, err)
}

func TestEnv(t *testing.T) {
	t.Setenv("STEPSCAN_STRICT_ORDER", "true")
	t.Setenv("STEPSCAN_CACHE_SIZE", "0")
	o, err := Env(context.Background())
	require.NoError(t, err)
	require.True(t, o.StrictOrder)
	require.Zero(t, o.CacheSize)
	require.Equal(t, int64(DefaultBatchSize), o.BatchSize)

	t.Setenv("STEPSCAN_BATCH_SIZE", "-1")
	_, err = Env(context.Background())
	require.Error(t, err)
}
