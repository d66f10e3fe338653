package config

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"
)

// File mirrors Options in a YAML configuration file. Missing keys keep their
// defaults.
type File struct {
	BatchSize   *int64         `yaml:"batch_size"`
	BlockSize   *int64         `yaml:"block_size"`
	CacheSize   *int64         `yaml:"cache_size"`
	Retries     *int           `yaml:"retries"`
	Timeout     *time.Duration `yaml:"timeout"`
	BucketDir   *string        `yaml:"bucket_dir"`
	StrictOrder *bool          `yaml:"strict_order"`
	LogLevel    *string        `yaml:"log_level"`
	LogFormat   *string        `yaml:"log_format"`
	Metrics     *string        `yaml:"metrics"`
}

func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.UnmarshalStrict(b, &f); err != nil {
		return nil, fmt.Errorf("invalid configuration file %s: %w", path, err)
	}
	return &f, nil
}

// merge copies values from f into o, skipping options whose flag was set on
// the command line or through the environment.
func (f *File) merge(o *Options, c *cli.Command) {
	set := func(flag string) bool {
		return c != nil && c.IsSet(flag)
	}
	if f.BatchSize != nil && !set("batch-size") {
		o.BatchSize = *f.BatchSize
	}
	if f.BlockSize != nil && !set("block-size") {
		o.BlockSize = *f.BlockSize
	}
	if f.CacheSize != nil && !set("cache-size") {
		o.CacheSize = *f.CacheSize
	}
	if f.Retries != nil && !set("retries") {
		o.Retries = *f.Retries
	}
	if f.Timeout != nil && !set("timeout") {
		o.Timeout = *f.Timeout
	}
	if f.BucketDir != nil && !set("bucket-dir") {
		o.BucketDir = *f.BucketDir
	}
	if f.StrictOrder != nil && !set("strict-order") {
		o.StrictOrder = *f.StrictOrder
	}
	if f.LogLevel != nil && !set("log-level") {
		o.LogLevel = *f.LogLevel
	}
	if f.LogFormat != nil && !set("log-format") {
		o.LogFormat = *f.LogFormat
	}
	if f.Metrics != nil && !set("metrics") {
		o.Metrics = *f.Metrics
	}
}
