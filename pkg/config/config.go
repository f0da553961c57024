// Package config loads journal writer and reader settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/validation"
)

const (
	DefaultMaxFileSize           = 128 << 20
	MinMaxFileSize               = journalfile.MinFileSize
	MaxMaxFileSize               = 64 << 30
	DefaultCompressThreshold     = 512
	DefaultDataHashTableBuckets  = 2047
	DefaultFieldHashTableBuckets = 333
	DefaultChainCacheSize        = 64
)

// Config is the on-disk configuration of a journal directory.
type Config struct {
	Directory   string            `yaml:"directory" validate:"required"`
	MaxFileSize uint64            `yaml:"max_file_size"`
	Compression CompressionConfig `yaml:"compression"`

	// StrictOrder rejects appends whose realtime regresses beyond
	// ClockSkewTolerance; the writer then rotates.
	StrictOrder        bool          `yaml:"strict_order"`
	ClockSkewTolerance time.Duration `yaml:"clock_skew_tolerance"`

	DataHashTableBuckets  int `yaml:"data_hash_table_buckets" validate:"gte=0,lte=1048576"`
	FieldHashTableBuckets int `yaml:"field_hash_table_buckets" validate:"gte=0,lte=65536"`
	ChainCacheSize        int `yaml:"chain_cache_size" validate:"gte=0,lte=4096"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type CompressionConfig struct {
	Codec          string `yaml:"codec" validate:"omitempty,oneof=none snappy zstd"`
	ThresholdBytes int    `yaml:"threshold_bytes" validate:"gte=0"`
}

// Default returns a configuration for dir with every default applied.
func Default(dir string) *Config {
	c := &Config{Directory: dir}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	c.MaxFileSize = validation.DefaultOr(c.MaxFileSize, DefaultMaxFileSize)
	c.Compression.Codec = validation.DefaultOr(c.Compression.Codec, "zstd")
	c.Compression.ThresholdBytes = validation.DefaultOr(c.Compression.ThresholdBytes, DefaultCompressThreshold)
	c.DataHashTableBuckets = validation.DefaultOr(c.DataHashTableBuckets, DefaultDataHashTableBuckets)
	c.FieldHashTableBuckets = validation.DefaultOr(c.FieldHashTableBuckets, DefaultFieldHashTableBuckets)
	c.ChainCacheSize = validation.DefaultOr(c.ChainCacheSize, DefaultChainCacheSize)
	c.LogLevel = validation.DefaultOr(c.LogLevel, "warn")
}

// Validate checks struct tags first, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	return validation.NewConfigValidator("Config").
		RangeUint64("MaxFileSize", c.MaxFileSize, MinMaxFileSize, MaxMaxFileSize).
		NonNegativeDuration("ClockSkewTolerance", c.ClockSkewTolerance).
		MaxDuration("ClockSkewTolerance", c.ClockSkewTolerance, 24*time.Hour).
		When(c.Compression.Codec != "none", func(cv *validation.ConfigValidator) {
			cv.RangeInt("Compression.ThresholdBytes", c.Compression.ThresholdBytes, 8, 1<<20)
		}).
		Custom("Compression.Codec", func() error {
			_, err := compress.ParseAlgorithm(c.Compression.Codec)
			return err
		}).
		Custom("MaxFileSize", func() error {
			// The hash tables are allocated up front and must leave room for entries.
			tables := uint64(c.DataHashTableBuckets+c.FieldHashTableBuckets+2) * 16
			if journalfile.HeaderSize+tables > c.MaxFileSize/2 {
				return fmt.Errorf("%d bytes of hash tables leave no room in a %d byte file", tables, c.MaxFileSize)
			}
			return nil
		}).
		Validate()
}

// Algorithm returns the configured codec.
func (c *Config) Algorithm() compress.Algorithm {
	a, _ := compress.ParseAlgorithm(c.Compression.Codec)
	return a
}

// Logger builds a stderr logger at the configured level.
func (c *Config) Logger() logging.Logger {
	return logging.NewStderrLogger(logging.ParseLevel(c.LogLevel))
}

// Load reads, defaults and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, rejecting unknown keys.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
