// Configuration knobs and their defaults.
//
// Config is advisory only: none of its fields change the on-disk
// format. A missing zds.yaml simply yields DefaultConfig().
package zds

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the advisory ranges: batch size 100-1000 operations,
// flush byte threshold ~100MiB, flush interval ~60s.
const (
	DefaultMaxPendingOps   = 500
	DefaultMaxPendingBytes = 100 * 1024 * 1024
	DefaultFlushInterval   = 60 * time.Second
	DefaultMaxRecordSize   = 100 * 1024 * 1024
)

// BatchConfig controls the pending-write buffer thresholds shared by
// every collection opened read-write under a Config.
type BatchConfig struct {
	MaxOps        int           `yaml:"max_ops"`
	MaxBytes      int64         `yaml:"max_bytes"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Config holds runtime behaviour for a Root and the collections it
// vends. None of these fields affect on-disk format.
type Config struct {
	Batch         BatchConfig `yaml:"batch"`
	Strict        bool        `yaml:"strict"`
	SyncWrites    bool        `yaml:"sync_writes"`
	MaxRecordSize int64       `yaml:"max_record_size"`
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() Config {
	return Config{
		Batch: BatchConfig{
			MaxOps:        DefaultMaxPendingOps,
			MaxBytes:      DefaultMaxPendingBytes,
			FlushInterval: DefaultFlushInterval,
		},
		MaxRecordSize: DefaultMaxRecordSize,
	}
}

// applyDefaults fills zero-valued fields with the engine defaults.
// Open applies it to RootOptions.Config, so callers constructing a
// Config{} literal get the same defaulting behaviour LoadConfig gives a
// parsed file.
func (c Config) applyDefaults() Config {
	d := DefaultConfig()
	if c.Batch.MaxOps == 0 {
		c.Batch.MaxOps = d.Batch.MaxOps
	}
	if c.Batch.MaxBytes == 0 {
		c.Batch.MaxBytes = d.Batch.MaxBytes
	}
	if c.Batch.FlushInterval == 0 {
		c.Batch.FlushInterval = d.Batch.FlushInterval
	}
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = d.MaxRecordSize
	}
	return c
}

// LoadConfig reads a YAML configuration file at path. A missing file
// is not an error: it yields DefaultConfig(). Fields absent from the
// file fall back to the engine defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, wrapIo("load config", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, wrapJson("parse config", err)
	}
	return c.applyDefaults(), nil
}
