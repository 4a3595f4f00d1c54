package zds

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "zds.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Batch.MaxOps != def.Batch.MaxOps {
		t.Errorf("expected default MaxOps, got %d", cfg.Batch.MaxOps)
	}
	if cfg.MaxRecordSize != def.MaxRecordSize {
		t.Errorf("expected default MaxRecordSize, got %d", cfg.MaxRecordSize)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zds.yaml")
	yamlContent := "strict: true\nbatch:\n  max_ops: 10\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Strict {
		t.Errorf("expected strict true from file")
	}
	if cfg.Batch.MaxOps != 10 {
		t.Errorf("expected overridden MaxOps 10, got %d", cfg.Batch.MaxOps)
	}
	if cfg.Batch.FlushInterval != DefaultFlushInterval {
		t.Errorf("expected default FlushInterval to remain, got %v", cfg.Batch.FlushInterval)
	}
}

func TestConfigApplyDefaultsIsIdempotent(t *testing.T) {
	c := Config{Batch: BatchConfig{MaxOps: 7, FlushInterval: 5 * time.Second}}
	once := c.applyDefaults()
	twice := once.applyDefaults()
	if once != twice {
		t.Errorf("applyDefaults should be idempotent: %+v vs %+v", once, twice)
	}
	if once.Batch.MaxOps != 7 {
		t.Errorf("explicit MaxOps should survive defaulting, got %d", once.Batch.MaxOps)
	}
}
