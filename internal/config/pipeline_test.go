package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPipeline_MissingFile(t *testing.T) {
	p, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if p.ChunkSize != 1024 || p.L1Threshold != 0.7 || p.ConcurrentWorkers != 4 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestLoadPipeline_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	doc := "chunk_size: 512\nl2_threshold: 0.9\ncycle_size: 2\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPipeline(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.ChunkSize != 512 {
		t.Errorf("chunk_size override lost: %d", p.ChunkSize)
	}
	if p.L2Threshold != 0.9 {
		t.Errorf("l2_threshold override lost: %f", p.L2Threshold)
	}
	// Untouched keys keep defaults
	if p.L1Threshold != 0.7 || p.BatchSize != 50 {
		t.Errorf("defaults clobbered: %+v", p)
	}
}

func TestLoadPipeline_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: [not an int"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPipeline(path); err == nil {
		t.Error("malformed YAML must be an error")
	}
}

func TestLoadPipeline_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPipeline(path); err == nil {
		t.Error("negative chunk_size must be rejected")
	}
}

func TestThresholds(t *testing.T) {
	p := DefaultPipeline()
	th := p.Thresholds()
	if len(th) != 6 {
		t.Fatalf("expected 6 thresholds, got %d", len(th))
	}
	if th["L6"] != 0.7 {
		t.Errorf("L6 threshold = %f, want 0.7", th["L6"])
	}
}
