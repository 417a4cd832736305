package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline holds the tunable parameters of the ingestion and retrieval
// pipelines, declared as a YAML document. Every field has a default so a
// missing file is not an error; a malformed file is fatal at startup.
type Pipeline struct {
	ChunkSize    int `yaml:"chunk_size"`
	BatchSize    int `yaml:"batch_size"`
	EmbeddingDim int `yaml:"embedding_dim"`

	// Per-level confidence thresholds
	L1Threshold float64 `yaml:"l1_threshold"`
	L2Threshold float64 `yaml:"l2_threshold"`
	L3Threshold float64 `yaml:"l3_threshold"`
	L4Threshold float64 `yaml:"l4_threshold"`
	L5Threshold float64 `yaml:"l5_threshold"`
	L6Threshold float64 `yaml:"l6_threshold"`

	ConcurrentWorkers int `yaml:"concurrent_workers"`
	RetryAttempts     int `yaml:"retry_attempts"`
	RequestDeadlineMS int `yaml:"request_deadline_ms"`

	// Ingestion cycle mode: collections processed per run
	CycleSize int `yaml:"cycle_size"`

	// Optional per-collection chunk limit (0 = unlimited)
	CollectionChunkLimit int `yaml:"collection_chunk_limit"`

	// Embedding batch queue: release on size or age, whichever first
	EmbedQueueSize   int           `yaml:"embed_queue_size"`
	EmbedQueueWindow time.Duration `yaml:"embed_queue_window"`

	// External call budget
	CallTimeout time.Duration `yaml:"call_timeout"`

	FallbackStrategy string `yaml:"fallback_strategy"`
}

// DefaultPipeline returns the documented defaults.
func DefaultPipeline() Pipeline {
	return Pipeline{
		ChunkSize:         1024,
		BatchSize:         50,
		EmbeddingDim:      1024,
		L1Threshold:       0.7,
		L2Threshold:       0.6,
		L3Threshold:       0.5,
		L4Threshold:       0.6,
		L5Threshold:       0.5,
		L6Threshold:       0.7,
		ConcurrentWorkers: 4,
		RetryAttempts:     3,
		RequestDeadlineMS: 30000,
		CycleSize:         5,
		EmbedQueueSize:    32,
		EmbedQueueWindow:  50 * time.Millisecond,
		CallTimeout:       30 * time.Second,
		FallbackStrategy:  "simple",
	}
}

// LoadPipeline reads the YAML pipeline document at path. A missing file
// yields the defaults; a malformed file is an error.
func LoadPipeline(path string) (Pipeline, error) {
	p := DefaultPipeline()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate rejects values the pipeline cannot run with.
func (p Pipeline) Validate() error {
	if p.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", p.ChunkSize)
	}
	if p.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", p.EmbeddingDim)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	}
	if p.ConcurrentWorkers <= 0 {
		return fmt.Errorf("concurrent_workers must be positive, got %d", p.ConcurrentWorkers)
	}
	if p.CycleSize <= 0 {
		return fmt.Errorf("cycle_size must be positive, got %d", p.CycleSize)
	}
	return nil
}

// Thresholds returns the per-level thresholds keyed L1..L6.
func (p Pipeline) Thresholds() map[string]float64 {
	return map[string]float64{
		"L1": p.L1Threshold,
		"L2": p.L2Threshold,
		"L3": p.L3Threshold,
		"L4": p.L4Threshold,
		"L5": p.L5Threshold,
		"L6": p.L6Threshold,
	}
}

// RequestDeadline converts the configured millisecond budget to a duration.
func (p Pipeline) RequestDeadline() time.Duration {
	return time.Duration(p.RequestDeadlineMS) * time.Millisecond
}
