package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CollectionStats summarizes one collection in a run.
type CollectionStats struct {
	Documents int `json:"documents"`
	Skipped   int `json:"skipped"`
	Chunks    int `json:"chunks"`
	Failures  int `json:"failures"`
}

// RunStats summarizes one ingestion run and is written to the stats
// directory as cycle_<n>.json.
type RunStats struct {
	Cycle       int                        `json:"cycle"`
	Started     time.Time                  `json:"started"`
	Finished    time.Time                  `json:"finished"`
	Collections map[string]CollectionStats `json:"collections"`

	mu sync.Mutex
}

func newRunStats(cycle int) *RunStats {
	return &RunStats{
		Cycle:       cycle,
		Started:     time.Now().UTC(),
		Collections: map[string]CollectionStats{},
	}
}

func (s *RunStats) add(collection string, delta CollectionStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Collections[collection]
	cur.Documents += delta.Documents
	cur.Skipped += delta.Skipped
	cur.Chunks += delta.Chunks
	cur.Failures += delta.Failures
	s.Collections[collection] = cur
}

// TotalChunks sums chunk counts across collections.
func (s *RunStats) TotalChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.Collections {
		total += c.Chunks
	}
	return total
}

// Write persists the stats document under dir. An empty dir skips writing.
func (s *RunStats) Write(dir string) error {
	if dir == "" {
		return nil
	}
	s.mu.Lock()
	s.Finished = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("cycle_%d.json", s.Cycle))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run stats: %w", err)
	}
	return nil
}
