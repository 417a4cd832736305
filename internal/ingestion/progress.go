package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/podwise/podwise/internal/errs"
)

// Progress is the resumable ingestion journal. It records which collections
// finished, which documents within unfinished collections are done, and the
// cycle counter. Every save goes through a temp file and an atomic rename so
// a crash can never leave a half-written journal behind.
type Progress struct {
	path string

	LastUpdated          time.Time `json:"last_updated"`
	CompletedCollections []string  `json:"completed_collections"`
	ProcessedFiles       []string  `json:"processed_files"`
	CycleCount           int       `json:"cycle_count"`
	CurrentCycle         []string  `json:"current_cycle"`
	TotalChunks          int       `json:"total_chunks"`

	completed map[string]struct{}
	processed map[string]struct{}
}

// LoadProgress reads the journal at path. A missing file starts fresh; a
// corrupt file is an invariant error requiring operator attention.
func LoadProgress(path string) (*Progress, error) {
	p := &Progress{
		path:      path,
		completed: map[string]struct{}{},
		processed: map[string]struct{}{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, errs.E(errs.KindResource, "progress", "failed to read progress journal", err)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errs.E(errs.KindInvariant, "progress",
			fmt.Sprintf("progress journal %s is corrupt", path), err)
	}

	for _, c := range p.CompletedCollections {
		p.completed[c] = struct{}{}
	}
	for _, f := range p.ProcessedFiles {
		p.processed[f] = struct{}{}
	}
	return p, nil
}

// fileKey namespaces a document inside its collection.
func fileKey(collection, file string) string {
	return collection + "/" + file
}

// CollectionDone reports whether a collection already finished in a prior run.
func (p *Progress) CollectionDone(collection string) bool {
	_, ok := p.completed[collection]
	return ok
}

// FileDone reports whether a document was already processed.
func (p *Progress) FileDone(collection, file string) bool {
	_, ok := p.processed[fileKey(collection, file)]
	return ok
}

// MarkFile records one processed document and its chunk count.
func (p *Progress) MarkFile(collection, file string, chunks int) {
	key := fileKey(collection, file)
	if _, ok := p.processed[key]; ok {
		return
	}
	p.processed[key] = struct{}{}
	p.TotalChunks += chunks
}

// MarkCollection records a finished collection and drops its per-file
// entries, which are no longer needed for resume.
func (p *Progress) MarkCollection(collection string) {
	if _, ok := p.completed[collection]; ok {
		return
	}
	p.completed[collection] = struct{}{}
	prefix := collection + "/"
	for key := range p.processed {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(p.processed, key)
		}
	}
}

// Save writes the journal atomically: marshal to a sibling temp file, fsync,
// rename over the target.
func (p *Progress) Save() error {
	p.LastUpdated = time.Now().UTC()
	p.CompletedCollections = sortedKeys(p.completed)
	p.ProcessedFiles = sortedKeys(p.processed)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errs.E(errs.KindInvariant, "progress", "failed to marshal progress journal", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.E(errs.KindResource, "progress", "failed to create progress directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return errs.E(errs.KindResource, "progress", "failed to create temp journal", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.E(errs.KindResource, "progress", "failed to write temp journal", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.E(errs.KindResource, "progress", "failed to sync temp journal", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.E(errs.KindResource, "progress", "failed to close temp journal", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return errs.E(errs.KindResource, "progress", "failed to replace progress journal", err)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
