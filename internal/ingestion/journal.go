package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/podwise/podwise/internal/errs"
)

// Journal appends failure records to twin sinks: a JSON-lines file for
// machine consumption and a CSV for spreadsheet triage. Appends are
// serialized; a journal failure is logged by the caller, never fatal.
type Journal struct {
	mu       sync.Mutex
	jsonPath string
	csvPath  string
	records  int
}

// NewJournal opens (or creates) the journal files under dir.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	j := &Journal{
		jsonPath: filepath.Join(dir, "errors.json"),
		csvPath:  filepath.Join(dir, "errors.csv"),
	}
	if err := j.ensureCSVHeader(); err != nil {
		return nil, err
	}
	return j, nil
}

// Append records one failure in both sinks.
func (j *Journal) Append(rec errs.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendJSON(rec); err != nil {
		return err
	}
	if err := j.appendCSV(rec); err != nil {
		return err
	}
	j.records++
	return nil
}

// AppendError flattens any error into a record and journals it.
func (j *Journal) AppendError(err error) error {
	return j.Append(errs.RecordOf(err))
}

// Records returns how many rows this journal instance has written.
func (j *Journal) Records() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

func (j *Journal) appendJSON(rec errs.Record) error {
	f, err := os.OpenFile(j.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open json journal: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to append json journal: %w", err)
	}
	return nil
}

func (j *Journal) appendCSV(rec errs.Record) error {
	f, err := os.OpenFile(j.csvPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open csv journal: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		rec.CollectionID,
		rec.RSSID,
		rec.Title,
		rec.ErrorType,
		rec.Stage,
		rec.Message,
		rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}); err != nil {
		return fmt.Errorf("failed to append csv journal: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (j *Journal) ensureCSVHeader() error {
	if _, err := os.Stat(j.csvPath); err == nil {
		return nil
	}
	f, err := os.OpenFile(j.csvPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create csv journal: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"collection_id", "rss_id", "title", "error_type", "stage", "message", "timestamp",
	}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	w.Flush()
	return w.Error()
}
