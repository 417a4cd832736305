// Package taxonomy provides the tag vocabulary used for deterministic topic
// assignment during ingestion and for category filtering at query time.
package taxonomy

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// MaxTagsPerChunk caps the number of tags assigned to a single chunk.
const MaxTagsPerChunk = 3

// MaxSynonymColumns is the widest synonym row the tag table may carry.
const MaxSynonymColumns = 14

// Polarity marks the sentiment lean of a tag, when the table declares one.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNeutral  Polarity = "neutral"
	PolarityNegative Polarity = "negative"
)

// Tag is one canonical topic label with its synonym closure. Immutable
// after registry load.
type Tag struct {
	Name     string
	Synonyms []string
	Category string
	Polarity Polarity

	// row preserves table order for deterministic tie-breaking.
	row int
}

// Registry holds the loaded vocabulary. Read-only after Load, safe to share
// across goroutines without locking.
type Registry struct {
	tags   []Tag
	byName map[string]*Tag
}

// Load reads the tag table at path. The table is CSV with a header row:
// name, synonym_1..synonym_14, category, polarity. A missing file aborts
// startup; a malformed row is skipped and logged once.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tag table: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a tag table from r. Exposed separately for tests.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // rows carry a variable number of synonym columns

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read tag table header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("tag table header too narrow: %d columns", len(header))
	}

	reg := &Registry{byName: make(map[string]*Tag)}
	malformed := 0

	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}

		tag, ok := parseRow(record, row)
		if !ok {
			malformed++
			continue
		}
		if _, dup := reg.byName[tag.Name]; dup {
			malformed++
			continue
		}

		reg.tags = append(reg.tags, tag)
		reg.byName[tag.Name] = &reg.tags[len(reg.tags)-1]
	}

	if malformed > 0 {
		slog.Warn("skipped malformed tag table rows", "count", malformed)
	}
	if len(reg.tags) == 0 {
		return nil, fmt.Errorf("tag table contains no usable rows")
	}
	return reg, nil
}

// parseRow maps a CSV record to a Tag. Layout: name, then synonym columns,
// then category, then optional polarity. Synonyms are lowercased; empty
// columns are ignored.
func parseRow(record []string, row int) (Tag, bool) {
	if len(record) < 2 {
		return Tag{}, false
	}

	name := strings.TrimSpace(record[0])
	if name == "" || len(name) > 64 {
		return Tag{}, false
	}

	// The last non-empty column is category unless it parses as a
	// polarity, in which case category precedes it.
	fields := record[1:]
	polarity := PolarityNeutral
	if len(fields) > 1 {
		switch Polarity(strings.TrimSpace(fields[len(fields)-1])) {
		case PolarityPositive, PolarityNeutral, PolarityNegative:
			polarity = Polarity(strings.TrimSpace(fields[len(fields)-1]))
			fields = fields[:len(fields)-1]
		}
	}
	if len(fields) == 0 {
		return Tag{}, false
	}

	category := strings.TrimSpace(fields[len(fields)-1])
	if category == "" {
		return Tag{}, false
	}
	synCols := fields[:len(fields)-1]
	if len(synCols) > MaxSynonymColumns {
		synCols = synCols[:MaxSynonymColumns]
	}

	seen := make(map[string]struct{})
	synonyms := make([]string, 0, len(synCols))
	for _, s := range synCols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		synonyms = append(synonyms, s)
	}

	return Tag{
		Name:     name,
		Synonyms: synonyms,
		Category: category,
		Polarity: polarity,
		row:      row,
	}, true
}

// Len returns the number of loaded tags.
func (r *Registry) Len() int { return len(r.tags) }

// Get returns the tag with the given canonical name.
func (r *Registry) Get(name string) (Tag, bool) {
	t, ok := r.byName[name]
	if !ok {
		return Tag{}, false
	}
	return *t, true
}

// Category returns the category of a tag name, or "" when unknown.
func (r *Registry) Category(name string) string {
	if t, ok := r.byName[name]; ok {
		return t.Category
	}
	return ""
}

// Resolve maps text to at most MaxTagsPerChunk tag names. A tag matches
// when its name or any synonym appears in the lowercased,
// whitespace-normalized text. Candidates are ranked by match count, ties
// broken by table row order. No match returns an empty slice; the resolver
// never invents tags.
func (r *Registry) Resolve(text string) []string {
	norm := normalize(text)
	if norm == "" {
		return nil
	}

	type candidate struct {
		tag   *Tag
		count int
	}
	var candidates []candidate

	for i := range r.tags {
		tag := &r.tags[i]
		count := 0
		if strings.Contains(norm, strings.ToLower(tag.Name)) {
			count++
		}
		for _, syn := range tag.Synonyms {
			if strings.Contains(norm, syn) {
				count++
			}
		}
		if count > 0 {
			candidates = append(candidates, candidate{tag: tag, count: count})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].tag.row < candidates[j].tag.row
	})

	n := len(candidates)
	if n > MaxTagsPerChunk {
		n = MaxTagsPerChunk
	}
	names := make([]string, 0, n)
	for _, c := range candidates[:n] {
		names = append(names, c.tag.Name)
	}
	return names
}

// normalize lowercases and collapses whitespace runs to single spaces so
// synonym matching is insensitive to formatting.
func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
