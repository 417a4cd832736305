// Package ingestion walks the transcript store, turns each document into
// bounded tagged chunks, embeds them, and writes them to the vector index
// with resumable progress.
package ingestion

import (
	"strings"
	"unicode"
)

// SpecialCleaner is a per-feed cleanup rule applied before the generic
// pass. Rules are keyed by collection name and registered at startup.
type SpecialCleaner func(text string) string

// Cleaner normalizes raw transcript text: per-feed rules first, then
// control characters stripped and whitespace runs collapsed. Newlines
// survive cleaning because the chunker packs on paragraph boundaries.
type Cleaner struct {
	special map[string]SpecialCleaner
}

// NewCleaner builds a cleaner with the given per-feed rules. A nil map is
// fine.
func NewCleaner(special map[string]SpecialCleaner) *Cleaner {
	if special == nil {
		special = map[string]SpecialCleaner{}
	}
	return &Cleaner{special: special}
}

// Clean runs the pipeline for one document of the named collection.
func (c *Cleaner) Clean(collection, text string) string {
	if rule, ok := c.special[collection]; ok {
		text = rule(text)
	}
	return normalize(text)
}

// normalize strips control characters and collapses whitespace. Horizontal
// runs become one space; runs containing a newline become one newline.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))

	inRun := false
	runHasNewline := false
	for _, r := range text {
		if r == '\n' {
			inRun = true
			runHasNewline = true
			continue
		}
		if unicode.IsSpace(r) {
			inRun = true
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if inRun {
			if b.Len() > 0 {
				if runHasNewline {
					b.WriteByte('\n')
				} else {
					b.WriteByte(' ')
				}
			}
			inRun = false
			runHasNewline = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
