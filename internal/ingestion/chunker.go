package ingestion

import "strings"

// Chunker splits cleaned transcript text into chunks of at most maxSize
// runes. Splitting is deterministic: the same input always yields the same
// chunk sequence, which keeps re-ingestion idempotent.
type Chunker struct {
	maxSize int
}

// NewChunker creates a chunker with the given rune bound. Non-positive
// bounds fall back to 1024.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Chunker{maxSize: maxSize}
}

// Chunk packs paragraphs into chunks, never splitting a paragraph unless it
// alone exceeds the bound, in which case it is hard-split on whitespace (or
// at the bound when there is none, as in CJK prose). Empty paragraphs are
// dropped; empty input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range c.splitOversized(para) {
			n := len([]rune(piece))
			switch {
			case curLen == 0:
				cur.WriteString(piece)
				curLen = n
			case curLen+1+n <= c.maxSize:
				cur.WriteByte('\n')
				cur.WriteString(piece)
				curLen += 1 + n
			default:
				flush()
				cur.WriteString(piece)
				curLen = n
			}
		}
	}
	flush()
	return chunks
}

// splitOversized returns the paragraph itself when it fits, otherwise
// whitespace-delimited pieces each at most maxSize runes.
func (c *Chunker) splitOversized(para string) []string {
	if len([]rune(para)) <= c.maxSize {
		return []string{para}
	}

	var pieces []string
	var cur strings.Builder
	curLen := 0

	emit := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(para) {
		runes := []rune(word)
		// A single token longer than the bound is cut at the bound.
		for len(runes) > c.maxSize {
			emit()
			pieces = append(pieces, string(runes[:c.maxSize]))
			runes = runes[c.maxSize:]
		}
		n := len(runes)
		if n == 0 {
			continue
		}
		switch {
		case curLen == 0:
			cur.WriteString(string(runes))
			curLen = n
		case curLen+1+n <= c.maxSize:
			cur.WriteByte(' ')
			cur.WriteString(string(runes))
			curLen += 1 + n
		default:
			emit()
			cur.WriteString(string(runes))
			curLen = n
		}
	}
	emit()
	return pieces
}
