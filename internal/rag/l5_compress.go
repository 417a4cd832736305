package rag

import (
	"context"
	"regexp"
	"strings"
)

const (
	// maxCompressedLen bounds each compressed chunk, in runes.
	maxCompressedLen = 200

	// truncationSuffix marks compressed chunks that lost their tail.
	truncationSuffix = "..."
)

// annotationPattern matches the bracketed transcript annotations the
// compressor strips: sound cues, ad markers, speaker labels.
var annotationPattern = regexp.MustCompile(`\[[^\]]*\]|【[^】]*】|\([^)]*\)`)

// fillerTokens are dropped wholesale from compressed content.
var fillerTokens = []string{
	"嗯", "呃", "欸", "那個", "就是說", "然後呢",
	"um", "uh", "you know",
}

// CompressLevel shortens each candidate's content deterministically: strip
// bracketed annotations, drop filler tokens, collapse whitespace, and cap
// the length. The confidence rewards a moderate compression ratio; barely
// touched or gutted content both read as a compression failure.
type CompressLevel struct {
	threshold float64
}

// NewCompressLevel builds the context compression level.
func NewCompressLevel(threshold float64) *CompressLevel {
	return &CompressLevel{threshold: threshold}
}

func (l *CompressLevel) Name() string       { return "L5" }
func (l *CompressLevel) Threshold() float64 { return l.threshold }

func (l *CompressLevel) Run(_ context.Context, s *State) (float64, error) {
	candidates := s.candidates()
	if len(candidates) == 0 {
		return 0, nil
	}

	compressed := make([]CompressedChunk, 0, len(candidates))
	ratioSum := 0.0
	for _, cand := range candidates {
		text, ratio := compress(cand.Row.ChunkText)
		if text == "" {
			continue
		}
		compressed = append(compressed, CompressedChunk{
			Row:   cand.Row,
			Score: cand.Score,
			Text:  text,
			Ratio: ratio,
		})
		ratioSum += ratio
	}
	if len(compressed) == 0 {
		return 0, nil
	}

	s.Compressed = compressed
	return ratioConfidence(ratioSum / float64(len(compressed))), nil
}

// compress shortens one candidate's content and reports the compression
// ratio: compressed length over original length, both in runes, with the
// truncation suffix excluded from the count.
func compress(text string) (string, float64) {
	original := len([]rune(strings.TrimSpace(text)))
	if original == 0 {
		return "", 0
	}

	out := annotationPattern.ReplaceAllString(text, " ")
	for _, filler := range fillerTokens {
		out = strings.ReplaceAll(out, filler, "")
	}
	out = strings.Join(strings.Fields(out), " ")

	runes := []rune(out)
	if len(runes) > maxCompressedLen {
		kept := runes[:maxCompressedLen]
		return string(kept) + truncationSuffix, float64(maxCompressedLen) / float64(original)
	}
	return out, float64(len(runes)) / float64(original)
}

// ratioConfidence maps the mean compression ratio onto a confidence: 0.9
// inside the moderate band, scaled down toward either extreme.
func ratioConfidence(mean float64) float64 {
	switch {
	case mean >= 0.3 && mean <= 0.7:
		return 0.9
	case mean < 0.3:
		return 0.9 * mean / 0.3
	default:
		return 0.9 * (1 - mean) / 0.3
	}
}

var _ Level = (*CompressLevel)(nil)
