package vectorstore

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a term-weight vector for keyword retrieval. Indices are
// stable hashes of tokens; the index applies IDF server-side so the client
// only supplies saturated term frequencies (the BM25 family).
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// bm25K1 saturates term-frequency contribution.
const bm25K1 = 1.2

// SparseVectorizer turns text into sparse term vectors. Stateless and safe
// for concurrent use.
type SparseVectorizer struct{}

// NewSparseVectorizer returns a vectorizer for chunk text and tags.
func NewSparseVectorizer() *SparseVectorizer {
	return &SparseVectorizer{}
}

// Vectorize tokenizes text and produces tf-saturated weights. Returns nil
// when no tokens survive.
func (v *SparseVectorizer) Vectorize(text string) *SparseVector {
	tokens := tokenizeSparse(text)
	if len(tokens) == 0 {
		return nil
	}

	tf := make(map[uint32]float32, len(tokens))
	for _, tok := range tokens {
		tf[hashToken(tok)]++
	}

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		f := float64(tf[idx])
		values[i] = float32(f * (bm25K1 + 1) / (f + bm25K1))
	}
	return &SparseVector{Indices: indices, Values: values}
}

// tokenizeSparse splits on non-letter/digit boundaries, lowercases, and
// additionally emits single CJK characters so Chinese queries match without
// a segmenter.
func tokenizeSparse(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func hashToken(tok string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return h.Sum32()
}

// NormalizeScore maps an unbounded sparse similarity into [0,1].
func NormalizeScore(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (raw + 1)
}

// CosineFromDot clips a dot-product similarity of unit vectors into [0,1].
func CosineFromDot(raw float64) float64 {
	return math.Max(0, math.Min(1, raw))
}
