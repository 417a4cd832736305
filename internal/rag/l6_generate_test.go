package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/podwise/podwise/internal/llm"
	"github.com/podwise/podwise/internal/vectorstore"
)

// generateStub answers every generation call with the same reply and
// records the system prompts it saw.
type generateStub struct {
	mu      sync.Mutex
	reply   string
	systems []string
}

func (g *generateStub) Generate(_ context.Context, _ string, opts llm.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.systems = append(g.systems, opts.SystemPrompt)
	return g.reply, nil
}

func generateState(n int) *State {
	s := &State{Query: QueryContext{Original: "投資理財 podcast 推薦"}}
	for i := 0; i < n; i++ {
		s.Compressed = append(s.Compressed, CompressedChunk{
			Row:  vectorstore.ChunkRow{ChunkID: string(rune('a' + i))},
			Text: "投資理財重點摘要",
		})
	}
	return s
}

func newGenerateLevel(client llm.LLM) *GenerateLevel {
	return NewGenerateLevel(client, "llama3.2", "qwen2.5", NewEvaluator(), 0.7)
}

func TestGenerate_AcceptedAnswerHasFixedConfidence(t *testing.T) {
	stub := &generateStub{reply: "根據[1],推薦這些投資理財節目。"}
	level := newGenerateLevel(stub)
	s := generateState(3)

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 0.9 {
		t.Errorf("confidence = %f, want the fixed 0.9", conf)
	}
	if s.Answer == "" {
		t.Error("accepted answer must land in the state")
	}
}

func TestGenerate_UncitedAnswerFallsThrough(t *testing.T) {
	stub := &generateStub{reply: "這些節目都很不錯,值得一聽。"}
	level := newGenerateLevel(stub)
	s := generateState(3)

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 0 || s.Answer != "" {
		t.Errorf("conf = %f, answer = %q; an answer citing nothing must fall through", conf, s.Answer)
	}
	// The stricter retry must have been attempted before giving up.
	if got := stub.systems[len(stub.systems)-1]; got != generateStrictPrompt {
		t.Errorf("last system prompt = %q, want the strict retry", got)
	}
}

func TestGenerate_RefusalVocabularyRejected(t *testing.T) {
	stub := &generateStub{reply: "抱歉,根據[1]我無法回答這個問題。"}
	level := newGenerateLevel(stub)
	s := generateState(3)

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 0 || s.Answer != "" {
		t.Errorf("conf = %f, answer = %q; refusals must fall through", conf, s.Answer)
	}
}

func TestGenerate_CandidateVolumeDrivesStyle(t *testing.T) {
	thin := &generateStub{reply: "根據[1],推薦這些節目。"}
	if _, err := newGenerateLevel(thin).Run(context.Background(), generateState(3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if thin.systems[0] != generateConcisePrompt {
		t.Errorf("three candidates must use the concise style, got %q", thin.systems[0])
	}

	rich := &generateStub{reply: "根據[1],推薦這些節目。"}
	if _, err := newGenerateLevel(rich).Run(context.Background(), generateState(6)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rich.systems[0] != generateDetailedPrompt {
		t.Errorf("six candidates must use the detailed style, got %q", rich.systems[0])
	}
}

func TestGenerate_PromptUsesStrongestCandidatesOnly(t *testing.T) {
	level := newGenerateLevel(&generateStub{reply: "根據[1]。"})
	s := generateState(6)
	prompt := level.buildPrompt(s)

	if !strings.Contains(prompt, "[3]") {
		t.Errorf("prompt must include the third candidate:\n%s", prompt)
	}
	if strings.Contains(prompt, "[4]") {
		t.Errorf("prompt must stop at the top three candidates:\n%s", prompt)
	}
}

func TestGenerate_NoCandidatesScoresZero(t *testing.T) {
	level := newGenerateLevel(&generateStub{reply: "根據[1]。"})
	if conf, err := level.Run(context.Background(), &State{}); err != nil || conf != 0 {
		t.Errorf("conf, err = %f, %v; want 0, nil", conf, err)
	}
}
