package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/podwise/podwise/internal/llm"
)

const (
	// generateTopK is how many compressed candidates feed the generators.
	generateTopK = 3

	// detailedCandidateMin switches to the detailed answer style: more than
	// this many candidates survived up to compression.
	detailedCandidateMin = 5

	// acceptedConfidence is the fixed confidence of an answer that passed
	// quality control.
	acceptedConfidence = 0.9

	// resummaryWordLimit bounds the fused answer.
	resummaryWordLimit = 300

	generateDetailedPrompt = `Answer the question using ONLY the provided
context. Cite the context entries as [1], [2], [3], name the podcasts and
episodes involved, and answer in the question's language with a full summary.`

	generateConcisePrompt = `Answer the question using ONLY the provided
context: one headline sentence plus two short supporting points, in the
question's language. Cite the context entries as [1], [2], [3].`

	generateStrictPrompt = `Answer the question using ONLY the provided
context. You MUST cite at least one context entry as [1], [2], or [3] and
you must not refuse or apologize. Answer in the question's language.`

	resummarySystemPrompt = `Merge the two draft answers into one, keeping
every fact both drafts agree on and dropping contradictions. Keep the [n]
citations. Stay under 300 words, in the question's language.`
)

// forbiddenTokens disqualify a generated answer outright.
var forbiddenTokens = []string{
	"我不知道", "無法回答", "抱歉",
	"i don't know", "cannot answer", "as an ai",
}

// GenerateLevel produces the final answer with two models in parallel (a
// general and a domain-tuned one), fuses their drafts, and gates the result
// through quality control with one stricter retry. An accepted answer
// carries a fixed confidence.
type GenerateLevel struct {
	client      llm.LLM
	generalName string
	domainName  string
	evaluator   *Evaluator
	threshold   float64
}

// NewGenerateLevel builds the hybrid generation level.
func NewGenerateLevel(client llm.LLM, generalModel, domainModel string, evaluator *Evaluator, threshold float64) *GenerateLevel {
	return &GenerateLevel{
		client:      client,
		generalName: generalModel,
		domainName:  domainModel,
		evaluator:   evaluator,
		threshold:   threshold,
	}
}

func (l *GenerateLevel) Name() string       { return "L6" }
func (l *GenerateLevel) Threshold() float64 { return l.threshold }

func (l *GenerateLevel) Run(ctx context.Context, s *State) (float64, error) {
	if len(s.Compressed) == 0 {
		return 0, nil
	}

	contextSize := len(s.Compressed)
	if contextSize > generateTopK {
		contextSize = generateTopK
	}

	answer := l.generateOnce(ctx, s)
	if !l.passesQC(answer, contextSize) {
		slog.Info("answer rejected by quality control, retrying strict")
		answer = l.generateStyled(ctx, s, generateStrictPrompt)
	}
	if !l.passesQC(answer, contextSize) {
		return 0, nil
	}

	s.Answer = answer
	return acceptedConfidence, nil
}

// passesQC enforces the answer contract: grounded in at least one context
// entry and free of the refusal vocabulary.
func (l *GenerateLevel) passesQC(answer string, contextSize int) bool {
	if answer == "" {
		return false
	}
	referenced := false
	for i := 1; i <= contextSize; i++ {
		if strings.Contains(answer, fmt.Sprintf("[%d]", i)) {
			referenced = true
			break
		}
	}
	if !referenced {
		return false
	}
	lower := strings.ToLower(answer)
	for _, token := range forbiddenTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	return true
}

// generateOnce runs the two-model draft plus fusion pass. A rich candidate
// set asks for the detailed style, a thin one for the concise style.
func (l *GenerateLevel) generateOnce(ctx context.Context, s *State) string {
	system := generateConcisePrompt
	if len(s.Compressed) > detailedCandidateMin {
		system = generateDetailedPrompt
	}
	prompt := l.buildPrompt(s)

	var generalDraft, domainDraft string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := l.client.Generate(gctx, prompt, llm.GenerateOptions{
			Model: l.generalName, SystemPrompt: system,
			Temperature: llm.DefaultTemperature,
		})
		if err != nil {
			slog.Warn("general model draft failed", "error", err)
			return nil
		}
		generalDraft = strings.TrimSpace(out)
		return nil
	})
	g.Go(func() error {
		out, err := l.client.Generate(gctx, prompt, llm.GenerateOptions{
			Model: l.domainName, SystemPrompt: system,
			Temperature: llm.DefaultTemperature,
		})
		if err != nil {
			slog.Warn("domain model draft failed", "error", err)
			return nil
		}
		domainDraft = strings.TrimSpace(out)
		return nil
	})
	_ = g.Wait()

	switch {
	case generalDraft == "" && domainDraft == "":
		return ""
	case generalDraft == "":
		return domainDraft
	case domainDraft == "":
		return generalDraft
	}
	return l.fuse(ctx, s, generalDraft, domainDraft)
}

// generateStyled is the retry path: a single draft from the domain model
// with an explicit style.
func (l *GenerateLevel) generateStyled(ctx context.Context, s *State, system string) string {
	out, err := l.client.Generate(ctx, l.buildPrompt(s), llm.GenerateOptions{
		Model: l.domainName, SystemPrompt: system,
		Temperature: llm.DefaultTemperature,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// fuse merges the two drafts through a bounded resummary. A fusion failure
// falls back to the better standalone draft.
func (l *GenerateLevel) fuse(ctx context.Context, s *State, generalDraft, domainDraft string) string {
	prompt := fmt.Sprintf("Question: %s\n\nDraft A:\n%s\n\nDraft B:\n%s",
		s.Query.Original, generalDraft, domainDraft)
	out, err := l.client.Generate(ctx, prompt, llm.GenerateOptions{
		Model: l.generalName, SystemPrompt: resummarySystemPrompt,
		Temperature: llm.DefaultTemperature,
		MaxTokens:   resummaryWordLimit * 2,
	})
	if err == nil {
		if fused := strings.TrimSpace(out); fused != "" {
			return fused
		}
	}
	if l.evaluator.Compare(l.evaluator.Evaluate(domainDraft, s), l.evaluator.Evaluate(generalDraft, s)) {
		return domainDraft
	}
	return generalDraft
}

// buildPrompt lays out the original question over the strongest compressed
// candidates, each tagged for citation.
func (l *GenerateLevel) buildPrompt(s *State) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(s.Query.Original)
	b.WriteString("\n\nContext:\n")
	for i, c := range s.Compressed {
		if i == generateTopK {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Text)
	}
	return b.String()
}

var _ Level = (*GenerateLevel)(nil)
