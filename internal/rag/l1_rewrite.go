package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/podwise/podwise/internal/llm"
)

// maxRewriteInput bounds the query text handed to the rewrite model, in
// runes. Longer queries are truncated; the rest of the cascade still sees
// the full original.
const maxRewriteInput = 4096

const rewriteSystemPrompt = `You rewrite podcast search queries. Expand the
query with relevant keywords and resolve colloquialisms, in the query's own
language. Output ONLY valid JSON: {"rewritten": "<expanded query>"}`

// Confidence contributions of the four understanding sub-tasks.
const (
	rewriteWeight   = 0.3
	intentWeight    = 0.2
	entityWeight    = 0.1
	entityWeightCap = 0.2
	domainWeight    = 0.3
)

// intentKeywords drive the deterministic intent lookup. First match in
// declaration order wins.
var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentRecommendation, []string{"推薦", "介紹", "建議", "recommend", "suggest"}},
	{IntentAnalysis, []string{"分析", "比較", "為什麼", "怎麼看", "analyze", "analysis", "compare", "why"}},
	{IntentSearch, []string{"搜尋", "搜索", "哪些", "有沒有", "search", "find"}},
}

// domainKeywords drive the deterministic domain lookup.
var domainKeywords = []struct {
	domain Domain
	words  []string
}{
	{DomainBusiness, []string{"投資", "理財", "財經", "股票", "基金", "創業", "商業", "business", "finance", "invest"}},
	{DomainEducation, []string{"教育", "學習", "課程", "教學", "自我成長", "education", "learning"}},
	{DomainTechnology, []string{"科技", "技術", "程式", "軟體", "人工智慧", "technology", "software"}},
}

var episodeNumberPattern = regexp.MustCompile(`(?i)EP\s?\d+`)

// RewriteLevel runs query understanding: the general model expands the raw
// query, while intent, entity, and domain classification are keyword-driven
// so the level's confidence is reproducible. Rejection reverts to the
// original query text.
type RewriteLevel struct {
	client    llm.LLM
	model     string
	threshold float64
}

// NewRewriteLevel builds the first cascade level.
func NewRewriteLevel(client llm.LLM, model string, threshold float64) *RewriteLevel {
	return &RewriteLevel{client: client, model: model, threshold: threshold}
}

func (l *RewriteLevel) Name() string       { return "L1" }
func (l *RewriteLevel) Threshold() float64 { return l.threshold }

func (l *RewriteLevel) Run(ctx context.Context, s *State) (float64, error) {
	input := truncateRunes(s.Query.Original, maxRewriteInput)
	prompt := fmt.Sprintf("Query: %s", input)

	response, err := l.client.Generate(ctx, prompt, llm.GenerateOptions{
		Model:        l.model,
		SystemPrompt: rewriteSystemPrompt,
		Temperature:  llm.DefaultTemperature,
		MaxTokens:    256,
	})
	if err != nil {
		slog.Warn("query rewrite failed", "error", err)
		return 0, nil
	}

	var parsed struct {
		Rewritten string `json:"rewritten"`
	}
	rewritten := ""
	if err := json.Unmarshal([]byte(stripFences(response)), &parsed); err == nil {
		rewritten = strings.TrimSpace(parsed.Rewritten)
	} else {
		// An unstructured reply still carries the expansion text.
		rewritten = strings.TrimSpace(response)
	}
	if rewritten == "" {
		return 0, nil
	}

	s.Query.Rewritten = rewritten
	s.Query.Intent = classifyIntent(s.Query.Original)
	s.Query.Domain = classifyDomain(s.Query.Original)
	s.Query.Entities = detectEntities(s.Query.Original, s.Query.Tags)

	conf := 0.0
	if rewritten != strings.TrimSpace(input) {
		conf += rewriteWeight
	}
	if s.Query.Intent != IntentGeneral {
		conf += intentWeight
	}
	entityConf := entityWeight * float64(len(s.Query.Entities))
	if entityConf > entityWeightCap {
		entityConf = entityWeightCap
	}
	conf += entityConf
	if s.Query.Domain != DomainGeneral {
		conf += domainWeight
	}
	if conf > 1 {
		conf = 1
	}
	return conf, nil
}

// classifyIntent looks the query up in the intent keyword table.
func classifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, entry := range intentKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.intent
			}
		}
	}
	return IntentGeneral
}

// classifyDomain looks the query up in the domain keyword table.
func classifyDomain(query string) Domain {
	lower := strings.ToLower(query)
	for _, entry := range domainKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.domain
			}
		}
	}
	return DomainGeneral
}

// detectEntities collects the named entities the query carries: resolved
// taxonomy tags, quoted titles, and episode numbers.
func detectEntities(query string, tags []string) []string {
	seen := make(map[string]struct{})
	var entities []string
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" {
			return
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		entities = append(entities, e)
	}

	for _, t := range tags {
		add(t)
	}
	for _, m := range episodeNumberPattern.FindAllString(query, -1) {
		add(strings.ToUpper(strings.ReplaceAll(m, " ", "")))
	}
	for {
		open := strings.Index(query, "「")
		if open == -1 {
			break
		}
		rest := query[open+len("「"):]
		end := strings.Index(rest, "」")
		if end == -1 {
			break
		}
		add(rest[:end])
		query = rest[end+len("」"):]
	}
	return entities
}

// truncateRunes bounds s to max runes.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// stripFences unwraps a markdown code block around a JSON reply.
func stripFences(response string) string {
	response = strings.TrimSpace(response)
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}
	return response
}

var _ Level = (*RewriteLevel)(nil)
