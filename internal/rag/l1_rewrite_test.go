package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/podwise/podwise/internal/llm"
)

// rewriteStub returns a fixed rewrite and captures the prompt it saw.
type rewriteStub struct {
	reply      string
	fail       bool
	lastPrompt string
}

func (r *rewriteStub) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	r.lastPrompt = prompt
	if r.fail {
		return "", errors.New("connection refused")
	}
	return r.reply, nil
}

func TestRewriteLevel_ConfidenceIsSumOfSubTasks(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		tags    []string
		reply   string
		want    float64
		wantInt Intent
		wantDom Domain
	}{
		{
			// Only the rewrite differs: no intent, domain, or entity signal.
			name:    "rewrite only",
			query:   "今天心情如何",
			reply:   `{"rewritten": "今天的心情與感受"}`,
			want:    0.3,
			wantInt: IntentGeneral,
			wantDom: DomainGeneral,
		},
		{
			// Rewrite plus intent stays below the default 0.7 gate.
			name:    "rewrite and intent",
			query:   "推薦好聽的節目",
			reply:   `{"rewritten": "推薦 高評價 熱門 節目"}`,
			want:    0.5,
			wantInt: IntentRecommendation,
			wantDom: DomainGeneral,
		},
		{
			name:    "all sub-tasks fire",
			query:   "推薦投資理財的 podcast",
			tags:    []string{"投資理財"},
			reply:   `{"rewritten": "推薦 投資理財 股票 基金 podcast"}`,
			want:    0.9,
			wantInt: IntentRecommendation,
			wantDom: DomainBusiness,
		},
		{
			// An echoed query earns no rewrite credit.
			name:    "identical rewrite",
			query:   "推薦投資理財的 podcast",
			tags:    []string{"投資理財"},
			reply:   `{"rewritten": "推薦投資理財的 podcast"}`,
			want:    0.6,
			wantInt: IntentRecommendation,
			wantDom: DomainBusiness,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level := NewRewriteLevel(&rewriteStub{reply: tc.reply}, "llama3.2", 0.7)
			s := &State{Query: QueryContext{Original: tc.query, Tags: tc.tags}}

			conf, err := level.Run(context.Background(), s)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if conf < tc.want-1e-9 || conf > tc.want+1e-9 {
				t.Errorf("confidence = %f, want %f", conf, tc.want)
			}
			if s.Query.Intent != tc.wantInt {
				t.Errorf("intent = %q, want %q", s.Query.Intent, tc.wantInt)
			}
			if s.Query.Domain != tc.wantDom {
				t.Errorf("domain = %q, want %q", s.Query.Domain, tc.wantDom)
			}
		})
	}
}

func TestRewriteLevel_EntityCreditIsCapped(t *testing.T) {
	level := NewRewriteLevel(&rewriteStub{
		reply: `{"rewritten": "找 EP123 「矽谷輕鬆談」 「股癌」 新創 集數"}`,
	}, "llama3.2", 0.7)
	s := &State{Query: QueryContext{
		Original: "有沒有 EP123 「矽谷輕鬆談」 「股癌」 這幾集",
		Tags:     []string{"創業"},
	}}

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.Query.Entities) < 3 {
		t.Fatalf("entities = %v, want tag, episode number and quoted titles", s.Query.Entities)
	}
	// rewrite 0.3 + intent 0.2 + entities capped at 0.2; no domain keyword.
	if conf < 0.7-1e-9 || conf > 0.7+1e-9 {
		t.Errorf("confidence = %f, want 0.7 (entity credit capped)", conf)
	}
}

func TestRewriteLevel_ModelFailureScoresZero(t *testing.T) {
	level := NewRewriteLevel(&rewriteStub{fail: true}, "llama3.2", 0.7)
	s := &State{Query: QueryContext{Original: "推薦投資理財的 podcast"}}

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 0 {
		t.Errorf("confidence = %f, want 0", conf)
	}
}

func TestRewriteLevel_TruncatesOversizedInput(t *testing.T) {
	stub := &rewriteStub{reply: `{"rewritten": "投資理財 podcast"}`}
	level := NewRewriteLevel(stub, "llama3.2", 0.7)

	long := strings.Repeat("長", 5000)
	s := &State{Query: QueryContext{Original: long}}
	if _, err := level.Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}

	sent := strings.TrimPrefix(stub.lastPrompt, "Query: ")
	if got := len([]rune(sent)); got != maxRewriteInput {
		t.Errorf("rewrite input = %d runes, want %d", got, maxRewriteInput)
	}
	// The working query is untouched; only the model input shrinks.
	if s.Query.Original != long {
		t.Error("original query must stay intact")
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := map[string]Intent{
		"推薦幾個節目":    IntentRecommendation,
		"分析這兩家公司的差異": IntentAnalysis,
		"有沒有聊登山的集數":  IntentSearch,
		"今天天氣如何":     IntentGeneral,
	}
	for query, want := range cases {
		if got := classifyIntent(query); got != want {
			t.Errorf("classifyIntent(%q) = %q, want %q", query, got, want)
		}
	}
}
