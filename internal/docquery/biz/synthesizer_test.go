package biz_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/errors"
	"github.com/kart-io/docquery/pkg/llm"
)

func retrievedFixture(n int, score float64) []model.RetrievalResult {
	results := make([]model.RetrievalResult, n)
	for i := range results {
		results[i] = model.RetrievalResult{
			Chunk: model.Chunk{
				ID:         "c" + string(rune('a'+i)),
				DocumentID: "doc1",
				Index:      i,
				Section:    "coverage",
				Text:       "chunk text number " + string(rune('a'+i)),
			},
			Score: score,
		}
	}
	return results
}

func TestDomainSystemPrompt(t *testing.T) {
	assert.Contains(t, biz.DomainSystemPrompt("insurance"), "insurance policy analyst")
	assert.Contains(t, biz.DomainSystemPrompt("legal"), "legal analyst")
	assert.Contains(t, biz.DomainSystemPrompt("hr"), "HR policy expert")
	assert.Contains(t, biz.DomainSystemPrompt("compliance"), "compliance officer")

	// 未知领域回退到 general，不报错
	assert.Equal(t, biz.DomainSystemPrompt("general"), biz.DomainSystemPrompt("astrology"))
	assert.Equal(t, biz.DomainSystemPrompt("general"), biz.DomainSystemPrompt(""))
	// 大小写不敏感
	assert.Equal(t, biz.DomainSystemPrompt("legal"), biz.DomainSystemPrompt("Legal"))
}

func TestConfidenceScore(t *testing.T) {
	// 没有任何信号时为 0
	assert.Equal(t, 0.0, biz.ConfidenceScore(nil, "", 0))

	// 全部因子饱和时为 1
	full := biz.ConfidenceScore(retrievedFixture(5, 1.0), strings.Repeat("a", 500), 3)
	assert.InDelta(t, 1.0, full, 0.001)

	// 部分因子：2 条检索、均分 0.8、250 字符答案、1 个引用
	partial := biz.ConfidenceScore(retrievedFixture(2, 0.8), strings.Repeat("a", 250), 1)
	want := (2.0/5)*0.3 + 0.8*0.3 + 0.5*0.2 + (1.0/3)*0.2
	assert.InDelta(t, want, partial, 0.001)

	// 因子超过上限后封顶
	over := biz.ConfidenceScore(retrievedFixture(10, 1.0), strings.Repeat("a", 2000), 9)
	assert.InDelta(t, 1.0, over, 0.001)
}

func TestClassifyCompliance(t *testing.T) {
	tests := []struct {
		answer string
		want   model.ComplianceStatus
	}{
		{"Pre-existing conditions are not covered under this policy.", model.ComplianceNonCompliant},
		{"This activity is excluded by clause 4.2.", model.ComplianceNonCompliant},
		{"The requested information is not available in the context.", model.ComplianceUnclear},
		{"We cannot determine the answer from the provided documents.", model.ComplianceUnclear},
		{"Please consult a qualified advisor before proceeding.", model.ComplianceRequiresReview},
		{"This arrangement carries significant risk.", model.ComplianceRequiresReview},
		{"Yes, dental treatment is included after the waiting period.", model.ComplianceCompliant},
		// 排除措辞优先于含糊措辞
		{"This is excluded, although details are unclear.", model.ComplianceNonCompliant},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, biz.ClassifyCompliance(tt.answer), "answer: %s", tt.answer)
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	chat := &stubChat{
		reply: "Dental treatment is covered after a 90-day waiting period, per Source 1.",
		usage: &llm.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		model: "gpt-4o-mini",
	}
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{ContextBudget: 4000})

	record := synth.Synthesize(context.Background(), chat, "Is dental covered?", retrievedFixture(3, 0.9), "insurance")
	require.NotNil(t, record)

	assert.False(t, record.Failed)
	assert.Equal(t, "Is dental covered?", record.Question)
	assert.Equal(t, "gpt-4o-mini", record.Model)
	assert.Equal(t, chat.reply, record.Answer)
	assert.Equal(t, 150, record.TokensUsed)
	assert.Greater(t, record.CostUSD, 0.0)
	assert.Len(t, record.Sources, 3)
	assert.Greater(t, record.Confidence, 0.0)
	assert.LessOrEqual(t, record.Confidence, 1.0)
	assert.Equal(t, model.ComplianceCompliant, record.Compliance)

	// 系统提示词按领域选择
	assert.Contains(t, chat.systems[0], "insurance policy analyst")
	// 提示词包含问题与上下文
	assert.Contains(t, chat.lastPrompt(), "Is dental covered?")
	assert.Contains(t, chat.lastPrompt(), "chunk text number a")
}

func TestSynthesizeLLMFailureReturnsFallback(t *testing.T) {
	chat := &stubChat{err: errors.Generationf("model unavailable")}
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{ContextBudget: 4000})

	record := synth.Synthesize(context.Background(), chat, "q", retrievedFixture(2, 0.8), "legal")
	require.NotNil(t, record)

	assert.True(t, record.Failed)
	assert.Equal(t, 0.0, record.Confidence)
	assert.NotEmpty(t, record.Answer)
	assert.NotEmpty(t, record.Error)
	assert.Equal(t, model.ComplianceRequiresReview, record.Compliance)
	// 来源仍然记录，便于排查
	assert.Len(t, record.Sources, 2)
}

func TestSynthesizeContextBudget(t *testing.T) {
	retrieved := []model.RetrievalResult{
		{Chunk: model.Chunk{ID: "first", DocumentID: "d", Section: "terms", Text: strings.Repeat("first ", 30)}, Score: 0.9},
		{Chunk: model.Chunk{ID: "second", DocumentID: "d", Section: "terms", Text: strings.Repeat("second ", 200)}, Score: 0.8},
	}
	chat := &stubChat{reply: "ok"}
	// 预算只够第一个分块；第二个整块被丢弃
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{ContextBudget: 400})

	record := synth.Synthesize(context.Background(), chat, "q", retrieved, "general")
	require.False(t, record.Failed)

	prompt := chat.lastPrompt()
	assert.Contains(t, prompt, "first first")
	assert.NotContains(t, prompt, "second second")
}

func TestSynthesizeSourceExcerptTruncated(t *testing.T) {
	long := strings.Repeat("policy terms ", 100)
	retrieved := []model.RetrievalResult{
		{Chunk: model.Chunk{ID: "a", DocumentID: "d", Section: "terms", Text: long}, Score: 0.9},
	}
	chat := &stubChat{reply: "ok"}
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{})

	record := synth.Synthesize(context.Background(), chat, "q", retrieved, "general")
	require.Len(t, record.Sources, 1)
	assert.LessOrEqual(t, len([]rune(record.Sources[0].Excerpt)), 200)
	assert.Equal(t, "a", record.Sources[0].ChunkID)
	assert.Equal(t, 0.9, record.Sources[0].Score)
}
