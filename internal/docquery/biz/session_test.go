package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/errors"
	"github.com/kart-io/docquery/pkg/llm"
)

func newTestOrchestrator(t *testing.T, emb *stubEmbedder, chats map[string]llm.ChatProvider, defModel string) *biz.Orchestrator {
	t.Helper()
	ms, err := store.NewMemoryStore(3)
	require.NoError(t, err)
	chunks := []model.Chunk{
		{ID: "a", DocumentID: "doc1", Index: 0, Section: "coverage", Text: "dental treatment is covered"},
		{ID: "b", DocumentID: "doc1", Index: 1, Section: "premium", Text: "premium is payable annually"},
	}
	require.NoError(t, ms.Upsert(context.Background(), chunks, [][]float32{{1, 0, 0}, {0, 1, 0}}))

	r, err := biz.NewRetriever(emb, ms, biz.RetrieverConfig{TopK: 5})
	require.NoError(t, err)
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{ContextBudget: 4000})

	return biz.NewOrchestrator(r, synth, chats, defModel, nil, biz.OrchestratorConfig{
		MaxParallel:       4,
		MaxAttempts:       2,
		RetryInitialDelay: time.Millisecond,
	})
}

func defaultChats(chat llm.ChatProvider) map[string]llm.ChatProvider {
	return map[string]llm.ChatProvider{"stub-model": chat}
}

func TestRunBatchFallsBackToDefaultDomain(t *testing.T) {
	ms, err := store.NewMemoryStore(3)
	require.NoError(t, err)
	chunks := []model.Chunk{
		{ID: "a", DocumentID: "doc1", Index: 0, Section: "terms", Text: "termination requires thirty days notice"},
	}
	require.NoError(t, ms.Upsert(context.Background(), chunks, [][]float32{{1, 0, 0}}))

	r, err := biz.NewRetriever(&stubEmbedder{def: []float32{1, 0, 0}}, ms, biz.RetrieverConfig{TopK: 5})
	require.NoError(t, err)
	synth := biz.NewSynthesizer(biz.SynthesizerConfig{ContextBudget: 4000})

	chat := &stubChat{reply: "Thirty days notice is required."}
	o := biz.NewOrchestrator(r, synth, defaultChats(chat), "stub-model", nil, biz.OrchestratorConfig{
		MaxParallel:       4,
		MaxAttempts:       2,
		RetryInitialDelay: time.Millisecond,
		DefaultDomain:     "legal",
	})

	// 未指定领域时使用配置的默认领域
	session := o.RunBatch(context.Background(), []string{"what is the notice period?"}, &biz.BatchOptions{})
	require.Len(t, session.Results, 1)
	assert.Equal(t, biz.DomainSystemPrompt("legal"), chat.lastSystem())

	// 请求显式给出的领域优先于默认领域
	o.RunBatch(context.Background(), []string{"what is the notice period?"}, &biz.BatchOptions{Domain: "hr"})
	assert.Equal(t, biz.DomainSystemPrompt("hr"), chat.lastSystem())
}

func TestRunBatchSequential(t *testing.T) {
	chat := &stubChat{
		reply: "The answer is yes.",
		usage: &llm.TokenUsage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
	}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, defaultChats(chat), "stub-model")

	session := o.RunBatch(context.Background(), []string{"q one", "q two"}, &biz.BatchOptions{Domain: "insurance"})
	require.NotNil(t, session)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, model.SessionCompleted, session.Status)
	require.Len(t, session.Results, 2)

	for i, r := range session.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, model.QuestionCompleted, r.State)
		require.NotNil(t, r.Answer)
		assert.False(t, r.Answer.Failed)
		assert.Equal(t, 1, r.Attempts)
	}

	assert.Equal(t, 200, session.TotalTokens)
	assert.Equal(t, 1.0, session.SuccessRate)
	assert.Greater(t, session.AvgConfidence, 0.0)
	assert.Nil(t, session.ModelStats)
	assert.False(t, session.FinishedAt.Before(session.StartedAt))
}

func TestRunBatchParallelPreservesOrder(t *testing.T) {
	chat := &stubChat{reply: "ok", usage: &llm.TokenUsage{TotalTokens: 10}}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, defaultChats(chat), "stub-model")

	questions := []string{"q0", "q1", "q2", "q3", "q4", "q5", "q6", "q7"}
	session := o.RunBatch(context.Background(), questions, &biz.BatchOptions{Parallel: true})

	require.Len(t, session.Results, len(questions))
	for i, r := range session.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, model.QuestionCompleted, r.State)
	}
	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.Equal(t, 1.0, session.SuccessRate)
}

func TestRunBatchPartialFailureIsolation(t *testing.T) {
	chat := &stubChat{
		reply:  "fine",
		usage:  &llm.TokenUsage{TotalTokens: 10},
		failOn: "q middle",
		err:    errors.Generationf("model unavailable"),
	}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, defaultChats(chat), "stub-model")

	session := o.RunBatch(context.Background(), []string{"q first", "q middle", "q last"}, nil)
	require.Len(t, session.Results, 3)

	assert.Equal(t, model.QuestionCompleted, session.Results[0].State)
	assert.Equal(t, model.QuestionFailed, session.Results[1].State)
	assert.Equal(t, model.QuestionCompleted, session.Results[2].State)

	// 失败的问题仍然携带兜底答案记录
	require.NotNil(t, session.Results[1].Answer)
	assert.True(t, session.Results[1].Answer.Failed)
	assert.Equal(t, 0.0, session.Results[1].Answer.Confidence)

	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.InDelta(t, 2.0/3.0, session.SuccessRate, 0.001)
}

func TestRunBatchCancellationReturnsPartial(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, defaultChats(chat), "stub-model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := o.RunBatch(ctx, []string{"q one", "q two"}, nil)
	require.NotNil(t, session)

	assert.Equal(t, model.SessionPartial, session.Status)
	for _, r := range session.Results {
		assert.Equal(t, model.QuestionPending, r.State)
		assert.Nil(t, r.Answer)
	}
	assert.Zero(t, session.SuccessRate)
}

func TestRunBatchRetriesRetrievalFailures(t *testing.T) {
	// 第一次嵌入失败，重试后成功
	emb := &stubEmbedder{
		def:   []float32{1, 0, 0},
		err:   errors.Embeddingf("transient"),
		failN: 1,
	}
	chat := &stubChat{reply: "ok"}
	o := newTestOrchestrator(t, emb, defaultChats(chat), "stub-model")

	session := o.RunBatch(context.Background(), []string{"q"}, nil)
	require.Len(t, session.Results, 1)

	assert.Equal(t, model.QuestionCompleted, session.Results[0].State)
	assert.Equal(t, 2, session.Results[0].Attempts)
}

func TestRunBatchRetrievalExhaustionFailsQuestion(t *testing.T) {
	emb := &stubEmbedder{err: errors.Embeddingf("backend down")}
	chat := &stubChat{reply: "ok"}
	o := newTestOrchestrator(t, emb, defaultChats(chat), "stub-model")

	session := o.RunBatch(context.Background(), []string{"q"}, nil)
	require.Len(t, session.Results, 1)

	r := session.Results[0]
	assert.Equal(t, model.QuestionFailed, r.State)
	assert.Equal(t, 2, r.Attempts)
	require.NotNil(t, r.Answer)
	assert.True(t, r.Answer.Failed)
	assert.NotEmpty(t, r.Answer.Error)
}

func TestRunBatchMultiModelComparison(t *testing.T) {
	fast := &stubChat{reply: "short", model: "fast-model", usage: &llm.TokenUsage{TotalTokens: 5}}
	smart := &stubChat{reply: "a much longer and more detailed answer text", model: "smart-model", usage: &llm.TokenUsage{TotalTokens: 50}}
	chats := map[string]llm.ChatProvider{"fast-model": fast, "smart-model": smart}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, chats, "fast-model")

	session := o.RunBatch(context.Background(), []string{"q one", "q two"}, &biz.BatchOptions{
		Models: []string{"fast-model", "smart-model"},
	})

	// 每个问题 × 每个模型各一条结果，问题序相邻
	require.Len(t, session.Results, 4)
	assert.Equal(t, 0, session.Results[0].Index)
	assert.Equal(t, "fast-model", session.Results[0].Model)
	assert.Equal(t, 0, session.Results[1].Index)
	assert.Equal(t, "smart-model", session.Results[1].Model)
	assert.Equal(t, 1, session.Results[2].Index)
	assert.Equal(t, 1, session.Results[3].Index)

	require.NotNil(t, session.ModelStats)
	require.Contains(t, session.ModelStats, "fast-model")
	require.Contains(t, session.ModelStats, "smart-model")

	fastStats := session.ModelStats["fast-model"]
	assert.Equal(t, 2, fastStats.Questions)
	assert.Equal(t, 2, fastStats.Completed)
	assert.Equal(t, 10, fastStats.TotalTokens)
	assert.Equal(t, 1.0, fastStats.SuccessRate)

	smartStats := session.ModelStats["smart-model"]
	assert.Equal(t, 100, smartStats.TotalTokens)

	assert.Equal(t, 110, session.TotalTokens)
}

func TestRunBatchUnknownModelFailsQuestion(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	o := newTestOrchestrator(t, &stubEmbedder{def: []float32{1, 0, 0}}, defaultChats(chat), "stub-model")

	session := o.RunBatch(context.Background(), []string{"q"}, &biz.BatchOptions{
		Models: []string{"no-such-model"},
	})
	require.Len(t, session.Results, 1)

	r := session.Results[0]
	assert.Equal(t, model.QuestionFailed, r.State)
	require.NotNil(t, r.Answer)
	assert.True(t, r.Answer.Failed)
	assert.Contains(t, r.Answer.Error, "unknown model")
}
