package biz_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kart-io/docquery/pkg/llm"
)

// stubEmbedder 按文本返回预置向量的测试嵌入器。
type stubEmbedder struct {
	vectors map[string][]float32
	def     []float32
	err     error
	failN   int32 // 前 failN 次调用返回 err，0 表示全部失败
	calls   int32
}

func (e *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	n := atomic.AddInt32(&e.calls, 1)
	if e.err != nil && (e.failN == 0 || n <= e.failN) {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.def, nil
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Name() string { return "stub-embed" }

// stubChat 记录提示词并返回固定内容的测试对话模型。
type stubChat struct {
	reply string
	usage *llm.TokenUsage
	model string

	// failOn 非空时，提示词包含该子串的调用返回 err。
	failOn string
	err    error

	mu      sync.Mutex
	prompts []string
	systems []string
}

func (c *stubChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return c.reply, c.err
}

func (c *stubChat) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.GenerateResponse, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.systems = append(c.systems, systemPrompt)
	c.mu.Unlock()

	if c.err != nil {
		if c.failOn == "" || strings.Contains(prompt, c.failOn) {
			return nil, c.err
		}
	}
	return &llm.GenerateResponse{Content: c.reply, TokenUsage: c.usage}, nil
}

func (c *stubChat) Model() string {
	if c.model != "" {
		return c.model
	}
	return "stub-model"
}

func (c *stubChat) Name() string { return "stub-chat" }

func (c *stubChat) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

func (c *stubChat) lastSystem() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.systems) == 0 {
		return ""
	}
	return c.systems[len(c.systems)-1]
}

var (
	_ llm.EmbeddingProvider = (*stubEmbedder)(nil)
	_ llm.ChatProvider      = (*stubChat)(nil)
)
