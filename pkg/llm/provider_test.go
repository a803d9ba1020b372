package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	model string
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "ok", nil
}

func (f *fakeProvider) Generate(_ context.Context, _ string, _ string) (*GenerateResponse, error) {
	return &GenerateResponse{
		Content:    "ok",
		TokenUsage: &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeProvider) Model() string { return f.model }
func (f *fakeProvider) Name() string  { return f.name }

func TestProviderRegistry(t *testing.T) {
	RegisterProvider("fake-full", func(_ map[string]any) (Provider, error) {
		return &fakeProvider{name: "fake-full", model: "fake-1"}, nil
	})

	p, err := NewProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-full", p.Name())

	// 完整供应商同时可作为 Embedding 和 Chat 供应商解析
	ep, err := NewEmbeddingProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-full", ep.Name())

	cp, err := NewChatProvider("fake-full", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake-1", cp.Model())
}

func TestDedicatedFactoryTakesPrecedence(t *testing.T) {
	RegisterProvider("fake-dual", func(_ map[string]any) (Provider, error) {
		return &fakeProvider{name: "full", model: "m"}, nil
	})
	RegisterEmbeddingProvider("fake-dual", func(_ map[string]any) (EmbeddingProvider, error) {
		return &fakeProvider{name: "dedicated", model: "m"}, nil
	})

	ep, err := NewEmbeddingProvider("fake-dual", nil)
	require.NoError(t, err)
	assert.Equal(t, "dedicated", ep.Name())
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("no-such-provider", nil)
	assert.Error(t, err)

	_, err = NewEmbeddingProvider("no-such-provider", nil)
	assert.Error(t, err)

	_, err = NewChatProvider("no-such-provider", nil)
	assert.Error(t, err)
}

func TestEstimateCost(t *testing.T) {
	usage := &TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}

	cost := EstimateCost("gpt-4o-mini", usage)
	assert.InDelta(t, 0.00015+0.0006, cost, 1e-9)

	// 未注册模型按本地模型零成本计
	assert.Zero(t, EstimateCost("llama3", usage))
	assert.Zero(t, EstimateCost("gpt-4o", nil))
}

func TestRegisterModel(t *testing.T) {
	RegisterModel("custom-model", ModelSpec{
		Provider:            "custom",
		PromptCostPer1K:     0.001,
		CompletionCostPer1K: 0.002,
	})

	spec, ok := LookupModel("custom-model")
	require.True(t, ok)
	assert.Equal(t, "custom", spec.Provider)

	cost := EstimateCost("custom-model", &TokenUsage{PromptTokens: 500, CompletionTokens: 500})
	assert.InDelta(t, 0.0005+0.001, cost, 1e-9)
}
