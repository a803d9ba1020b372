package llm

import "sync"

// ModelSpec 描述一个对话模型的计费与供应商信息。
type ModelSpec struct {
	// Provider 该模型所属的供应商名称。
	Provider string
	// PromptCostPer1K 每 1000 个 prompt token 的美元价格。
	PromptCostPer1K float64
	// CompletionCostPer1K 每 1000 个 completion token 的美元价格。
	CompletionCostPer1K float64
}

var (
	modelMu sync.RWMutex

	// modelSpecs 已知模型的计费表。未知模型按零成本计（本地模型）。
	modelSpecs = map[string]ModelSpec{
		"gpt-4o":         {Provider: "openai", PromptCostPer1K: 0.0025, CompletionCostPer1K: 0.01},
		"gpt-4o-mini":    {Provider: "openai", PromptCostPer1K: 0.00015, CompletionCostPer1K: 0.0006},
		"gpt-4-turbo":    {Provider: "openai", PromptCostPer1K: 0.01, CompletionCostPer1K: 0.03},
		"gpt-3.5-turbo":  {Provider: "openai", PromptCostPer1K: 0.0005, CompletionCostPer1K: 0.0015},
		"deepseek-chat":  {Provider: "deepseek", PromptCostPer1K: 0.00027, CompletionCostPer1K: 0.0011},
		"deepseek-coder": {Provider: "deepseek", PromptCostPer1K: 0.00027, CompletionCostPer1K: 0.0011},
	}
)

// RegisterModel 注册或覆盖一个模型的计费信息。
func RegisterModel(model string, spec ModelSpec) {
	modelMu.Lock()
	defer modelMu.Unlock()
	modelSpecs[model] = spec
}

// LookupModel 返回模型的计费信息，未知模型返回 ok=false。
func LookupModel(model string) (ModelSpec, bool) {
	modelMu.RLock()
	defer modelMu.RUnlock()
	spec, ok := modelSpecs[model]
	return spec, ok
}

// EstimateCost 根据 token 用量估算一次生成的美元成本。
// usage 为 nil 或模型未注册时返回 0（本地模型按零成本计）。
func EstimateCost(model string, usage *TokenUsage) float64 {
	if usage == nil {
		return 0
	}

	modelMu.RLock()
	spec, ok := modelSpecs[model]
	modelMu.RUnlock()
	if !ok {
		return 0
	}

	promptCost := float64(usage.PromptTokens) / 1000 * spec.PromptCostPer1K
	completionCost := float64(usage.CompletionTokens) / 1000 * spec.CompletionCostPer1K
	return promptCost + completionCost
}
