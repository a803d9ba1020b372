package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/textutil"
	"github.com/kart-io/docquery/pkg/llm"
)

// sourceExcerptLen 引用来源的最大摘录长度。
const sourceExcerptLen = 200

// maxSources 答案携带的最大来源数。
const maxSources = 3

// fallbackAnswer 生成失败时返回给调用方的答案文本。
const fallbackAnswer = "Unable to generate an answer for this question. The language model request failed; please retry or rephrase the question."

// domainPrompts 按领域选择的系统提示词，未知领域使用 general。
var domainPrompts = map[string]string{
	"insurance": `You are an expert insurance policy analyst with deep knowledge of policy terms,
coverage details, waiting periods, exclusions, claims procedures, and premium calculations.
Analyze the provided policy context and answer precisely. Always cite the specific clauses
that support your answer.`,

	"legal": `You are a senior legal analyst specializing in contract analysis, regulatory
compliance, risk assessment, and liability analysis. Analyze the provided legal context
with precision and give comprehensive answers with proper legal reasoning and citations.`,

	"hr": `You are an HR policy expert with expertise in employment law, HR policies and
procedures, employee rights and benefits, and workplace compliance. Provide clear,
actionable answers about HR policies with proper justification.`,

	"compliance": `You are a compliance officer specializing in regulatory frameworks and
requirements. Analyze the provided compliance context and give detailed assessments
with regulatory grounding.`,

	"general": `You are a careful document analyst. Answer the question strictly from the
provided context. If the context does not contain the answer, say so explicitly.
Cite the sections that support your answer.`,
}

// SynthesizerConfig 答案合成配置。
type SynthesizerConfig struct {
	// ContextBudget 提示词中检索上下文的最大字符数。
	ContextBudget int
}

// Synthesizer 将检索结果和问题合成为有据可依的结构化答案。
type Synthesizer struct {
	config  SynthesizerConfig
	metrics *metrics.PipelineMetrics
}

// NewSynthesizer 创建答案合成器。
func NewSynthesizer(config SynthesizerConfig) *Synthesizer {
	if config.ContextBudget <= 0 {
		config.ContextBudget = 4000
	}
	return &Synthesizer{
		config:  config,
		metrics: metrics.GetPipelineMetrics(),
	}
}

// Synthesize 合成一条答案记录。
// LLM 调用失败不向上传播：返回置信度为 0、带错误标记和
// 兜底答案文本的记录，保证批处理中单个问题的失败被隔离。
func (s *Synthesizer) Synthesize(ctx context.Context, chat llm.ChatProvider, question string, retrieved []model.RetrievalResult, domain string) *model.AnswerRecord {
	start := time.Now()

	prompt := s.buildPrompt(question, retrieved)
	systemPrompt := DomainSystemPrompt(domain)

	record := &model.AnswerRecord{
		Question:    question,
		Model:       chat.Model(),
		Sources:     extractSources(retrieved),
		GeneratedAt: start,
	}

	resp, err := chat.Generate(ctx, prompt, systemPrompt)
	record.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		s.metrics.RecordSynthesis(time.Since(start), 0, 0, err)
		logger.Errorw("answer generation failed",
			"model", chat.Model(),
			"error", err.Error(),
		)
		record.Failed = true
		record.Error = err.Error()
		record.Answer = fallbackAnswer
		record.Compliance = model.ComplianceRequiresReview
		return record
	}

	record.Answer = strings.TrimSpace(resp.Content)
	if resp.TokenUsage != nil {
		record.TokensUsed = resp.TokenUsage.TotalTokens
		record.CostUSD = llm.EstimateCost(chat.Model(), resp.TokenUsage)
	}
	record.Confidence = ConfidenceScore(retrieved, record.Answer, len(record.Sources))
	record.Compliance = ClassifyCompliance(record.Answer)
	s.metrics.RecordSynthesis(time.Since(start), record.TokensUsed, record.CostUSD, nil)

	return record
}

// buildPrompt 按排名拼接检索上下文直到预算耗尽。
// 超出预算的分块从尾部整块丢弃，不做块内截断。
func (s *Synthesizer) buildPrompt(question string, retrieved []model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Based on the provided document context, answer the following question.\n\n")
	b.WriteString("QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nDOCUMENT CONTEXT:\n")

	used := 0
	for i, r := range retrieved {
		block := fmt.Sprintf("[Source %d | section: %s | relevance: %.2f]\n%s\n\n",
			i+1, r.Chunk.Section, r.Score, r.Chunk.Text)
		if used+len([]rune(block)) > s.config.ContextBudget && used > 0 {
			break
		}
		b.WriteString(block)
		used += len([]rune(block))
	}

	b.WriteString("Requirements:\n")
	b.WriteString("1. Be precise and factual; only use information from the provided context.\n")
	b.WriteString("2. If the information is not available in the context, state this clearly.\n")
	b.WriteString("3. Cite the source numbers that support your statements.\n\nAnswer:")
	return b.String()
}

// DomainSystemPrompt 返回领域系统提示词，未知领域回退到 general。
func DomainSystemPrompt(domain string) string {
	if p, ok := domainPrompts[strings.ToLower(domain)]; ok {
		return p
	}
	return domainPrompts["general"]
}

// ConfidenceScore 从检索信号和答案形态推导置信度，范围 [0, 1]。
// 加权因子：检索数量（上限 5）0.3、平均相似度 0.3、
// 答案长度（上限 500 字符）0.2、引用来源数（上限 3）0.2。
func ConfidenceScore(retrieved []model.RetrievalResult, answer string, citations int) float64 {
	countFactor := float64(len(retrieved)) / 5
	if countFactor > 1 {
		countFactor = 1
	}

	var meanScore float64
	if len(retrieved) > 0 {
		for _, r := range retrieved {
			meanScore += r.Score
		}
		meanScore /= float64(len(retrieved))
	}
	if meanScore > 1 {
		meanScore = 1
	}
	if meanScore < 0 {
		meanScore = 0
	}

	lengthFactor := float64(len([]rune(answer))) / 500
	if lengthFactor > 1 {
		lengthFactor = 1
	}

	citationFactor := float64(citations) / 3
	if citationFactor > 1 {
		citationFactor = 1
	}

	confidence := countFactor*0.3 + meanScore*0.3 + lengthFactor*0.2 + citationFactor*0.2
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// 合规分类的规则词表，按优先级顺序评估。
var (
	nonCompliantMarkers = []string{"not covered", "excluded", "exclusion applies", "is not permitted", "violates", "non-compliant", "not compliant", "prohibited"}
	unclearMarkers      = []string{"not available in the context", "cannot determine", "unclear", "insufficient information", "not specified", "does not contain"}
	reviewMarkers       = []string{"requires review", "consult", "legal advice", "subject to approval", "may vary", "risk"}
)

// ClassifyCompliance 基于答案文本的确定性合规分类。
// 排除/否定措辞优先于含糊措辞，含糊措辞优先于风险提示，
// 均未命中时视为 compliant。
func ClassifyCompliance(answer string) model.ComplianceStatus {
	lower := strings.ToLower(answer)

	for _, m := range nonCompliantMarkers {
		if strings.Contains(lower, m) {
			return model.ComplianceNonCompliant
		}
	}
	for _, m := range unclearMarkers {
		if strings.Contains(lower, m) {
			return model.ComplianceUnclear
		}
	}
	for _, m := range reviewMarkers {
		if strings.Contains(lower, m) {
			return model.ComplianceRequiresReview
		}
	}
	return model.ComplianceCompliant
}

// extractSources 从排名靠前的检索结果提取引用来源。
func extractSources(retrieved []model.RetrievalResult) []model.ChunkSource {
	n := len(retrieved)
	if n > maxSources {
		n = maxSources
	}

	sources := make([]model.ChunkSource, 0, n)
	for _, r := range retrieved[:n] {
		sources = append(sources, model.ChunkSource{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Section:    r.Chunk.Section,
			Score:      r.Score,
			Excerpt:    textutil.TruncateString(textutil.CollapseWhitespace(r.Chunk.Text), sourceExcerptLen),
		})
	}
	return sources
}
