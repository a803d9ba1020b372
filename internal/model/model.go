// Package model 定义文档问答流水线的核心领域类型。
package model

import "time"

// DocumentStatus 文档生命周期状态。
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentChunking DocumentStatus = "chunking"
	DocumentIndexed  DocumentStatus = "indexed"
	DocumentFailed   DocumentStatus = "failed"
)

// Document 表示一份已摄取的源文档。
type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Domain     string         `json:"domain"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	CharCount  int            `json:"char_count"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk 表示文档的一个可检索片段。
type Chunk struct {
	// ID 在文档内确定性生成：同一文档同一位置的分块 ID 不变。
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Section    string   `json:"section"`
	Keywords   []string `json:"keywords"`
	Importance float64  `json:"importance"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
}

// RetrievalResult 单条检索结果。
type RetrievalResult struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"`
	Semantic float64 `json:"semantic_score"`
	Keyword  float64 `json:"keyword_score"`
}

// ChunkSource 答案引用的来源片段。
type ChunkSource struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Section    string  `json:"section"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
}

// ComplianceStatus 合规性分类结果。
type ComplianceStatus string

const (
	ComplianceCompliant      ComplianceStatus = "compliant"
	ComplianceNonCompliant   ComplianceStatus = "non_compliant"
	ComplianceUnclear        ComplianceStatus = "unclear"
	ComplianceRequiresReview ComplianceStatus = "requires_review"
)

// AnswerRecord 一次问答的完整结果。
type AnswerRecord struct {
	Question    string           `json:"question"`
	Answer      string           `json:"answer"`
	Model       string           `json:"model"`
	Confidence  float64          `json:"confidence"`
	Compliance  ComplianceStatus `json:"compliance,omitempty"`
	Sources     []ChunkSource    `json:"sources"`
	TokensUsed  int              `json:"tokens_used"`
	CostUSD     float64          `json:"cost_usd"`
	LatencyMS   int64            `json:"latency_ms"`
	Failed      bool             `json:"failed"`
	Error       string           `json:"error,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// QuestionState 批处理中单个问题的状态。
type QuestionState string

const (
	QuestionPending      QuestionState = "pending"
	QuestionRetrieving   QuestionState = "retrieving"
	QuestionSynthesizing QuestionState = "synthesizing"
	QuestionCompleted    QuestionState = "completed"
	QuestionFailed       QuestionState = "failed"
)

// QuestionResult 批处理中单个问题的最终结果，Index 为输入序号。
// 多模型对比模式下，同一 Index 会出现多条结果，按 Model 区分。
type QuestionResult struct {
	Index    int           `json:"index"`
	Model    string        `json:"model,omitempty"`
	State    QuestionState `json:"state"`
	Answer   *AnswerRecord `json:"answer,omitempty"`
	Attempts int           `json:"attempts"`
}

// ModelAggregate 多模型对比模式下单个模型的聚合统计。
type ModelAggregate struct {
	Model         string  `json:"model"`
	Questions     int     `json:"questions"`
	Completed     int     `json:"completed"`
	TotalTokens   int     `json:"total_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyMS  int64   `json:"avg_latency_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// SessionStatus 会话状态。
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionPartial   SessionStatus = "partial"
)

// Session 一次批量问答会话及其聚合统计。
type Session struct {
	ID            string                     `json:"id"`
	Status        SessionStatus              `json:"status"`
	Results       []QuestionResult           `json:"results"`
	ModelStats    map[string]*ModelAggregate `json:"model_stats,omitempty"`
	TotalTokens   int                        `json:"total_tokens"`
	TotalCostUSD  float64                    `json:"total_cost_usd"`
	AvgConfidence float64                    `json:"avg_confidence"`
	AvgLatencyMS  int64                      `json:"avg_latency_ms"`
	SuccessRate   float64                    `json:"success_rate"`
	StartedAt     time.Time                  `json:"started_at"`
	FinishedAt    time.Time                  `json:"finished_at"`
}
