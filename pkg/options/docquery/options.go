// Package docquery provides retrieval pipeline configuration options.
package docquery

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docquery/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Store driver names.
const (
	StoreDriverMemory = "memory"
	StoreDriverMilvus = "milvus"
)

// Options contains retrieval pipeline configuration.
type Options struct {
	// ChunkSize 分块目标字符数。
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap 相邻分块的重叠字符数。
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK 相似度检索返回的结果数。
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MinSimilarity 相似度下限，低于该值的结果被丢弃。
	MinSimilarity float64 `json:"min-similarity" mapstructure:"min-similarity"`

	// SemanticWeight 混合检索中语义相似度权重。
	SemanticWeight float64 `json:"semantic-weight" mapstructure:"semantic-weight"`

	// KeywordWeight 混合检索中关键词匹配权重。
	KeywordWeight float64 `json:"keyword-weight" mapstructure:"keyword-weight"`

	// EmbeddingDim 嵌入向量维度。
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// ContextBudget 提示词上下文的最大字符数。
	ContextBudget int `json:"context-budget" mapstructure:"context-budget"`

	// Domain 默认文档领域（insurance, legal, hr, compliance）。
	Domain string `json:"domain" mapstructure:"domain"`

	// MaxParallel 批处理并行模式下的最大并发问题数。
	MaxParallel int `json:"max-parallel" mapstructure:"max-parallel"`

	// MaxAttempts 单个问题的最大尝试次数（含首次）。
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// StoreDriver 向量存储驱动（memory 或 milvus）。
	StoreDriver string `json:"store-driver" mapstructure:"store-driver"`

	// CompareModels 多模型对比时使用的模型列表，空则仅用主模型。
	CompareModels []string `json:"compare-models" mapstructure:"compare-models"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           5,
		MinSimilarity:  0.25,
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		EmbeddingDim:   768, // nomic-embed-text dimension
		ContextBudget:  4000,
		Domain:         "general",
		MaxParallel:    8,
		MaxAttempts:    3,
		StoreDriver:    StoreDriverMemory,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.IntVar(&o.ChunkSize, prefix+"docquery.chunk-size", o.ChunkSize, "Target size of text chunks in characters.")
	fs.IntVar(&o.ChunkOverlap, prefix+"docquery.chunk-overlap", o.ChunkOverlap, "Overlap between adjacent chunks in characters.")
	fs.IntVar(&o.TopK, prefix+"docquery.top-k", o.TopK, "Number of results from similarity search.")
	fs.Float64Var(&o.MinSimilarity, prefix+"docquery.min-similarity", o.MinSimilarity, "Minimum similarity score for retrieved chunks.")
	fs.Float64Var(&o.SemanticWeight, prefix+"docquery.semantic-weight", o.SemanticWeight, "Semantic similarity weight in hybrid scoring.")
	fs.Float64Var(&o.KeywordWeight, prefix+"docquery.keyword-weight", o.KeywordWeight, "Keyword match weight in hybrid scoring.")
	fs.IntVar(&o.EmbeddingDim, prefix+"docquery.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.ContextBudget, prefix+"docquery.context-budget", o.ContextBudget, "Maximum characters of retrieved context in prompts.")
	fs.StringVar(&o.Domain, prefix+"docquery.domain", o.Domain, "Default document domain (insurance, legal, hr, compliance).")
	fs.IntVar(&o.MaxParallel, prefix+"docquery.max-parallel", o.MaxParallel, "Maximum concurrent questions in parallel batch mode.")
	fs.IntVar(&o.MaxAttempts, prefix+"docquery.max-attempts", o.MaxAttempts, "Maximum attempts per question including the first.")
	fs.StringVar(&o.StoreDriver, prefix+"docquery.store-driver", o.StoreDriver, "Vector store driver (memory, milvus).")
	fs.StringSliceVar(&o.CompareModels, prefix+"docquery.compare-models", o.CompareModels, "Models to use for multi-model comparison.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must be non-negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be smaller than chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.MinSimilarity < 0 || o.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("min-similarity must be in [0, 1]"))
	}
	if o.SemanticWeight < 0 || o.KeywordWeight < 0 {
		errs = append(errs, fmt.Errorf("hybrid weights must be non-negative"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.MaxParallel <= 0 {
		errs = append(errs, fmt.Errorf("max-parallel must be positive"))
	}
	if o.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max-attempts must be positive"))
	}
	if o.StoreDriver != StoreDriverMemory && o.StoreDriver != StoreDriverMilvus {
		errs = append(errs, fmt.Errorf("store-driver must be %q or %q", StoreDriverMemory, StoreDriverMilvus))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.Domain == "" {
		o.Domain = "general"
	}
	if o.StoreDriver == "" {
		o.StoreDriver = StoreDriverMemory
	}
	return nil
}
