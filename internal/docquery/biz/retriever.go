package biz

import (
	"context"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/textutil"
	"github.com/kart-io/docquery/pkg/errors"
	"github.com/kart-io/docquery/pkg/llm"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 默认返回结果数。
	TopK int
	// MinSimilarity 结果分数下限，低于该值的候选被丢弃。
	MinSimilarity float64
	// SemanticWeight 混合打分中语义相似度权重。
	SemanticWeight float64
	// KeywordWeight 混合打分中关键词命中权重。
	// 两权重之和不得超过 1。
	KeywordWeight float64
}

// RetrieveRequest 一次检索请求。
type RetrieveRequest struct {
	// Question 查询文本。
	Question string
	// TopK 返回结果数，0 表示使用配置默认值。
	TopK int
	// Filter 元数据过滤条件，nil 表示不过滤。
	Filter *store.Filter
	// Keywords 混合模式的关键词列表，空则从查询文本提取。
	Keywords []string
	// Hybrid 是否启用混合打分。
	Hybrid bool
	// EmbeddingOptional 嵌入失败时是否降级为纯关键词检索。
	// 仅在 Hybrid 为 true 且存储支持全量扫描时生效。
	EmbeddingOptional bool
}

// Scanner 支持按过滤条件全量扫描的存储。
// 纯关键词降级检索依赖该能力，Milvus 驱动不提供。
type Scanner interface {
	Scan(ctx context.Context, filter *store.Filter) ([]model.Chunk, error)
}

// Retriever 编排查询嵌入、向量检索和混合重排。
type Retriever struct {
	embedder llm.EmbeddingProvider
	vs       store.VectorStore
	config   RetrieverConfig
}

// NewRetriever 创建检索器。权重之和超过 1 视为配置错误。
func NewRetriever(embedder llm.EmbeddingProvider, vs store.VectorStore, config RetrieverConfig) (*Retriever, error) {
	if config.TopK <= 0 {
		return nil, errors.Configurationf("retriever top-k must be positive, got %d", config.TopK)
	}
	if config.SemanticWeight < 0 || config.KeywordWeight < 0 {
		return nil, errors.Configurationf("hybrid weights must be non-negative")
	}
	if config.SemanticWeight+config.KeywordWeight > 1 {
		return nil, errors.Configurationf("hybrid weights sum %.2f exceeds 1",
			config.SemanticWeight+config.KeywordWeight)
	}
	return &Retriever{
		embedder: embedder,
		vs:       vs,
		config:   config,
	}, nil
}

// Retrieve 执行检索，结果按综合分数降序且排序稳定。
// 嵌入失败时整体失败，除非请求显式启用了嵌入可选降级。
func (r *Retriever) Retrieve(ctx context.Context, req *RetrieveRequest) ([]model.RetrievalResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.config.TopK
	}

	keywords := req.Keywords
	if req.Hybrid && len(keywords) == 0 {
		keywords = textutil.Tokenize(req.Question)
	}

	vector, err := r.embedder.EmbedSingle(ctx, req.Question)
	if err != nil {
		if req.Hybrid && req.EmbeddingOptional {
			logger.Warnw("query embedding failed, falling back to keyword-only retrieval",
				"error", err.Error(),
			)
			metrics.GetPipelineMetrics().RecordRetrievalFallback()
			return r.keywordOnly(ctx, req, keywords, topK)
		}
		return nil, errors.Embeddingf("failed to embed query: %v", err)
	}

	scored, err := r.vs.Query(ctx, vector, topK, req.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]model.RetrievalResult, 0, len(scored))
	for _, sc := range scored {
		semantic := textutil.NormalizeCosineSimilarity(sc.Score)
		result := model.RetrievalResult{
			Chunk:    sc.Chunk,
			Semantic: semantic,
			Score:    semantic,
		}
		if req.Hybrid {
			result.Keyword = keywordIndicator(&sc.Chunk, keywords)
			result.Score = r.config.SemanticWeight*semantic + r.config.KeywordWeight*result.Keyword
		}
		if result.Score < r.config.MinSimilarity {
			continue
		}
		results = append(results, result)
	}

	if req.Hybrid {
		// 存储已按语义分数排序，这里按综合分数稳定重排
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}

	return results, nil
}

// keywordOnly 纯关键词检索降级路径。
func (r *Retriever) keywordOnly(ctx context.Context, req *RetrieveRequest, keywords []string, topK int) ([]model.RetrievalResult, error) {
	scanner, ok := r.vs.(Scanner)
	if !ok {
		return nil, errors.Embeddingf("keyword-only fallback not supported by this vector store")
	}

	chunks, err := scanner.Scan(ctx, req.Filter)
	if err != nil {
		return nil, err
	}

	var results []model.RetrievalResult
	for _, c := range chunks {
		c := c
		indicator := keywordIndicator(&c, keywords)
		if indicator == 0 {
			continue
		}
		score := r.config.KeywordWeight * indicator
		if score < r.config.MinSimilarity {
			continue
		}
		results = append(results, model.RetrievalResult{
			Chunk:   c,
			Keyword: indicator,
			Score:   score,
		})
	}

	// 同分按分块插入顺序（文档 ID、序号）保证确定性
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.DocumentID != results[j].Chunk.DocumentID {
			return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// keywordIndicator 关键词命中指示：任一关键词以不区分大小写的
// 子串形式出现在分块文本或其关键词集中即为 1，否则为 0。
func keywordIndicator(c *model.Chunk, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	text := strings.ToLower(c.Text)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return 1
		}
		for _, ck := range c.Keywords {
			if strings.Contains(strings.ToLower(ck), kw) {
				return 1
			}
		}
	}
	return 0
}
