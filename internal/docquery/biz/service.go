package biz

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/errors"
	"github.com/kart-io/docquery/pkg/llm"
)

// Service 定义文档问答服务接口。
type Service interface {
	// ProcessDocument 摄取并索引一份文档。
	ProcessDocument(ctx context.Context, name, domain, text string) (*model.Document, error)
	// Ask 以批处理会话回答一组问题。
	Ask(ctx context.Context, questions []string, opts *BatchOptions) (*model.Session, error)
	// Search 直接执行检索，不做答案合成。
	Search(ctx context.Context, req *RetrieveRequest) ([]model.RetrievalResult, error)
	// GetDocument 按 ID 查询文档元信息。
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	// ListDocuments 按创建顺序列出全部文档。
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	// DeleteDocument 删除文档及其索引内容。
	DeleteDocument(ctx context.Context, documentID string) error
	// GetStats 获取服务统计信息。
	GetStats(ctx context.Context) (map[string]any, error)
}

// QAService 组合 Indexer、Retriever、Synthesizer 与 Orchestrator
// 提供完整的文档问答服务。
type QAService struct {
	indexer      *Indexer
	retriever    *Retriever
	orchestrator *Orchestrator
	cache        *AnswerCache
	store        store.VectorStore
	embedder     llm.EmbeddingProvider
	metrics      *metrics.PipelineMetrics

	// 文档注册表：按 ID 保存摄取过的文档元信息。
	mu   sync.RWMutex
	docs map[string]*model.Document
}

// NewQAService 创建文档问答服务实例。
func NewQAService(
	indexer *Indexer,
	retriever *Retriever,
	orchestrator *Orchestrator,
	cache *AnswerCache,
	vectorStore store.VectorStore,
	embedder llm.EmbeddingProvider,
) *QAService {
	return &QAService{
		indexer:      indexer,
		retriever:    retriever,
		orchestrator: orchestrator,
		cache:        cache,
		store:        vectorStore,
		embedder:     embedder,
		metrics:      metrics.GetPipelineMetrics(),
		docs:         make(map[string]*model.Document),
	}
}

// ProcessDocument 摄取并索引一份文档。
// 索引失败的文档也会进入注册表，状态为 failed。
func (s *QAService) ProcessDocument(ctx context.Context, name, domain, text string) (*model.Document, error) {
	doc, _, err := s.indexer.ProcessDocument(ctx, name, domain, text)
	if doc != nil {
		s.mu.Lock()
		s.docs[doc.ID] = doc
		s.mu.Unlock()
	}
	return doc, err
}

// Ask 以批处理会话回答一组问题。
func (s *QAService) Ask(ctx context.Context, questions []string, opts *BatchOptions) (*model.Session, error) {
	if len(questions) == 0 {
		return nil, errors.Configurationf("at least one question is required")
	}
	return s.orchestrator.RunBatch(ctx, questions, opts), nil
}

// Search 直接执行检索，不做答案合成。
func (s *QAService) Search(ctx context.Context, req *RetrieveRequest) ([]model.RetrievalResult, error) {
	if req == nil || req.Question == "" {
		return nil, errors.Configurationf("search query is required")
	}
	return s.retriever.Retrieve(ctx, req)
}

// GetDocument 按 ID 查询文档元信息。
func (s *QAService) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Configurationf("document %q not found", documentID)
	}
	return doc, nil
}

// ListDocuments 按创建顺序列出全部文档。
func (s *QAService) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	s.mu.RLock()
	docs := make([]*model.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteDocument 删除文档及其索引内容。
func (s *QAService) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	_, ok := s.docs[documentID]
	delete(s.docs, documentID)
	s.mu.Unlock()
	if !ok {
		return errors.Configurationf("document %q not found", documentID)
	}
	return s.indexer.DeleteDocument(ctx, documentID)
}

// GetStats 获取服务统计信息。
func (s *QAService) GetStats(ctx context.Context) (map[string]any, error) {
	chunkCount, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	docCount := len(s.docs)
	s.mu.RUnlock()

	stats := map[string]any{
		"documents":      docCount,
		"chunks":         chunkCount,
		"embed_provider": s.embedder.Name(),
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.GetStats(ctx); err == nil {
			stats["cache"] = cacheStats
		}
	}

	stats["metrics"] = s.metrics.Stats()
	return stats, nil
}

// 确保 QAService 实现了 Service 接口。
var _ Service = (*QAService)(nil)
