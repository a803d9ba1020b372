package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/chunker"
	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/docquery/pkg/utils/id"
)

// embedBatchSize 单次嵌入请求携带的最大分块数。
// 超出时按批拆分并通过索引池并发嵌入。
const embedBatchSize = 32

// Indexer 负责文档摄取：分块、嵌入、写入向量存储。
type Indexer struct {
	chunker  *chunker.Chunker
	embedder llm.EmbeddingProvider
	vs       store.VectorStore
	dim      int
	metrics  *metrics.PipelineMetrics
}

// NewIndexer 创建文档索引器。
func NewIndexer(c *chunker.Chunker, embedder llm.EmbeddingProvider, vs store.VectorStore, dim int) *Indexer {
	return &Indexer{
		chunker:  c,
		embedder: embedder,
		vs:       vs,
		dim:      dim,
		metrics:  metrics.GetPipelineMetrics(),
	}
}

// ProcessDocument 摄取一份文档并返回其元信息和分块。
// 任一阶段失败时文档状态为 failed 并携带错误信息，
// 已有索引内容不受影响（写入是最后一步且整批执行）。
func (i *Indexer) ProcessDocument(ctx context.Context, name, domain, text string) (*model.Document, []model.Chunk, error) {
	now := time.Now()
	doc := &model.Document{
		ID:        id.NewULID(),
		Name:      name,
		Domain:    domain,
		Status:    model.DocumentPending,
		CharCount: len([]rune(text)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc.Status = model.DocumentChunking
	chunks := i.chunker.Split(doc.ID, text)
	if len(chunks) == 0 {
		doc.Status = model.DocumentFailed
		doc.Error = "document has no indexable content"
		return doc, nil, nil
	}

	texts := make([]string, len(chunks))
	for j, c := range chunks {
		texts[j] = c.Text
	}

	vectors, err := i.embedChunks(ctx, texts)
	if err != nil {
		doc.Status = model.DocumentFailed
		doc.Error = err.Error()
		doc.UpdatedAt = time.Now()
		i.metrics.RecordIndexing(0, 0, err)
		return doc, nil, err
	}

	if err := i.vs.Upsert(ctx, chunks, vectors); err != nil {
		doc.Status = model.DocumentFailed
		doc.Error = err.Error()
		doc.UpdatedAt = time.Now()
		i.metrics.RecordIndexing(0, 0, err)
		return doc, nil, err
	}

	doc.Status = model.DocumentIndexed
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = time.Now()
	i.metrics.RecordIndexing(1, len(chunks), nil)

	logger.Infow("document indexed",
		"document_id", doc.ID,
		"name", name,
		"domain", domain,
		"chunks", len(chunks),
		"chars", doc.CharCount,
	)

	return doc, chunks, nil
}

// embedChunks 生成分块向量。小批量直接调用嵌入器，
// 大文档拆分为子批并通过索引池并发嵌入，写入各自的偏移区间。
func (i *Indexer) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= embedBatchSize {
		return i.embedder.Embed(ctx, texts)
	}

	p, err := pool.NewPool("indexer", pool.IndexPool, pool.IndexPoolConfig(0))
	if err != nil {
		return nil, err
	}
	defer p.Release()

	vectors := make([][]float32, len(texts))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		start, end := start, end

		wg.Add(1)
		submitErr := p.Submit(func() {
			defer wg.Done()
			batch, berr := i.embedder.Embed(ctx, texts[start:end])
			if berr != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = berr
				}
				mu.Unlock()
				return
			}
			copy(vectors[start:end], batch)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// DeleteDocument 删除文档的全部索引内容。
func (i *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	if err := i.vs.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	logger.Infow("document deleted", "document_id", documentID)
	return nil
}
