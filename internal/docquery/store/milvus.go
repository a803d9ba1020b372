package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docquery/internal/model"
	milvuscomp "github.com/kart-io/docquery/pkg/component/milvus"
	"github.com/kart-io/docquery/pkg/errors"
	milvusopts "github.com/kart-io/docquery/pkg/options/milvus"
)

// MilvusStore 基于 Milvus 的向量存储实现。
type MilvusStore struct {
	client     *milvuscomp.Client
	collection string
	dim        int
}

var _ VectorStore = (*MilvusStore)(nil)

// chunkOutputFields 检索时回读的元数据字段。
var chunkOutputFields = []string{"document_id", "chunk_index", "text", "section", "keywords", "importance_milli", "start_offset", "end_offset"}

// NewMilvusStore 连接 Milvus 并确保分块集合存在。
func NewMilvusStore(opts *milvusopts.Options, dim int) (*MilvusStore, error) {
	if dim <= 0 {
		return nil, errors.Configurationf("vector dimension must be positive, got %d", dim)
	}

	client, err := milvuscomp.New(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	err = client.CreateCollection(ctx, &milvuscomp.CollectionSchema{
		Name:        opts.Collection,
		Description: "document chunks with embeddings",
		Dimension:   dim,
		MetaFields: []milvuscomp.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "text", DataType: entity.FieldTypeVarChar, MaxLen: 8192},
			{Name: "section", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "keywords", DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: "importance_milli", DataType: entity.FieldTypeInt64},
			{Name: "start_offset", DataType: entity.FieldTypeInt64},
			{Name: "end_offset", DataType: entity.FieldTypeInt64},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return &MilvusStore{
		client:     client,
		collection: opts.Collection,
		dim:        dim,
	}, nil
}

// Upsert 批量写入分块，相同 chunk_id 的行被替换。
func (s *MilvusStore) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.Configurationf("chunks/vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	for _, v := range vectors {
		if len(v) != s.dim {
			return errors.DimensionMismatchf(s.dim, len(v))
		}
	}

	data := &milvuscomp.UpsertData{
		IDs:        make([]string, len(chunks)),
		Embeddings: vectors,
		Metadata: map[string][]any{
			"document_id":      make([]any, len(chunks)),
			"chunk_index":      make([]any, len(chunks)),
			"text":             make([]any, len(chunks)),
			"section":          make([]any, len(chunks)),
			"keywords":         make([]any, len(chunks)),
			"importance_milli": make([]any, len(chunks)),
			"start_offset":     make([]any, len(chunks)),
			"end_offset":       make([]any, len(chunks)),
		},
	}
	for i, c := range chunks {
		data.IDs[i] = c.ID
		data.Metadata["document_id"][i] = c.DocumentID
		data.Metadata["chunk_index"][i] = int64(c.Index)
		data.Metadata["text"][i] = c.Text
		data.Metadata["section"][i] = c.Section
		data.Metadata["keywords"][i] = strings.Join(c.Keywords, ",")
		data.Metadata["importance_milli"][i] = int64(c.Importance * 1000)
		data.Metadata["start_offset"][i] = int64(c.Start)
		data.Metadata["end_offset"][i] = int64(c.End)
	}

	return s.client.Upsert(ctx, s.collection, data)
}

// Delete 按分块 ID 删除。
func (s *MilvusStore) Delete(ctx context.Context, ids []string) error {
	return s.client.DeleteByIDs(ctx, s.collection, ids)
}

// DeleteByDocument 删除某文档的全部分块。
func (s *MilvusStore) DeleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf("document_id == %q", documentID)
	return s.client.DeleteByExpr(ctx, s.collection, expr)
}

// Query 余弦相似度检索。
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredChunk, error) {
	if len(vector) != s.dim {
		return nil, errors.DimensionMismatchf(s.dim, len(vector))
	}
	if topK <= 0 {
		return []ScoredChunk{}, nil
	}

	results, err := s.client.Search(ctx, s.collection, vector, topK, filterExpr(filter), chunkOutputFields)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		scored = append(scored, ScoredChunk{
			Chunk: chunkFromMetadata(r.ID, r.Metadata),
			Score: float64(r.Score),
		})
	}
	return scored, nil
}

// Count 返回集合行数。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

// Close 关闭连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// filterExpr 将过滤条件转换为 Milvus 布尔表达式。
func filterExpr(filter *Filter) string {
	if filter == nil {
		return ""
	}

	var parts []string
	if len(filter.DocumentIDs) > 0 {
		parts = append(parts, inExpr("document_id", filter.DocumentIDs))
	}
	if len(filter.Sections) > 0 {
		parts = append(parts, inExpr("section", filter.Sections))
	}
	return strings.Join(parts, " && ")
}

func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}

func chunkFromMetadata(id string, meta map[string]any) model.Chunk {
	c := model.Chunk{ID: id}
	if v, ok := meta["document_id"].(string); ok {
		c.DocumentID = v
	}
	if v, ok := meta["chunk_index"].(int64); ok {
		c.Index = int(v)
	}
	if v, ok := meta["text"].(string); ok {
		c.Text = v
	}
	if v, ok := meta["section"].(string); ok {
		c.Section = v
	}
	if v, ok := meta["keywords"].(string); ok && v != "" {
		c.Keywords = strings.Split(v, ",")
	}
	if v, ok := meta["importance_milli"].(int64); ok {
		c.Importance = float64(v) / 1000
	}
	if v, ok := meta["start_offset"].(int64); ok {
		c.Start = int(v)
	}
	if v, ok := meta["end_offset"].(int64); ok {
		c.End = int(v)
	}
	return c
}
