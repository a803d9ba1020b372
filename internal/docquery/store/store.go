// Package store 提供分块向量的存储抽象及内存、Milvus 两种实现。
package store

import (
	"context"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/textutil"
)

// Filter 限定检索范围的元数据过滤条件。
// 空切片表示不过滤对应维度。
type Filter struct {
	// DocumentIDs 仅检索指定文档。
	DocumentIDs []string
	// Sections 仅检索指定章节标签。
	Sections []string
}

// Matches 判断分块是否满足过滤条件。
func (f *Filter) Matches(c *model.Chunk) bool {
	if f == nil {
		return true
	}
	if len(f.DocumentIDs) > 0 && !textutil.ContainsString(f.DocumentIDs, c.DocumentID) {
		return false
	}
	if len(f.Sections) > 0 && !textutil.ContainsString(f.Sections, c.Section) {
		return false
	}
	return true
}

// ScoredChunk 带相似度分数的检索结果。
// Score 为余弦相似度，范围 [-1, 1]。
type ScoredChunk struct {
	Chunk model.Chunk
	Score float64
}

// VectorStore 定义分块向量存储接口。
type VectorStore interface {
	// Upsert 批量写入分块及其向量，相同 ID 的条目被原子替换。
	// 任一向量维度不符时整批拒绝，存储内容不变。
	Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error

	// Delete 按分块 ID 删除，不存在的 ID 忽略。
	Delete(ctx context.Context, ids []string) error

	// DeleteByDocument 删除某文档的全部分块。
	DeleteByDocument(ctx context.Context, documentID string) error

	// Query 余弦相似度检索，结果按分数降序排列。
	// filter 为 nil 时不过滤。空存储返回空结果。
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]ScoredChunk, error)

	// Count 返回当前存储的分块数量。
	Count(ctx context.Context) (int64, error)

	// Close 关闭连接并释放资源。
	Close(ctx context.Context) error
}
