package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/textutil"
	"github.com/kart-io/docquery/pkg/errors"
)

// entry 内存存储的单个条目。seq 记录首次插入顺序，
// 同分结果按该顺序排列，替换条目不改变其位置。
type entry struct {
	chunk  model.Chunk
	vector []float32
	seq    uint64
}

// MemoryStore 进程内向量存储，余弦相似度暴力检索。
// 适合中小规模文档集，所有操作并发安全。
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]*entry
	nextSeq uint64
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储。dim 是唯一接受的向量维度。
func NewMemoryStore(dim int) (*MemoryStore, error) {
	if dim <= 0 {
		return nil, errors.Configurationf("vector dimension must be positive, got %d", dim)
	}
	return &MemoryStore{
		dim:     dim,
		entries: make(map[string]*entry),
	}, nil
}

// Upsert 批量写入分块向量。
// 先整批校验维度，任一不符则拒绝全部写入，存储保持原状。
func (s *MemoryStore) Upsert(_ context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.Configurationf("chunks/vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	for _, v := range vectors {
		if len(v) != s.dim {
			return errors.DimensionMismatchf(s.dim, len(v))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		if existing, ok := s.entries[c.ID]; ok {
			// 重复写入保留原插入序号，排序位置稳定
			existing.chunk = c
			existing.vector = vectors[i]
			continue
		}
		s.entries[c.ID] = &entry{
			chunk:  c,
			vector: vectors[i],
			seq:    s.nextSeq,
		}
		s.nextSeq++
	}

	return nil
}

// Delete 按 ID 删除条目，不存在的 ID 忽略。
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// DeleteByDocument 删除某文档的全部分块。
func (s *MemoryStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.chunk.DocumentID == documentID {
			delete(s.entries, id)
		}
	}
	return nil
}

// Query 余弦相似度检索。
// 结果按分数降序；同分按插入顺序，保证可复现。
func (s *MemoryStore) Query(_ context.Context, vector []float32, topK int, filter *Filter) ([]ScoredChunk, error) {
	if len(vector) != s.dim {
		return nil, errors.DimensionMismatchf(s.dim, len(vector))
	}
	if topK <= 0 {
		return []ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		e     *entry
		score float64
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(&e.chunk) {
			continue
		}
		candidates = append(candidates, scored{
			e:     e,
			score: textutil.CosineSimilarity(vector, e.vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.seq < candidates[j].e.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		results[i] = ScoredChunk{Chunk: c.e.chunk, Score: c.score}
	}
	return results, nil
}

// Scan 返回满足过滤条件的全部分块，按插入顺序排列。
func (s *MemoryStore) Scan(_ context.Context, filter *Filter) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Matches(&e.chunk) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	chunks := make([]model.Chunk, len(matched))
	for i, e := range matched {
		chunks[i] = e.chunk
	}
	return chunks, nil
}

// Count 返回当前条目数量。
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Close 释放存储内容。
func (s *MemoryStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}
