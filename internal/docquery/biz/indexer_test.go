package biz_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/chunker"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/errors"
)

func newTestIndexer(t *testing.T, emb *stubEmbedder) (*biz.Indexer, *store.MemoryStore) {
	t.Helper()
	ms, err := store.NewMemoryStore(3)
	require.NoError(t, err)
	ck, err := chunker.New(200, 40)
	require.NoError(t, err)
	return biz.NewIndexer(ck, emb, ms, 3), ms
}

func TestProcessDocument(t *testing.T) {
	idx, ms := newTestIndexer(t, &stubEmbedder{def: []float32{1, 0, 0}})

	text := strings.Repeat("The premium is payable annually. ", 30)
	doc, chunks, err := idx.ProcessDocument(context.Background(), "policy.txt", "insurance", text)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, model.DocumentIndexed, doc.Status)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "policy.txt", doc.Name)
	assert.Equal(t, "insurance", doc.Domain)
	assert.Equal(t, len(chunks), doc.ChunkCount)
	assert.Greater(t, doc.ChunkCount, 1)

	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunks)), count)

	for _, c := range chunks {
		assert.Equal(t, doc.ID, c.DocumentID)
	}
}

func TestProcessDocumentLargeDocumentBatchedEmbedding(t *testing.T) {
	emb := &stubEmbedder{def: []float32{1, 0, 0}}
	idx, ms := newTestIndexer(t, emb)

	// 足够长的文档触发分批并发嵌入路径
	text := strings.Repeat("Coverage applies after the waiting period ends. Premiums are due monthly. ", 120)
	doc, chunks, err := idx.ProcessDocument(context.Background(), "large-policy.txt", "insurance", text)
	require.NoError(t, err)

	assert.Equal(t, model.DocumentIndexed, doc.Status)
	require.Greater(t, doc.ChunkCount, 32)
	assert.Equal(t, len(chunks), doc.ChunkCount)

	// 每个分块恰好嵌入一次，无遗漏也无重复
	assert.Equal(t, int32(len(chunks)), emb.calls)

	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunks)), count)
}

func TestProcessDocumentLargeDocumentEmbedFailure(t *testing.T) {
	emb := &stubEmbedder{def: []float32{1, 0, 0}, err: errors.Embeddingf("backend unavailable"), failN: 1}
	idx, ms := newTestIndexer(t, emb)

	text := strings.Repeat("Coverage applies after the waiting period ends. Premiums are due monthly. ", 120)
	doc, _, err := idx.ProcessDocument(context.Background(), "large-policy.txt", "insurance", text)
	require.Error(t, err)
	assert.Equal(t, model.DocumentFailed, doc.Status)

	// 任一子批失败则整批拒绝，存储保持不变
	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestProcessDocumentEmpty(t *testing.T) {
	idx, ms := newTestIndexer(t, &stubEmbedder{def: []float32{1, 0, 0}})

	doc, chunks, err := idx.ProcessDocument(context.Background(), "empty.txt", "general", "   \n\t  ")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, model.DocumentFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)
	assert.Empty(t, chunks)

	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessDocumentEmbedFailure(t *testing.T) {
	idx, ms := newTestIndexer(t, &stubEmbedder{err: errors.Embeddingf("backend down")})

	doc, _, err := idx.ProcessDocument(context.Background(), "doc.txt", "general", "some indexable text here")
	require.Error(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, model.DocumentFailed, doc.Status)
	assert.NotEmpty(t, doc.Error)

	// 失败不会留下半成品索引
	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessDocumentDimensionMismatch(t *testing.T) {
	idx, ms := newTestIndexer(t, &stubEmbedder{def: []float32{1, 0}})

	doc, _, err := idx.ProcessDocument(context.Background(), "doc.txt", "general", "some indexable text here")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDimensionMismatch)
	assert.Equal(t, model.DocumentFailed, doc.Status)

	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteDocument(t *testing.T) {
	idx, ms := newTestIndexer(t, &stubEmbedder{def: []float32{1, 0, 0}})

	doc, _, err := idx.ProcessDocument(context.Background(), "doc.txt", "general", strings.Repeat("text content here. ", 40))
	require.NoError(t, err)

	require.NoError(t, idx.DeleteDocument(context.Background(), doc.ID))

	count, err := ms.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
