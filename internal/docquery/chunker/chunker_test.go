package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)

	_, err = New(100, 100)
	assert.Error(t, err)

	_, err = New(100, -1)
	assert.Error(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	c := mustNew(t, 1000, 200)
	assert.Nil(t, c.Split("doc-1", ""))
	assert.Nil(t, c.Split("doc-1", "   \n\t  "))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := mustNew(t, 1000, 200)
	chunks := c.Split("doc-1", "A short policy clause.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short policy clause.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
}

func TestSplitChunkCount(t *testing.T) {
	// 无句子边界的 2500 字符文本：窗口 0-1000、800-1800、1600-2500
	text := strings.Repeat("a", 2500)
	c := mustNew(t, 1000, 200)

	chunks := c.Split("doc-1", text)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 800, chunks[1].Start)
	assert.Equal(t, 1800, chunks[1].End)
	assert.Equal(t, 1600, chunks[2].Start)
	assert.Equal(t, 2500, chunks[2].End)
}

func TestSplitCoversWholeText(t *testing.T) {
	text := strings.Repeat("coverage applies to the insured. ", 200)
	c := mustNew(t, 500, 100)

	chunks := c.Split("doc-1", text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		// 相邻窗口必须衔接，无字符缺失
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	// 第一句 90 字符（含句号），落在 0.7×100=70 之后，应在句号处断开
	first := strings.Repeat("x", 89) + "."
	text := first + " " + strings.Repeat("y", 150)
	c := mustNew(t, 100, 20)

	chunks := c.Split("doc-1", text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0].Text)
	assert.Equal(t, 90, chunks[0].End)
}

func TestSplitIgnoresEarlyBoundary(t *testing.T) {
	// 唯一边界在位置 10，早于最小块长，应按目标长度硬切
	text := strings.Repeat("x", 9) + "." + strings.Repeat("y", 200)
	c := mustNew(t, 100, 20)

	chunks := c.Split("doc-1", text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, chunks[0].End)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The policy covers hospital treatment. Claims require documents. ", 60)
	c := mustNew(t, 800, 150)

	first := c.Split("doc-1", text)
	second := c.Split("doc-1", text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Keywords, second[i].Keywords)
	}
}

func TestChunkIDStable(t *testing.T) {
	assert.Equal(t, ChunkID("doc-1", 0), ChunkID("doc-1", 0))
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-1", 1))
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-2", 0))
	assert.Len(t, ChunkID("doc-1", 0), 32)
}

func TestDetectSection(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"The following terminology shall mean as defined below", "definitions"},
		{"This policy covers hospital expenses after the waiting period", "coverage"},
		{"The following conditions are excluded from this plan", "exclusions"},
		{"Submit a claim with the settlement documents", "claims"},
		{"Premium payment is due within the grace period", "premium"},
		{"Any dispute falls under the jurisdiction of the governing law", "legal"},
		{"Nothing relevant here whatsoever", "general"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectSection(tt.text), tt.text)
	}
}

func TestImportanceScore(t *testing.T) {
	high := ImportanceScore("policy coverage benefit claim premium exclusion liability")
	low := ImportanceScore("contact us via email or phone for more information")
	none := ImportanceScore("completely unrelated text")

	assert.Greater(t, high, low)
	assert.Greater(t, low, none)
	assert.Zero(t, none)
	assert.LessOrEqual(t, high, 1.0)
}

func TestChunkMetadata(t *testing.T) {
	c := mustNew(t, 1000, 200)
	chunks := c.Split("doc-1", "The premium payment covers renewal billing and the grace period for the policyholder premium.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "premium", chunks[0].Section)
	assert.Contains(t, chunks[0].Keywords, "premium")
	assert.LessOrEqual(t, len(chunks[0].Keywords), 10)
	assert.Greater(t, chunks[0].Importance, 0.0)
}
