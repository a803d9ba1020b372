package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedProvider(namespace string) *CachedEmbeddingProvider {
	cfg := DefaultEmbeddingCacheConfig()
	cfg.Namespace = namespace
	return NewCachedEmbeddingProvider(&fakeProvider{name: "fake"}, nil, cfg)
}

func TestCacheKeyIsolatedByNamespace(t *testing.T) {
	a := newCachedProvider("nomic-embed-text")
	b := newCachedProvider("text-embedding-3-small")

	// 同一文本在不同模型命名空间下必须映射到不同的键，
	// 否则换模型后会命中旧模型向量空间的缓存。
	assert.NotEqual(t, a.cacheKey("premium waiver clause"), b.cacheKey("premium waiver clause"))
}

func TestCacheKeyStableWithinNamespace(t *testing.T) {
	a := newCachedProvider("nomic-embed-text")
	b := newCachedProvider("nomic-embed-text")

	assert.Equal(t, a.cacheKey("deductible"), b.cacheKey("deductible"))
	assert.NotEqual(t, a.cacheKey("deductible"), a.cacheKey("co-payment"))
}

func TestCacheKeyUsesPrefix(t *testing.T) {
	c := newCachedProvider("nomic-embed-text")
	assert.Contains(t, c.cacheKey("x"), c.config.KeyPrefix)
}

func TestDefaultEmbeddingCacheConfig(t *testing.T) {
	cfg := DefaultEmbeddingCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
	assert.Empty(t, cfg.Namespace)
}

func TestEmbedWithoutRedisDelegates(t *testing.T) {
	c := newCachedProvider("nomic-embed-text")

	vectors, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0}, vectors[0])

	single, err := c.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, single)

	assert.Equal(t, "fake-cached", c.Name())
}
