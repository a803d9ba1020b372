package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalizeCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, NormalizeCosineSimilarity(1), 1e-9)
	assert.InDelta(t, 0.5, NormalizeCosineSimilarity(0), 1e-9)
	assert.InDelta(t, 0.0, NormalizeCosineSimilarity(-1), 1e-9)
}

func TestHashStringStable(t *testing.T) {
	assert.Equal(t, HashString("insurance policy"), HashString("insurance policy"))
	assert.NotEqual(t, HashString("a"), HashString("b"))
	assert.Len(t, HashString("x"), 64)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab", TruncateString("abcd", 2))
	assert.Equal(t, "", TruncateString("abcd", 0))
	// 多字节字符按 rune 截断
	assert.Equal(t, "保险", TruncateString("保险条款", 2))
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The POLICY covers the insured party, and the policy excludes flood damage.")
	assert.Contains(t, tokens, "policy")
	assert.Contains(t, tokens, "covers")
	assert.Contains(t, tokens, "flood")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "and")
}

func TestTopKeywords(t *testing.T) {
	text := "premium premium premium deductible deductible coverage"
	kws := TopKeywords(text, 2)
	assert.Equal(t, []string{"premium", "deductible"}, kws)

	// 同频词按词典序，结果确定
	kws = TopKeywords("alpha beta alpha beta", 2)
	assert.Equal(t, []string{"alpha", "beta"}, kws)

	assert.Nil(t, TopKeywords("anything", 0))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c  "))
	assert.Equal(t, "", CollapseWhitespace("   "))
}

func TestContainsString(t *testing.T) {
	assert.True(t, ContainsString([]string{"a", "b"}, "b"))
	assert.False(t, ContainsString([]string{"a", "b"}, "c"))
	assert.False(t, ContainsString(nil, "a"))
}

func TestIsSentenceBoundary(t *testing.T) {
	assert.True(t, IsSentenceBoundary('.'))
	assert.True(t, IsSentenceBoundary('？'))
	assert.True(t, IsSentenceBoundary('\n'))
	assert.False(t, IsSentenceBoundary(','))
	assert.False(t, IsSentenceBoundary('a'))
}
