// Package textutil 提供检索流水线的文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示完全相同，-1 表示完全相反。
// 向量长度不一致或任一向量为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeCosineSimilarity 将余弦相似度归一化到 [0, 1] 范围。
func NormalizeCosineSimilarity(similarity float64) float64 {
	return (similarity + 1) / 2
}

// HashString 计算字符串的 SHA256 哈希十六进制表示。
func HashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

var wordRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z\-']*`)

// stopwords 关键词提取时忽略的常见英文词。
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "shall": true, "should": true,
	"may": true, "might": true, "must": true, "can": true, "could": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "into": true, "about": true,
	"that": true, "this": true, "these": true, "those": true, "it": true,
	"its": true, "their": true, "they": true, "them": true, "he": true, "she": true,
	"his": true, "her": true, "we": true, "you": true, "your": true, "our": true,
	"not": true, "no": true, "any": true, "all": true, "each": true, "such": true,
	"if": true, "then": true, "than": true, "so": true, "under": true, "upon": true,
	"which": true, "who": true, "whom": true, "what": true, "when": true,
	"where": true, "how": true, "other": true, "more": true, "also": true,
}

// Tokenize 提取小写词元，过滤停用词和过短词。
func Tokenize(text string) []string {
	matches := wordRegex.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(matches))
	for _, w := range matches {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TopKeywords 返回文本中词频最高的 n 个关键词。
// 频次相同时按词典序，保证结果确定。
func TopKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, tok := range Tokenize(text) {
		freq[tok]++
	}

	keywords := make([]string, 0, len(freq))
	for w := range freq {
		keywords = append(keywords, w)
	}

	// 按频次降序，同频次按词典序，保证确定性
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

// IsSentenceBoundary 判断位置 i 的 rune 是否为句子结束符。
func IsSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '\n':
		return true
	default:
		return false
	}
}

// CollapseWhitespace 将连续空白折叠为单个空格并裁剪首尾。
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ContainsString 检查字符串切片是否包含指定元素。
func ContainsString(slice []string, item string) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
