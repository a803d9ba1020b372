// Package chunker 将文档文本切分为带元数据的可检索片段。
package chunker

import (
	"fmt"
	"strings"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/textutil"
)

// minBoundaryRatio 回退句子边界时保留的最小块长比例。
// 边界落在该比例之前时放弃回退，按目标长度硬切。
const minBoundaryRatio = 0.7

// maxKeywords 每个分块提取的关键词数量上限。
const maxKeywords = 10

// Chunker 按目标大小和重叠量切分文本。
type Chunker struct {
	targetSize int
	overlap    int
}

// New 创建分块器。targetSize 必须为正，overlap 必须小于 targetSize。
func New(targetSize, overlap int) (*Chunker, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("chunk target size must be positive, got %d", targetSize)
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, targetSize)
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}, nil
}

// Split 将文档文本切分为分块序列。
// 切分按 Unicode 字符计数，优先在句子边界断开：若目标窗口内
// 最后一个句子边界不早于 minBoundaryRatio×targetSize 处则回退到
// 边界，否则硬切。下一窗口从切点减去 overlap 处开始。
// 同一输入永远产生相同的切分结果和分块 ID。
func (c *Chunker) Split(documentID, text string) []model.Chunk {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}

	var chunks []model.Chunk
	start := 0
	for start < len(runes) {
		end := start + c.targetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			if cut := c.boundaryCut(runes, start, end); cut > start {
				end = cut
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, c.newChunk(documentID, len(chunks), piece, start, end))
		}

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// 防止窗口停滞
			next = start + 1
		}
		start = next
	}

	return chunks
}

// boundaryCut 在 [start, end) 窗口内查找最后一个句子边界。
// 找到且不早于最小块长时返回边界后一位，否则返回 -1。
func (c *Chunker) boundaryCut(runes []rune, start, end int) int {
	minEnd := start + int(float64(c.targetSize)*minBoundaryRatio)
	for i := end - 1; i >= minEnd; i-- {
		if textutil.IsSentenceBoundary(runes[i]) {
			return i + 1
		}
	}
	return -1
}

func (c *Chunker) newChunk(documentID string, index int, text string, start, end int) model.Chunk {
	return model.Chunk{
		ID:         ChunkID(documentID, index),
		DocumentID: documentID,
		Index:      index,
		Text:       text,
		Section:    DetectSection(text),
		Keywords:   textutil.TopKeywords(text, maxKeywords),
		Importance: ImportanceScore(text),
		Start:      start,
		End:        end,
	}
}

// ChunkID 生成确定性分块 ID：同一文档同一序号永远得到相同 ID。
func ChunkID(documentID string, index int) string {
	return textutil.HashString(fmt.Sprintf("%s:%d", documentID, index))[:32]
}

// sectionPatterns 章节分类规则，按声明顺序匹配，先命中者生效。
var sectionPatterns = []struct {
	name     string
	keywords []string
}{
	{"definitions", []string{"definition", "interpret", "shall mean", "terminology"}},
	{"coverage", []string{"cover", "benefit", "eligible", "waiting period", "coverage"}},
	{"exclusions", []string{"exclude", "not cover", "exception", "limitation", "restriction"}},
	{"claims", []string{"claim", "procedure", "intimation", "settlement"}},
	{"premium", []string{"premium", "payment", "grace period", "renewal", "billing"}},
	{"terms", []string{"terms", "conditions", "policy", "agreement", "contract"}},
	{"legal", []string{"legal", "jurisdiction", "governing law", "dispute", "arbitration"}},
	{"medical", []string{"medical", "hospital", "treatment", "diagnosis", "physician"}},
	{"financial", []string{"financial", "cost", "expense", "reimbursement", "deductible"}},
}

// DetectSection 根据文本内容归类章节标签，无命中时返回 general。
func DetectSection(text string) string {
	lower := strings.ToLower(text)
	for _, p := range sectionPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p.name
			}
		}
	}
	return "general"
}

// importanceTerms 重要性评分的分级词表。
var importanceTerms = []struct {
	weight int
	terms  []string
}{
	{3, []string{"policy", "coverage", "benefit", "claim", "premium", "exclusion", "liability"}},
	{2, []string{"condition", "treatment", "hospital", "medical", "insurance", "payment"}},
	{1, []string{"information", "contact", "address", "phone", "email", "website"}},
}

// ImportanceScore 计算分块重要性，范围 [0, 1]。
// 每个命中的分级词按权重累加后除以最大可能得分。
func ImportanceScore(text string) float64 {
	lower := strings.ToLower(text)

	score := 0
	maxScore := 0
	for _, group := range importanceTerms {
		maxScore += group.weight * len(group.terms)
		for _, term := range group.terms {
			if strings.Contains(lower, term) {
				score += group.weight
			}
		}
	}

	v := float64(score) / float64(maxScore)
	if v > 1 {
		v = 1
	}
	return v
}
