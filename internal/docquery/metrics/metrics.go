// Package metrics 提供文档问答服务的业务指标收集。
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PipelineMetrics 问答流水线业务指标。
type PipelineMetrics struct {
	// 会话与问题指标
	sessionsTotal      uint64 // 批处理会话总数
	sessionsPartial    uint64 // 被取消的部分会话数
	questionsCompleted uint64 // 成功回答的问题数
	questionsFailed    uint64 // 失败的问题数
	answerCacheHits    uint64 // 答案缓存命中次数
	answerCacheMisses  uint64 // 答案缓存未命中次数

	// 检索指标
	retrievalTotal    uint64 // 总检索次数
	retrievalErrors   uint64 // 检索错误次数
	retrievalFallback uint64 // 降级为纯关键词检索的次数

	// 合成指标
	synthesisTotal  uint64 // 总合成次数
	synthesisErrors uint64 // 合成错误次数
	tokensTotal     uint64 // 消耗 token 总数
	costMicroUSD    uint64 // 累计成本（微美元，避免浮点累加竞争）

	// 索引指标
	documentsIndexed uint64 // 已索引文档数
	chunksIndexed    uint64 // 已索引分块数
	indexErrors      uint64 // 索引错误次数

	durationMu        sync.Mutex
	retrievalDuration float64 // 检索总耗时（秒）
	synthesisDuration float64 // 合成总耗时（秒）
	startTime         time.Time
}

var (
	globalMetrics *PipelineMetrics
	metricsOnce   sync.Once
)

// GetPipelineMetrics 获取全局指标实例。
func GetPipelineMetrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &PipelineMetrics{
			startTime: time.Now(),
		}
	})
	return globalMetrics
}

// RecordSession 记录一次批处理会话。
func (m *PipelineMetrics) RecordSession(partial bool) {
	atomic.AddUint64(&m.sessionsTotal, 1)
	if partial {
		atomic.AddUint64(&m.sessionsPartial, 1)
	}
}

// RecordQuestion 记录单个问题的终态。
func (m *PipelineMetrics) RecordQuestion(completed bool) {
	if completed {
		atomic.AddUint64(&m.questionsCompleted, 1)
	} else {
		atomic.AddUint64(&m.questionsFailed, 1)
	}
}

// RecordAnswerCache 记录答案缓存命中情况。
func (m *PipelineMetrics) RecordAnswerCache(hit bool) {
	if hit {
		atomic.AddUint64(&m.answerCacheHits, 1)
	} else {
		atomic.AddUint64(&m.answerCacheMisses, 1)
	}
}

// RecordRetrieval 记录检索操作。
func (m *PipelineMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}
	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordRetrievalFallback 记录一次关键词降级检索。
func (m *PipelineMetrics) RecordRetrievalFallback() {
	atomic.AddUint64(&m.retrievalFallback, 1)
}

// RecordSynthesis 记录一次答案合成。
func (m *PipelineMetrics) RecordSynthesis(duration time.Duration, tokens int, costUSD float64, err error) {
	atomic.AddUint64(&m.synthesisTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.synthesisErrors, 1)
		return
	}
	m.durationMu.Lock()
	m.synthesisDuration += duration.Seconds()
	m.durationMu.Unlock()

	if tokens > 0 {
		atomic.AddUint64(&m.tokensTotal, uint64(tokens))
	}
	if costUSD > 0 {
		atomic.AddUint64(&m.costMicroUSD, uint64(math.Round(costUSD*1e6)))
	}
}

// RecordIndexing 记录索引操作。
func (m *PipelineMetrics) RecordIndexing(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.indexErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIndexed, uint64(documents))
	atomic.AddUint64(&m.chunksIndexed, uint64(chunks))
}

// counter 输出一条 Prometheus counter 指标。
func counter(sb *strings.Builder, prefix, name, help string, value uint64) {
	fmt.Fprintf(sb, "# HELP %s_%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s_%s counter\n", prefix, name)
	fmt.Fprintf(sb, "%s_%s %d\n\n", prefix, name, value)
}

// gauge 输出一条 Prometheus gauge 指标。
func gauge(sb *strings.Builder, prefix, name, help string, value float64) {
	fmt.Fprintf(sb, "# HELP %s_%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s_%s gauge\n", prefix, name)
	fmt.Fprintf(sb, "%s_%s %.6f\n\n", prefix, name, value)
}

// Export 导出 Prometheus 格式指标。
func (m *PipelineMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	counter(&sb, prefix, "sessions_total", "Total number of batch sessions.", atomic.LoadUint64(&m.sessionsTotal))
	counter(&sb, prefix, "sessions_partial_total", "Number of partial (cancelled) sessions.", atomic.LoadUint64(&m.sessionsPartial))
	counter(&sb, prefix, "questions_completed_total", "Number of successfully answered questions.", atomic.LoadUint64(&m.questionsCompleted))
	counter(&sb, prefix, "questions_failed_total", "Number of failed questions.", atomic.LoadUint64(&m.questionsFailed))

	hits := atomic.LoadUint64(&m.answerCacheHits)
	misses := atomic.LoadUint64(&m.answerCacheMisses)
	counter(&sb, prefix, "answer_cache_hits_total", "Number of answer cache hits.", hits)
	counter(&sb, prefix, "answer_cache_misses_total", "Number of answer cache misses.", misses)
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	gauge(&sb, prefix, "answer_cache_hit_rate", "Answer cache hit rate (0-1).", hitRate)

	counter(&sb, prefix, "retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	counter(&sb, prefix, "retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))
	counter(&sb, prefix, "retrieval_keyword_fallback_total", "Number of keyword fallback retrievals.", atomic.LoadUint64(&m.retrievalFallback))
	gauge(&sb, prefix, "retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)

	counter(&sb, prefix, "synthesis_total", "Total number of answer syntheses.", atomic.LoadUint64(&m.synthesisTotal))
	counter(&sb, prefix, "synthesis_errors_total", "Number of synthesis errors.", atomic.LoadUint64(&m.synthesisErrors))
	gauge(&sb, prefix, "synthesis_duration_seconds_total", "Total synthesis duration.", synthesisDuration)
	counter(&sb, prefix, "tokens_total", "Total tokens consumed.", atomic.LoadUint64(&m.tokensTotal))
	gauge(&sb, prefix, "cost_usd_total", "Total estimated cost in USD.", float64(atomic.LoadUint64(&m.costMicroUSD))/1e6)

	counter(&sb, prefix, "documents_indexed_total", "Total documents indexed.", atomic.LoadUint64(&m.documentsIndexed))
	counter(&sb, prefix, "chunks_indexed_total", "Total chunks indexed.", atomic.LoadUint64(&m.chunksIndexed))
	counter(&sb, prefix, "index_errors_total", "Number of indexing errors.", atomic.LoadUint64(&m.indexErrors))

	gauge(&sb, prefix, "uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *PipelineMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	hits := atomic.LoadUint64(&m.answerCacheHits)
	misses := atomic.LoadUint64(&m.answerCacheMisses)
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrieval := 0.0
	if retrievalTotal > 0 {
		avgRetrieval = retrievalDuration / float64(retrievalTotal)
	}

	synthesisTotal := atomic.LoadUint64(&m.synthesisTotal)
	avgSynthesis := 0.0
	if synthesisTotal > 0 {
		avgSynthesis = synthesisDuration / float64(synthesisTotal)
	}

	return map[string]interface{}{
		"sessions": map[string]interface{}{
			"total":   atomic.LoadUint64(&m.sessionsTotal),
			"partial": atomic.LoadUint64(&m.sessionsPartial),
		},
		"questions": map[string]interface{}{
			"completed":      atomic.LoadUint64(&m.questionsCompleted),
			"failed":         atomic.LoadUint64(&m.questionsFailed),
			"cache_hits":     hits,
			"cache_misses":   misses,
			"cache_hit_rate": hitRate,
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
			"keyword_fallback":    atomic.LoadUint64(&m.retrievalFallback),
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrieval,
		},
		"synthesis": map[string]interface{}{
			"total":               synthesisTotal,
			"errors":              atomic.LoadUint64(&m.synthesisErrors),
			"tokens_total":        atomic.LoadUint64(&m.tokensTotal),
			"cost_usd":            float64(atomic.LoadUint64(&m.costMicroUSD)) / 1e6,
			"total_duration_secs": synthesisDuration,
			"avg_duration_secs":   avgSynthesis,
		},
		"indexing": map[string]interface{}{
			"documents_indexed": atomic.LoadUint64(&m.documentsIndexed),
			"chunks_indexed":    atomic.LoadUint64(&m.chunksIndexed),
			"errors":            atomic.LoadUint64(&m.indexErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *PipelineMetrics) Reset() {
	atomic.StoreUint64(&m.sessionsTotal, 0)
	atomic.StoreUint64(&m.sessionsPartial, 0)
	atomic.StoreUint64(&m.questionsCompleted, 0)
	atomic.StoreUint64(&m.questionsFailed, 0)
	atomic.StoreUint64(&m.answerCacheHits, 0)
	atomic.StoreUint64(&m.answerCacheMisses, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.retrievalFallback, 0)
	atomic.StoreUint64(&m.synthesisTotal, 0)
	atomic.StoreUint64(&m.synthesisErrors, 0)
	atomic.StoreUint64(&m.tokensTotal, 0)
	atomic.StoreUint64(&m.costMicroUSD, 0)
	atomic.StoreUint64(&m.documentsIndexed, 0)
	atomic.StoreUint64(&m.chunksIndexed, 0)
	atomic.StoreUint64(&m.indexErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.synthesisDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
