package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPipelineMetricsSingleton(t *testing.T) {
	m1 := GetPipelineMetrics()
	m2 := GetPipelineMetrics()
	assert.Same(t, m1, m2)
}

func TestRecordCounters(t *testing.T) {
	m := GetPipelineMetrics()
	m.Reset()

	m.RecordSession(false)
	m.RecordSession(true)
	m.RecordQuestion(true)
	m.RecordQuestion(true)
	m.RecordQuestion(false)
	m.RecordAnswerCache(true)
	m.RecordAnswerCache(false)
	m.RecordRetrieval(10*time.Millisecond, nil)
	m.RecordRetrieval(0, errors.New("boom"))
	m.RecordRetrievalFallback()
	m.RecordSynthesis(20*time.Millisecond, 150, 0.000045, nil)
	m.RecordSynthesis(0, 0, 0, errors.New("boom"))
	m.RecordIndexing(1, 12, nil)
	m.RecordIndexing(0, 0, errors.New("boom"))

	stats := m.Stats()

	sessions := stats["sessions"].(map[string]interface{})
	assert.Equal(t, uint64(2), sessions["total"])
	assert.Equal(t, uint64(1), sessions["partial"])

	questions := stats["questions"].(map[string]interface{})
	assert.Equal(t, uint64(2), questions["completed"])
	assert.Equal(t, uint64(1), questions["failed"])
	assert.InDelta(t, 0.5, questions["cache_hit_rate"].(float64), 0.001)

	retrieval := stats["retrieval"].(map[string]interface{})
	assert.Equal(t, uint64(2), retrieval["total"])
	assert.Equal(t, uint64(1), retrieval["errors"])
	assert.Equal(t, uint64(1), retrieval["keyword_fallback"])

	synthesis := stats["synthesis"].(map[string]interface{})
	assert.Equal(t, uint64(150), synthesis["tokens_total"])
	assert.InDelta(t, 0.000045, synthesis["cost_usd"].(float64), 1e-9)

	indexing := stats["indexing"].(map[string]interface{})
	assert.Equal(t, uint64(1), indexing["documents_indexed"])
	assert.Equal(t, uint64(12), indexing["chunks_indexed"])
	assert.Equal(t, uint64(1), indexing["errors"])
}

func TestExportPrometheusFormat(t *testing.T) {
	m := GetPipelineMetrics()
	m.Reset()

	m.RecordSession(false)
	m.RecordQuestion(true)
	m.RecordIndexing(2, 40, nil)

	out := m.Export("docquery", "pipeline")

	require.Contains(t, out, "docquery_pipeline_sessions_total 1")
	require.Contains(t, out, "docquery_pipeline_questions_completed_total 1")
	require.Contains(t, out, "docquery_pipeline_documents_indexed_total 2")
	require.Contains(t, out, "docquery_pipeline_chunks_indexed_total 40")
	assert.Contains(t, out, "# TYPE docquery_pipeline_sessions_total counter")
	assert.Contains(t, out, "# TYPE docquery_pipeline_uptime_seconds gauge")

	// 无 subsystem 时前缀只有 namespace
	out = m.Export("docquery", "")
	assert.True(t, strings.Contains(out, "docquery_sessions_total 1"))
}

func TestConcurrentRecording(t *testing.T) {
	m := GetPipelineMetrics()
	m.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordQuestion(true)
				m.RecordRetrieval(time.Millisecond, nil)
				m.RecordSynthesis(time.Millisecond, 1, 0, nil)
			}
		}()
	}
	wg.Wait()

	stats := m.Stats()
	questions := stats["questions"].(map[string]interface{})
	assert.Equal(t, uint64(1000), questions["completed"])

	synthesis := stats["synthesis"].(map[string]interface{})
	assert.Equal(t, uint64(1000), synthesis["tokens_total"])
}
