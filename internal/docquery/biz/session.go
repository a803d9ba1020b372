package biz

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/docquery/pkg/llm/resilience"
	"github.com/kart-io/docquery/pkg/utils/id"
)

// OrchestratorConfig 批处理编排配置。
type OrchestratorConfig struct {
	// MaxParallel 并行模式下的并发上限。
	MaxParallel int
	// MaxAttempts 单个问题的最大尝试次数（含首次）。
	MaxAttempts int
	// RetryInitialDelay 重试的初始退避延迟。
	RetryInitialDelay time.Duration
	// DefaultDomain 批处理未指定领域时使用的领域。
	DefaultDomain string
}

// BatchOptions 单次批处理的运行参数。
type BatchOptions struct {
	// DocumentIDs 限定检索范围的文档集合，空表示全部。
	DocumentIDs []string
	// Domain 答案合成使用的领域，决定系统提示词。
	Domain string
	// TopK 每个问题的检索结果数，0 表示使用检索器默认值。
	TopK int
	// Hybrid 是否启用混合检索。
	Hybrid bool
	// Parallel 是否并行处理问题。
	Parallel bool
	// Models 参与回答的模型列表，空表示仅用默认模型。
	// 多于一个时进入多模型对比模式。
	Models []string
}

// Orchestrator 驱动问题批处理：检索、合成、重试与聚合。
type Orchestrator struct {
	retriever *Retriever
	synth     *Synthesizer
	chats     map[string]llm.ChatProvider
	defModel  string
	cache     *AnswerCache
	config    OrchestratorConfig
	metrics   *metrics.PipelineMetrics
}

// NewOrchestrator 创建批处理编排器。
// chats 以模型名为键；defaultModel 必须存在于 chats 中。
func NewOrchestrator(retriever *Retriever, synth *Synthesizer, chats map[string]llm.ChatProvider, defaultModel string, cache *AnswerCache, config OrchestratorConfig) *Orchestrator {
	if config.MaxParallel <= 0 {
		config.MaxParallel = 8
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryInitialDelay <= 0 {
		config.RetryInitialDelay = 500 * time.Millisecond
	}
	return &Orchestrator{
		retriever: retriever,
		synth:     synth,
		chats:     chats,
		defModel:  defaultModel,
		cache:     cache,
		config:    config,
		metrics:   metrics.GetPipelineMetrics(),
	}
}

// task 批处理中的一个 (问题, 模型) 工作单元。
type task struct {
	slot     int
	qIndex   int
	question string
	model    string
}

// RunBatch 以会话为单位运行一组问题。
// 结果按输入序号排列（多模型对比时同一问题的结果相邻，按模型
// 列表顺序）。上下文取消后不再派发新问题，已完成的结果保留，
// 会话标记为 partial。
func (o *Orchestrator) RunBatch(ctx context.Context, questions []string, opts *BatchOptions) *model.Session {
	if opts == nil {
		opts = &BatchOptions{}
	}
	models := opts.Models
	if len(models) == 0 {
		models = []string{o.defModel}
	}

	session := &model.Session{
		ID:        id.NewULID(),
		Status:    model.SessionRunning,
		StartedAt: time.Now(),
	}

	tasks := make([]task, 0, len(questions)*len(models))
	for qi, q := range questions {
		for _, m := range models {
			tasks = append(tasks, task{
				slot:     len(tasks),
				qIndex:   qi,
				question: q,
				model:    m,
			})
		}
	}

	results := make([]model.QuestionResult, len(tasks))
	for i, t := range tasks {
		results[i] = model.QuestionResult{
			Index: t.qIndex,
			Model: t.model,
			State: model.QuestionPending,
		}
	}

	logger.Infow("batch session started",
		"session_id", session.ID,
		"questions", len(questions),
		"models", models,
		"parallel", opts.Parallel,
	)

	if opts.Parallel && len(tasks) > 1 {
		o.runParallel(ctx, tasks, results, opts)
	} else {
		o.runSequential(ctx, tasks, results, opts)
	}

	session.Results = results
	session.FinishedAt = time.Now()
	session.Status = model.SessionCompleted
	for _, r := range results {
		if r.State == model.QuestionPending {
			session.Status = model.SessionPartial
			break
		}
	}
	aggregate(session, len(models) > 1)
	o.metrics.RecordSession(session.Status == model.SessionPartial)
	for _, r := range session.Results {
		if r.State == model.QuestionCompleted || r.State == model.QuestionFailed {
			o.metrics.RecordQuestion(r.State == model.QuestionCompleted)
		}
	}

	logger.Infow("batch session finished",
		"session_id", session.ID,
		"status", session.Status,
		"success_rate", session.SuccessRate,
		"total_tokens", session.TotalTokens,
	)
	return session
}

func (o *Orchestrator) runSequential(ctx context.Context, tasks []task, results []model.QuestionResult, opts *BatchOptions) {
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		results[t.slot] = o.runQuestion(ctx, t, opts)
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, tasks []task, results []model.QuestionResult, opts *BatchOptions) {
	p, err := pool.NewPool("session", pool.QuestionPool, pool.QuestionPoolConfig(o.config.MaxParallel))
	if err != nil {
		logger.Warnw("worker pool unavailable, falling back to sequential", "error", err.Error())
		o.runSequential(ctx, tasks, results, opts)
		return
	}
	defer p.Release()

	var wg sync.WaitGroup
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		t := t
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			// 取消后已入队的任务不再执行，槽位保持 pending。
			if ctx.Err() != nil {
				return
			}
			// 每个工作单元只写自己的槽位，无需加锁。
			results[t.slot] = o.runQuestion(ctx, t, opts)
		})
		if err != nil {
			wg.Done()
		}
	}
	wg.Wait()
}

// runQuestion 处理单个工作单元，驱动其状态机直到终态。
func (o *Orchestrator) runQuestion(ctx context.Context, t task, opts *BatchOptions) model.QuestionResult {
	result := model.QuestionResult{
		Index: t.qIndex,
		Model: t.model,
		State: model.QuestionPending,
	}

	chat, ok := o.chats[t.model]
	if !ok {
		result.State = model.QuestionFailed
		result.Answer = &model.AnswerRecord{
			Question:    t.question,
			Model:       t.model,
			Answer:      fallbackAnswer,
			Failed:      true,
			Error:       "unknown model: " + t.model,
			GeneratedAt: time.Now(),
		}
		return result
	}

	if o.cache != nil {
		if cached, err := o.cache.Get(ctx, t.question, t.model, opts.DocumentIDs); err == nil && cached != nil {
			o.metrics.RecordAnswerCache(true)
			result.State = model.QuestionCompleted
			result.Answer = cached
			result.Attempts = 0
			return result
		}
		o.metrics.RecordAnswerCache(false)
	}

	result.State = model.QuestionRetrieving

	var filter *store.Filter
	if len(opts.DocumentIDs) > 0 {
		filter = &store.Filter{DocumentIDs: opts.DocumentIDs}
	}

	var retrieved []model.RetrievalResult
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:  o.config.MaxAttempts,
		InitialDelay: o.config.RetryInitialDelay,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
	err := resilience.RetryWithBackoff(ctx, retryCfg, func() error {
		result.Attempts++
		begin := time.Now()
		var rerr error
		retrieved, rerr = o.retriever.Retrieve(ctx, &RetrieveRequest{
			Question: t.question,
			TopK:     opts.TopK,
			Filter:   filter,
			Hybrid:   opts.Hybrid,
		})
		o.metrics.RecordRetrieval(time.Since(begin), rerr)
		return rerr
	})
	if err != nil {
		logger.Warnw("retrieval failed for question",
			"index", t.qIndex,
			"model", t.model,
			"attempts", result.Attempts,
			"error", err.Error(),
		)
		result.State = model.QuestionFailed
		result.Answer = &model.AnswerRecord{
			Question:    t.question,
			Model:       t.model,
			Answer:      fallbackAnswer,
			Failed:      true,
			Error:       err.Error(),
			GeneratedAt: time.Now(),
		}
		return result
	}

	domain := opts.Domain
	if domain == "" {
		domain = o.config.DefaultDomain
	}

	result.State = model.QuestionSynthesizing
	record := o.synth.Synthesize(ctx, chat, t.question, retrieved, domain)
	result.Answer = record

	if record.Failed {
		result.State = model.QuestionFailed
		return result
	}

	result.State = model.QuestionCompleted
	if o.cache != nil {
		_ = o.cache.Set(ctx, t.question, t.model, opts.DocumentIDs, record)
	}
	return result
}

// aggregate 计算会话的全局与按模型聚合统计。
// 平均置信度与平均延迟只在已完成的问题上计算；成功率按
// 终态与否统计全部工作单元。
func aggregate(session *model.Session, perModel bool) {
	type acc struct {
		questions  int
		completed  int
		tokens     int
		cost       float64
		confidence float64
		latency    int64
	}

	global := acc{}
	byModel := map[string]*acc{}

	for _, r := range session.Results {
		global.questions++
		a := byModel[r.Model]
		if a == nil {
			a = &acc{}
			byModel[r.Model] = a
		}
		a.questions++

		if r.Answer != nil {
			global.tokens += r.Answer.TokensUsed
			global.cost += r.Answer.CostUSD
			a.tokens += r.Answer.TokensUsed
			a.cost += r.Answer.CostUSD
		}
		if r.State == model.QuestionCompleted && r.Answer != nil {
			global.completed++
			global.confidence += r.Answer.Confidence
			global.latency += r.Answer.LatencyMS
			a.completed++
			a.confidence += r.Answer.Confidence
			a.latency += r.Answer.LatencyMS
		}
	}

	session.TotalTokens = global.tokens
	session.TotalCostUSD = global.cost
	if global.completed > 0 {
		session.AvgConfidence = global.confidence / float64(global.completed)
		session.AvgLatencyMS = global.latency / int64(global.completed)
	}
	if global.questions > 0 {
		session.SuccessRate = float64(global.completed) / float64(global.questions)
	}

	if !perModel {
		return
	}
	session.ModelStats = make(map[string]*model.ModelAggregate, len(byModel))
	for name, a := range byModel {
		stat := &model.ModelAggregate{
			Model:        name,
			Questions:    a.questions,
			Completed:    a.completed,
			TotalTokens:  a.tokens,
			TotalCostUSD: a.cost,
		}
		if a.completed > 0 {
			stat.AvgConfidence = a.confidence / float64(a.completed)
			stat.AvgLatencyMS = a.latency / int64(a.completed)
		}
		if a.questions > 0 {
			stat.SuccessRate = float64(a.completed) / float64(a.questions)
		}
		session.ModelStats[name] = stat
	}
}
