// Package docquery provides the document QA service server implementation.
package docquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/chunker"
	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/internal/docquery/router"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/pkg/app"
	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/docquery/pkg/llm/resilience"
	cacheopts "github.com/kart-io/docquery/pkg/options/cache"
	docqueryopts "github.com/kart-io/docquery/pkg/options/docquery"
	httpopts "github.com/kart-io/docquery/pkg/options/http"
	llmopts "github.com/kart-io/docquery/pkg/options/llm"
	logopts "github.com/kart-io/docquery/pkg/options/logger"
	milvusopts "github.com/kart-io/docquery/pkg/options/milvus"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docquery/pkg/llm/deepseek"
	_ "github.com/kart-io/docquery/pkg/llm/ollama"
	_ "github.com/kart-io/docquery/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "docquery"

// shutdownTimeout 优雅退出的最长等待时间。
const shutdownTimeout = 15 * time.Second

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	CacheOptions     *cacheopts.Options
	PipelineOptions  *docqueryopts.Options
}

// Server represents the document QA server.
type Server struct {
	srv        *http.Server
	storeClose func()
	redisClose func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Apply(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docquery service...")

	// 2. 初始化向量存储
	vectorStore, err := cfg.newVectorStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Infow("Vector store initialized",
		"driver", cfg.PipelineOptions.StoreDriver,
		"dim", cfg.PipelineOptions.EmbeddingDim,
	)

	// 3. 初始化 Redis 客户端（用于缓存）
	redisClient, redisClose := cfg.newRedisClient(ctx)

	// 4. 初始化 LLM 供应商
	embedder, err := cfg.newEmbedder(redisClient)
	if err != nil {
		return nil, err
	}
	chats, defaultModel, err := cfg.newChatProviders()
	if err != nil {
		return nil, err
	}

	// 5. 初始化 Biz 层
	chk, err := chunker.New(cfg.PipelineOptions.ChunkSize, cfg.PipelineOptions.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}
	indexer := biz.NewIndexer(chk, embedder, vectorStore, cfg.PipelineOptions.EmbeddingDim)

	retriever, err := biz.NewRetriever(embedder, vectorStore, biz.RetrieverConfig{
		TopK:           cfg.PipelineOptions.TopK,
		MinSimilarity:  cfg.PipelineOptions.MinSimilarity,
		SemanticWeight: cfg.PipelineOptions.SemanticWeight,
		KeywordWeight:  cfg.PipelineOptions.KeywordWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}

	synth := biz.NewSynthesizer(biz.SynthesizerConfig{
		ContextBudget: cfg.PipelineOptions.ContextBudget,
	})

	answerCache := biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
		Enabled:   cfg.CacheOptions.Enabled && redisClient != nil,
		TTL:       cfg.CacheOptions.TTL,
		KeyPrefix: cfg.CacheOptions.KeyPrefix,
	})

	orchestrator := biz.NewOrchestrator(retriever, synth, chats, defaultModel, answerCache, biz.OrchestratorConfig{
		MaxParallel:   cfg.PipelineOptions.MaxParallel,
		MaxAttempts:   cfg.PipelineOptions.MaxAttempts,
		DefaultDomain: cfg.PipelineOptions.Domain,
	})

	service := biz.NewQAService(indexer, retriever, orchestrator, answerCache, vectorStore, embedder)
	logger.Infow("QA service initialized",
		"cache.enabled", cfg.CacheOptions.Enabled,
		"top_k", cfg.PipelineOptions.TopK,
		"chunk_size", cfg.PipelineOptions.ChunkSize,
		"models", len(chats),
	)

	// 6. 初始化 Handler 层与路由
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.HTTPOptions.MaxUploadSize
	router.Register(engine, handler.New(service))

	srv := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("docquery service is ready")
	return &Server{
		srv:        srv,
		storeClose: func() { _ = vectorStore.Close(context.Background()) },
		redisClose: redisClose,
	}, nil
}

// newVectorStore 根据配置的驱动创建向量存储。
func (cfg *Config) newVectorStore() (store.VectorStore, error) {
	switch cfg.PipelineOptions.StoreDriver {
	case docqueryopts.StoreDriverMilvus:
		return store.NewMilvusStore(cfg.MilvusOptions, cfg.PipelineOptions.EmbeddingDim)
	case docqueryopts.StoreDriverMemory:
		return store.NewMemoryStore(cfg.PipelineOptions.EmbeddingDim)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.PipelineOptions.StoreDriver)
	}
}

// newRedisClient 创建 Redis 客户端，连接失败时禁用缓存而不中断启动。
func (cfg *Config) newRedisClient(ctx context.Context) (*goredis.Client, func()) {
	if !cfg.CacheOptions.Enabled {
		logger.Info("Cache is disabled")
		return nil, nil
	}
	redisOpts := cfg.CacheOptions.Redis
	if redisOpts == nil {
		logger.Warn("Cache is enabled but no Redis configuration provided")
		return nil, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         redisOpts.Addr(),
		Password:     redisOpts.Password,
		DB:           redisOpts.Database,
		MaxRetries:   redisOpts.MaxRetries,
		PoolSize:     redisOpts.PoolSize,
		DialTimeout:  redisOpts.DialTimeout,
		ReadTimeout:  redisOpts.ReadTimeout,
		WriteTimeout: redisOpts.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		_ = client.Close()
		return nil, nil
	}
	logger.Infow("Redis cache initialized",
		"addr", redisOpts.Addr(),
		"ttl", cfg.CacheOptions.TTL,
	)
	return client, func() { _ = client.Close() }
}

// newEmbedder 创建 Embedding 供应商，叠加缓存与韧性包装。
func (cfg *Config) newEmbedder(redisClient *goredis.Client) (llm.EmbeddingProvider, error) {
	provider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	var embedder llm.EmbeddingProvider = provider
	if redisClient != nil {
		// 命名空间绑定嵌入模型，换模型后旧向量缓存不再命中
		cacheCfg := llm.DefaultEmbeddingCacheConfig()
		cacheCfg.Namespace = cfg.EmbeddingOptions.Model
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, cacheCfg)
	}
	return resilience.NewResilientEmbeddingProvider(embedder, nil, nil), nil
}

// newChatProviders 创建主 Chat 供应商与多模型对比供应商。
// 对比模型共享主供应商的连接配置，仅替换模型名。
func (cfg *Config) newChatProviders() (map[string]llm.ChatProvider, string, error) {
	chats := make(map[string]llm.ChatProvider, 1+len(cfg.PipelineOptions.CompareModels))

	primary, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	defaultModel := primary.Model()
	chats[defaultModel] = resilience.NewResilientChatProvider(primary, nil, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	for _, m := range cfg.PipelineOptions.CompareModels {
		if _, ok := chats[m]; ok {
			continue
		}
		opts := *cfg.ChatOptions
		opts.Model = m
		p, err := llm.NewChatProvider(opts.Provider, opts.ToConfigMap())
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize chat provider for model %q: %w", m, err)
		}
		chats[m] = resilience.NewResilientChatProvider(p, nil, nil)
		logger.Infow("Comparison chat provider initialized",
			"provider", opts.Provider,
			"model", m,
		)
	}
	return chats, defaultModel, nil
}

// Run starts the server and listens for termination signals.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.storeClose != nil {
			s.storeClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
