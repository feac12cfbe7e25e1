// Package ragsvc provides the RAG Service server implementation.
package ragsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/internal/rag/biz"
	"github.com/kart-io/learning-rag/internal/rag/handler"
	"github.com/kart-io/learning-rag/internal/rag/metrics"
	"github.com/kart-io/learning-rag/internal/rag/router"
	"github.com/kart-io/learning-rag/internal/rag/store"
	"github.com/kart-io/learning-rag/pkg/component"
	"github.com/kart-io/learning-rag/pkg/component/milvus"
	"github.com/kart-io/learning-rag/pkg/component/redis"
	"github.com/kart-io/learning-rag/pkg/infra/app"
	"github.com/kart-io/learning-rag/pkg/infra/pool"
	"github.com/kart-io/learning-rag/pkg/infra/server"
	"github.com/kart-io/learning-rag/pkg/infra/tracing"
	httpserver "github.com/kart-io/learning-rag/pkg/infra/server/transport/http"
	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/llm/resilience"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/learning-rag/pkg/llm/ollama"
	_ "github.com/kart-io/learning-rag/pkg/llm/openai"
	llmopts "github.com/kart-io/learning-rag/pkg/options/llm"
	logopts "github.com/kart-io/learning-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/learning-rag/pkg/options/milvus"
	ragopts "github.com/kart-io/learning-rag/pkg/options/rag"
	redisopts "github.com/kart-io/learning-rag/pkg/options/redis"
	serveropts "github.com/kart-io/learning-rag/pkg/options/server"
	tracingopts "github.com/kart-io/learning-rag/pkg/options/tracing"
	"github.com/kart-io/learning-rag/pkg/utils/validator"
)

// Name is the name of the application.
const Name = "learning-rag"

const (
	checkpointTTL = 7 * 24 * time.Hour
	indexPoolSize = 4
)

// Config contains application-related configurations.
type Config struct {
	ServerOptions    *serveropts.Options
	LogOptions       *logopts.Options
	TracingOptions   *tracingopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	EmbeddingOptions *llmopts.EmbeddingOptions
	ChatOptions      *llmopts.ChatOptions
	RAGOptions       *ragopts.Options
}

// Server represents the RAG server.
type Server struct {
	srv *server.Manager
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)

	// 1. 初始化日志
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting RAG service...", "service.name", Name, "service.version", app.GetVersion())

	mgr := server.NewManager(cfg.ServerOptions.ShutdownTimeout)
	s, err := cfg.build(ctx, mgr)
	if err != nil {
		// 已注册的资源在失败时同样需要释放
		_ = mgr.Stop(context.Background())
		return nil, err
	}
	return s, nil
}

func (cfg *Config) build(ctx context.Context, mgr *server.Manager) (*Server, error) {
	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	mgr.AddCloser("tracing", tp.Shutdown)
	if tp.Enabled() {
		logger.Infow("Tracing initialized",
			"exporter", string(cfg.TracingOptions.ExporterType),
			"endpoint", cfg.TracingOptions.Endpoint,
		)
	}

	// 3. 初始化向量库
	vectorStore, err := cfg.newVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	mgr.AddCloser("vector-store", vectorStore.Close)
	components := []component.Component{vectorStore}

	// 4. 初始化 Redis（任务检查点与向量缓存）
	var redisClient *redis.Client
	if cfg.RedisOptions.Enabled {
		redisClient, err = redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		mgr.AddCloser("redis", func(context.Context) error { return redisClient.Close() })
		components = append(components, redisClient)
		logger.Infow("Redis client initialized", "redis", cfg.RedisOptions.String())
	} else {
		logger.Info("Redis is disabled, job checkpoints are kept in memory")
	}

	// 5. 初始化 LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	var embedCache *llm.CachedEmbeddingProvider
	if cfg.RAGOptions.EmbeddingCache.Enabled {
		if redisClient == nil {
			logger.Warn("Embedding cache is enabled but Redis is disabled, cache will not be used")
		} else {
			embedCache = llm.NewCachedEmbeddingProvider(embedProvider, redisClient.Client(), &llm.EmbeddingCacheConfig{
				TTL:       cfg.RAGOptions.EmbeddingCache.TTL,
				KeyPrefix: cfg.RAGOptions.EmbeddingCache.KeyPrefix,
				Model:     cfg.EmbeddingOptions.Model,
			})
			embedProvider = embedCache
			logger.Infow("Embedding cache initialized", "ttl", cfg.RAGOptions.EmbeddingCache.TTL)
		}
	}

	baseChat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatRetry := resilience.DefaultRetryConfig()
	chatRetry.MaxAttempts = cfg.ChatOptions.MaxRetries + 1
	chatProvider := resilience.NewResilientChatProvider(baseChat, chatRetry, resilience.DefaultCircuitBreakerConfig())
	components = append(components, providerComponent{name: "chat-" + baseChat.Name(), pinger: chatProvider})
	if p, ok := embedProvider.(llm.Pinger); ok {
		components = append(components, providerComponent{name: "embedding-" + embedProvider.Name(), pinger: p})
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 6. 初始化协程池
	pools := pool.NewManager()
	mgr.AddCloser("pools", func(context.Context) error {
		pools.Shutdown(cfg.ServerOptions.ShutdownTimeout)
		return nil
	})
	embedPool, err := pools.Register(pool.EmbeddingPool, pool.EmbeddingConfig(cfg.EmbeddingOptions.Concurrency))
	if err != nil {
		return nil, err
	}
	indexPool, err := pools.Register(pool.IndexPool, &pool.Config{Capacity: indexPoolSize, ExpiryDuration: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	backgroundPool, err := pools.Register(pool.BackgroundPool, pool.BackgroundConfig())
	if err != nil {
		return nil, err
	}

	// 7. 初始化 Biz 层
	m := metrics.New()
	rag := cfg.RAGOptions

	chunker, err := biz.NewChunker(rag.ChunkSize, rag.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	embedRetry := resilience.DefaultRetryConfig()
	embedRetry.MaxAttempts = cfg.EmbeddingOptions.MaxRetries + 1
	embedder := biz.NewEmbedder(embedProvider, embedPool, &biz.EmbedderConfig{
		BatchSize: cfg.EmbeddingOptions.BatchSize,
		Timeout:   cfg.EmbeddingOptions.Timeout,
		Retry:     embedRetry,
	}, m)

	topics := biz.NewTopicIndex(vectorStore, biz.TopicIndexConfig{
		Enabled: rag.TopicCache.Enabled,
		Size:    rag.TopicCache.Size,
		TTL:     rag.TopicCache.TTL,
	})

	var checkpoints biz.CheckpointStore
	if redisClient != nil {
		checkpoints = biz.NewRedisCheckpointStore(redisClient.Client(), "", checkpointTTL)
	}

	retriever := biz.NewRetriever(embedder, vectorStore, &biz.RetrieverConfig{
		Collection: rag.Collection,
		Limit:      rag.Limit,
	}, m)
	registry := biz.NewRegistry(vectorStore, topics, checkpoints, &biz.RegistryConfig{
		Collection: rag.Collection,
		BatchSize:  rag.JobBatchSize,
	}, m)
	indexer := biz.NewIndexer(chunker, embedder, vectorStore, topics, indexPool, &biz.IndexerConfig{
		Collection: rag.Collection,
	}, m)
	generator := biz.NewGenerator(retriever, chatProvider, &biz.GeneratorConfig{
		Prompt: biz.PromptConfig{
			SystemPrompt:    rag.SystemPrompt,
			NoContextPrompt: rag.NoContextPrompt,
			Budget:          rag.PromptBudget,
		},
		Timeout: cfg.ChatOptions.Timeout,
	}, m)
	logger.Infow("RAG service initialized",
		"collection", rag.Collection,
		"chunk_size", rag.ChunkSize,
		"chunk_overlap", rag.ChunkOverlap,
		"topic_cache", rag.TopicCache.Enabled,
		"embedding_cache", embedCache != nil,
	)

	// 主题缓存预热，失败不影响启动
	if err := backgroundPool.Submit(func() {
		wctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := registry.ListTopics(wctx, ""); err != nil {
			logger.Warnw("Topic cache warm-up failed", "error", err.Error())
		}
	}); err != nil {
		logger.Warnw("Topic cache warm-up skipped", "error", err.Error())
	}

	// 8. 初始化 Handler 层
	ragHandler := handler.NewRAGHandler(handler.Deps{
		Indexer:        indexer,
		Retriever:      retriever,
		Registry:       registry,
		Generator:      generator,
		Metrics:        m,
		Pools:          pools,
		Breaker:        chatProvider.CircuitBreaker(),
		EmbeddingCache: embedCache,
		Components:     components,
		MaxUploadSize:  rag.MaxUploadSize,
	})

	// 9. 初始化 HTTP 服务器并注册路由
	httpServer := httpserver.NewServer(cfg.ServerOptions, validator.Global())
	router.Register(httpServer.Engine(), ragHandler)
	mgr.AddServer(httpServer)

	logger.Info("RAG service is ready")
	return &Server{srv: mgr}, nil
}

func (cfg *Config) newVectorStore(ctx context.Context) (store.VectorStore, error) {
	if cfg.RAGOptions.Store == ragopts.StoreMemory {
		logger.Warn("Using in-memory vector store, indexed documents are lost on restart")
		return store.NewMemoryStore(), nil
	}

	client, err := milvus.New(ctx, cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Infow("Milvus client initialized", "address", cfg.MilvusOptions.Address)
	return store.NewMilvusStore(client), nil
}

// Run starts the server and blocks until ctx is done or a termination signal arrives.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx)
}

// providerComponent 让 LLM 供应商参与就绪检查。
type providerComponent struct {
	name   string
	pinger llm.Pinger
}

func (p providerComponent) Name() string { return p.name }

func (p providerComponent) Ping(ctx context.Context) error { return p.pinger.Ping(ctx) }

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Store: %s\n", cfg.RAGOptions.Store)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
}
