// Package main 是应用程序的入口点。
package main

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/handler"
	"auto-advisor-go/internal/middleware"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/pipeline"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/internal/service"
	"auto-advisor-go/pkg/database"
	"auto-advisor-go/pkg/embedding"
	"auto-advisor-go/pkg/es"
	"auto-advisor-go/pkg/kafka"
	"auto-advisor-go/pkg/llm"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/metrics"
	"auto-advisor-go/pkg/storage"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	catalogPath := flag.String("catalog", "./configs/catalog.sample.json", "车源样例数据，ES 未配置或新建索引时使用")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 3. 初始化数据库：长期记忆与检索审计依赖它，未配置时记忆退化为进程内存储
	var memoryRepo repository.MemoryRepository
	var auditRepo repository.AuditRepository
	if cfg.Database.DSN != "" {
		if err := database.InitDB(cfg.Database.Driver, cfg.Database.DSN); err != nil {
			log.Fatal("数据库初始化失败", err)
		}
		if err := repository.AutoMigrateMemory(database.DB); err != nil {
			log.Fatal("迁移 memory_records 失败", err)
		}
		if err := database.DB.AutoMigrate(&model.SearchAudit{}); err != nil {
			log.Fatal("迁移 search_audits 失败", err)
		}
		memoryRepo = repository.NewMemoryRepository(database.DB)
		auditRepo = repository.NewAuditRepository(database.DB)
	} else {
		log.Warnf("未配置数据库，长期记忆仅保存在进程内，检索审计关闭")
		memoryRepo = repository.NewInMemoryMemoryRepository()
	}

	// 4. 初始化 Redis 会话存储
	var sessionRepo repository.SessionRepository
	if cfg.Database.Redis.Addr != "" {
		if err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		sessionRepo = repository.NewSessionRepository(database.RDB)
	} else {
		log.Warnf("未配置 Redis，会话仅保存在进程内")
		sessionRepo = repository.NewInMemorySessionRepository()
	}

	// 5. Embedding 客户端，带进程内缓存
	var embeddingClient embedding.Client
	if cfg.Embedding.BaseURL != "" {
		embeddingClient = embedding.NewCachedClient(embedding.NewClient(cfg.Embedding),
			time.Duration(cfg.Embedding.CacheMinutes)*time.Minute)
	}

	// 6. 车源目录：优先 Elasticsearch，否则加载样例数据到内存
	catalogRepo, err := initCatalog(bgCtx, cfg, embeddingClient, *catalogPath)
	if err != nil {
		log.Fatal("车源目录初始化失败", err)
	}

	// 7. MinIO 会话归档
	if cfg.MinIO.Endpoint != "" {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Warnf("MinIO 初始化失败，压缩的会话记录将直接丢弃: %v", err)
		}
	}
	archive := repository.NewSessionArchive(storage.MinioClient, cfg.MinIO.BucketName)

	// 8. 检索审计：有 Kafka 时异步投递，否则同步落库
	var publisher service.TurnPublisher
	if auditRepo != nil {
		processor := pipeline.NewProcessor(auditRepo)
		if cfg.Kafka.Brokers != "" {
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()
			publisher = producer
			go kafka.StartConsumer(bgCtx, cfg.Kafka, processor)
		} else {
			publisher = pipeline.NewDirectPublisher(processor)
		}
	}

	// 9. 初始化 Service (依赖注入)
	var oracle service.TextOracle
	if cfg.LLM.BaseURL != "" {
		oracle = llm.NewClient(cfg.LLM)
	} else {
		log.Warnf("未配置 LLM，全部组件使用规则回退")
	}
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	assistantCfg := cfg.Assistant

	memoryService := service.NewMemoryService(memoryRepo, embeddingClient,
		time.Duration(assistantCfg.MemoryRetryBackoffMs)*time.Millisecond)
	searchService := service.NewSearchService(catalogRepo, oracle, timeout, assistantCfg)
	conversationService := service.NewConversationService(sessionRepo, auditRepo)
	chatService := service.NewChatService(service.ChatDeps{
		Sessions:    sessionRepo,
		Archive:     archive,
		Catalog:     catalogRepo,
		Classifier:  service.NewClassifierService(oracle, timeout),
		Contexts:    service.NewContextService(),
		Extractor:   service.NewExtractionService(oracle, timeout, assistantCfg),
		Search:      searchService,
		Suggestions: service.NewSuggestionService(),
		Memory:      memoryService,
		Oracle:      oracle,
		Publisher:   publisher,
		Config:      assistantCfg,
		Timeout:     timeout,
	})

	// 10. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	registerRoutes(r, chatService, conversationService, searchService, memoryService)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	// 停止 Kafka 消费者
	cancelBg()
	log.Info("服务已优雅关闭")
}

// registerRoutes 注册全部 HTTP 路由。
func registerRoutes(r *gin.Engine, chat service.ChatService, conversations service.ConversationService,
	search service.SearchService, memory service.MemoryService) {
	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.UserIdentity())
	{
		chatHandler := handler.NewChatHandler(chat)
		apiV1.POST("/chat/turn", chatHandler.Turn)
		apiV1.GET("/chat/ws", chatHandler.Handle)

		conversationHandler := handler.NewConversationHandler(conversations)
		sessions := apiV1.Group("/sessions")
		{
			sessions.GET("", conversationHandler.ListSessions)
			sessions.GET("/:sessionId", conversationHandler.GetSession)
			sessions.GET("/:sessionId/trace", conversationHandler.GetTrace)
		}

		apiV1.POST("/search", handler.NewSearchHandler(search).Search)
		apiV1.GET("/memories", handler.NewMemoryHandler(memory).Recall)
	}
}

// initCatalog 选择车源目录实现。ES 索引为本次新建时用样例数据填充。
func initCatalog(ctx context.Context, cfg config.Config, embeddingClient embedding.Client, samplePath string) (repository.CatalogRepository, error) {
	if cfg.Elasticsearch.Addresses == "" {
		items, err := repository.LoadCatalogFile(samplePath)
		if err != nil {
			return nil, err
		}
		log.Infof("未配置 Elasticsearch，使用内存车源目录，共 %d 条", len(items))
		return repository.NewInMemoryCatalogRepository(items), nil
	}

	created, err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("es 初始化失败: %w", err)
	}
	if created {
		items, err := repository.LoadCatalogFile(samplePath)
		if err != nil {
			log.Warnf("读取样例车源失败，索引保持为空: %v", err)
		} else if _, err := pipeline.NewCatalogIndexer(embeddingClient, cfg.Elasticsearch.IndexName).IndexAll(ctx, items); err != nil {
			log.Warnf("样例车源导入中断: %v", err)
		}
	}
	return repository.NewCatalogRepository(es.ESClient, cfg.Elasticsearch.IndexName, embeddingClient), nil
}
