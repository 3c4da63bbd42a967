// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brainly-go/internal/config"
	"brainly-go/internal/handler"
	"brainly-go/internal/middleware"
	"brainly-go/internal/model"
	"brainly-go/internal/pipeline"
	"brainly-go/internal/repository"
	"brainly-go/internal/service"
	"brainly-go/pkg/database"
	"brainly-go/pkg/embedding"
	"brainly-go/pkg/es"
	"brainly-go/pkg/fetcher"
	"brainly-go/pkg/kafka"
	"brainly-go/pkg/llm"
	"brainly-go/pkg/log"
	"brainly-go/pkg/storage"
	"brainly-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、向量索引与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(&model.User{}, &model.Content{}, &model.TagCatalog{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	contentRepository := repository.NewContentRepository(database.DB)
	tagRepository := repository.NewTagRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	vectorIndex := es.NewIndex(es.ESClient, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
	resourceFetcher := fetcher.NewFetcher(cfg.Fetcher)

	fallbackClient := llm.NewOpenAICompatibleClient(cfg.LLM)
	var primaryClient llm.StructuredClient = fallbackClient
	geminiClient, err := llm.NewGeminiClient(context.Background(), cfg.Gemini)
	if err != nil {
		log.Warnf("Gemini 客户端初始化失败，抽取将只使用兜底提供方: %v", err)
	} else {
		primaryClient = geminiClient
	}

	userService := service.NewUserService(userRepository, jwtManager)
	extractService := service.NewExtractService(primaryClient, fallbackClient)
	contentService := service.NewContentService(
		contentRepository,
		tagRepository,
		vectorIndex,
		embeddingClient,
		resourceFetcher,
		extractService,
		kafka.ProducePreviewTask,
	)
	searchService := service.NewSearchService(contentRepository, vectorIndex, embeddingClient)

	// 6. 初始化预览图处理管道并启动后台 Kafka 消费者
	previewProcessor := pipeline.NewPreviewProcessor(cfg.MinIO, contentRepository)
	go kafka.StartConsumer(cfg.Kafka, previewProcessor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	userHandler := handler.NewUserHandler(userService)
	contentHandler := handler.NewContentHandler(contentService, searchService)
	extractHandler := handler.NewExtractHandler(extractService, resourceFetcher)
	authRequired := middleware.AuthMiddleware(jwtManager, userService)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", userHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(authRequired)
			{
				authed.GET("/me", userHandler.Profile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Content 路由组，需要认证
		content := apiV1.Group("/content")
		content.Use(authRequired)
		{
			content.POST("", contentHandler.Create)
			content.GET("", contentHandler.List)
			content.PUT("", contentHandler.Update)
			content.DELETE("", contentHandler.Delete)
			content.PUT("/reorder", contentHandler.Reorder)
			content.POST("/search", contentHandler.Search)
			content.POST("/reindex", contentHandler.Reindex)
			content.POST("/reconcile", contentHandler.Reconcile)
		}

		// 抽取预览路由，需要认证
		extract := apiV1.Group("/extract")
		extract.Use(authRequired)
		{
			extract.POST("", extractHandler.Extract)
		}

		// 标签目录路由，需要认证
		tags := apiV1.Group("/tags")
		tags.Use(authRequired)
		{
			tags.GET("", contentHandler.Tags)
		}
	}

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
