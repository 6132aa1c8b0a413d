package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/ai"
	appsvc "ragchat/internal/app"
	"ragchat/internal/bootstrap"
	"ragchat/internal/cache"
	"ragchat/internal/platform/rabbitmq"
	"ragchat/internal/repository"
	"ragchat/internal/search"
	"ragchat/internal/transport/http/handler"
	"ragchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	baseRepo := repository.NewKnowledgeBaseRepository(app.MySQL)
	docRepo := repository.NewKnowledgeDocumentRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(app.Redis, cache.Config{
		HistoryTTL: time.Duration(app.Config.Redis.HistoryTTLSeconds) * time.Second,
		DirtyTTL:   time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds) * time.Second,
	})
	historyStore := appsvc.NewHistoryStore(messageRepo, historyCache, app.Config.Chat.MaxHistoryTurns)

	webSearcher := search.NewClient(search.Config{
		BaseURL:    app.Config.Search.BaseURL,
		MaxResults: app.Config.Search.MaxResults,
		Timeout:    time.Duration(app.Config.Search.TimeoutSeconds) * time.Second,
	})
	retrievalService := appsvc.NewRetrievalService(
		app.Registry,
		webSearcher,
		app.Config.Chat.TopK,
		time.Duration(app.Config.Chat.SourceTimeoutSeconds)*time.Second,
		app.Logger,
	)

	cleanupPublisher := rabbitmq.NewCleanupPublisher(app.MQConn, app.Config.RabbitMQ.SessionCleanupQueue)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		historyStore,
		retrievalService,
		ai.NewClient(),
		ai.ChatConfig{
			BaseURL: app.Config.LLM.BaseURL,
			APIKey:  app.Config.LLM.APIKey,
			Model:   app.Config.LLM.Model,
		},
		cleanupPublisher,
		app.Logger,
	)
	kbService := appsvc.NewKnowledgeBaseService(
		baseRepo,
		docRepo,
		app.Registry,
		app.Config.Storage.UploadDir,
		app.Config.Chat.ChunkSize,
		app.Logger,
	)

	chatHandler := handler.NewChatHandler(chatService)
	kbHandler := handler.NewKBHandler(kbService)
	tempDocHandler := handler.NewTempDocHandler(app.TempDocs)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireClientID())

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/stream", chatHandler.StreamMessage)
	chatGroup.GET("/history", chatHandler.GetHistory)

	kbGroup := v1.Group("/knowledge-bases")
	kbGroup.POST("", kbHandler.CreateBase)
	kbGroup.GET("", kbHandler.ListBases)
	kbGroup.DELETE("/:id", kbHandler.DeleteBase)
	kbGroup.GET("/:id/documents", kbHandler.ListDocuments)
	kbGroup.POST("/:id/documents", kbHandler.UploadDocument)
	kbGroup.DELETE("/:id/documents/:doc_id", kbHandler.DeleteDocument)

	tempGroup := v1.Group("/sessions/:id/temp-docs")
	tempGroup.POST("", tempDocHandler.Upload)
	tempGroup.GET("", tempDocHandler.List)
	tempGroup.DELETE("", tempDocHandler.Cleanup)

	return router
}
