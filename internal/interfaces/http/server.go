package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/interfaces/http/handlers"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Addr           string
	Mode           string // debug, release, test
	AllowedOrigins []string
	ServiceName    string // otel span 前缀，空则不挂 tracing 中间件
}

// Deps 路由依赖，Monitor/Providers/WebSocket/Media 可为空
type Deps struct {
	Auth          *usecase.AuthService
	Conversations *usecase.ConversationService
	Messages      *usecase.MessageService
	Turns         *usecase.HandleTurnUseCase
	Tokens        handlers.TokenParser
	Monitor       Monitor
	Providers     handlers.ProviderLister
	WebSocket     http.Handler
	// MediaDir 非空时把本地媒体目录挂到 MediaURL 下
	MediaDir string
	MediaURL string
}

// Monitor 监控：请求计数、统计与 Prometheus 导出
type Monitor interface {
	RequestMetrics
	handlers.StatsSource
	PrometheusHandler() http.Handler
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter 构建 gin 路由
func NewRouter(cfg Config, deps Deps, logger *zap.Logger) *gin.Engine {
	// 设置Gin模式
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	if deps.Monitor != nil {
		router.Use(metricsMiddleware(deps.Monitor))
	}
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(cfg.AllowedOrigins))
	}
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	setupRoutes(router, deps, logger)
	return router
}

// Start 启动服务器，阻塞直到监听失败或被 Stop
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, deps Deps, logger *zap.Logger) {
	system := handlers.NewSystemHandler(deps.Monitor, deps.Providers, logger)
	authH := handlers.NewAuthHandler(deps.Auth, logger)
	convH := handlers.NewConversationHandler(deps.Conversations, logger)
	msgH := handlers.NewMessageHandler(deps.Messages, logger)
	chatH := handlers.NewChatHandler(deps.Turns, logger)

	// 健康检查
	router.GET("/health", system.Health)
	if deps.Monitor != nil {
		router.GET("/metrics", gin.WrapH(deps.Monitor.PrometheusHandler()))
	}
	if deps.WebSocket != nil {
		router.GET("/ws", gin.WrapH(deps.WebSocket))
	}
	if deps.MediaDir != "" && strings.HasPrefix(deps.MediaURL, "/") {
		router.Static(deps.MediaURL, deps.MediaDir)
	}

	v1 := router.Group("/api/v1")

	// 公开
	v1.POST("/auth/register", authH.Register)
	v1.POST("/auth/login", authH.Login)

	// 需要登录
	protected := v1.Group("")
	protected.Use(handlers.RequireAuth(deps.Tokens, logger))
	{
		protected.GET("/auth/me", authH.Me)
		protected.PUT("/auth/me/preferences", authH.UpdatePreferences)

		protected.GET("/conversations", convH.List)
		protected.POST("/conversations", convH.Create)
		protected.GET("/conversations/:id", convH.Get)
		protected.PATCH("/conversations/:id", convH.Update)
		protected.DELETE("/conversations/:id", convH.Delete)
		protected.GET("/conversations/:id/messages", convH.Messages)
		protected.POST("/conversations/:id/share", convH.Share)
		protected.DELETE("/conversations/:id/share/:userId", convH.Unshare)

		protected.POST("/chat", chatH.Send)

		protected.GET("/messages/:id", msgH.Get)
		protected.PUT("/messages/:id", msgH.Edit)
		protected.DELETE("/messages/:id", msgH.Delete)
		protected.POST("/messages/:id/restore", msgH.Restore)
		protected.POST("/messages/:id/reactions", msgH.React)
		protected.DELETE("/messages/:id/reactions", msgH.Unreact)
		protected.POST("/messages/:id/mentions", msgH.Mention)

		protected.GET("/providers", system.Providers)
		protected.GET("/system/stats", system.Stats)
		protected.GET("/system/runtime", system.Runtime)
	}
}
