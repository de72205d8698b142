package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/infrastructure/auth"
	"github.com/ngoclaw/aichat/internal/infrastructure/config"
	"github.com/ngoclaw/aichat/internal/infrastructure/gcp"
	"github.com/ngoclaw/aichat/internal/infrastructure/linkpreview"
	"github.com/ngoclaw/aichat/internal/infrastructure/llm"
	_ "github.com/ngoclaw/aichat/internal/infrastructure/llm/anthropic" // register anthropic provider factory
	_ "github.com/ngoclaw/aichat/internal/infrastructure/llm/gemini"    // register gemini provider factory
	"github.com/ngoclaw/aichat/internal/infrastructure/llm/openai"
	"github.com/ngoclaw/aichat/internal/infrastructure/logger"
	"github.com/ngoclaw/aichat/internal/infrastructure/media"
	"github.com/ngoclaw/aichat/internal/infrastructure/monitoring"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence"
	"github.com/ngoclaw/aichat/internal/infrastructure/prompt"
	"github.com/ngoclaw/aichat/internal/infrastructure/realtime"
	"github.com/ngoclaw/aichat/internal/infrastructure/tracing"
	httpServer "github.com/ngoclaw/aichat/internal/interfaces/http"
	"github.com/ngoclaw/aichat/internal/interfaces/websocket"
)

const shutdownTimeout = 30 * time.Second

// App 应用程序
type App struct {
	// 配置
	config  *config.Config
	viper   *viper.Viper
	log     *logger.Logger
	logger  *zap.Logger
	version string
	db      *gorm.DB

	// 仓储层
	repos repository.Repositories
	tx    repository.Transactor

	// 基础设施
	llmRouter     *llm.Router
	gateway       *service.AIGateway
	promptEngine  *prompt.Engine
	mediaStore    service.MediaStore
	localMedia    *media.LocalStore
	monitor       *monitoring.Monitor
	bus           realtime.Bus
	traceShutdown tracing.Shutdown
	closers       []io.Closer

	// 应用服务
	tokens              *auth.TokenIssuer
	authService         *usecase.AuthService
	conversationService *usecase.ConversationService
	messageService      *usecase.MessageService
	turnUseCase         *usecase.HandleTurnUseCase

	// 接口层
	hub        *websocket.Hub
	httpServer *httpServer.Server
}

// NewApp 创建应用程序（依赖注入容器）。v 为空时不监听配置变化
func NewApp(ctx context.Context, cfg *config.Config, v *viper.Viper, log *logger.Logger, version string) (*App, error) {
	app, err := newApp(ctx, cfg, v, log, version)
	if err != nil {
		return nil, err
	}

	if err := app.initTracing(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	if err := app.initRealtime(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init realtime bus: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	if err := app.initInterfaces(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}
	return app, nil
}

// NewAppCLI 命令行模式：只有仓储、网关与应用服务，不启动 HTTP/WebSocket
func NewAppCLI(ctx context.Context, cfg *config.Config, log *logger.Logger, version string) (*App, error) {
	app, err := newApp(ctx, cfg, nil, log, version)
	if err != nil {
		return nil, err
	}
	if err := app.initApplicationServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	return app, nil
}

func newApp(ctx context.Context, cfg *config.Config, v *viper.Viper, log *logger.Logger, version string) (*App, error) {
	// 首次运行时创建 ~/.aichat/
	if err := config.Bootstrap(log.Logger); err != nil {
		log.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config:        cfg,
		viper:         v,
		log:           log,
		logger:        log.Logger,
		version:       version,
		traceShutdown: func(context.Context) error { return nil },
	}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	return app, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	db, err := persistence.NewDBConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	tx := persistence.NewGormTransactor(db)
	app.tx = tx
	app.repos = tx.Repositories()
	return nil
}

// initInfrastructure 初始化基础设施
func (app *App) initInfrastructure(ctx context.Context) error {
	app.logger.Info("Initializing infrastructure")
	ai := app.config.AI

	app.monitor = monitoring.NewMonitor(app.logger)

	// LLM Router (按 priority 故障转移，每个 provider 带熔断)
	app.llmRouter = llm.NewRouter(app.logger, llm.WithBreaker(ai.Breaker.Threshold, ai.Breaker.Timeout))
	for _, p := range ai.Providers {
		provider, err := app.createProvider(p)
		if err != nil {
			app.logger.Error("Failed to create LLM provider",
				zap.String("name", p.Name),
				zap.String("type", p.Type),
				zap.Error(err),
			)
			continue
		}
		app.llmRouter.AddProvider(provider, p.Priority)
	}
	app.logger.Info("LLM Router initialized", zap.Int("providers", app.llmRouter.Len()))

	// Prompt Engine
	engine, err := prompt.NewEngine(app.config.Prompts.PersonalitiesFile, app.logger)
	if err != nil {
		return fmt.Errorf("prompt engine: %w", err)
	}
	app.promptEngine = engine

	// 媒体存储
	switch app.config.Media.Backend {
	case "gcs":
		store, err := gcp.NewBucketStore(ctx, app.config.Media.Bucket, app.config.Media.BaseURL, app.config.Media.CredentialsFile)
		if err != nil {
			return fmt.Errorf("gcs media store: %w", err)
		}
		app.mediaStore = store
		app.closers = append(app.closers, store)
	default:
		store, err := media.NewLocalStore(app.config.Media.Dir, app.config.Media.BaseURL)
		if err != nil {
			return fmt.Errorf("local media store: %w", err)
		}
		app.mediaStore = store
		app.localMedia = store
	}

	deps := service.GatewayDeps{
		Text:    app.llmRouter,
		Media:   app.mediaStore,
		Prompts: app.promptEngine,
	}
	if llm.HasCapability[service.ImageGenerator](app.llmRouter) {
		deps.Images = app.llmRouter
	}
	switch ai.Speech.Provider {
	case "gcp":
		t, err := gcp.NewTranscriber(ctx, gcp.SpeechConfig{
			LanguageCode:    ai.Speech.Language,
			Model:           ai.Speech.Model,
			CredentialsFile: ai.Speech.CredentialsFile,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("gcp transcriber: %w", err)
		}
		deps.Transcriber = t
		app.closers = append(app.closers, t)
	case "openai":
		if llm.HasCapability[service.Transcriber](app.llmRouter) {
			deps.Transcriber = app.llmRouter
		}
	}
	if ai.TTS.Provider == "openai" && llm.HasCapability[service.Synthesizer](app.llmRouter) {
		deps.Speech = app.llmRouter
	}

	app.gateway = service.NewAIGateway(deps, service.GatewayConfig{
		DefaultModel: ai.DefaultModel,
		CodeModel:    ai.CodeModel,
		ImageModel:   ai.Image.Model,
		ImageSize:    ai.Image.Size,
		MaxTokens:    ai.MaxTokens,

		HistoryTokenBudget: ai.HistoryTokenBudget,
	}, app.logger)
	return nil
}

// createProvider openai 类型带上图像/语音模型配置，其余走工厂
func (app *App) createProvider(p config.ProviderConfig) (llm.Provider, error) {
	cfg := llm.ProviderConfig{
		Name:     p.Name,
		Type:     p.Type,
		BaseURL:  p.BaseURL,
		APIKey:   p.APIKey,
		Models:   p.Models,
		Priority: p.Priority,
	}
	if p.Type != "" && p.Type != "openai" {
		return llm.CreateProvider(cfg, app.logger)
	}
	ai := app.config.AI
	opts := openai.DefaultOptions
	if ai.Image.Model != "" {
		opts.ImageModel = ai.Image.Model
	}
	if ai.Speech.Provider == "openai" && ai.Speech.Model != "" {
		opts.TranscriptionModel = ai.Speech.Model
	}
	if ai.TTS.Model != "" {
		opts.SpeechModel = ai.TTS.Model
	}
	if ai.TTS.Voice != "" {
		opts.SpeechVoice = ai.TTS.Voice
	}
	return openai.NewWithOptions(cfg, opts, app.logger), nil
}

// initTracing 安装全局 tracer provider
func (app *App) initTracing(ctx context.Context) error {
	t := app.config.Tracing
	shutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:     t.Enabled,
		Exporter:    t.Exporter,
		Endpoint:    t.Endpoint,
		ServiceName: t.ServiceName,
		Version:     app.version,
		SampleRatio: t.SampleRatio,
	}, app.logger)
	if err != nil {
		return err
	}
	app.traceShutdown = shutdown
	return nil
}

// initRealtime 单机用内存总线，开启 redis 时跨实例广播
func (app *App) initRealtime(ctx context.Context) error {
	r := app.config.Redis
	if !r.Enabled {
		app.bus = realtime.NewInMemoryBus(app.logger, 256)
		return nil
	}
	bus, err := realtime.NewRedisBus(ctx, realtime.RedisConfig{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Channel:  r.Channel,
	}, app.logger)
	if err != nil {
		return err
	}
	app.bus = bus
	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	tokens, err := auth.NewTokenIssuer(app.config.Auth.JWTSecret, app.config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	app.tokens = tokens
	app.authService = usecase.NewAuthService(app.repos.Users, tokens, auth.NewPasswordHasher(bcrypt.DefaultCost), app.logger)
	app.conversationService = usecase.NewConversationService(app.repos, app.tx, app.logger)
	app.messageService = usecase.NewMessageService(app.repos, app.tx, app.logger)

	deps := usecase.TurnDeps{
		Users:         app.repos.Users,
		Conversations: app.repos.Conversations,
		Messages:      app.repos.Messages,
		Tx:            app.tx,
		Classifier:    service.NewIntentClassifier(),
		Gateway:       app.gateway,
		Media:         app.mediaStore,
		Links:         linkpreview.NewExtractor(),
		Metrics:       app.monitor,
	}
	if app.bus != nil {
		deps.Publisher = app.bus
	}
	app.turnUseCase = usecase.NewHandleTurnUseCase(deps, usecase.TurnConfig{
		TurnTimeout:  app.config.AI.TurnTimeout,
		HistoryLimit: app.config.AI.HistoryLimit,
	}, app.logger)
	return nil
}

// initInterfaces 初始化 HTTP 与 WebSocket
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")
	tokens := app.tokens

	app.hub = websocket.NewHub(app.logger)
	wsHandler := websocket.NewHandler(websocket.HandlerDeps{
		Hub:            app.hub,
		Tokens:         tokens,
		Turns:          app.turnUseCase,
		Conversations:  app.conversationService,
		Publisher:      app.bus,
		Gauge:          app.monitor,
		AllowedOrigins: app.config.Server.AllowedOrigins,
	}, app.logger)

	deps := httpServer.Deps{
		Auth:          app.authService,
		Conversations: app.conversationService,
		Messages:      app.messageService,
		Turns:         app.turnUseCase,
		Tokens:        tokens,
		Monitor:       app.monitor,
		Providers:     app.llmRouter,
		WebSocket:     wsHandler,
	}
	if app.localMedia != nil {
		deps.MediaDir = app.localMedia.Dir()
		deps.MediaURL = app.localMedia.BaseURL()
	}

	serviceName := ""
	if app.config.Tracing.Enabled {
		serviceName = app.config.Tracing.ServiceName
	}
	app.httpServer = httpServer.NewServer(httpServer.Config{
		Addr:           app.config.Server.Addr(),
		Mode:           app.config.Server.Mode,
		AllowedOrigins: app.config.Server.AllowedOrigins,
		ServiceName:    serviceName,
	}, deps, app.logger)
	return nil
}

// Start 启动应用程序，阻塞到 ctx 结束或某个服务失败
func (app *App) Start(ctx context.Context) error {
	if app.httpServer == nil {
		return errors.New("application was built without interfaces")
	}
	app.logger.Info("Starting application", zap.String("version", app.version))

	if app.viper != nil {
		config.Watch(app.viper, app.logger, app.applyConfig)
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := app.bus.Subscribe(gctx, app.hub.Deliver); err != nil {
		return fmt.Errorf("failed to subscribe websocket hub: %w", err)
	}
	g.Go(func() error {
		app.hub.Run(gctx)
		return nil
	})
	// 恢复上次进程中断的对话轮次，与服务并行，回复经总线推送
	g.Go(func() error {
		app.resumePendingTurns(gctx)
		return nil
	})
	g.Go(func() error {
		if err := app.httpServer.Start(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.httpServer.Stop(shutdownCtx)
	})

	app.logger.Info("Application started successfully", zap.String("address", app.config.Server.Addr()))
	return g.Wait()
}

// resumePendingTurns 补完中断的回合，失败只记日志
func (app *App) resumePendingTurns(ctx context.Context) {
	n, err := app.turnUseCase.ResumePendingTurns(ctx)
	if err != nil && ctx.Err() == nil {
		app.logger.Warn("Pending turn recovery failed", zap.Error(err))
		return
	}
	if n > 0 {
		app.logger.Info("Recovered pending turns", zap.Int("count", n))
	}
}

// applyConfig 热更新：日志级别与人格提示词
func (app *App) applyConfig(cfg *config.Config) {
	if cfg.Log.Level != app.config.Log.Level {
		if app.log.SetLevel(cfg.Log.Level) {
			app.logger.Info("Log level changed", zap.String("level", cfg.Log.Level))
		}
	}
	if cfg.Prompts.PersonalitiesFile == app.config.Prompts.PersonalitiesFile {
		if err := app.promptEngine.Reload(); err != nil {
			app.logger.Warn("Prompt reload failed", zap.Error(err))
		}
	}
	app.config.Log.Level = cfg.Log.Level
}

// Close 释放总线、外部客户端、tracing 与数据库连接
func (app *App) Close() {
	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			app.logger.Warn("Failed to close realtime bus", zap.Error(err))
		}
	}
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Warn("Failed to close client", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.traceShutdown(ctx); err != nil {
		app.logger.Warn("Failed to flush traces", zap.Error(err))
	}

	// 关闭数据库连接
	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}
	app.logger.Info("Application stopped")
}

// TurnUseCase 对话编排
func (app *App) TurnUseCase() *usecase.HandleTurnUseCase { return app.turnUseCase }

// AuthService 账号服务
func (app *App) AuthService() *usecase.AuthService { return app.authService }

// Repositories 非事务仓储
func (app *App) Repositories() repository.Repositories { return app.repos }

// ProviderCount 已注册的 LLM provider 数
func (app *App) ProviderCount() int { return app.llmRouter.Len() }
