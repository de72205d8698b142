package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/application"
	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/service"
	"github.com/ngoclaw/aichat/internal/infrastructure/config"
	"github.com/ngoclaw/aichat/internal/infrastructure/logger"
	"github.com/ngoclaw/aichat/internal/interfaces/cli"
)

const cliName = "aichat"

// version 由 -ldflags "-X main.version=..." 覆盖
var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "AI chat proxy with persistence",
		Long:          "aichat — 带持久化的 AI 对话代理, 提供 HTTP API 与 WebSocket 实时通道",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP + WebSocket 服务 (默认)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "classify <text...>",
		Short: "显示一段文本的意图分类",
		Args:  cobra.MinimumNArgs(1),
		Run:   runClassify,
	})

	askCmd := &cobra.Command{
		Use:   "ask <text...>",
		Short: "以某个用户身份进行一轮对话",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().String("email", "", "用户邮箱 (必填)")
	askCmd.Flags().String("conversation", "", "已有对话 ID, 为空则新建")
	_ = askCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(askCmd)

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "账号管理",
	}
	for _, active := range []bool{false, true} {
		use, short := "deactivate", "停用账号"
		if active {
			use, short = "activate", "重新启用账号"
		}
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE:  runSetActive(active),
		}
		sub.Flags().String("email", "", "用户邮箱 (必填)")
		_ = sub.MarkFlagRequired("email")
		userCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(userCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "恢复中断的对话轮次",
		RunE:  runRecover,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ─── Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewApp(ctx, cfg, v, log, version)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	realtimeMode := "in-memory"
	if cfg.Redis.Enabled {
		realtimeMode = "redis " + cfg.Redis.Addr
	}
	fmt.Fprint(os.Stderr, cli.RenderBanner(cli.BannerInfo{
		Version:   version,
		Addr:      cfg.Server.Addr(),
		Database:  cfg.Database.Type,
		Providers: app.ProviderCount(),
		Realtime:  realtimeMode,
	}, 80))

	if err := app.Start(ctx); err != nil {
		log.Error("Application exited with error", zap.Error(err))
		return err
	}
	log.Info("Received shutdown signal, application stopped")
	return nil
}

// ─── One-shot commands ───

func runClassify(cmd *cobra.Command, args []string) {
	text := strings.Join(args, " ")
	intent, confidence := service.NewIntentClassifier().Classify(text)
	fmt.Println(cli.NewRenderer(80).RenderClassification(text, intent, confidence))
}

func runAsk(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	convID, _ := cmd.Flags().GetString("conversation")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newCLIApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	user, err := app.Repositories().Users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("lookup %s: %w", email, err)
	}

	fmt.Print("\033[90m⏳ thinking...\033[0m")
	res, err := app.TurnUseCase().Execute(ctx, usecase.TurnCommand{
		UserID:         user.ID(),
		ConversationID: convID,
		Text:           strings.Join(args, " "),
	})
	fmt.Print("\r\033[2K")
	if err != nil {
		return err
	}
	fmt.Println(cli.NewRenderer(80).RenderExchange(res))
	return nil
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newCLIApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.TurnUseCase().ResumePendingTurns(ctx)
	fmt.Println(cli.NewRenderer(80).RenderRecovery(n, err))
	return err
}

func runSetActive(active bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newCLIApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		user, err := app.AuthService().SetActive(ctx, email, active)
		if err != nil {
			return fmt.Errorf("update %s: %w", email, err)
		}
		state := "deactivated"
		if user.IsActive() {
			state = "active"
		}
		fmt.Printf("%s (%s): %s\n", user.Username(), user.Email(), state)
		return nil
	}
}

// newCLIApp 静默日志，不启动网络服务
func newCLIApp(ctx context.Context) (*application.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.NewLogger(logger.Config{
		Level:      "error",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	app, err := application.NewAppCLI(ctx, cfg, log, version)
	if err != nil {
		return nil, fmt.Errorf("初始化失败: %w", err)
	}
	return app, nil
}
