// Command voyagent runs the travel-assistant orchestration service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voyagent/voyagent/pkg/api"
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/database"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/stm"
	"github.com/voyagent/voyagent/pkg/tripplan"
	"github.com/voyagent/voyagent/pkg/turn"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string
	var addr string

	root := &cobra.Command{
		Use:           "voyagent",
		Short:         "Travel-assistant agent orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding voyagent.yaml and llm-providers.yaml")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configDir, addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	}

	root.AddCommand(serve, migrate)
	return root
}

func setupLogging() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func runServe(ctx context.Context, configDir, addr string) error {
	// .env is a developer convenience; absence is normal in production.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}
	setupLogging()

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"workers", stats.Workers, "llm_providers", stats.LLMProviders)

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database configuration: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = dbClient.Close() }()

	// Legacy trip-plan rows predate the normalized key; compute it once.
	if _, err := tripplan.NewStore(dbClient.DB()).Backfill(ctx); err != nil {
		slog.Warn("Trip-plan backfill failed", "error", err)
	}

	var rec *audit.Recorder
	if cfg.Audit.Disabled {
		rec = audit.NewDisabledRecorder()
	} else {
		rec = audit.NewRecorder(audit.NewDiskSink(cfg.Audit.Dir), cfg.Audit.Dir)
	}

	summaryProvider, err := cfg.GetLLMProvider("")
	if err != nil {
		return fmt.Errorf("resolve default llm provider: %w", err)
	}
	summaryLLM, err := llm.NewOpenAIClient(summaryProvider)
	if err != nil {
		return fmt.Errorf("build summarizer llm client: %w", err)
	}
	stmStore := stm.NewStore(cfg.Redis, cfg.Limits.STMWindow, stm.NewLLMSummarizer(summaryLLM))
	defer func() { _ = stmStore.Close() }()

	service, err := turn.NewService(cfg, dbClient.DB(), stmStore, rec)
	if err != nil {
		return fmt.Errorf("build turn service: %w", err)
	}

	server := api.NewServer(addr, service, map[string]api.HealthChecker{
		"postgres": dbClient.HealthCheck,
		"redis":    stmStore.HealthCheck,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	slog.Info("Shutdown complete")
	return nil
}

func runMigrate(ctx context.Context) error {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}
	setupLogging()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load database configuration: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = dbClient.Close() }()

	slog.Info("Migrations applied")
	return nil
}
