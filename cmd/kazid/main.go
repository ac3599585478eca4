// Kazi server: conversation orchestration, goal execution, background
// tasks, and the per-user push channel behind one HTTP surface.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kaziai/kazi/pkg/api"
	"github.com/kaziai/kazi/pkg/cleanup"
	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/goal"
	"github.com/kaziai/kazi/pkg/llm"
	"github.com/kaziai/kazi/pkg/orchestrator"
	"github.com/kaziai/kazi/pkg/services"
	"github.com/kaziai/kazi/pkg/tasks"
	"github.com/kaziai/kazi/pkg/tool"
	"github.com/kaziai/kazi/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting Kazi",
		"version", version.String(), "http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	jwtSecret := os.Getenv(cfg.Push.JWTSecretEnv)
	if jwtSecret == "" {
		slog.Error("JWT secret not set", "env", cfg.Push.JWTSecretEnv)
		os.Exit(1)
	}

	// 2. Database (migrations run on connect)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	conversationService := services.NewConversationService(dbClient)
	traceService := services.NewTraceService(dbClient)
	goalService := services.NewGoalService(dbClient)
	notificationService := services.NewNotificationService(dbClient)
	taskRunService := services.NewTaskRunService(dbClient)
	slog.Info("Services initialized")

	// 4. LLM providers and tools
	llms, err := llm.NewRegistry(cfg)
	if err != nil {
		slog.Error("Failed to initialize LLM providers", "error", err)
		os.Exit(1)
	}

	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	slog.Info("Tool registry ready", "tools", tools.Names())

	// 5. Push fabric
	hub := events.NewHub(cfg.Push.QueueSize)

	// 6. Orchestrator and goal executor
	orch := orchestrator.New(cfg, llms, tools, hub, conversationService, traceService)
	planner := goal.NewPlanner(cfg.Goals, cfg.AgentRegistry, llms.Default())
	executor := goal.NewExecutor(cfg.Goals, goalService, planner, orch, hub)

	// 7. Background task runner
	runner := tasks.NewRunner(cfg.Tasks, tools, taskRunService, notificationService,
		goalService, conversationService, hub)
	if err := runner.Start(); err != nil {
		slog.Error("Failed to start task runner", "error", err)
		os.Exit(1)
	}
	defer runner.Stop()

	// 8. Retention sweep
	retention := cleanup.NewService(cfg.Retention, taskRunService, notificationService)
	retention.Start(ctx)
	defer retention.Stop()

	// 9. HTTP server
	server := api.NewServer(cfg, jwtSecret, api.Deps{
		DB:            dbClient,
		Turns:         orch,
		Goals:         executor,
		GoalReader:    goalService,
		Conversations: conversationService,
		Traces:        traceService,
		Notifications: notificationService,
		TaskRuns:      taskRunService,
		Research:      runner,
		Hub:           hub,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Kazi started successfully")

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
