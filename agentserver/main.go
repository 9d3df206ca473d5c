package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchrishi/sahabat/agentserver/internal/adapter/gateway"
	"github.com/couchrishi/sahabat/agentserver/internal/adapter/llm"
	"github.com/couchrishi/sahabat/agentserver/internal/config"
	"github.com/couchrishi/sahabat/agentserver/internal/pipeline"
	store "github.com/couchrishi/sahabat/agentserver/internal/repository"
	"github.com/couchrishi/sahabat/agentserver/internal/service"
	"github.com/couchrishi/sahabat/agentserver/internal/tracer"
	handler "github.com/couchrishi/sahabat/agentserver/internal/transport/http"
	"github.com/couchrishi/sahabat/agentserver/policy"
	"github.com/couchrishi/sahabat/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logr, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer closeLog()

	logr.Info("starting agent server",
		"port", cfg.HTTPPort,
		"database", cfg.DatabasePath,
		"mode", cfg.Mode,
		"orchestrator_model", cfg.Models.Orchestrator,
		"text_model", cfg.Models.Text)

	ctx := context.Background()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Trace)
	if err != nil {
		logr.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logr.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cached, err := store.NewCachedStore(db, cfg.SessionCacheSize)
	if err != nil {
		logr.Error("failed to initialize session cache", "error", err)
		os.Exit(1)
	}

	// Initialize model client
	modelClient, closeModel, err := llm.NewModelClient(ctx, cfg.Mode, cfg.GoogleAPIKey, cfg.Breaker, logr)
	if err != nil {
		logr.Error("failed to initialize model client", "error", err)
		os.Exit(1)
	}
	defer closeModel()

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.RoutingPolicyPath)
	if err != nil {
		logr.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Initialize gateway notifier
	httpClient := &http.Client{Timeout: 10 * time.Second}
	notifier := gateway.NewClient(cfg.GatewayURL, httpClient)
	if !notifier.Enabled() {
		logr.Info("gateway notifications disabled")
	}

	p := pipeline.New(modelClient, policyEngine, cfg.Models, logr)
	svc := service.New(cached, p, notifier, cfg, logr)

	server := handler.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logr.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	logr.Info("agent server started", "port", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down agent server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown server gracefully", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logr.Error("failed to flush traces", "error", err)
	}
	httpClient.CloseIdleConnections()

	logr.Info("agent server stopped")
}
