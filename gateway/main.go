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

	"github.com/couchrishi/sahabat/gateway/internal/config"
	internalhttp "github.com/couchrishi/sahabat/gateway/internal/http"
	"github.com/couchrishi/sahabat/gateway/internal/hub"
	"github.com/couchrishi/sahabat/gateway/internal/proxy"
	"github.com/couchrishi/sahabat/gateway/internal/ws"
	"github.com/couchrishi/sahabat/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logr, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer closeLog()

	logr.Info("starting gateway",
		"port", cfg.HTTPPort,
		"internal_port", cfg.InternalPort,
		"agent_server_url", cfg.AgentServerURL,
		"request_timeout", cfg.RequestTimeout)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize hub
	connectionHub := hub.New(logr)
	go connectionHub.Run(ctx)

	// One client for every upstream call; released at shutdown.
	httpClient := proxy.NewHTTPClient(cfg.RequestTimeout)
	agent := proxy.NewClient(cfg.AgentServerURL, httpClient).WithReadTimeout(cfg.RequestTimeout)

	wsServer := ws.NewServer(cfg, connectionHub, agent, logr)
	server := internalhttp.NewServer(cfg, connectionHub, agent, wsServer, logr)
	internalServer := internalhttp.NewInternalServer(connectionHub, logr)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logr.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logr.Error("failed to start internal server", "error", err)
			os.Exit(1)
		}
	}()

	logr.Info("gateway started", "port", cfg.HTTPPort, "internal_port", cfg.InternalPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down gateway")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown server gracefully", "error", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown internal server gracefully", "error", err)
	}
	stop()
	httpClient.CloseIdleConnections()

	logr.Info("gateway stopped")
}
