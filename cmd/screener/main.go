package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/stock-screener/internal/application"
	"github.com/jmanzanog/stock-screener/internal/bootstrap"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/config"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/metrics"
	httpHandler "github.com/jmanzanog/stock-screener/internal/interfaces/http"
	"github.com/joho/godotenv"
)

// buildServer creates and configures the HTTP server with all routes and handlers
func buildServer(cfg *config.Config, services *bootstrap.Services, trigger httpHandler.RefreshTrigger) *http.Server {
	router := gin.Default()
	handler := httpHandler.NewHandler(services.Screening, trigger, services.Status, cfg.Markets)
	httpHandler.SetupRoutes(router, handler, httpHandler.RouteConfig{
		ScreenRateLimit:  cfg.ScreenRateLimit,
		RefreshRateLimit: cfg.RefreshRateLimit,
		Metrics:          services.Metrics,
		MetricsHandler:   metrics.Handler(services.Registry),
	})

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// App wraps the application components for easier testing
type App struct {
	Server        *http.Server
	Scheduler     *application.RefreshScheduler
	Services      *bootstrap.Services
	CancelContext context.CancelFunc
}

// Shutdown stops accepting requests, cancels any refresh in flight and
// releases the stores.
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application...")

	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Scheduler.Stop()
	a.CancelContext()

	if err := a.Services.Close(); err != nil {
		return fmt.Errorf("closing stores: %w", err)
	}
	return nil
}

// run contains the main application logic without os.Exit calls
// This makes it testeable
func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, logCloser, err := bootstrap.SetupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}

	scheduler := application.NewRefreshScheduler(services.Orchestrator, cfg.RefreshInterval)
	go scheduler.Start(ctx)

	server := buildServer(cfg, services, scheduler)

	app := &App{
		Server:        server,
		Scheduler:     scheduler,
		Services:      services,
		CancelContext: cancel,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		_ = app.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("Server exited gracefully")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
