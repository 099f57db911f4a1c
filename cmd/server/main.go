/*
main.go - HR engine server entry point

PURPOSE:
  Loads configuration, wires the HR engine and serves the HTTP API.
  Handles graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (file, .env, HR_* environment)
  3. Wire store, file storage, notifier and services
  4. Start the probation scheduler (when enabled)
  5. Start the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a TOML or YAML config file (optional)
  -dev     Human-readable development logging

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store and sinks

SEE ALSO:
  - api/server.go: Router configuration
  - app/app.go: Component wiring
  - config/config.go: Settings and environment variables
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/api"
	"github.com/warp/hr-engine/app"
	"github.com/warp/hr-engine/config"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML or YAML config file")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	logger := initLogger(*dev)
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initLogger(dev bool) *zap.Logger {
	if dev {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (HR_JWT_SECRET) is required")
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.Absences, a.Store, a.Store, a.Files, a.Scanner, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	var scheduler *api.ProbationScheduler
	if cfg.Probation.Enabled {
		scheduler = api.NewProbationScheduler(a.Scanner, cfg.Probation.Companies, cfg.Probation.Interval.Duration, logger)
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
