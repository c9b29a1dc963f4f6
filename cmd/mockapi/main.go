// Package main runs the sandbox API: an in-memory rendition of the business
// REST API seeded with fake data, for local development of the client.
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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
	"github.com/erp/appinv/internal/interfaces/http/mockapi"
)

var (
	configPath string
	addr       string
	seedCount  int
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to a TOML configuration file (default: config.toml lookup)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides mock.addr)")
	flag.IntVar(&seedCount, "seed", -1, "Fake records per entity (overrides mock.seed_count, 0 disables)")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Mock.Addr = addr
	}
	if seedCount >= 0 {
		cfg.Mock.SeedCount = seedCount
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Sandbox API failed", zap.Error(err))
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	tp, err := telemetry.SetupTracing(ctx, cfg.Telemetry, "appinv-mockapi", log)
	if err != nil {
		return err
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := mockapi.New(mockapi.OptionsFromConfig(cfg, log))
	if err != nil {
		return err
	}
	if _, err := server.AddUser(cfg.Mock.AdminUser, cfg.Mock.AdminPassword, identity.RolAdmin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if cfg.Mock.SeedCount > 0 {
		if err := server.Seed(cfg.Mock.SeedCount); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Mock.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Sandbox API starting",
			zap.String("addr", srv.Addr),
			zap.String("base_path", server.BasePath()),
			zap.String("admin_user", cfg.Mock.AdminUser),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("Shutting down sandbox API...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Sandbox API exited gracefully")
	return nil
}
