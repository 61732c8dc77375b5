package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/api"
	"github.com/rsv-seq-eqa/eqa-server/internal/config"
	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/notify"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/store"
	"github.com/rsv-seq-eqa/eqa-server/internal/upload"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	st, err := openStore(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open submission store")
	}
	defer st.Close()

	// Notifications: Redis fan-out when available, local-only otherwise.
	var sink notify.Sink
	publisher, pubErr := notify.NewPublisher(cfg.Redis, logger)
	if pubErr != nil {
		logger.WithError(pubErr).Warn("Redis unavailable, notifications are local to this node")
	} else {
		defer publisher.Close()
		sink = publisher
	}

	hub, err := notify.NewHub(cfg.Redis.HistorySize, sink, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification hub")
	}
	go hub.Run(ctx)
	if publisher != nil {
		go publisher.Subscribe(ctx, hub)
	}

	platforms := store.NewResilientPlatformSource(st, logger)
	reports := report.NewService(cfg.Data.Dir, platforms, logger)
	uploads := upload.NewService(st, hub, logger)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
		"data": cfg.Data.Dir,
	}).Info("Starting EQA server")

	server := api.NewServer(*cfg, reports, st, hub, uploads, logger)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("EQA server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// openStore opens the configured backend and, for Postgres, brings the
// schema up to date.
func openStore(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) (domain.Store, error) {
	cfg := configManager.GetDatabaseConfig()

	if cfg.Driver == "sqlite" {
		logger.WithField("path", cfg.SQLitePath).Info("Using SQLite submission store")
		return store.NewSQLiteStore(cfg.SQLitePath)
	}

	runner, err := store.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.MigrationsPath, logger)
	if err != nil {
		return nil, err
	}
	if err := runner.Up(ctx); err != nil {
		runner.Close()
		return nil, err
	}
	if err := runner.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close migration runner")
	}

	return store.NewPostgresStore(ctx, *cfg, logger)
}
