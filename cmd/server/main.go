package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tournament-engine/internal/action"
	"github.com/tournament-engine/internal/config"
	"github.com/tournament-engine/internal/handler"
	"github.com/tournament-engine/internal/kafka"
	"github.com/tournament-engine/internal/manager"
	"github.com/tournament-engine/internal/objective"
	"github.com/tournament-engine/internal/placeholder"
	"github.com/tournament-engine/internal/postgres"
	"github.com/tournament-engine/internal/redis"
	"github.com/tournament-engine/internal/scheduler"
	"github.com/tournament-engine/internal/sqlite"
	"github.com/tournament-engine/internal/websocket"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open score store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if lister, ok := store.(tableLister); ok {
		ids, err := lister.Tournaments(ctx)
		if err != nil {
			logger.Warn("failed to list stored tournaments", "error", err)
		}
		logger.Info("score store ready", "backend", cfg.Storage.Backend, "tournament_tables", len(ids))
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket hub initialized")

	// Game side effects go to Kafka when enabled, otherwise to the log
	var host action.Host = action.NewLogHost(logger)
	var commands *kafka.CommandPublisher
	if cfg.Kafka.Enabled {
		commands, err = kafka.NewCommandPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create command publisher, logging actions instead", "error", err)
		} else {
			host = commands
		}
	}

	names := manager.NewPlayerNames()
	dispatcher := action.NewDispatcher(host, placeholder.NewResolver(names), logger)

	mgr := manager.New(
		store,
		objective.NewDefaultRegistry(logger),
		dispatcher,
		names,
		cfg.Manager,
		cfg.Tournaments.Directory,
		logger,
	)
	mgr.SetPublisher(wsHub)
	mgr.SetScheduler(scheduler.New(&cfg.Scheduler, logger))

	managerCtx, stopManager := context.WithCancel(ctx)
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		mgr.Run(managerCtx)
	}()

	logger.Info("loading tournaments", "directory", cfg.Tournaments.Directory)
	if err := mgr.Load(ctx); err != nil {
		logger.Error("failed to load tournaments", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer for game events
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, mgr, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(ctx); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	httpHandler := handler.NewHandler(mgr, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Saves every online participant and closes the store
	if err := mgr.Shutdown(shutdownCtx, false); err != nil {
		logger.Error("failed to shutdown tournament manager", "error", err)
	}
	stopManager()
	<-managerDone

	if commands != nil {
		if err := commands.Close(); err != nil {
			logger.Error("failed to close command publisher", "error", err)
		}
	}

	cancel()
	logger.Info("server stopped")
}

// tableLister is implemented by every score store backend
type tableLister interface {
	Tournaments(ctx context.Context) ([]string, error)
}

// openStore connects the configured score store backend
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (manager.ScoreStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		store, err := redis.NewScoreStore(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, nil

	default:
		logger.Info("opening SQLite database", "path", cfg.SQLite.Path)
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
