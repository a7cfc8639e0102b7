package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"networth/internal/amqp"
	"networth/internal/config"
	"networth/internal/provider/plaid"
	"networth/internal/services"
	"networth/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting networth-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := services.SeedDefaultCategories(ctx, repo); err != nil {
		logger.Error("Failed to seed category policy", "error", err)
		os.Exit(1)
	}

	providerClient := plaid.NewClient(cfg.ProviderHost(), cfg.PlaidClientID, cfg.PlaidSecret)
	syncSvc := services.NewSyncService(repo, providerClient)
	refresh := services.NewRefreshService(repo, syncSvc,
		services.NewNetWorthService(repo), services.NewClassifier(repo))

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Queued refresh requests from the API or the scheduler.
	go func() {
		err := amqpClient.ConsumeWithRetry(ctx, func(msg *amqp.RefreshRequestedMessage) error {
			report, err := refresh.RefreshAll(ctx)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Queued refresh finished",
				"run_id", msg.RunID,
				"source", msg.Source,
				"items", report.ItemsProcessed,
				"failed", report.ItemsFailed)
			return nil
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	// Safety-net refresh in case queued requests are missed.
	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := refresh.RefreshAll(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "Periodic refresh failed", "error", err)
					continue
				}
				slog.InfoContext(ctx, "Periodic refresh finished",
					"items", report.ItemsProcessed, "failed", report.ItemsFailed)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker stopped")
}
