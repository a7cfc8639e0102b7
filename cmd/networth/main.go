package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"networth/internal/amqp"
	"networth/internal/config"
	apphttp "networth/internal/http"
	applog "networth/internal/log"
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

	logger.Info("Starting networth server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
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
	netWorth := services.NewNetWorthService(repo)
	classifier := services.NewClassifier(repo)
	refresh := services.NewRefreshService(repo, syncSvc, netWorth, classifier)
	link := services.NewLinkService(repo, providerClient, syncSvc, netWorth)

	// The broker is optional: without it, refreshes run inside this process.
	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		logger.Info("Refresh queue enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - refreshes run in-process")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Storage:  repo,
		Views:    services.NewViewService(repo),
		NetWorth: netWorth,
		Budgets:  services.NewBudgetService(repo),
		Refresh:  refresh,
		Link:     link,
		Broker:   broker,
		Logger:   applog.New(applog.DefaultConfig()).WithComponent("http"),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port, "provider_env", cfg.PlaidEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Daily refresh at the configured wall-clock time. With a broker the
	// request is queued for the worker; otherwise it runs here.
	g.Go(func() error {
		return runDailySchedule(ctx, cfg.RefreshHour, cfg.RefreshMinute, func(runCtx context.Context) {
			if broker != nil {
				if _, err := broker.PublishRefreshRequest(runCtx, "schedule"); err != nil {
					slog.ErrorContext(runCtx, "Failed to queue scheduled refresh", "error", err)
				}
				return
			}
			if _, err := refresh.RefreshAll(runCtx); err != nil {
				slog.ErrorContext(runCtx, "Scheduled refresh failed", "error", err)
			}
		})
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			return ctx.Err()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// runDailySchedule invokes fn once per day at hour:minute local time.
func runDailySchedule(ctx context.Context, hour, minute int, fn func(context.Context)) error {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			slog.InfoContext(ctx, "Running scheduled refresh", "at", next.Format(time.RFC3339))
			fn(ctx)
		}
	}
}
