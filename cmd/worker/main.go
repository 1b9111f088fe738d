package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/checker"
	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/mailer"
	"github.com/certsentry/certsentry/internal/metrics"
	"github.com/certsentry/certsentry/internal/notifier"
	"github.com/certsentry/certsentry/internal/probe"
	"github.com/certsentry/certsentry/internal/storage/postgres"
	"github.com/certsentry/certsentry/internal/storage/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger := newLogger(cfg.Server.Mode)
	defer logger.Sync()

	// Database
	db, err := postgres.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	repo := postgres.NewRepository(db)

	var cache *redis.Client
	var locker notifier.Locker = notifier.NopLocker{}
	if cfg.Redis.URL != "" {
		cache = redis.NewClient(cfg.Redis.URL)
		defer cache.Close()
		locker = redis.NewLocker(cache)
	}

	collector := metrics.NewCollector(cfg.RemoteWrite)
	certChecker := checker.New(probe.NewProber(), logger, cfg.Checker)
	dispatcher := mailer.NewSMTPDispatcher(cfg.SMTP, logger)
	scheduler := notifier.NewScheduler(repo, certChecker, dispatcher, locker, collector, logger, cfg.Scheduler)

	ctx, cancel := context.WithCancel(context.Background())

	go collector.StartRemoteWrite(ctx)

	ticker := time.NewTicker(cfg.Scheduler.Interval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runBatch(ctx, scheduler, cache, cfg, logger)
			}
		}
	}()

	logger.Info("notification worker started",
		zap.Duration("interval", cfg.Scheduler.Interval),
		zap.Bool("force_refresh", cfg.Scheduler.ForceRefresh),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	logger.Info("worker stopped")
}

func runBatch(ctx context.Context, scheduler *notifier.Scheduler, cache *redis.Client, cfg *config.Config, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.BatchTimeout)
	defer cancel()

	report, err := scheduler.RunBatch(runCtx, notifier.Options{
		ForceRefresh: cfg.Scheduler.ForceRefresh,
		Trigger:      "schedule",
	})
	if errors.Is(err, notifier.ErrBatchInProgress) {
		logger.Warn("skipping scheduled batch, another run in progress")
		return
	}
	if err != nil {
		logger.Error("scheduled batch failed", zap.Error(err))
		if report == nil {
			return
		}
	}

	if cache == nil {
		return
	}
	storeCtx, storeCancel := context.WithTimeout(context.Background(), redis.DefaultTimeout)
	defer storeCancel()
	if err := cache.StoreBatchReport(storeCtx, report, cfg.Scheduler.ReportTTL); err != nil {
		logger.Error("failed to store batch report",
			zap.String("run_id", report.RunID.String()),
			zap.Error(err),
		)
	}
}

func newLogger(mode string) *zap.Logger {
	if mode == "release" {
		logger, err := zap.NewProduction()
		if err != nil {
			log.Fatal("Failed to create logger: ", err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	return logger
}
