package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/certsentry/certsentry/internal/api"
	"github.com/certsentry/certsentry/internal/api/handlers"
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

	// Redis is optional; without it batch runs are unguarded and run
	// reports are not retained.
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
	batch := notifier.NewScheduler(repo, certChecker, dispatcher, locker, collector, logger, cfg.Scheduler)

	handler := handlers.NewHandler(repo, cache, certChecker, probe.NewResolver(), batch, cfg, logger)
	server := api.NewServer(cfg, handler, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
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
