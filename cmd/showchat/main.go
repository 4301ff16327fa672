package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"showchat/internal/config"
	"showchat/internal/metrics"
	"showchat/internal/providers/registry"
	"showchat/internal/queue"
	"showchat/internal/quota"
	"showchat/internal/server"
	"showchat/internal/storage"
	"showchat/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("provider", cfg.Provider.Kind).
		Str("model", cfg.Provider.Model).
		Int64("daily_limit", cfg.Quota.DailyLimit).
		Msg("starting showchat")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	provider, err := registry.Build(registry.BuildOptions{
		Kind:        cfg.Provider.Kind,
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		APIVersion:  cfg.Provider.APIVersion,
		HTTPClient:  &http.Client{Timeout: cfg.Provider.CallTimeout},
		MaxAttempts: cfg.Provider.MaxAttempts,
		BackoffBase: cfg.Provider.BackoffBase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider")
	}

	m := metrics.Global()
	events := queue.NewStreamQueue(rdb, cfg.Redis.EventStream, cfg.Redis.EventGroup, cfg.Worker.ConsumerName, cfg.Redis.EventBlock)

	srv := server.New(server.Config{
		Provider:       provider,
		Limiter:        quota.NewDailyLimiter(rdb, cfg.Quota.DailyLimit, cfg.Quota.KeyPrefix),
		Store:          store,
		Events:         events,
		Metrics:        m,
		Logger:         log.Logger,
		Model:          cfg.Provider.Model,
		MaxTokens:      cfg.Provider.MaxTokens,
		Temperature:    cfg.Provider.Temperature,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		HealthPath:     cfg.HTTP.HealthPath,
		MetricsPath:    cfg.HTTP.MetricsPath,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.RequestTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	w := worker.New(worker.Config{
		Store:      store,
		Queue:      events,
		MaxRetries: cfg.Worker.MaxRetries,
		Logger:     log.Logger,
		Metrics:    m,
	})
	go func() {
		if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("event worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("event worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
