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
	"golang.org/x/time/rate"

	"github.com/muandane/ziria/internal/avatar"
	"github.com/muandane/ziria/internal/cache"
	"github.com/muandane/ziria/internal/config"
	"github.com/muandane/ziria/internal/handlers"
	"github.com/muandane/ziria/internal/identity"
	"github.com/muandane/ziria/internal/mojang"
	"github.com/muandane/ziria/internal/router"
	"github.com/muandane/ziria/internal/storage"
	"github.com/muandane/ziria/internal/texture"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newBackend(ctx context.Context, cfg *config.Config) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		backend, err := cache.NewRedisBackendFromURL(cfg.Redis.URL())
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		if err := backend.Ping(ctx); err != nil {
			// Renders still work without a cache, so this is not fatal.
			slog.Warn("redis is not reachable yet", "error", err, "host", cfg.Redis.Host)
		}
		return backend, nil
	case config.BackendS3:
		client, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket); err != nil {
			return nil, err
		}
		return cache.NewS3Backend(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil
	default:
		return cache.NewMemoryBackend(cache.CleanupInterval), nil
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	backend, err := newBackend(startCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("cache backend: %w", err)
	}
	store := cache.NewStore(backend, cfg.CacheTTL)
	defer store.Close()

	client := mojang.NewClient(mojang.Config{
		APIURL:     cfg.Upstream.APIURL,
		SessionURL: cfg.Upstream.SessionURL,
		UserAgent:  cfg.Upstream.UserAgent,
		HTTPClient: &http.Client{Timeout: cfg.Upstream.Timeout},
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Upstream.Rate), cfg.Upstream.Burst),
		Logger:     logger,
	})

	stats := handlers.NewStatsHandler(store)
	pipeline := avatar.New(
		identity.NewResolver(client),
		texture.NewFetcher(client),
		store,
		avatar.Options{Logger: logger, Recorder: stats},
	)

	render, err := handlers.NewRenderHandler(pipeline, cfg.ResponseMaxAge, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler := router.NewRouter(logger).Setup(router.Handlers{
		Render: render,
		Health: handlers.NewHealthHandler(),
		Ready:  handlers.NewReadyHandler(store, logger),
		Stats:  stats,
		Flush:  handlers.NewFlushHandler(store, logger),
	}, cfg.AdminSecret)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"cache_backend", cfg.CacheBackend,
			"cache_ttl", cfg.CacheTTL.String(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	pipeline.Wait()
	logger.Info("pending cache writes finished")
	return nil
}
