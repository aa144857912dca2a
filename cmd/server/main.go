package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photocritique/internal/server/ai"
	"photocritique/internal/server/api"
	"photocritique/internal/server/apperr"
	"photocritique/internal/server/config"
	"photocritique/internal/server/database"
	"photocritique/internal/server/kv"
	"photocritique/internal/server/service"
	"photocritique/internal/server/storage"
	"photocritique/internal/server/tracing"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Structured logging
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	if !cfg.IsProduction() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	apperr.EnableStacks(!cfg.IsProduction())

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"kv_backend", cfg.KVBackend,
		"image_storage", cfg.ImageStorage,
		"max_critique_size", cfg.MaxCritiqueSize,
	)

	if cfg.GeminiAPIKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, "photocritique", version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Key-value store
	store, err := openKV(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to key-value store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("key-value store initialized", "backend", cfg.KVBackend)

	opts := []service.Option{service.WithLogger(logger)}

	// Image storage
	images, err := openImageStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize image storage", "error", err)
		os.Exit(1)
	}
	if images != nil {
		opts = append(opts, service.WithImageStore(images))
	}

	// Optional Postgres index
	var (
		db          *database.DB
		cleanup     *storage.CleanupService
		checker     api.HealthChecker
		cleanupStop = func() {}
	)
	if cfg.DatabaseURL != "" {
		db, err = database.New(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")

		repo := database.NewRepository(db)
		opts = append(opts, service.WithIndex(repo))
		checker = db

		cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
		cleanup = storage.NewCleanupService(repo, images, cfg.CleanupInterval, logger)
		cleanup.Start(cleanupCtx)
		cleanupStop = func() {
			cleanupCancel()
			cleanup.Wait()
		}
	}

	// Critique pipeline
	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, ai.ClientConfig{
		Model:             cfg.GeminiModel,
		Temperature:       float32(cfg.AITemperature),
		MaxOutputTokens:   int32(cfg.AIMaxOutputTokens),
		RequestsPerWindow: cfg.AIRequestsPerMinute,
		Window:            time.Minute,
	}, logger)
	if err != nil {
		slog.Error("failed to create AI client", "error", err)
		os.Exit(1)
	}
	critic := ai.NewRetrier(gemini, logger)
	svc := service.NewCritiqueService(critic, store, cfg, opts...)

	// Setup HTTP router
	e, limiter := api.SetupRouter(api.NewHandler(svc, checker), cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	limiter.Stop()
	cleanupStop()

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("server exited cleanly")
}

func openKV(ctx context.Context, cfg *config.Config) (*kv.Store, error) {
	switch cfg.KVBackend {
	case config.KVBackendMemory:
		return kv.NewStore(kv.NewMemoryBackend()), nil
	case config.KVBackendRedis:
		backend, err := kv.NewRedisBackend(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, err
		}
		return kv.NewStore(backend), nil
	default:
		return nil, fmt.Errorf("unknown KV_BACKEND %q", cfg.KVBackend)
	}
}

// openImageStore returns nil when images are kept inline in the record.
func openImageStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	var store storage.Store
	switch cfg.ImageStorage {
	case config.ImageStorageInline:
		return nil, nil
	case config.ImageStorageFilesystem:
		store = storage.NewFileSystemStore(cfg.StoragePath)
	case config.ImageStorageMinio:
		m, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = m
	default:
		return nil, fmt.Errorf("unknown IMAGE_STORAGE %q", cfg.ImageStorage)
	}

	if err := store.EnsureReady(ctx); err != nil {
		return nil, err
	}
	slog.Info("image storage initialized", "kind", cfg.ImageStorage)
	return store, nil
}
