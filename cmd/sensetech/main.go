package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sensetech/internal/app"
	"sensetech/internal/config"
	"sensetech/internal/ingest"
	"sensetech/internal/ratelimit"
	"sensetech/internal/server"
	"sensetech/internal/util"
	"sensetech/pkg/storage"
	"sensetech/pkg/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	var sessions store.SessionStore
	switch cfg.SessionStrategy {
	case "jwt":
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker)
		if err != nil {
			log.Fatalf("failed to init jwt session store: %v", err)
		}
	default:
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	}

	objects, err := storage.NewMinioStore(
		cfg.MinioEndpoint,
		cfg.MinioAccessKey,
		cfg.MinioSecretKey,
		cfg.MinioBucket,
		cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	ingestSvc, err := ingest.New(context.Background(), ingest.Config{
		Store:             dataStore,
		Objects:           objects,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		Stream:            cfg.QueueStream,
		Group:             cfg.QueueGroup,
		Concurrency:       cfg.QueueConcurrency,
		MaxRetries:        cfg.QueueMaxRetries,
		RetryDelaySeconds: cfg.QueueRetryDelaySeconds,
	})
	if err != nil {
		log.Fatalf("failed to init ingest worker: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Sessions:       sessions,
		Objects:        objects,
		Ingester:       ingestSvc,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxUploadFiles: cfg.MaxUploadFiles,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	authWindow := time.Duration(cfg.AuthRateWindowSeconds) * time.Second
	registerLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "sensetech:ratelimit:register", cfg.AuthRateLimit, authWindow)
	if err != nil {
		log.Fatalf("failed to init register limiter: %v", err)
	}
	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "sensetech:ratelimit:login", cfg.AuthRateLimit, authWindow)
	if err != nil {
		log.Fatalf("failed to init login limiter: %v", err)
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		Ingest:          ingestSvc,
		RegisterLimiter: registerLimiter,
		LoginLimiter:    loginLimiter,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxUploadFiles:  cfg.MaxUploadFiles,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("sensetech server listening", "addr", addr, "session_strategy", cfg.SessionStrategy)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
