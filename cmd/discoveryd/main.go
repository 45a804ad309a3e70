package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/user/paybeacon/discoveryd"
)

func main() {
	cfg, err := discoveryd.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := discoveryd.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var registry discoveryd.Registry
	redisClient, err := discoveryd.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory registry", zap.Error(err))
		registry = discoveryd.NewMemoryRegistry()
	} else {
		defer redisClient.Close()
		registry = discoveryd.NewRedisRegistry(redisClient)
	}

	var profiles discoveryd.ProfileStore
	if cfg.Postgres.DSN != "" {
		pool, err := discoveryd.NewPostgresPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pool.Close()
		if cfg.Postgres.RunMigrations {
			if err := discoveryd.EnsureSchema(ctx, pool); err != nil {
				logger.Fatal("failed to ensure schema", zap.Error(err))
			}
		}
		profiles = discoveryd.NewPostgresProfiles(pool)
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory profile store")
		profiles = discoveryd.NewMemoryProfiles()
	}

	tm := discoveryd.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	handlers := discoveryd.NewHandlers(cfg, logger, registry, profiles)
	app := discoveryd.NewApp(cfg, handlers, tm)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
