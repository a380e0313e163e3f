package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"distledger/internal/cache"
	"distledger/internal/config"
	"distledger/internal/httpapi"
	"distledger/internal/lock"
	"distledger/internal/logging"
	"distledger/internal/service"
	"distledger/internal/store"
	"distledger/internal/store/memory"
	pgstore "distledger/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.WithField("module", "main").Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.WithField("module", "main").Info("repository: in-memory")
	}

	summaries, locker, closeRedis := connectRedis(ctx, cfg, logger)
	if closeRedis != nil {
		closers = append(closers, closeRedis)
	}

	svc := service.New(repo, locker, summaries, logger, service.Config{
		SummaryTTL: cfg.SummaryTTL(),
		Location:   loc,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.TokenTTL(), repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("distledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

// connectRedis returns the summary cache and locker to use. Without a
// reachable Redis it falls back to the no-op cache and in-process locks, which
// are only safe for a single instance.
func connectRedis(ctx context.Context, cfg config.Config, logger *logrus.Logger) (cache.SummaryCache, lock.Locker, func() error) {
	entry := logger.WithField("module", "main")
	if cfg.RedisAddr == "" {
		entry.Info("cache: noop, locks: local")
		return cache.NoopSummaryCache{}, lock.NewLocal(), nil
	}

	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	summaries := cache.NewRedisSummaryCache(client)
	if err := summaries.Ping(ctx); err != nil {
		entry.WithError(err).Warn("redis unavailable, using noop cache and local locks")
		_ = summaries.Close()
		return cache.NoopSummaryCache{}, lock.NewLocal(), nil
	}
	entry.Info("cache: redis, locks: redis")
	return summaries, lock.NewRedis(client, cfg.LockTTL(), logger), summaries.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
