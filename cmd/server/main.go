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

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"stockroom/backend/internal/cache"
	"stockroom/backend/internal/config"
	"stockroom/backend/internal/events"
	"stockroom/backend/internal/httpapi"
	"stockroom/backend/internal/sequence"
	"stockroom/backend/internal/service"
	"stockroom/backend/internal/stock"
	"stockroom/backend/internal/store"
	"stockroom/backend/internal/store/memory"
	pgstore "stockroom/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	var pg *pgstore.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		var err error
		pg, err = pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process cache, locks and counters")
			_ = client.Close()
		} else {
			rdb = client
			closers = append(closers, client.Close)
			logger.Info("redis: connected")
		}
	}

	sinks := []events.Sink{events.NewStoreSink(repo)}
	var listingCache cache.ListingCache = cache.NewMemoryListingCache()
	var locker stock.Locker = stock.NewKeyedMutex()
	if rdb != nil {
		sinks = append(sinks, events.NewRedisSink(rdb, cfg.NotificationChannel))
		listingCache = cache.NewRedisListingCache(rdb)
		locker = stock.NewRedisLocker(rdb, cfg.LockTTL())
	}

	gateway := events.NewGateway(logger, cfg.EventBufferSize, sinks...)
	gateway.Start()

	allocator := newAllocator(cfg.PONumberStrategy, repo, pg, rdb, logger)
	ledger := stock.NewLedger(repo, stock.Options{
		Locker:   locker,
		Notifier: gateway,
		Logger:   logger,
		Strict:   cfg.StrictOverdraft,
	})
	svc := service.New(repo, ledger, allocator, service.Options{
		Audit:                   gateway,
		Notifier:                gateway,
		Cache:                   listingCache,
		Logger:                  logger,
		DefaultRestockThreshold: cfg.DefaultRestockThreshold,
		StrictReceive:           cfg.StrictReceive,
		ListingCacheTTL:         cfg.ListingCacheTTL(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
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
		logger.WithField("addr", cfg.Address()).Info("stockroom backend listening")
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

	// Drain queued audit entries and notifications before the store goes away.
	gateway.Close()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

// newAllocator picks the purchase-order numbering strategy. Strategies whose
// backend is missing fall back to the in-process counter.
func newAllocator(strategy string, repo store.Repository, pg *pgstore.Store, rdb *redis.Client, logger *logrus.Logger) sequence.Allocator {
	switch strategy {
	case config.StrategySequence:
		if pg != nil {
			logger.Info("po numbers: postgres sequence")
			return pg
		}
		logger.Warn("po numbers: sequence strategy needs postgres, using counter")
	case config.StrategyRedis:
		if rdb != nil {
			logger.Info("po numbers: redis counter")
			return sequence.NewRedisCounter(rdb, repo, "")
		}
		logger.Warn("po numbers: redis strategy needs redis, using counter")
	case config.StrategyMax:
		logger.Warn("po numbers: legacy max+1, concurrent creates rely on retries")
		return sequence.NewMaxPlusOne(repo)
	}
	logger.Info("po numbers: in-process counter")
	return sequence.NewCounter(repo)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
