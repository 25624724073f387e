package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rhythmstats/ranking-api/internal/cache"
	"github.com/rhythmstats/ranking-api/internal/calculator"
	"github.com/rhythmstats/ranking-api/internal/config"
	"github.com/rhythmstats/ranking-api/internal/database"
	"github.com/rhythmstats/ranking-api/internal/handlers"
	"github.com/rhythmstats/ranking-api/internal/logic"
	"github.com/rhythmstats/ranking-api/internal/notify"
	"github.com/rhythmstats/ranking-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var zlog *zap.Logger
	if cfg.Env == "production" {
		zlog, err = zap.NewProduction()
	} else {
		zlog, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := database.ConnectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalw("Postgres connection failed", "error", err)
	}
	defer pg.Close()

	ch, err := database.ConnectClickHouse(ctx, cfg.ClickHouseURL)
	if err != nil {
		logger.Fatalw("ClickHouse connection failed", "error", err)
	}
	defer ch.Close()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatalw("Redis connection failed", "error", err)
	}
	defer rdb.Close()

	if err := database.MigratePostgres(ctx, pg); err != nil {
		logger.Fatalw("Postgres migration failed", "error", err)
	}
	if err := database.MigrateClickHouse(ctx, ch); err != nil {
		logger.Fatalw("ClickHouse migration failed", "error", err)
	}

	reporter := notify.NewZapReporter(logger)
	sink := notify.NewRedisSink(rdb, cfg.NotifyChannelPrefix, logger)

	registry := calculator.NewRegistryFromConfig(cfg.Engines, cfg.CalcTimeout)
	calcClient := calculator.NewClient(registry, reporter, logger, cfg.CalcBatchSize)

	store := cache.NewStore(pg, rdb, logger)
	recalc := cache.NewRecalculator(store, calcClient, logger)

	scores := logic.NewScoreService(pg, logger)
	mutations := logic.NewMutationService(logger)
	leaderboards := logic.NewLeaderboardService(pg, logger)
	memberships := logic.NewMembershipService(pg, recalc, scores, mutations, sink, reporter, logger)

	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount:   cfg.WorkerCount,
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		ClickHouse:    ch,
		Recalc:        recalc,
		Scores:        scores,
		Memberships:   memberships,
		Logger:        logger,
	})
	memberships.SetRecalcQueue(pool)
	pool.Start(ctx)

	h := handlers.New(handlers.Config{
		WorkerPool:     pool,
		Postgres:       pg,
		ClickHouse:     ch,
		Redis:          rdb,
		Logger:         logger,
		Scores:         scores,
		Memberships:    memberships,
		Leaderboards:   leaderboards,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("Server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Server shutdown failed", "error", err)
	}

	pool.Stop()
	logger.Info("Shutdown complete")
}
