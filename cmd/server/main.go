package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sellerpulse/notifier/internal/api"
	"github.com/sellerpulse/notifier/internal/config"
	"github.com/sellerpulse/notifier/internal/detector"
	"github.com/sellerpulse/notifier/internal/engine"
	"github.com/sellerpulse/notifier/internal/store"
	ws "github.com/sellerpulse/notifier/internal/websocket"
	"github.com/sellerpulse/notifier/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	var kv store.KV
	switch cfg.CacheBackend {
	case config.CacheMemory:
		kv = store.NewMemoryKV()
	default:
		kv = store.NewRedisKV(redisStore.Client())
	}
	snapshots := store.NewSnapshotStore(kv)

	// Pipeline: detect -> filter -> group -> enqueue
	det := detector.New(cfg.CriticalStockThreshold, logger)
	grouper := engine.NewGrouper(logger)
	enqueuer := engine.NewEnqueuer(pgStore, pgStore, redisStore.Client(), cfg.MaxRetries, logger)
	pipeline := engine.NewPipeline(det, grouper, enqueuer, pgStore, snapshots, logger)

	// Delivery side: queue dispatcher -> worker pool -> HTTP deliverer
	cb := engine.NewCircuitBreaker(redisStore.Client(), logger)
	rl := engine.NewRateLimiter(redisStore.Client(), logger)
	hub := ws.NewHub(logger)
	go hub.Run()

	deliverer := worker.NewDeliverer(pgStore, redisStore.Client(), cb, rl, hub, cfg.DeliveryTimeout, cfg.Backoff, logger)
	pool := worker.NewPool(cfg.NumWorkers, deliverer, logger)
	dispatcher := worker.NewDispatcher(redisStore.Client(), pool, logger)

	// Group-timeout sweep: seals open groups whose window elapsed with no
	// further events.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), func() {
		pipeline.Sweep(context.Background())
	}); err != nil {
		logger.Error("failed to schedule group sweep", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(pgStore, pipeline, enqueuer, cb, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pool.Start(ctx)
	sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}

		// Stop the sweep, then flush open groups onto the queue so pending
		// events are delivered on the next run rather than lost.
		<-sweeper.Stop().Done()
		pipeline.FlushAll(shutdownCtx)
		pool.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
