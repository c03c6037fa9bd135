package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/appointment-engine/internal/config"
	"github.com/jwalitptl/appointment-engine/internal/handler/health"
	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/repository/postgres"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/messaging/redis"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	log.Logger = appLog.ZL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:                cfg.Redis.URL,
		BreakerMaxFailures: cfg.Redis.BreakerMaxFailures,
		BreakerTimeout:     cfg.Redis.BreakerTimeout,
	}, appLog)
	if err != nil {
		appLog.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "appointment_engine", "worker")
	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxRetries:   cfg.Outbox.MaxRetries,
	}, appLog, m)
	if err != nil {
		appLog.Fatal(err, "failed to create outbox processor")
	}
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.RetentionPeriod, cfg.Outbox.CleanupInterval, appLog)

	// Health and metrics
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	health.NewHandler(map[string]health.Pinger{
		"database": db,
		"redis":    health.PingFunc(broker.Ping),
	}).RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error(err, "metrics server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	appLog.Info("worker started", "metrics_port", cfg.Server.MetricsPort)

	<-ctx.Done()
	appLog.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "metrics server forced to shutdown")
	}
	wg.Wait()

	appLog.Info("worker exited properly")
}
