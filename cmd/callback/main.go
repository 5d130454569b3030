package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pagemarkhq/pagehook/internal/callback"
	"github.com/pagemarkhq/pagehook/internal/config"
	"github.com/pagemarkhq/pagehook/internal/courier"
	"github.com/pagemarkhq/pagehook/internal/db"
	"github.com/pagemarkhq/pagehook/internal/dispatch"
	"github.com/pagemarkhq/pagehook/internal/health"
	"github.com/pagemarkhq/pagehook/internal/logging"
	"github.com/pagemarkhq/pagehook/internal/metrics"
	"github.com/pagemarkhq/pagehook/internal/policy"
	"github.com/pagemarkhq/pagehook/internal/store"
	"github.com/pagemarkhq/pagehook/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("pagehook-callback")

	shutdown, err := tracing.InitTracing(ctx, "pagehook-callback")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("schema migration failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	verifier, err := courier.NewCallbackVerifier(cfg.Courier.SigningKey)
	if err != nil {
		logger.Plain().WithError(err).Fatal("callback verifier setup failed")
	}

	destinations := store.NewDestinations(pool)
	deliveries := store.NewDeliveries(pool)
	streaks := policy.NewRedisStreaks(rdb, cfg.Callback.StreakWindow)
	disabler := policy.NewAutoDisabler(streaks, destinations, cfg.Callback.DisableThreshold)

	handler := callback.NewHandler(deliveries, verifier, disabler, logger)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.Handle(dispatch.CallbackPath, handler)
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, rdb))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.Callback.HTTPPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("callback server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("callback server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down callback server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Plain().Info("callback server stopped")
}
