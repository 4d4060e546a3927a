package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trustpanel/internal/analysis"
	"trustpanel/internal/bridge"
	"trustpanel/internal/common/config"
	"trustpanel/internal/common/database"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/common/observability"
	"trustpanel/internal/panel"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync() //nolint:errcheck
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting trustpanel",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		zapLog.Fatal("failed to create redis client", zap.Error(err))
	}
	defer rdb.Close()

	err = retryWithBackoff(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rdb.Ping(ctx)
	}, 5, time.Second, zapLog, "redis connection")
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	msgBridge := bridge.New(rdb, cfg.Bridge, log)

	client := analysis.NewClient(cfg.Analysis, log)
	coordinator := analysis.NewCoordinator(client, log,
		analysis.WithConcurrency(cfg.Analysis.Concurrency))

	controller := panel.NewController(msgBridge, coordinator, log, obs)

	if err := msgBridge.Subscribe(context.Background(), controller.HandleLinks); err != nil {
		zapLog.Fatal("failed to subscribe to notification channel", zap.Error(err))
	}

	zapLog.Info("message bridge ready",
		zap.String("session", msgBridge.Session()),
		zap.String("commandChannel", msgBridge.CommandChannel()),
		zap.String("linksChannel", msgBridge.LinksChannel()),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := controller.StartScan(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/panel", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(controller.Snapshot())
	})
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		zapLog.Info("http server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("shutting down")

	// Close the bridge first so no notification restarts a scan mid-shutdown.
	if err := msgBridge.Close(); err != nil {
		zapLog.Warn("bridge close", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLog.Warn("http server shutdown", zap.Error(err))
	}

	zapLog.Info("shutdown complete")
}
