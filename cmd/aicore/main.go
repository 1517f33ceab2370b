package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perculacms/aicore/internal/app"
	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/gateway"
	"github.com/perculacms/aicore/internal/ratelimit"
	"github.com/perculacms/aicore/internal/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loader := config.NewLoader(*configPath, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger, logCloser := telemetry.NewLogger(cfg.Telemetry, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics(nil)

	a, err := app.New(ctx, cfg, logger, app.Options{Metrics: metrics})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	limiter := ratelimit.NewLimiter(a.Redis)
	limiter.SetDefaultRPM(cfg.RateLimit.DefaultRPM)

	loader.OnReload(func(newCfg *config.Config) {
		if err := a.ApplyConfig(newCfg); err != nil {
			logger.Error("reloaded configuration rejected", "error", err)
			return
		}
		limiter.SetDefaultRPM(newCfg.RateLimit.DefaultRPM)
		logger.Info("configuration reloaded; server and database settings apply on restart")
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	if cfg.Agents.Watch {
		if err := a.Catalog.Watch(ctx); err != nil {
			logger.Warn("failed to start agent watcher", "error", err)
		}
	}

	budget := ratelimit.NewBudgetTracker(a.Redis)
	handler := gateway.NewHandler(gateway.Deps{
		Router:  a.Router,
		Catalog: a.Catalog,
		Agents:  a.Agents,
		Jobs:    a.Store,
		Models:  a.Store,
		Budget:  budget,
		DB:      a.Store,
		Version: version,
		Logger:  logger,
	})
	r := gateway.NewRouter(gateway.RouterConfig{
		Handler:  handler,
		KeyStore: auth.NewCachedKeyStore(a.Store, a.Redis, logger),
		Limiter:  limiter,
		Budget:   budget,
		Metrics:  metrics,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("aicore starting", "addr", addr, "version", version, "database", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("aicore stopped")
}
