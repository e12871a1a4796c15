package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-autopilot/internal/api"
	"github.com/miradorstack/mirador-autopilot/internal/config"
	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/lease"
	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/services"
	"github.com/miradorstack/mirador-autopilot/internal/supervisor"
	"github.com/miradorstack/mirador-autopilot/internal/tracing"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-autopilot",
		slog.String("version", version),
		slog.String("address", cfg.Server.Address),
		slog.Any("services", cfg.Controller.Services),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		Pretty:      cfg.Tracing.Pretty,
	})
	if err != nil {
		logger.Error("failed to initialise tracing", slog.Any("error", err))
		os.Exit(1)
	}

	clock := utils.SystemClock{}
	collab, err := buildCollaborators(cfg, logger, clock)
	if err != nil {
		logger.Error("failed to build backends", slog.Any("error", err))
		os.Exit(1)
	}
	defer collab.Close()

	settings, err := engineSettings(cfg, logger)
	if err != nil {
		logger.Error("failed to load diagnosis markers", slog.Any("error", err))
		os.Exit(1)
	}

	ring := engine.NewRingRecorder(cfg.Controller.EventRingSize)
	controller := engine.Build(collab.telemetry, collab.infra, collab.store, settings,
		engine.WithLogger(logger),
		engine.WithRecorder(engine.MultiRecorder{engine.NewLogRecorder(logger), ring}),
		engine.WithClock(clock),
	)

	guard := lease.NewGuard(collab.leases, cfg.Lease.TTL, cfg.Lease.Prefix, logger)
	sup := supervisor.New(controller, guard, supervisor.Config{
		Services: cfg.Controller.Services,
		Interval: cfg.Controller.TickInterval,
		OnTick:   collab.onTick,
		Logger:   logger,
	})

	autopilotService := services.NewAutopilotService(logger, controller, collab.store, ring, sup, cfg.Controller.Services)
	server, err := api.NewServer(cfg.Server, autopilotService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		if err := sup.Run(ctx); err != nil {
			logger.Error("supervisor exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	// a cancelled tick still rolls back before its worker exits
	select {
	case <-supervised:
	case <-shutdownCtx.Done():
		logger.Warn("supervisor did not stop before graceful timeout")
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", slog.Any("error", err))
	}
	logger.Info("mirador-autopilot stopped")
}
