package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/cache"
	"github.com/miradorstack/mirador-autopilot/internal/config"
	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/repo"
	"github.com/miradorstack/mirador-autopilot/internal/sim"
	"github.com/miradorstack/mirador-autopilot/internal/supervisor"
	"github.com/miradorstack/mirador-autopilot/internal/tickets"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// collaborators are the backend implementations selected by configuration.
type collaborators struct {
	env       *sim.Environment
	telemetry engine.TelemetrySource
	infra     engine.Infrastructure
	store     tickets.Store
	leases    cache.Provider
	onTick    supervisor.Hook
}

func (c *collaborators) Close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.leases != nil {
		_ = c.leases.Close()
	}
}

func buildCollaborators(cfg *config.Config, logger *slog.Logger, clock utils.Clock) (*collaborators, error) {
	c := &collaborators{}
	if cfg.Telemetry.Backend == config.BackendSimulated || cfg.Infrastructure.Backend == config.BackendSimulated {
		c.env = simEnvironment(cfg.Controller.Services, logger)
	}

	switch cfg.Telemetry.Backend {
	case config.BackendSimulated:
		c.telemetry = c.env
		env := c.env
		c.onTick = func(_ context.Context, service string) { env.StepService(service) }
	case config.BackendPrometheus:
		var logs repo.LogSource
		if cfg.Telemetry.Core.BaseURL != "" {
			logs = repo.NewMiradorCoreClient(cfg.Telemetry.Core.BaseURL, cfg.Telemetry.Core.LogsPath, cfg.Telemetry.Core.Timeout, clock)
		}
		prom, err := repo.NewPrometheusTelemetry(repo.PrometheusConfig{
			Address: cfg.Telemetry.Prometheus.Address,
			Step:    cfg.Telemetry.Prometheus.Step,
			Timeout: cfg.Telemetry.Prometheus.Timeout,
			Queries: cfg.Telemetry.Prometheus.Queries,
			Logs:    logs,
			Clock:   clock,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		c.telemetry = prom
		if cfg.Telemetry.Breaker.Enabled {
			c.telemetry = repo.NewBreakerTelemetry(prom, repo.BreakerSettings{
				Name:                "prometheus",
				ConsecutiveFailures: cfg.Telemetry.Breaker.ConsecutiveFailures,
				OpenTimeout:         cfg.Telemetry.Breaker.OpenTimeout,
				Logger:              logger,
			})
		}
	default:
		return nil, fmt.Errorf("unsupported telemetry backend %q", cfg.Telemetry.Backend)
	}

	switch cfg.Infrastructure.Backend {
	case config.BackendSimulated:
		c.infra = c.env
	case config.BackendKubernetes:
		client, err := repo.NewKubeClient(cfg.Infrastructure.Kubeconfig)
		if err != nil {
			return nil, err
		}
		c.infra = repo.NewKubeInfrastructure(client, cfg.Infrastructure.Namespace, clock, logger)
	default:
		return nil, fmt.Errorf("unsupported infrastructure backend %q", cfg.Infrastructure.Backend)
	}

	switch cfg.Tickets.Backend {
	case config.BackendMemory:
		c.store = tickets.NewMemoryStore(clock)
	case config.BackendBadger:
		store, err := tickets.OpenBadger(tickets.BadgerConfig{
			Path:       cfg.Tickets.Path,
			InMemory:   cfg.Tickets.InMemory,
			SyncWrites: cfg.Tickets.Sync,
			Logger:     logger,
			Clock:      clock,
		})
		if err != nil {
			return nil, err
		}
		c.store = store
	default:
		return nil, fmt.Errorf("unsupported tickets backend %q", cfg.Tickets.Backend)
	}

	switch cfg.Lease.Backend {
	case config.BackendLocal:
		// same TTL semantics as redis, scoped to this process
		c.leases = cache.NewMemoryProvider(clock)
	case config.BackendRedis:
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:     cfg.Lease.Addr,
			Username: cfg.Lease.Username,
			Password: cfg.Lease.Password,
			DB:       cfg.Lease.DB,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.leases = provider
	default:
		c.Close()
		return nil, fmt.Errorf("unsupported lease backend %q", cfg.Lease.Backend)
	}
	return c, nil
}

// simEnvironment seeds the default services and adds any other configured ones with baseline telemetry.
func simEnvironment(services []string, logger *slog.Logger) *sim.Environment {
	env := sim.NewDefault(logger)
	known := map[string]bool{}
	for _, s := range env.Services() {
		known[s] = true
	}
	for _, s := range services {
		if known[s] {
			continue
		}
		env.AddService(s,
			models.MetricSnapshot{models.MetricCPU: 15, models.MetricMemory: 40, models.MetricLatency: 0.05, models.MetricErrorRate: 0},
			sim.Pod{State: "Running", Replicas: 2, Version: "v1.0.0"},
			"INFO: Service started")
	}
	return env
}

func engineSettings(cfg *config.Config, logger *slog.Logger) (engine.Settings, error) {
	markers := engine.DefaultMarkers()
	if cfg.Diagnosis.MarkersPath != "" {
		loaded, err := engine.LoadMarkers(cfg.Diagnosis.MarkersPath, logger)
		if err != nil {
			return engine.Settings{}, err
		}
		markers = loaded
	}

	forecast := engine.DefaultForecastOptions()
	forecast.Window = cfg.Controller.HistoryWindow
	forecast.Horizon = cfg.Forecast.Horizon
	forecast.HighRiskTicks = cfg.Forecast.HighRiskTicks
	forecast.MinSlope = cfg.Forecast.MinSlope
	if len(cfg.Forecast.MinSlopeMetric) > 0 {
		forecast.MinSlopeByMetric = make(map[models.MetricName]float64, len(cfg.Forecast.MinSlopeMetric))
		for name, v := range cfg.Forecast.MinSlopeMetric {
			forecast.MinSlopeByMetric[models.MetricName(strings.ToLower(name))] = v
		}
	}

	return engine.Settings{
		Detection:   engine.ThresholdsFrom(engine.DefaultDetectionThresholds(), cfg.Thresholds.Detection),
		Validation:  engine.ThresholdsFrom(engine.DefaultValidationThresholds(), cfg.Thresholds.Validation),
		Forecast:    forecast,
		Markers:     markers,
		LogLines:    cfg.Controller.LogLines,
		StepTimeout: cfg.Controller.StepTimeout,
	}, nil
}
