package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the collaborator sections.
const (
	BackendSimulated  = "simulated"
	BackendPrometheus = "prometheus"
	BackendKubernetes = "kubernetes"
	BackendMemory     = "memory"
	BackendBadger     = "badger"
	BackendLocal      = "local"
	BackendRedis      = "redis"
)

// Config captures everything required to boot the autopilot daemon.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Controller     ControllerConfig     `yaml:"controller"`
	Thresholds     ThresholdsConfig     `yaml:"thresholds"`
	Forecast       ForecastConfig       `yaml:"forecast"`
	Diagnosis      DiagnosisConfig      `yaml:"diagnosis"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Tickets        TicketsConfig        `yaml:"tickets"`
	Lease          LeaseConfig          `yaml:"lease"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ControllerConfig sets the tick cadence and per-tick bounds.
type ControllerConfig struct {
	Services      []string      `yaml:"services"`
	TickInterval  time.Duration `yaml:"tickInterval"`
	StepTimeout   time.Duration `yaml:"stepTimeout"`
	HistoryWindow int           `yaml:"historyWindow"`
	LogLines      int           `yaml:"logLines"`
	EventRingSize int           `yaml:"eventRingSize"`
}

// ThresholdsConfig holds the detection and post-remediation limits, keyed by metric name.
type ThresholdsConfig struct {
	Detection  map[string]float64 `yaml:"detection"`
	Validation map[string]float64 `yaml:"validation"`
}

// ForecastConfig shapes trend projection.
type ForecastConfig struct {
	Horizon        float64            `yaml:"horizon"`
	HighRiskTicks  float64            `yaml:"highRiskTicks"`
	MinSlope       float64            `yaml:"minSlope"`
	MinSlopeMetric map[string]float64 `yaml:"minSlopeByMetric"`
}

// DiagnosisConfig points at an optional log marker catalog.
type DiagnosisConfig struct {
	MarkersPath string `yaml:"markersPath"`
}

// TelemetryConfig selects and configures the metric and log source.
type TelemetryConfig struct {
	Backend    string           `yaml:"backend"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Core       CoreClientConfig `yaml:"core"`
	Breaker    BreakerConfig    `yaml:"breaker"`
}

// PrometheusConfig configures PromQL access. Queries use $service as placeholder.
type PrometheusConfig struct {
	Address string            `yaml:"address"`
	Step    time.Duration     `yaml:"step"`
	Timeout time.Duration     `yaml:"timeout"`
	Queries map[string]string `yaml:"queries"`
}

// CoreClientConfig configures access to the mirador-core log API.
type CoreClientConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	LogsPath string        `yaml:"logsPath"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BreakerConfig configures the telemetry circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
	OpenTimeout         time.Duration `yaml:"openTimeout"`
}

// InfrastructureConfig selects the control plane.
type InfrastructureConfig struct {
	Backend    string `yaml:"backend"`
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
}

// TicketsConfig selects the incident store.
type TicketsConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory"`
	Sync     bool   `yaml:"sync"`
}

// LeaseConfig controls the per-service in-flight guard.
type LeaseConfig struct {
	Backend  string        `yaml:"backend"`
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TracingConfig toggles span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
	Pretty      bool   `yaml:"pretty"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_AUTOPILOT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Controller: ControllerConfig{
			Services:      []string{"payment-service"},
			TickInterval:  2 * time.Second,
			StepTimeout:   10 * time.Second,
			HistoryWindow: 10,
			LogLines:      20,
			EventRingSize: 256,
		},
		Thresholds: ThresholdsConfig{
			Detection:  map[string]float64{"cpu": 80.0, "memory": 85.0, "latency": 0.5, "error_rate": 0.05},
			Validation: map[string]float64{"cpu": 90.0, "memory": 90.0, "error_rate": 0.01},
		},
		Forecast: ForecastConfig{
			Horizon:       20,
			HighRiskTicks: 10,
			MinSlope:      0.1,
		},
		Telemetry: TelemetryConfig{
			Backend: BackendSimulated,
			Prometheus: PrometheusConfig{
				Step:    15 * time.Second,
				Timeout: 5 * time.Second,
				Queries: map[string]string{
					"cpu":        `100 * avg(rate(container_cpu_usage_seconds_total{app="$service"}[1m]))`,
					"memory":     `100 * avg(container_memory_working_set_bytes{app="$service"} / container_spec_memory_limit_bytes{app="$service"})`,
					"latency":    `histogram_quantile(0.95, sum by (le) (rate(http_request_duration_seconds_bucket{app="$service"}[1m])))`,
					"error_rate": `(sum(rate(http_requests_total{app="$service",code=~"5.."}[1m])) or vector(0)) / clamp_min(sum(rate(http_requests_total{app="$service"}[1m])), 1e-9)`,
				},
			},
			Core: CoreClientConfig{
				LogsPath: "/api/v1/rca/logs",
				Timeout:  5 * time.Second,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
			},
		},
		Infrastructure: InfrastructureConfig{Backend: BackendSimulated, Namespace: "default"},
		Tickets:        TicketsConfig{Backend: BackendMemory, Path: "data/tickets"},
		Lease: LeaseConfig{
			Backend: BackendLocal,
			TTL:     2 * time.Minute,
			Prefix:  "autopilot:lease:",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Tracing: TracingConfig{ServiceName: "mirador-autopilot"},
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if len(c.Controller.Services) == 0 {
		problems = append(problems, "controller.services must not be empty")
	}
	if c.Controller.TickInterval <= 0 {
		problems = append(problems, "controller.tickInterval must be positive")
	}
	if c.Controller.StepTimeout <= 0 {
		problems = append(problems, "controller.stepTimeout must be positive")
	}
	if c.Controller.HistoryWindow < 2 {
		problems = append(problems, "controller.historyWindow must be at least 2")
	}
	if c.Forecast.Horizon <= 0 {
		problems = append(problems, "forecast.horizon must be positive")
	}
	if c.Forecast.MinSlope < 0 {
		problems = append(problems, "forecast.minSlope must not be negative")
	}
	metrics := make([]string, 0, len(c.Forecast.MinSlopeMetric))
	for name := range c.Forecast.MinSlopeMetric {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)
	for _, name := range metrics {
		if c.Forecast.MinSlopeMetric[name] < 0 {
			problems = append(problems, fmt.Sprintf("forecast.minSlopeByMetric.%s must not be negative", name))
		}
	}
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s: unknown backend %q", field, value))
	}
	check("telemetry.backend", c.Telemetry.Backend, BackendSimulated, BackendPrometheus)
	check("infrastructure.backend", c.Infrastructure.Backend, BackendSimulated, BackendKubernetes)
	check("tickets.backend", c.Tickets.Backend, BackendMemory, BackendBadger)
	check("lease.backend", c.Lease.Backend, BackendLocal, BackendRedis)
	if c.Telemetry.Backend == BackendPrometheus && c.Telemetry.Prometheus.Address == "" {
		problems = append(problems, "telemetry.prometheus.address is required for the prometheus backend")
	}
	if c.Lease.Backend == BackendRedis && c.Lease.Addr == "" {
		problems = append(problems, "lease.addr is required for the redis backend")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_AUTOPILOT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_SERVICES"); v != "" {
		var services []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
		cfg.Controller.Services = services
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Controller.TickInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Controller.StepTimeout = d
		}
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_TELEMETRY_BACKEND"); v != "" {
		cfg.Telemetry.Backend = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_PROMETHEUS_URL"); v != "" {
		cfg.Telemetry.Prometheus.Address = v
	}
	if v := os.Getenv("MIRADOR_CORE_BASE_URL"); v != "" {
		cfg.Telemetry.Core.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_CORE_LOGS_PATH"); v != "" {
		cfg.Telemetry.Core.LogsPath = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_INFRA_BACKEND"); v != "" {
		cfg.Infrastructure.Backend = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_KUBECONFIG"); v != "" {
		cfg.Infrastructure.Kubeconfig = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_NAMESPACE"); v != "" {
		cfg.Infrastructure.Namespace = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_TICKETS_BACKEND"); v != "" {
		cfg.Tickets.Backend = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_TICKETS_PATH"); v != "" {
		cfg.Tickets.Path = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LEASE_BACKEND"); v != "" {
		cfg.Lease.Backend = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LEASE_ADDR"); v != "" {
		cfg.Lease.Addr = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LEASE_PASSWORD"); v != "" {
		cfg.Lease.Password = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LEASE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Lease.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LEASE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lease.TTL = d
		}
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_MARKERS_PATH"); v != "" {
		cfg.Diagnosis.MarkersPath = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_AUTOPILOT_TRACING"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Tracing.Enabled = true
	}
}
