package repo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const servicePlaceholder = "$service"

// LogSource supplies recent log lines for a service.
type LogSource interface {
	RecentLogs(ctx context.Context, service string, maxLines int) ([]string, error)
}

// PrometheusConfig configures PrometheusTelemetry.
type PrometheusConfig struct {
	Address string
	Step    time.Duration
	Timeout time.Duration
	// Queries maps metric name to a PromQL template containing $service.
	Queries map[string]string
	Logs    LogSource
	Clock   utils.Clock
	Logger  *slog.Logger
}

// PrometheusTelemetry reads metric snapshots and history over the Prometheus HTTP API.
type PrometheusTelemetry struct {
	api     promv1.API
	step    time.Duration
	timeout time.Duration
	queries map[models.MetricName]string
	logs    LogSource
	clock   utils.Clock
	logger  *slog.Logger
}

// NewPrometheusTelemetry builds a telemetry source against cfg.Address.
func NewPrometheusTelemetry(cfg PrometheusConfig) (*PrometheusTelemetry, error) {
	client, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	if cfg.Step <= 0 {
		cfg.Step = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	queries := make(map[models.MetricName]string, len(cfg.Queries))
	for name, q := range cfg.Queries {
		queries[models.MetricName(strings.ToLower(strings.TrimSpace(name)))] = q
	}
	return &PrometheusTelemetry{
		api:     promv1.NewAPI(client),
		step:    cfg.Step,
		timeout: cfg.Timeout,
		queries: queries,
		logs:    cfg.Logs,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

func render(query, service string) string {
	return strings.ReplaceAll(query, servicePlaceholder, service)
}

// metricNames returns the configured metrics in a stable order.
func (p *PrometheusTelemetry) metricNames() []models.MetricName {
	names := make([]models.MetricName, 0, len(p.queries))
	for name := range p.queries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// CurrentSnapshot evaluates every configured query at the current instant.
// Metrics without samples are omitted; a service with no samples at all is not found.
func (p *PrometheusTelemetry) CurrentSnapshot(ctx context.Context, service string) (models.MetricSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := p.clock.Now()
	snap := make(models.MetricSnapshot, len(p.queries))
	for _, name := range p.metricNames() {
		value, warnings, err := p.api.Query(ctx, render(p.queries[name], service), now)
		if err != nil {
			return nil, utils.NewAppError("prometheus.query", string(name), err)
		}
		p.warn(warnings, service, name)
		vec, ok := value.(model.Vector)
		if !ok || len(vec) == 0 || !finite(vec[0].Value) {
			continue
		}
		snap[name] = float64(vec[0].Value)
	}
	if len(snap) == 0 {
		return nil, utils.NotFound("prometheus.snapshot", service)
	}
	return snap, nil
}

// History returns up to window samples of metric, oldest first.
func (p *PrometheusTelemetry) History(ctx context.Context, service string, metric models.MetricName, window int) ([]float64, error) {
	query, ok := p.queries[metric]
	if !ok || window <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	end := p.clock.Now()
	r := promv1.Range{
		Start: end.Add(-time.Duration(window-1) * p.step),
		End:   end,
		Step:  p.step,
	}
	value, warnings, err := p.api.QueryRange(ctx, render(query, service), r)
	if err != nil {
		return nil, utils.NewAppError("prometheus.query_range", string(metric), err)
	}
	p.warn(warnings, service, metric)
	matrix, ok := value.(model.Matrix)
	if !ok || len(matrix) == 0 {
		return nil, nil
	}
	pairs := matrix[0].Values
	if len(pairs) > window {
		pairs = pairs[len(pairs)-window:]
	}
	out := make([]float64, 0, len(pairs))
	for _, pair := range pairs {
		if !finite(pair.Value) {
			continue
		}
		out = append(out, float64(pair.Value))
	}
	return out, nil
}

// finite filters the NaN and Inf samples PromQL yields for idle series.
func finite(v model.SampleValue) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RecentLogs delegates to the configured log source; without one there are no logs.
func (p *PrometheusTelemetry) RecentLogs(ctx context.Context, service string, maxLines int) ([]string, error) {
	if p.logs == nil {
		return []string{}, nil
	}
	return p.logs.RecentLogs(ctx, service, maxLines)
}

func (p *PrometheusTelemetry) warn(warnings promv1.Warnings, service string, metric models.MetricName) {
	if len(warnings) == 0 {
		return
	}
	p.logger.Warn("prometheus query warnings",
		slog.String("service", service),
		slog.String("metric", string(metric)),
		slog.Any("warnings", []string(warnings)),
	)
}
