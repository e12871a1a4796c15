package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// forecastMetrics is the fixed evaluation order; error rate is not projected.
var forecastMetrics = []models.MetricName{models.MetricCPU, models.MetricMemory, models.MetricLatency}

// ForecastOptions tunes trend projection.
type ForecastOptions struct {
	Window        int
	Horizon       float64
	HighRiskTicks float64
	MinSlope      float64
	// MinSlopeByMetric overrides MinSlope per metric.
	MinSlopeByMetric map[models.MetricName]float64
}

// DefaultForecastOptions returns window 10, horizon 20, high risk under 10 ticks and min slope 0.1.
func DefaultForecastOptions() ForecastOptions {
	return ForecastOptions{Window: 10, Horizon: 20, HighRiskTicks: 10, MinSlope: 0.1}
}

func (o ForecastOptions) minSlope(metric models.MetricName) float64 {
	if v, ok := o.MinSlopeByMetric[metric]; ok {
		return v
	}
	return o.MinSlope
}

// Forecaster projects metric history forward to catch breaches before they happen.
type Forecaster struct {
	telemetry TelemetrySource
	limits    Thresholds
	opts      ForecastOptions
	logger    *slog.Logger
}

// NewForecaster builds a forecaster using limits as breach lines.
func NewForecaster(telemetry TelemetrySource, limits Thresholds, opts ForecastOptions, logger *slog.Logger) *Forecaster {
	if limits == nil {
		limits = DefaultDetectionThresholds()
	}
	def := DefaultForecastOptions()
	if opts.Window < 2 {
		opts.Window = def.Window
	}
	if opts.Horizon <= 0 {
		opts.Horizon = def.Horizon
	}
	if opts.HighRiskTicks <= 0 {
		opts.HighRiskTicks = def.HighRiskTicks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{telemetry: telemetry, limits: limits, opts: opts, logger: logger}
}

// Forecast returns the first metric projected to breach within the horizon, or nil.
func (f *Forecaster) Forecast(ctx context.Context, service string) *models.Forecast {
	for _, metric := range forecastMetrics {
		history, err := f.telemetry.History(ctx, service, metric, f.opts.Window)
		if err != nil {
			f.logger.Warn("forecast history failed",
				slog.String("service", service),
				slog.String("metric", string(metric)),
				slog.Any("error", err),
			)
			continue
		}
		if fc := f.project(service, metric, history); fc != nil {
			f.logger.Info("breach predicted",
				slog.String("service", service),
				slog.String("metric", string(metric)),
				slog.Float64("ticks_to_breach", fc.TicksToBreach),
				slog.Float64("slope", fc.Slope),
			)
			return fc
		}
	}
	return nil
}

func (f *Forecaster) project(service string, metric models.MetricName, history []float64) *models.Forecast {
	n := len(history)
	if n < 2 {
		return nil
	}
	limit, ok := f.limits[metric]
	if !ok {
		return nil
	}
	current := history[n-1]
	slope := (current - history[0]) / float64(n)
	// comparisons are written so NaN fails every one of them
	if !(slope > f.opts.minSlope(metric)) || math.IsInf(slope, 0) {
		return nil
	}
	headroom := limit - current
	if !(headroom > 0) {
		// already breached; the monitor owns this case
		return nil
	}
	ticks := headroom / slope
	if !(ticks > 0 && ticks < f.opts.Horizon) {
		return nil
	}
	risk := models.RiskMedium
	if ticks < f.opts.HighRiskTicks {
		risk = models.RiskHigh
	}
	return &models.Forecast{
		Service:       service,
		Metric:        metric,
		TicksToBreach: ticks,
		CurrentValue:  current,
		Slope:         slope,
		RiskLevel:     risk,
	}
}
