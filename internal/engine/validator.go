package engine

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

var validationOrder = []models.MetricName{models.MetricCPU, models.MetricMemory, models.MetricErrorRate}

// Validator confirms a service is healthy under stricter limits than detection.
type Validator struct {
	telemetry  TelemetrySource
	thresholds Thresholds
	logger     *slog.Logger
}

// NewValidator constructs a Validator; nil thresholds fall back to the defaults.
func NewValidator(telemetry TelemetrySource, thresholds Thresholds, logger *slog.Logger) *Validator {
	if thresholds == nil {
		thresholds = DefaultValidationThresholds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{telemetry: telemetry, thresholds: thresholds, logger: logger}
}

// Validate re-reads telemetry and short-circuits on the first breached limit.
// A retrieval failure, a missing checked metric or a non-finite value counts as unhealthy.
func (v *Validator) Validate(ctx context.Context, service string) bool {
	snapshot, err := v.telemetry.CurrentSnapshot(ctx, service)
	if err != nil {
		v.logger.Error("validation telemetry failed", slog.String("service", service), slog.Any("error", err))
		return false
	}
	for _, metric := range validationOrder {
		limit, ok := v.thresholds[metric]
		if !ok {
			continue
		}
		value, ok := snapshot[metric]
		if !ok {
			v.logger.Warn("validation metric missing", slog.String("service", service), slog.String("metric", string(metric)))
			return false
		}
		if !(value <= limit) {
			v.logger.Warn("validation failed",
				slog.String("service", service),
				slog.String("metric", string(metric)),
				slog.Float64("value", value),
				slog.Float64("limit", limit),
			)
			return false
		}
	}
	v.logger.Info("validation passed", slog.String("service", service))
	return true
}
