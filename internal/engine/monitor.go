package engine

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Monitor compares the current snapshot against detection thresholds.
type Monitor struct {
	telemetry  TelemetrySource
	thresholds Thresholds
	logger     *slog.Logger
}

// NewMonitor constructs a Monitor; nil thresholds fall back to the defaults.
func NewMonitor(telemetry TelemetrySource, thresholds Thresholds, logger *slog.Logger) *Monitor {
	if thresholds == nil {
		thresholds = DefaultDetectionThresholds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{telemetry: telemetry, thresholds: thresholds, logger: logger}
}

// Check returns the breached metrics for service in cpu, memory, latency, error_rate order.
// Telemetry failures, including unknown services, are logged and produce no issues.
func (m *Monitor) Check(ctx context.Context, service string) []models.Issue {
	snapshot, err := m.telemetry.CurrentSnapshot(ctx, service)
	if err != nil {
		m.logger.Error("monitor snapshot failed", slog.String("service", service), slog.Any("error", err))
		return []models.Issue{}
	}
	return m.Evaluate(snapshot)
}

// Evaluate applies the detection table to an already fetched snapshot.
func (m *Monitor) Evaluate(snapshot models.MetricSnapshot) []models.Issue {
	return m.thresholds.breaches(snapshot, models.KnownMetrics)
}
