package sim

import (
	"context"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// CurrentSnapshot returns the current value of every metric.
func (e *Environment) CurrentSnapshot(_ context.Context, name string) (models.MetricSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.snapshot", name)
	if err != nil {
		return nil, err
	}
	if err := e.injected(name, OpTelemetry); err != nil {
		return nil, err
	}
	snap := make(models.MetricSnapshot, len(models.KnownMetrics))
	for _, metric := range models.KnownMetrics {
		snap[metric] = svc.value(metric)
	}
	return snap, nil
}

// History returns up to window recorded values, oldest first.
func (e *Environment) History(_ context.Context, name string, metric models.MetricName, window int) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.history", name)
	if err != nil {
		return nil, err
	}
	if err := e.injected(name, OpTelemetry); err != nil {
		return nil, err
	}
	h := svc.history[metric]
	if window > 0 && len(h) > window {
		h = h[len(h)-window:]
	}
	return append([]float64(nil), h...), nil
}

// RecentLogs returns the last maxLines log lines, oldest first.
func (e *Environment) RecentLogs(_ context.Context, name string, maxLines int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.logs", name)
	if err != nil {
		return nil, err
	}
	if err := e.injected(name, OpLogs); err != nil {
		return nil, err
	}
	logs := svc.logs
	if maxLines > 0 && len(logs) > maxLines {
		logs = logs[len(logs)-maxLines:]
	}
	return append([]string(nil), logs...), nil
}
