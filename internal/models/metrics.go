package models

import "fmt"

// MetricName identifies a telemetry signal tracked per service.
type MetricName string

const (
	MetricCPU       MetricName = "cpu"
	MetricMemory    MetricName = "memory"
	MetricLatency   MetricName = "latency"
	MetricErrorRate MetricName = "error_rate"
)

// KnownMetrics lists every metric in threshold table order.
var KnownMetrics = []MetricName{MetricCPU, MetricMemory, MetricLatency, MetricErrorRate}

// IsResource reports whether the metric measures resource pressure.
func (m MetricName) IsResource() bool {
	return m == MetricCPU || m == MetricMemory
}

// MetricSnapshot maps metric names to the values observed at one instant.
type MetricSnapshot map[MetricName]float64

// Clone returns an independent copy of the snapshot.
func (s MetricSnapshot) Clone() MetricSnapshot {
	out := make(MetricSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Issue describes one metric that breached its detection threshold.
type Issue struct {
	Metric    MetricName
	Value     float64
	Threshold float64
}

// Description renders the issue for humans and ticket titles.
func (i Issue) Description() string {
	switch i.Metric {
	case MetricCPU:
		return fmt.Sprintf("High CPU usage: %.1f%%", i.Value)
	case MetricMemory:
		return fmt.Sprintf("High Memory usage: %.1f%%", i.Value)
	case MetricLatency:
		return fmt.Sprintf("High Latency: %.3fs", i.Value)
	case MetricErrorRate:
		return fmt.Sprintf("High Error Rate: %.1f%%", i.Value*100)
	default:
		return fmt.Sprintf("High %s: %.3f", i.Metric, i.Value)
	}
}

// RiskLevel grades how soon a forecast breach is expected.
type RiskLevel string

const (
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Forecast is a projected, not yet realised, threshold breach.
type Forecast struct {
	Service       string
	Metric        MetricName
	TicksToBreach float64
	CurrentValue  float64
	Slope         float64
	RiskLevel     RiskLevel
}
