package engine

import "github.com/miradorstack/mirador-autopilot/internal/models"

// Thresholds maps a metric to the value it must not exceed.
type Thresholds map[models.MetricName]float64

// DefaultDetectionThresholds is the table the monitor alerts on.
func DefaultDetectionThresholds() Thresholds {
	return Thresholds{
		models.MetricCPU:       80.0,
		models.MetricMemory:    85.0,
		models.MetricLatency:   0.5,
		models.MetricErrorRate: 0.05,
	}
}

// DefaultValidationThresholds is the stricter table a remediation must clear.
func DefaultValidationThresholds() Thresholds {
	return Thresholds{
		models.MetricCPU:       90.0,
		models.MetricMemory:    90.0,
		models.MetricErrorRate: 0.01,
	}
}

// ThresholdsFrom converts a config table keyed by metric name, starting from base.
// Unknown metric names are ignored.
func ThresholdsFrom(base Thresholds, raw map[string]float64) Thresholds {
	out := make(Thresholds, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, m := range models.KnownMetrics {
		if v, ok := raw[string(m)]; ok {
			out[m] = v
		}
	}
	return out
}

// breaches walks metrics in order and returns every metric whose value is strictly above its limit.
// Metrics missing from either the snapshot or the table are skipped.
func (t Thresholds) breaches(snapshot models.MetricSnapshot, order []models.MetricName) []models.Issue {
	issues := make([]models.Issue, 0)
	for _, metric := range order {
		limit, ok := t[metric]
		if !ok {
			continue
		}
		value, ok := snapshot[metric]
		if !ok {
			continue
		}
		if value > limit {
			issues = append(issues, models.Issue{Metric: metric, Value: value, Threshold: limit})
		}
	}
	return issues
}
