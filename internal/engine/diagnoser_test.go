package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

func issue(metric models.MetricName, value float64) models.Issue {
	return models.Issue{Metric: metric, Value: value, Threshold: DefaultDetectionThresholds()[metric]}
}

func TestDiagnoseOutOfMemory(t *testing.T) {
	tel := newFakeTelemetry()
	tel.set("checkout", models.MetricSnapshot{
		models.MetricMemory: 95, models.MetricCPU: 20, models.MetricLatency: 0.05, models.MetricErrorRate: 0,
	})
	tel.logs["checkout"] = []string{"INFO: Health check passed", "ERROR: java.lang.OutOfMemoryError: Java heap space"}

	issues := NewMonitor(tel, nil, utils.DiscardLogger()).Check(context.Background(), "checkout")
	require.Len(t, issues, 1)
	assert.Equal(t, models.MetricMemory, issues[0].Metric)

	d := NewDiagnoser(tel, nil, 0, utils.DiscardLogger()).Diagnose(context.Background(), "checkout", issues)
	assert.Equal(t, "Memory Leak / OOM", d.RootCause)
	assert.Equal(t, models.ActionRestartService, d.RecommendedAction)
	assert.Equal(t, 0.95, d.Confidence)
	assert.Equal(t, 20, tel.logLines)
}

func TestClassifyRules(t *testing.T) {
	d := NewDiagnoser(newFakeTelemetry(), nil, 20, utils.DiscardLogger())
	cases := []struct {
		name   string
		issues []models.Issue
		logs   []string
		cause  string
		action models.Action
		conf   float64
	}{
		{
			name:   "load without markers",
			issues: []models.Issue{issue(models.MetricCPU, 95)},
			logs:   []string{"INFO: Payment processed successfully"},
			cause:  "High Traffic Load", action: models.ActionScaleUp, conf: 0.8,
		},
		{
			name:   "kill process marker",
			issues: []models.Issue{issue(models.MetricCPU, 95)},
			logs:   []string{"kernel: Kill process 4242 (java)"},
			cause:  "Memory Leak / OOM", action: models.ActionRestartService, conf: 0.95,
		},
		{
			name:   "dependency failure",
			issues: []models.Issue{issue(models.MetricErrorRate, 0.3)},
			logs:   []string{"ERROR: Connection refused: db:5432"},
			cause:  "Dependency Failure", action: models.ActionRestartService, conf: 0.85,
		},
		{
			name:   "dependency overrides resource",
			issues: []models.Issue{issue(models.MetricMemory, 95), issue(models.MetricErrorRate, 0.3)},
			logs:   []string{"OutOfMemoryError", "upstream Timeout after 5s"},
			cause:  "Dependency Failure", action: models.ActionRestartService, conf: 0.85,
		},
		{
			name:   "error rate without markers",
			issues: []models.Issue{issue(models.MetricErrorRate, 0.3)},
			logs:   []string{"INFO: all good"},
			cause:  "Unknown", action: models.ActionEscalate, conf: 0,
		},
		{
			name:   "latency only",
			issues: []models.Issue{issue(models.MetricLatency, 0.8)},
			cause:  "Unknown", action: models.ActionEscalate, conf: 0,
		},
		{
			name:   "markers match case sensitively",
			issues: []models.Issue{issue(models.MetricErrorRate, 0.3)},
			logs:   []string{"INFO: request timeout=30s", "dial tcp: connection REFUSED"},
			cause:  "Unknown", action: models.ActionEscalate, conf: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Classify(tc.issues, tc.logs)
			assert.Equal(t, tc.cause, got.RootCause)
			assert.Equal(t, tc.action, got.RecommendedAction)
			assert.Equal(t, tc.conf, got.Confidence)
			assert.NotEmpty(t, got.Reasoning)
		})
	}
}

func TestDiagnoseWithoutLogsStillClassifies(t *testing.T) {
	tel := newFakeTelemetry()
	tel.logsErr = errors.New("log backend unavailable")
	d := NewDiagnoser(tel, nil, 20, utils.DiscardLogger())

	got := d.Diagnose(context.Background(), "checkout", []models.Issue{issue(models.MetricMemory, 92)})
	assert.Equal(t, "High Traffic Load", got.RootCause)
}

func TestLoadMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`categories:
  dependency: ["503 Service Unavailable", " "]
ignoreCase: [Dependency]
`), 0o600))

	catalog, err := LoadMarkers(path, utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"503 Service Unavailable"}, catalog.Markers(CategoryDependency))
	assert.True(t, catalog.IgnoresCase(CategoryDependency))
	assert.True(t, catalog.Indicates("got 503 service unavailable from payments", CategoryDependency))
	assert.False(t, catalog.Indicates("Connection refused", CategoryDependency))
	// untouched categories keep defaults
	assert.True(t, catalog.Indicates("OOMKilled", CategoryOOM))
	assert.False(t, catalog.IgnoresCase(CategoryOOM))
	assert.False(t, catalog.Indicates("oomkilled", CategoryOOM))
}

func TestDefaultMarkersAreCaseSensitive(t *testing.T) {
	catalog := DefaultMarkers()
	assert.True(t, catalog.Indicates("upstream Timeout after 5s", CategoryDependency))
	assert.False(t, catalog.Indicates("INFO: request timeout=30s", CategoryDependency))
	assert.False(t, catalog.Indicates("connection refused", CategoryDependency))
}

func TestLoadMarkersMissingFileUsesDefaults(t *testing.T) {
	catalog, err := LoadMarkers("does-not-exist.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMarkers().Markers(CategoryOOM), catalog.Markers(CategoryOOM))
}
