package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

const defaultLogLines = 20

// evidence is what a diagnosis rule gets to look at.
type evidence struct {
	resource  bool
	errorRate bool
	logs      string
	markers   *MarkerCatalog
}

// diagnosisRule pairs a predicate with the diagnosis it yields.
type diagnosisRule struct {
	name    string
	matches func(evidence) bool
	result  models.Diagnosis
}

// diagnosisRules is evaluated top to bottom and the last match wins, so the
// dependency rule overrides a resource diagnosis found in the same pass.
var diagnosisRules = []diagnosisRule{
	{
		name: "oom",
		matches: func(e evidence) bool {
			return e.resource && e.markers.Indicates(e.logs, CategoryOOM)
		},
		result: models.Diagnosis{
			RootCause:         "Memory Leak / OOM",
			RecommendedAction: models.ActionRestartService,
			Confidence:        0.95,
			Reasoning:         "Logs contain OOM errors and memory usage is high.",
		},
	},
	{
		name: "load",
		matches: func(e evidence) bool {
			return e.resource && !e.markers.Indicates(e.logs, CategoryOOM)
		},
		result: models.Diagnosis{
			RootCause:         "High Traffic Load",
			RecommendedAction: models.ActionScaleUp,
			Confidence:        0.8,
			Reasoning:         "High resource usage without specific errors suggests load spike.",
		},
	},
	{
		name: "dependency",
		matches: func(e evidence) bool {
			return e.errorRate && e.markers.Indicates(e.logs, CategoryDependency)
		},
		result: models.Diagnosis{
			RootCause:         "Dependency Failure",
			RecommendedAction: models.ActionRestartService,
			Confidence:        0.85,
			Reasoning:         "Connection errors in logs indicate stuck connection pool or dependency issue.",
		},
	},
}

// Diagnoser classifies active issues using recent log content.
type Diagnoser struct {
	telemetry TelemetrySource
	markers   *MarkerCatalog
	logLines  int
	logger    *slog.Logger
}

// NewDiagnoser constructs a Diagnoser reading logLines recent lines (20 when unset).
func NewDiagnoser(telemetry TelemetrySource, markers *MarkerCatalog, logLines int, logger *slog.Logger) *Diagnoser {
	if markers == nil {
		markers = DefaultMarkers()
	}
	if logLines <= 0 {
		logLines = defaultLogLines
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnoser{telemetry: telemetry, markers: markers, logLines: logLines, logger: logger}
}

// Diagnose always returns exactly one diagnosis. Log retrieval failures degrade to no log evidence.
func (d *Diagnoser) Diagnose(ctx context.Context, service string, issues []models.Issue) models.Diagnosis {
	logs, err := d.telemetry.RecentLogs(ctx, service, d.logLines)
	if err != nil {
		d.logger.Warn("diagnoser logs unavailable", slog.String("service", service), slog.Any("error", err))
		logs = nil
	}
	diagnosis := d.Classify(issues, logs)
	d.logger.Info("diagnosis",
		slog.String("service", service),
		slog.String("root_cause", diagnosis.RootCause),
		slog.String("action", string(diagnosis.RecommendedAction)),
		slog.Float64("confidence", diagnosis.Confidence),
	)
	return diagnosis
}

// Classify runs the rule list over issues and already fetched log lines.
func (d *Diagnoser) Classify(issues []models.Issue, logs []string) models.Diagnosis {
	ev := evidence{logs: strings.Join(logs, "\n"), markers: d.markers}
	for _, issue := range issues {
		if issue.Metric.IsResource() {
			ev.resource = true
		}
		if issue.Metric == models.MetricErrorRate {
			ev.errorRate = true
		}
	}

	diagnosis := models.UnknownDiagnosis()
	for _, rule := range diagnosisRules {
		if rule.matches(ev) {
			diagnosis = rule.result
		}
	}
	return diagnosis
}
