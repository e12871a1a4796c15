package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// TickReport describes what one tick observed and did.
type TickReport struct {
	Service    string
	Path       models.TickPath
	State      models.ReliabilityState
	Forecast   *models.Forecast
	Issues     []models.Issue
	Diagnosis  *models.Diagnosis
	Plan       models.Plan
	Execution  *ExecutionResult
	IncidentID string
	Err        error
	Duration   time.Duration
}

// OK reports whether the tick ended without failures.
func (r TickReport) OK() bool {
	return r.Err == nil && (r.Execution == nil || r.Execution.Success)
}

// Settings gathers the tunables Build needs.
type Settings struct {
	Detection   Thresholds
	Validation  Thresholds
	Forecast    ForecastOptions
	Markers     *MarkerCatalog
	LogLines    int
	StepTimeout time.Duration
}

// Controller runs the forecast-then-reactive pipeline and tracks per-service reliability state.
// Callers must not tick the same service concurrently; the supervisor guarantees that.
type Controller struct {
	monitor    *Monitor
	forecaster *Forecaster
	diagnoser  *Diagnoser
	planner    Planner
	executor   *Executor
	auditor    *Auditor
	opts       options

	mu     sync.RWMutex
	states map[string]models.ServiceState
}

// Build assembles a controller and all of its components around the three collaborators.
func Build(telemetry TelemetrySource, infra Infrastructure, sink TicketSink, s Settings, opts ...Option) *Controller {
	o := buildOptions(opts)
	gate := NewSafetyGate(o.logger)
	validator := NewValidator(telemetry, s.Validation, o.logger)
	return NewController(
		NewMonitor(telemetry, s.Detection, o.logger),
		NewForecaster(telemetry, s.Detection, s.Forecast, o.logger),
		NewDiagnoser(telemetry, s.Markers, s.LogLines, o.logger),
		NewPlanner(),
		NewExecutor(infra, gate, validator, s.StepTimeout, opts...),
		NewAuditor(sink, opts...),
		opts...,
	)
}

// NewController wires already constructed components.
func NewController(monitor *Monitor, forecaster *Forecaster, diagnoser *Diagnoser, planner Planner, executor *Executor, auditor *Auditor, opts ...Option) *Controller {
	return &Controller{
		monitor:    monitor,
		forecaster: forecaster,
		diagnoser:  diagnoser,
		planner:    planner,
		executor:   executor,
		auditor:    auditor,
		opts:       buildOptions(opts),
		states:     make(map[string]models.ServiceState),
	}
}

// Tick evaluates service once. Forecast evaluation always runs first; when it
// yields a forecast the reactive path is skipped for this tick.
func (c *Controller) Tick(ctx context.Context, service string) TickReport {
	started := time.Now()
	ctx, span := c.opts.tracer.Start(ctx, "autopilot.tick", trace.WithAttributes(attribute.String("service", service)))
	defer span.End()

	report := TickReport{Service: service, Path: models.PathNone}
	if fc := c.forecaster.Forecast(ctx, service); fc != nil {
		c.forecastPath(ctx, &report, fc)
	} else {
		c.reactivePath(ctx, &report)
	}

	report.State = c.current(service)
	report.Duration = time.Since(started)
	span.SetAttributes(
		attribute.String("path", string(report.Path)),
		attribute.String("state", string(report.State)),
	)
	if report.Err != nil {
		span.RecordError(report.Err)
		c.opts.recorder.Record(ctx, c.opts.event(service, EventError, "tick error", map[string]string{"error": report.Err.Error()}))
	}
	metrics.ObserveTick(report.Duration, string(report.Path), report.OK())
	return report
}

func (c *Controller) forecastPath(ctx context.Context, report *TickReport, fc *models.Forecast) {
	report.Path = models.PathForecast
	report.Forecast = fc
	c.setState(ctx, report.Service, models.StatePredictedFailure, report.Path)
	c.opts.recorder.Record(ctx, c.opts.event(report.Service, EventForecast, "breach predicted", map[string]string{
		"metric":          string(fc.Metric),
		"ticks_to_breach": strconv.FormatFloat(fc.TicksToBreach, 'f', 1, 64),
		"slope":           strconv.FormatFloat(fc.Slope, 'f', 3, 64),
		"risk":            string(fc.RiskLevel),
	}))

	pc := PlanContext{Forecast: fc}
	report.Plan = c.planner.Plan(pc)
	result := c.execute(ctx, report.Service, pc.Origin(), report.Plan)
	report.Execution = &result
	if result.Success {
		c.setState(ctx, report.Service, models.StateHealthy, report.Path)
		return
	}
	report.Err = result.Err
}

func (c *Controller) reactivePath(ctx context.Context, report *TickReport) {
	service := report.Service
	report.Issues = c.monitor.Check(ctx, service)
	if len(report.Issues) == 0 {
		c.setState(ctx, service, models.StateHealthy, models.PathNone)
		return
	}

	report.Path = models.PathReactive
	c.setState(ctx, service, models.StateCritical, report.Path)
	descriptions := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		descriptions = append(descriptions, issue.Description())
	}
	c.opts.recorder.Record(ctx, c.opts.event(service, EventIssues, "issues detected", map[string]string{
		"issues": strings.Join(descriptions, "; "),
	}))

	var errs []error
	id, err := c.auditor.LogIncident(ctx, service, report.Issues)
	if err != nil {
		errs = append(errs, err)
	}
	report.IncidentID = id

	diagnosis := c.diagnoser.Diagnose(ctx, service, report.Issues)
	report.Diagnosis = &diagnosis
	c.opts.recorder.Record(ctx, c.opts.event(service, EventDiagnosis, "diagnosis", map[string]string{
		"root_cause": diagnosis.RootCause,
		"action":     string(diagnosis.RecommendedAction),
	}))
	if id != "" {
		if err := c.auditor.LogDiagnosis(ctx, id, diagnosis); err != nil {
			errs = append(errs, err)
		}
	}

	pc := PlanContext{Diagnosis: &diagnosis}
	report.Plan = c.planner.Plan(pc)
	result := c.execute(ctx, service, pc.Origin(), report.Plan)
	report.Execution = &result
	if !result.Success {
		errs = append(errs, result.Err)
	}
	if id != "" {
		if err := c.auditor.LogAction(ctx, id, report.Plan, result.Success); err != nil {
			errs = append(errs, err)
		}
	}
	if result.Success {
		c.setState(ctx, service, models.StateHealthy, report.Path)
	}
	report.Err = errors.Join(errs...)
}

func (c *Controller) execute(ctx context.Context, service, origin string, plan models.Plan) ExecutionResult {
	c.opts.recorder.Record(ctx, c.opts.event(service, EventPlan, "plan", map[string]string{
		"origin": origin,
		"plan":   plan.String(),
	}))
	result := c.executor.Execute(ctx, service, plan)
	metrics.ObservePlan(origin, result.Success)
	return result
}

func (c *Controller) setState(ctx context.Context, service string, state models.ReliabilityState, path models.TickPath) {
	c.mu.Lock()
	prev := c.states[service]
	c.states[service] = models.ServiceState{Service: service, State: state, LastPath: path, UpdatedAt: c.opts.clock.Now()}
	c.mu.Unlock()

	all := make([]string, 0, len(models.AllStates))
	for _, s := range models.AllStates {
		all = append(all, string(s))
	}
	metrics.SetState(service, string(state), all)
	if prev.State != state {
		c.opts.logger.Info("reliability state changed",
			slog.String("service", service),
			slog.String("from", string(prev.State)),
			slog.String("to", string(state)),
		)
		c.opts.recorder.Record(ctx, c.opts.event(service, EventState, "state changed", map[string]string{
			"from": string(prev.State),
			"to":   string(state),
		}))
	}
}

func (c *Controller) current(service string) models.ReliabilityState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[service].State
}

// State returns the last recorded state for service.
func (c *Controller) State(service string) (models.ServiceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[service]
	return st, ok
}

// States returns every tracked service state sorted by service name.
func (c *Controller) States() []models.ServiceState {
	c.mu.RLock()
	out := make([]models.ServiceState, 0, len(c.states))
	for _, st := range c.states {
		out = append(out, st)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
