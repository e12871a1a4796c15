// Package sim provides a deterministic in-memory telemetry source and control plane.
package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// Op names an operation that can be made to fail.
type Op string

const (
	OpTelemetry Op = "telemetry"
	OpLogs      Op = "logs"
	OpStatus    Op = "status"
	OpRestart   Op = "restart"
	OpScale     Op = "scale"
	OpSnapshot  Op = "snapshot"
	OpRestore   Op = "restore"
)

const defaultHistorySize = 64

// Pod is the simulated deployment state of a service.
type Pod struct {
	State    string
	Replicas int
	Version  string
}

type anomaly struct {
	trend bool
	value float64
	slope float64
}

type service struct {
	base      models.MetricSnapshot
	anomalies map[models.MetricName]*anomaly
	history   map[models.MetricName][]float64
	pod       Pod
	logs      []string
}

type snapshot struct {
	service string
	pod     Pod
}

// Environment simulates metrics, logs and deployments for a set of services.
type Environment struct {
	mu          sync.Mutex
	services    map[string]*service
	snapshots   map[models.SnapshotID]snapshot
	failures    map[string]map[Op]error
	historySize int
	logger      *slog.Logger
}

// New returns an empty environment.
func New(logger *slog.Logger) *Environment {
	if logger == nil {
		logger = slog.Default()
	}
	return &Environment{
		services:    make(map[string]*service),
		snapshots:   make(map[models.SnapshotID]snapshot),
		failures:    make(map[string]map[Op]error),
		historySize: defaultHistorySize,
		logger:      logger,
	}
}

// NewDefault returns an environment seeded with payment-service, auth-service and database.
func NewDefault(logger *slog.Logger) *Environment {
	env := New(logger)
	env.AddService("payment-service",
		models.MetricSnapshot{models.MetricCPU: 15, models.MetricMemory: 40, models.MetricLatency: 0.05, models.MetricErrorRate: 0},
		Pod{State: "Running", Replicas: 2, Version: "v1.2.0"},
		"INFO: Payment processed successfully", "INFO: Health check passed")
	env.AddService("auth-service",
		models.MetricSnapshot{models.MetricCPU: 10, models.MetricMemory: 30, models.MetricLatency: 0.02, models.MetricErrorRate: 0},
		Pod{State: "Running", Replicas: 3, Version: "v1.1.5"},
		"INFO: User logged in", "INFO: Token refreshed")
	env.AddService("database",
		models.MetricSnapshot{models.MetricCPU: 25, models.MetricMemory: 60, models.MetricLatency: 0.01, models.MetricErrorRate: 0},
		Pod{State: "Running", Replicas: 1, Version: "postgres:14"},
		"INFO: Connection accepted", "INFO: Query executed")
	return env
}

// AddService registers or replaces a service.
func (e *Environment) AddService(name string, base models.MetricSnapshot, pod Pod, logs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc := &service{
		base:      base.Clone(),
		anomalies: make(map[models.MetricName]*anomaly),
		history:   make(map[models.MetricName][]float64),
		pod:       pod,
		logs:      append([]string(nil), logs...),
	}
	e.services[name] = svc
	e.record(svc)
}

// Services lists registered services in name order.
func (e *Environment) Services() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.services))
	for name := range e.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Environment) lookup(op, name string) (*service, error) {
	svc, ok := e.services[name]
	if !ok {
		return nil, utils.NotFound(op, "service "+name)
	}
	return svc, nil
}

func (e *Environment) injected(name string, op Op) error {
	if err := e.failures[name][op]; err != nil {
		return fmt.Errorf("sim %s %s: %w", op, name, err)
	}
	return nil
}

// FailOn makes op fail for service with err until ClearFailures.
func (e *Environment) FailOn(name string, op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures[name] == nil {
		e.failures[name] = make(map[Op]error)
	}
	e.failures[name][op] = err
}

// ClearFailures removes all injected failures.
func (e *Environment) ClearFailures() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = make(map[string]map[Op]error)
}

// InjectAnomaly pins metric to a static value.
func (e *Environment) InjectAnomaly(name string, metric models.MetricName, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.inject_anomaly", name)
	if err != nil {
		return err
	}
	svc.anomalies[metric] = &anomaly{value: value}
	e.record(svc)
	e.logger.Debug("injected anomaly", slog.String("service", name), slog.String("metric", string(metric)), slog.Float64("value", value))
	return nil
}

// InjectTrend makes metric grow by slope on every step. The retained history is
// rewritten as if the trend had always been in place.
func (e *Environment) InjectTrend(name string, metric models.MetricName, slope float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.inject_trend", name)
	if err != nil {
		return err
	}
	current := svc.value(metric)
	svc.anomalies[metric] = &anomaly{trend: true, value: current, slope: slope}

	n := len(svc.history[metric])
	if n < 2 {
		n = 10
	}
	backfill := make([]float64, n)
	for i := range backfill {
		v := current - slope*float64(n-1-i)
		if v < 0 {
			v = 0
		}
		backfill[i] = v
	}
	svc.history[metric] = backfill
	e.logger.Debug("injected trend", slog.String("service", name), slog.String("metric", string(metric)), slog.Float64("slope", slope))
	return nil
}

// InjectLogError appends an ERROR line to the service log.
func (e *Environment) InjectLogError(name, msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.inject_log", name)
	if err != nil {
		return err
	}
	svc.logs = append(svc.logs, "ERROR: "+msg)
	return nil
}

// ClearAnomalies removes injected values for one service, or all services when name is empty.
func (e *Environment) ClearAnomalies(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for n, svc := range e.services {
		if name == "" || n == name {
			svc.clear()
			e.record(svc)
		}
	}
}

// Step advances every service by one tick.
func (e *Environment) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, svc := range e.services {
		svc.step()
		e.record(svc)
	}
}

// StepService advances one service by a tick.
func (e *Environment) StepService(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if svc, ok := e.services[name]; ok {
		svc.step()
		e.record(svc)
	}
}

// Advance steps every service n times.
func (e *Environment) Advance(n int) {
	for i := 0; i < n; i++ {
		e.Step()
	}
}

// Pod returns the current deployment state of service.
func (e *Environment) Pod(name string) (Pod, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, ok := e.services[name]
	if !ok {
		return Pod{}, false
	}
	return svc.pod, true
}

// record appends the current values to the bounded history.
func (e *Environment) record(svc *service) {
	for _, metric := range models.KnownMetrics {
		h := append(svc.history[metric], svc.value(metric))
		if len(h) > e.historySize {
			h = h[len(h)-e.historySize:]
		}
		svc.history[metric] = h
	}
}

func (s *service) value(metric models.MetricName) float64 {
	if a, ok := s.anomalies[metric]; ok {
		return a.value
	}
	return s.base[metric]
}

func (s *service) step() {
	for _, a := range s.anomalies {
		if a.trend {
			a.value += a.slope
		}
	}
}

func (s *service) clear(metrics ...models.MetricName) {
	if len(metrics) == 0 {
		s.anomalies = make(map[models.MetricName]*anomaly)
		return
	}
	for _, m := range metrics {
		delete(s.anomalies, m)
	}
}

func newSnapshotID() models.SnapshotID {
	return models.SnapshotID(uuid.NewString()[:8])
}
