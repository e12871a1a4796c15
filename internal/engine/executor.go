package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// ExecState is the lifecycle of one plan execution.
type ExecState string

const (
	ExecIdle       ExecState = "Idle"
	ExecRunning    ExecState = "Running"
	ExecCompleted  ExecState = "Completed"
	ExecRolledBack ExecState = "RolledBack"
)

const defaultStepTimeout = 10 * time.Second

// HealthValidator backs the validate_health step.
type HealthValidator interface {
	Validate(ctx context.Context, service string) bool
}

// StepResult records one executed step.
type StepResult struct {
	Action   models.Action
	OK       bool
	Err      error
	Duration time.Duration
}

// ExecutionResult is the outcome of running a plan.
type ExecutionResult struct {
	Success    bool
	State      ExecState
	FailedStep models.Action
	Err        error
	SnapshotID models.SnapshotID
	RolledBack bool
	Steps      []StepResult
}

// Executor runs plans step by step and restores the most recent snapshot of the run on failure.
type Executor struct {
	infra       Infrastructure
	gate        *SafetyGate
	validator   HealthValidator
	stepTimeout time.Duration
	opts        options
}

// NewExecutor wires the executor to its collaborators.
func NewExecutor(infra Infrastructure, gate *SafetyGate, validator HealthValidator, stepTimeout time.Duration, opts ...Option) *Executor {
	o := buildOptions(opts)
	if gate == nil {
		gate = NewSafetyGate(o.logger)
	}
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	return &Executor{infra: infra, gate: gate, validator: validator, stepTimeout: stepTimeout, opts: o}
}

// run holds the state owned by a single Execute call.
type run struct {
	service  string
	state    ExecState
	snapshot models.SnapshotID
}

// Execute runs plan strictly in order. The first failing step aborts the run and triggers rollback.
func (e *Executor) Execute(ctx context.Context, service string, plan models.Plan) ExecutionResult {
	r := &run{service: service, state: ExecIdle}
	result := ExecutionResult{State: r.state}
	if len(plan) == 0 {
		result.Success = true
		result.State = ExecCompleted
		return result
	}

	r.state = ExecRunning
	e.opts.logger.Info("executing plan", slog.String("service", service), slog.String("plan", plan.String()))

	for _, step := range plan {
		started := time.Now()
		err := e.step(ctx, r, step)
		sr := StepResult{Action: step, OK: err == nil, Err: err, Duration: time.Since(started)}
		result.Steps = append(result.Steps, sr)
		if r.snapshot != "" {
			result.SnapshotID = r.snapshot
		}
		metrics.ObserveStep(string(step), sr.OK)
		e.opts.recorder.Record(ctx, e.opts.event(service, EventStep, "plan step", map[string]string{
			"action": string(step),
			"result": resultWord(sr.OK),
		}))

		if err != nil {
			e.opts.logger.Warn("plan step failed, rolling back",
				slog.String("service", service),
				slog.String("action", string(step)),
				slog.Any("error", err),
			)
			result.FailedStep = step
			result.Err = err
			result.RolledBack = e.rollback(ctx, r)
			result.State = r.state
			return result
		}
	}

	r.state = ExecCompleted
	r.snapshot = ""
	result.Success = true
	result.State = r.state
	e.opts.logger.Info("plan completed", slog.String("service", service))
	return result
}

func (e *Executor) step(ctx context.Context, r *run, action models.Action) (err error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	stepCtx, span := e.opts.tracer.Start(stepCtx, "autopilot.step", trace.WithAttributes(
		attribute.String("service", r.service),
		attribute.String("action", string(action)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	err = e.dispatch(stepCtx, r, action)
	if err == nil && stepCtx.Err() != nil {
		// the collaborator returned after the deadline; never count that as success
		err = stepCtx.Err()
	}
	if errors.Is(err, utils.ErrExecution) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %s timed out after %s: %w", utils.ErrExecution, action, e.stepTimeout, err)
	case errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %s interrupted: %w", utils.ErrExecution, action, err)
	}
	return err
}

func (e *Executor) dispatch(ctx context.Context, r *run, action models.Action) error {
	switch action {
	case models.ActionCreateSnapshot:
		id, err := e.infra.Snapshot(ctx, r.service)
		if err != nil {
			return fmt.Errorf("%w: snapshot: %w", utils.ErrExecution, err)
		}
		r.snapshot = id
		return nil
	case models.ActionValidateHealth:
		if e.validator == nil || !e.validator.Validate(ctx, r.service) {
			return fmt.Errorf("%w: %s is not healthy", utils.ErrValidation, r.service)
		}
		return nil
	}

	if err := e.gate.Check(action, r.service); err != nil {
		metrics.ObserveDenial(string(action))
		return err
	}

	switch action {
	case models.ActionRestartService:
		if err := e.infra.Restart(ctx, r.service); err != nil {
			return fmt.Errorf("%w: restart: %w", utils.ErrExecution, err)
		}
	case models.ActionScaleUp:
		status, err := e.infra.Status(ctx, r.service)
		if err != nil {
			return fmt.Errorf("%w: status: %w", utils.ErrExecution, err)
		}
		if err := e.infra.Scale(ctx, r.service, status.Replicas+1); err != nil {
			return fmt.Errorf("%w: scale: %w", utils.ErrExecution, err)
		}
	case models.ActionEscalate:
		e.opts.logger.Info("escalating to operator", slog.String("service", r.service))
	default:
		return fmt.Errorf("%w: no handler for %s", utils.ErrExecution, action)
	}
	return nil
}

// rollback restores the run's active snapshot. It reports whether a restore succeeded.
func (e *Executor) rollback(ctx context.Context, r *run) bool {
	r.state = ExecRolledBack
	if r.snapshot == "" {
		e.opts.logger.Warn("no snapshot available for rollback", slog.String("service", r.service))
		e.opts.recorder.Record(ctx, e.opts.event(r.service, EventRollback, "no snapshot available for rollback", nil))
		metrics.ObserveRollback(false)
		return false
	}

	// rollback must still run when the tick context is already cancelled
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stepTimeout)
	defer cancel()

	id := r.snapshot
	r.snapshot = ""
	ok, err := e.infra.Restore(rbCtx, id)
	fields := map[string]string{"snapshot": string(id), "result": resultWord(ok && err == nil)}
	switch {
	case err != nil:
		e.opts.logger.Error("rollback failed", slog.String("service", r.service), slog.String("snapshot", string(id)), slog.Any("error", err))
		ok = false
	case !ok:
		e.opts.logger.Error("rollback snapshot unknown", slog.String("service", r.service), slog.String("snapshot", string(id)))
	default:
		e.opts.logger.Info("rolled back", slog.String("service", r.service), slog.String("snapshot", string(id)))
	}
	metrics.ObserveRollback(ok)
	e.opts.recorder.Record(ctx, e.opts.event(r.service, EventRollback, "rollback", fields))
	return ok
}

func resultWord(ok bool) string {
	if ok {
		return "Success"
	}
	return "Failed"
}
