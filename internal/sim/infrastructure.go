package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Status reports the pod state of service.
func (e *Environment) Status(_ context.Context, name string) (models.ServiceStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.status", name)
	if err != nil {
		return models.ServiceStatus{}, err
	}
	if err := e.injected(name, OpStatus); err != nil {
		return models.ServiceStatus{}, err
	}
	return models.ServiceStatus{Service: name, State: svc.pod.State, Replicas: svc.pod.Replicas, Version: svc.pod.Version}, nil
}

// Restart cycles the pod and clears any injected anomalies for the service.
func (e *Environment) Restart(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.restart", name)
	if err != nil {
		return err
	}
	if err := e.injected(name, OpRestart); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	svc.pod.State = "Running"
	svc.clear()
	e.record(svc)
	svc.logs = append(svc.logs, "INFO: Service restarted successfully")
	e.logger.Info("sim restart", slog.String("service", name))
	return nil
}

// Scale sets the replica count; extra capacity drains cpu and latency anomalies.
func (e *Environment) Scale(ctx context.Context, name string, replicas int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.scale", name)
	if err != nil {
		return err
	}
	if err := e.injected(name, OpScale); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if replicas < 1 {
		return fmt.Errorf("sim scale %s: invalid replica count %d", name, replicas)
	}
	svc.pod.Replicas = replicas
	svc.clear(models.MetricCPU, models.MetricLatency)
	e.record(svc)
	svc.logs = append(svc.logs, fmt.Sprintf("INFO: Scaled to %d replicas", replicas))
	e.logger.Info("sim scale", slog.String("service", name), slog.Int("replicas", replicas))
	return nil
}

// Snapshot captures a copy of the pod state.
func (e *Environment) Snapshot(_ context.Context, name string) (models.SnapshotID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, err := e.lookup("sim.snapshot", name)
	if err != nil {
		return "", err
	}
	if err := e.injected(name, OpSnapshot); err != nil {
		return "", err
	}
	id := newSnapshotID()
	e.snapshots[id] = snapshot{service: name, pod: svc.pod}
	return id, nil
}

// Restore puts back the pod state captured under id. Unknown ids report false.
func (e *Environment) Restore(_ context.Context, id models.SnapshotID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.snapshots[id]
	if !ok {
		e.logger.Warn("sim snapshot not found", slog.String("snapshot", string(id)))
		return false, nil
	}
	if err := e.injected(snap.service, OpRestore); err != nil {
		return false, err
	}
	svc, err := e.lookup("sim.restore", snap.service)
	if err != nil {
		return false, err
	}
	svc.pod = snap.pod
	svc.logs = append(svc.logs, fmt.Sprintf("WARN: Rolled back to snapshot %s", id))
	return true, nil
}
