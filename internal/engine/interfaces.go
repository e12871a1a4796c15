package engine

import (
	"context"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// TelemetrySource supplies metric snapshots, metric history and recent logs.
// An unknown service yields an error wrapping utils.ErrNotFound.
type TelemetrySource interface {
	CurrentSnapshot(ctx context.Context, service string) (models.MetricSnapshot, error)
	History(ctx context.Context, service string, metric models.MetricName, window int) ([]float64, error)
	RecentLogs(ctx context.Context, service string, maxLines int) ([]string, error)
}

// Infrastructure is the control plane the executor drives.
type Infrastructure interface {
	Status(ctx context.Context, service string) (models.ServiceStatus, error)
	Restart(ctx context.Context, service string) error
	Scale(ctx context.Context, service string, replicas int) error
	Snapshot(ctx context.Context, service string) (models.SnapshotID, error)
	// Restore reports false when the snapshot id is unknown.
	Restore(ctx context.Context, id models.SnapshotID) (bool, error)
}

// TicketSink creates and updates incident records.
type TicketSink interface {
	Create(ctx context.Context, title, description string, priority models.Priority) (string, error)
	Update(ctx context.Context, id string, update models.TicketUpdate) error
}
