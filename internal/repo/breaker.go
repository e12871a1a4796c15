package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// BreakerSettings tunes BreakerTelemetry.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Logger              *slog.Logger
}

// BreakerTelemetry fails fast while the wrapped telemetry backend is unhealthy.
// Unknown services and cancelled calls never trip the breaker.
type BreakerTelemetry struct {
	next engine.TelemetrySource
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerTelemetry wraps next with a circuit breaker.
func NewBreakerTelemetry(next engine.TelemetrySource, s BreakerSettings) *BreakerTelemetry {
	if s.Name == "" {
		s.Name = "telemetry"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := s.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, utils.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("telemetry breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &BreakerTelemetry{next: next, cb: cb}
}

// State exposes the breaker state for health reporting.
func (b *BreakerTelemetry) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerTelemetry) CurrentSnapshot(ctx context.Context, service string) (models.MetricSnapshot, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CurrentSnapshot(ctx, service)
	})
	if err != nil {
		return nil, err
	}
	return out.(models.MetricSnapshot), nil
}

func (b *BreakerTelemetry) History(ctx context.Context, service string, metric models.MetricName, window int) ([]float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.History(ctx, service, metric, window)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

func (b *BreakerTelemetry) RecentLogs(ctx context.Context, service string, maxLines int) ([]string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.RecentLogs(ctx, service, maxLines)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}
