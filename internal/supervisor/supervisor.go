// Package supervisor drives the controller on a fixed cadence, one worker per service.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/lease"
	"github.com/miradorstack/mirador-autopilot/internal/metrics"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

const latencyReportEvery = 20

// Ticker evaluates one service once. *engine.Controller satisfies it.
type Ticker interface {
	Tick(ctx context.Context, service string) engine.TickReport
}

// Hook runs before every tick. The simulator uses it to advance its environment.
type Hook func(ctx context.Context, service string)

// Config controls the supervisor loop.
type Config struct {
	Services []string
	Interval time.Duration
	OnTick   Hook
	Logger   *slog.Logger
}

// Supervisor owns the per-service tick loops.
type Supervisor struct {
	ticker  Ticker
	guard   *lease.Guard
	cfg     Config
	logger  *slog.Logger
	latency *utils.LatencyTracker

	mu    sync.RWMutex
	ticks int
	last  map[string]engine.TickReport
}

// New builds a supervisor. A nil guard gets a process-local one.
func New(ticker Ticker, guard *lease.Guard, cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = lease.NewGuard(nil, 0, "", logger)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Supervisor{
		ticker:  ticker,
		guard:   guard,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "supervisor")),
		latency: utils.NewLatencyTracker(512),
		last:    make(map[string]engine.TickReport),
	}
}

// Run blocks until ctx is cancelled, ticking every configured service on its own goroutine.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Services) == 0 {
		return errors.New("supervisor: no services configured")
	}
	s.logger.Info("supervisor started",
		slog.Any("services", s.cfg.Services),
		slog.Duration("interval", s.cfg.Interval),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range s.cfg.Services {
		g.Go(func() error {
			s.loop(gctx, service)
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("supervisor stopped")
	return err
}

func (s *Supervisor) loop(ctx context.Context, service string) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Trigger(ctx, service); err != nil && !errors.Is(err, utils.ErrInFlight) {
				s.logger.Warn("tick skipped", slog.String("service", service), slog.Any("error", err))
			}
		}
	}
}

// Trigger runs one tick for service now. It returns utils.ErrInFlight, and drops
// the tick, when a remediation for the service is still running.
func (s *Supervisor) Trigger(ctx context.Context, service string) (engine.TickReport, error) {
	release, err := s.guard.TryAcquire(ctx, service)
	if err != nil {
		if errors.Is(err, utils.ErrInFlight) {
			metrics.ObserveDroppedTick(service)
			s.logger.Debug("tick dropped, remediation in flight", slog.String("service", service))
		}
		return engine.TickReport{Service: service}, err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return engine.TickReport{Service: service}, fmt.Errorf("tick %s: %w", service, err)
	}
	if s.cfg.OnTick != nil {
		s.cfg.OnTick(ctx, service)
	}
	report := s.ticker.Tick(ctx, service)
	s.observe(report)
	return report, nil
}

func (s *Supervisor) observe(report engine.TickReport) {
	s.latency.Observe(report.Duration)

	s.mu.Lock()
	s.last[report.Service] = report
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	if report.Err != nil {
		s.logger.Warn("tick finished with error",
			slog.String("service", report.Service),
			slog.String("path", string(report.Path)),
			slog.Any("error", report.Err),
		)
	}
	if n%latencyReportEvery == 0 {
		s.logger.Info("tick latency",
			slog.Int("samples", s.latency.Count()),
			slog.Duration("p50", s.latency.Percentile(50)),
			slog.Duration("p95", s.latency.Percentile(95)),
		)
	}
}

// Last returns the most recent report for service.
func (s *Supervisor) Last(service string) (engine.TickReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[service]
	return r, ok
}

// Services lists the supervised services in configuration order.
func (s *Supervisor) Services() []string {
	return append([]string(nil), s.cfg.Services...)
}
