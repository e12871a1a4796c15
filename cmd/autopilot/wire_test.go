package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/cache"
	"github.com/miradorstack/mirador-autopilot/internal/config"
	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/lease"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/repo"
	"github.com/miradorstack/mirador-autopilot/internal/sim"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autopilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestSimulatedCollaborators(t *testing.T) {
	cfg := loadConfig(t, "controller:\n  services: [payment-service, ledger]\n")
	c, err := buildCollaborators(cfg, utils.DiscardLogger(), utils.SystemClock{})
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.env)
	assert.Same(t, c.env, c.telemetry.(*sim.Environment))
	assert.Contains(t, c.env.Services(), "ledger")
	require.NotNil(t, c.onTick)
	c.onTick(context.Background(), "ledger")

	snap, err := c.telemetry.CurrentSnapshot(context.Background(), "ledger")
	require.NoError(t, err)
	assert.Contains(t, snap, models.MetricCPU)
}

func TestLocalLeaseBackendExpiresLeases(t *testing.T) {
	cfg := loadConfig(t, "lease:\n  backend: local\n  ttl: 1m\n")
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	c, err := buildCollaborators(cfg, utils.DiscardLogger(), clock)
	require.NoError(t, err)
	defer c.Close()

	require.IsType(t, &cache.MemoryProvider{}, c.leases)

	// two guards over one provider behave like two replicas sharing redis
	a := lease.NewGuard(c.leases, cfg.Lease.TTL, cfg.Lease.Prefix, utils.DiscardLogger())
	b := lease.NewGuard(c.leases, cfg.Lease.TTL, cfg.Lease.Prefix, utils.DiscardLogger())
	_, err = a.TryAcquire(context.Background(), "payment-service")
	require.NoError(t, err)

	_, err = b.TryAcquire(context.Background(), "payment-service")
	assert.ErrorIs(t, err, utils.ErrInFlight)

	clock.Advance(2 * time.Minute)
	release, err := b.TryAcquire(context.Background(), "payment-service")
	require.NoError(t, err)
	release()
}

func TestPrometheusCollaboratorsWithBadgerStore(t *testing.T) {
	cfg := loadConfig(t, `
telemetry:
  backend: prometheus
  prometheus:
    address: http://127.0.0.1:9090
tickets:
  backend: badger
  inMemory: true
`)
	c, err := buildCollaborators(cfg, utils.DiscardLogger(), utils.SystemClock{})
	require.NoError(t, err)
	defer c.Close()

	_, isBreaker := c.telemetry.(*repo.BreakerTelemetry)
	assert.True(t, isBreaker)
	assert.Nil(t, c.onTick)
	assert.NotNil(t, c.env, "simulated infrastructure still needs the environment")

	id, err := c.store.Create(context.Background(), "t", "d", models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "TICKET-1001", id)
}

func TestEngineSettingsFromConfig(t *testing.T) {
	markers := filepath.Join(t.TempDir(), "markers.yaml")
	require.NoError(t, os.WriteFile(markers, []byte("categories:\n  oom: [\"heap exhausted\"]\n"), 0o600))
	cfg := loadConfig(t, `
thresholds:
  detection:
    cpu: 70
forecast:
  minSlopeByMetric:
    Latency: 0.01
diagnosis:
  markersPath: `+markers+"\n")

	s, err := engineSettings(cfg, utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 70.0, s.Detection[models.MetricCPU])
	assert.Equal(t, 85.0, s.Detection[models.MetricMemory])
	assert.Equal(t, 0.01, s.Forecast.MinSlopeByMetric[models.MetricLatency])
	assert.True(t, s.Markers.Indicates("FATAL: heap exhausted", engine.CategoryOOM))
}
