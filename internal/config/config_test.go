package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIRADOR_AUTOPILOT_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"payment-service"}, cfg.Controller.Services)
	assert.Equal(t, 10, cfg.Controller.HistoryWindow)
	assert.Equal(t, 20, cfg.Controller.LogLines)
	assert.Equal(t, 80.0, cfg.Thresholds.Detection["cpu"])
	assert.Equal(t, 0.05, cfg.Thresholds.Detection["error_rate"])
	assert.Equal(t, 0.01, cfg.Thresholds.Validation["error_rate"])
	assert.Equal(t, 20.0, cfg.Forecast.Horizon)
	assert.Equal(t, 0.1, cfg.Forecast.MinSlope)
	assert.Equal(t, BackendSimulated, cfg.Telemetry.Backend)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autopilot.yaml")
	body := []byte(`
controller:
  services: [checkout, cart]
  tickInterval: 5s
forecast:
  minSlopeByMetric:
    latency: 0.01
tickets:
  backend: badger
  inMemory: true
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("MIRADOR_AUTOPILOT_STEP_TIMEOUT", "3s")
	t.Setenv("MIRADOR_AUTOPILOT_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"checkout", "cart"}, cfg.Controller.Services)
	assert.Equal(t, 5*time.Second, cfg.Controller.TickInterval)
	assert.Equal(t, 3*time.Second, cfg.Controller.StepTimeout)
	assert.Equal(t, 0.01, cfg.Forecast.MinSlopeMetric["latency"])
	assert.Equal(t, BackendBadger, cfg.Tickets.Backend)
	assert.True(t, cfg.Tickets.InMemory)
	assert.True(t, cfg.Logging.JSON)
	// untouched sections keep defaults
	assert.Equal(t, ":50051", cfg.Server.Address)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Controller.Services = nil
	cfg.Controller.TickInterval = 0
	cfg.Tickets.Backend = "postgres"
	cfg.Telemetry.Backend = BackendPrometheus

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "services must not be empty")
	assert.Contains(t, err.Error(), "tickInterval must be positive")
	assert.Contains(t, err.Error(), `unknown backend "postgres"`)
	assert.Contains(t, err.Error(), "prometheus.address is required")
}

func TestValidateRejectsNegativeMinSlope(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Forecast.MinSlope = -0.1
	cfg.Forecast.MinSlopeMetric = map[string]float64{"latency": -1, "cpu": 0.2}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast.minSlope must not be negative")
	assert.Contains(t, err.Error(), "forecast.minSlopeByMetric.latency must not be negative")
	assert.NotContains(t, err.Error(), "minSlopeByMetric.cpu")
}

func TestSampleConfigKeepsDefaultSlope(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "autopilot.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Forecast.MinSlope)
	assert.Empty(t, cfg.Forecast.MinSlopeMetric)
}
