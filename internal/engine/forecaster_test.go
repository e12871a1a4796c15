package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestForecasterRiskLevels(t *testing.T) {
	cases := []struct {
		name    string
		history []float64
		risk    models.RiskLevel
	}{
		// slope ~4.17, headroom 5: 1.2 ticks
		{name: "high", history: ramp(50, 5, 6), risk: models.RiskHigh},
		// slope 2.7, headroom 43: ~15.9 ticks
		{name: "medium", history: ramp(10, 3, 10), risk: models.RiskMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tel := newFakeTelemetry()
			tel.trend("checkout", models.MetricCPU, tc.history...)
			f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())

			fc := f.Forecast(context.Background(), "checkout")
			require.NotNil(t, fc)
			assert.Equal(t, models.MetricCPU, fc.Metric)
			assert.Equal(t, tc.risk, fc.RiskLevel)
			assert.Greater(t, fc.TicksToBreach, 0.0)
			assert.Greater(t, fc.Slope, 0.0)
			assert.Equal(t, tc.history[len(tc.history)-1], fc.CurrentValue)
		})
	}
}

func TestForecasterUsesCoarseSlope(t *testing.T) {
	tel := newFakeTelemetry()
	tel.trend("checkout", models.MetricMemory, 60, 62, 64, 66, 70)
	f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())

	fc := f.Forecast(context.Background(), "checkout")
	require.NotNil(t, fc)
	assert.InDelta(t, 2.0, fc.Slope, 1e-9)         // (70-60)/5
	assert.InDelta(t, 7.5, fc.TicksToBreach, 1e-9) // (85-70)/2
}

func TestForecasterNoForecast(t *testing.T) {
	cases := map[string][]float64{
		"flat":             {40, 40, 40, 40},
		"single point":     {79},
		"empty":            nil,
		"already breached": ramp(70, 2, 10),
		"beyond horizon":   ramp(10, 1, 10),
		"falling":          {70, 60, 50},
	}
	for name, history := range cases {
		t.Run(name, func(t *testing.T) {
			tel := newFakeTelemetry()
			tel.trend("checkout", models.MetricCPU, history...)
			f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())
			assert.Nil(t, f.Forecast(context.Background(), "checkout"))
		})
	}
}

func TestForecasterRejectsNonFiniteHistory(t *testing.T) {
	nan := math.NaN()
	cases := map[string][]float64{
		"all nan":      {nan, nan, nan, nan, nan, nan, nan, nan, nan, nan},
		"nan first":    {nan, 60, 70, 78},
		"nan current":  {50, 60, 70, nan},
		"infinite low": {math.Inf(-1), 60, 70, 78},
		"infinite now": {50, 60, 70, math.Inf(1)},
	}
	for name, history := range cases {
		t.Run(name, func(t *testing.T) {
			tel := newFakeTelemetry()
			tel.trend("checkout", models.MetricCPU, history...)
			f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())
			assert.Nil(t, f.Forecast(context.Background(), "checkout"))
		})
	}
}

func TestForecasterFirstMatchWins(t *testing.T) {
	tel := newFakeTelemetry()
	tel.trend("checkout", models.MetricMemory, ramp(60, 3, 8)...)
	tel.trend("checkout", models.MetricCPU, ramp(50, 4, 8)...)
	f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())

	fc := f.Forecast(context.Background(), "checkout")
	require.NotNil(t, fc)
	assert.Equal(t, models.MetricCPU, fc.Metric)
}

func TestForecasterIgnoresErrorRate(t *testing.T) {
	tel := newFakeTelemetry()
	tel.trend("checkout", models.MetricErrorRate, 0.0, 0.01, 0.02, 0.03, 0.04)
	f := NewForecaster(tel, nil, ForecastOptions{MinSlope: 0.0001}, utils.DiscardLogger())
	assert.Nil(t, f.Forecast(context.Background(), "checkout"))
}

func TestForecasterLatencyTrendWithPerMetricSlope(t *testing.T) {
	tel := newFakeTelemetry()
	// 0.05 per tick, stopping short of the 0.5 limit
	tel.trend("checkout", models.MetricLatency, ramp(0.05, 0.05, 9)...)
	opts := DefaultForecastOptions()
	opts.MinSlopeByMetric = map[models.MetricName]float64{models.MetricLatency: 0.01}
	f := NewForecaster(tel, nil, opts, utils.DiscardLogger())

	fc := f.Forecast(context.Background(), "checkout")
	require.NotNil(t, fc)
	assert.Equal(t, models.MetricLatency, fc.Metric)
	assert.Contains(t, []models.RiskLevel{models.RiskMedium, models.RiskHigh}, fc.RiskLevel)

	plan := NewPlanner().Plan(PlanContext{Forecast: fc})
	assert.True(t, plan.Contains(models.ActionScaleUp))
}

func TestForecasterLatencyAlreadyPastLimitIsLeftToMonitor(t *testing.T) {
	tel := newFakeTelemetry()
	tel.trend("checkout", models.MetricLatency, ramp(0.05, 0.05, 11)...)
	opts := DefaultForecastOptions()
	opts.MinSlopeByMetric = map[models.MetricName]float64{models.MetricLatency: 0.01}
	f := NewForecaster(tel, nil, opts, utils.DiscardLogger())

	assert.Nil(t, f.Forecast(context.Background(), "checkout"))
}

func TestForecasterSkipsHistoryErrors(t *testing.T) {
	tel := newFakeTelemetry()
	tel.histErr = errors.New("backend down")
	f := NewForecaster(tel, nil, DefaultForecastOptions(), utils.DiscardLogger())
	assert.Nil(t, f.Forecast(context.Background(), "checkout"))
}
