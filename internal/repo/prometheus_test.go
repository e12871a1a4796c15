package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

type staticLogs []string

func (s staticLogs) RecentLogs(context.Context, string, int) ([]string, error) {
	return s, nil
}

// fakePrometheus answers instant and range queries. Instant results are keyed by the rendered query.
func fakePrometheus(t *testing.T, instant map[string]string, series []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		query := r.Form.Get("query")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/query":
			result := "[]"
			if v, ok := instant[query]; ok {
				result = fmt.Sprintf(`[{"metric":{},"value":[1700000000,%q]}]`, v)
			}
			fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
		case "/api/v1/query_range":
			points := make([]string, 0, len(series))
			for i, v := range series {
				points = append(points, fmt.Sprintf(`[%d,%q]`, 1700000000+15*i, v))
			}
			fmt.Fprintf(w, `{"status":"success","data":{"resultType":"matrix","result":[{"metric":{},"values":[%s]}]}}`, strings.Join(points, ","))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestTelemetry(t *testing.T, srv *httptest.Server, logs LogSource) *PrometheusTelemetry {
	t.Helper()
	tel, err := NewPrometheusTelemetry(PrometheusConfig{
		Address: srv.URL,
		Step:    15 * time.Second,
		Queries: map[string]string{
			"cpu":    `cpu{app="$service"}`,
			"memory": `mem{app="$service"}`,
		},
		Logs:   logs,
		Clock:  utils.NewManualClock(time.Unix(1_700_000_150, 0)),
		Logger: utils.DiscardLogger(),
	})
	require.NoError(t, err)
	return tel
}

func TestPrometheusCurrentSnapshot(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`cpu{app="checkout"}`: "42.5",
		`mem{app="checkout"}`: "91",
	}, nil)
	defer srv.Close()

	snap, err := newTestTelemetry(t, srv, nil).CurrentSnapshot(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, models.MetricSnapshot{models.MetricCPU: 42.5, models.MetricMemory: 91}, snap)
}

func TestPrometheusSnapshotPartialAndMissing(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{`cpu{app="checkout"}`: "10"}, nil)
	defer srv.Close()
	tel := newTestTelemetry(t, srv, nil)

	snap, err := tel.CurrentSnapshot(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, models.MetricSnapshot{models.MetricCPU: 10}, snap)

	_, err = tel.CurrentSnapshot(context.Background(), "ghost")
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestPrometheusHistoryKeepsNewestWindow(t *testing.T) {
	srv := fakePrometheus(t, nil, []string{"1", "2", "3", "4", "5"})
	defer srv.Close()
	tel := newTestTelemetry(t, srv, nil)

	history, err := tel.History(context.Background(), "checkout", models.MetricCPU, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, history)

	history, err = tel.History(context.Background(), "checkout", models.MetricLatency, 3)
	require.NoError(t, err)
	assert.Empty(t, history, "unconfigured metric has no history")
}

func TestPrometheusHistoryDropsNonFiniteSamples(t *testing.T) {
	srv := fakePrometheus(t, nil, []string{"NaN", "1", "+Inf", "2", "NaN"})
	defer srv.Close()

	history, err := newTestTelemetry(t, srv, nil).History(context.Background(), "checkout", models.MetricCPU, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, history)
}

func TestPrometheusSnapshotSkipsNaN(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`cpu{app="checkout"}`: "NaN",
		`mem{app="checkout"}`: "40",
	}, nil)
	defer srv.Close()

	snap, err := newTestTelemetry(t, srv, nil).CurrentSnapshot(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, models.MetricSnapshot{models.MetricMemory: 40}, snap)
}

func TestPrometheusIdleSeriesYieldsNoForecastInput(t *testing.T) {
	series := make([]string, 10)
	for i := range series {
		series[i] = "NaN"
	}
	srv := fakePrometheus(t, nil, series)
	defer srv.Close()

	history, err := newTestTelemetry(t, srv, nil).History(context.Background(), "checkout", models.MetricCPU, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPrometheusRecentLogs(t *testing.T) {
	srv := fakePrometheus(t, nil, nil)
	defer srv.Close()

	logs, err := newTestTelemetry(t, srv, nil).RecentLogs(context.Background(), "checkout", 5)
	require.NoError(t, err)
	assert.Empty(t, logs)

	logs, err = newTestTelemetry(t, srv, staticLogs{"ERROR: OOMKilled"}).RecentLogs(context.Background(), "checkout", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ERROR: OOMKilled"}, logs)
}

func TestPrometheusQueryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	_, err := newTestTelemetry(t, srv, nil).CurrentSnapshot(context.Background(), "checkout")
	require.Error(t, err)
	assert.False(t, errors.Is(err, utils.ErrNotFound))
}
