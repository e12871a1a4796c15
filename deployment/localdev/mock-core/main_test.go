package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/repo"
)

func TestMockCoreServesInjectedLogs(t *testing.T) {
	srv := httptest.NewServer(newMux(newLogBook()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/inject", "application/json",
		strings.NewReader(`{"service":"payment-service","message":"java.lang.OutOfMemoryError: Java heap space"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	client := repo.NewMiradorCoreClient(srv.URL, "/api/v1/rca/logs", time.Second, nil)
	lines, err := client.RecentLogs(context.Background(), "payment-service", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ERROR: java.lang.OutOfMemoryError: Java heap space"}, lines)

	lines, err = client.RecentLogs(context.Background(), "auth-service", 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMockCoreRejectsGet(t *testing.T) {
	srv := httptest.NewServer(newMux(newLogBook()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/rca/logs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
