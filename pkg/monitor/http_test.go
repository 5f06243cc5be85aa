package monitor_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/monitor"
)

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	m := monitor.NewMetrics()
	m.Observe(context.Background(), monitor.Event{Kind: monitor.EventSuccess, TaskName: "cleanup"})
	m.RegisterGauge("active_workers", func(ctx context.Context) float64 { return 4 })

	srv := httptest.NewServer(monitor.NewRouter(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitor.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Counters, 1)
	assert.Equal(t, "cleanup", snap.Counters[0].Task)
	assert.Equal(t, float64(4), snap.Gauges["active_workers"])
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		checks := map[string]monitor.Healthcheck{
			"broker": func(ctx context.Context) error { return nil },
		}
		srv := httptest.NewServer(monitor.NewRouter(monitor.NewMetrics(), checks))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unhealthy dependency", func(t *testing.T) {
		t.Parallel()

		checks := map[string]monitor.Healthcheck{
			"broker": func(ctx context.Context) error { return errors.New("connection refused") },
		}
		srv := httptest.NewServer(monitor.NewRouter(monitor.NewMetrics(), checks))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "connection refused", body["broker"])
	})
}
