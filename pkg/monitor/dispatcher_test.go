package monitor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/monitor"
)

func TestDispatcher_RegistrationOrder(t *testing.T) {
	t.Parallel()

	d := monitor.NewDispatcher()

	var order []string
	d.Register(monitor.ObserverFunc(func(ctx context.Context, e monitor.Event) {
		order = append(order, "first")
	}))
	d.Register(monitor.ObserverFunc(func(ctx context.Context, e monitor.Event) {
		order = append(order, "second")
	}))
	d.Register(monitor.ObserverFunc(func(ctx context.Context, e monitor.Event) {
		order = append(order, "third")
	}))

	d.Publish(context.Background(), monitor.Event{Kind: monitor.EventSuccess})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatcher_PanickingObserverIsolated(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := monitor.NewDispatcher(monitor.WithDispatcherLogger(logger))

	var reached bool
	d.Register(monitor.ObserverFunc(func(ctx context.Context, e monitor.Event) {
		panic("observer bug")
	}))
	d.Register(monitor.ObserverFunc(func(ctx context.Context, e monitor.Event) {
		reached = true
	}))

	require.NotPanics(t, func() {
		d.Publish(context.Background(), monitor.Event{Kind: monitor.EventFailure})
	})
	assert.True(t, reached, "observers after the panicking one must still run")
}

func TestDispatcher_NilObserverIgnored(t *testing.T) {
	t.Parallel()

	d := monitor.NewDispatcher()
	d.Register(nil)

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), monitor.Event{Kind: monitor.EventPreRun})
	})
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := monitor.NewMetrics()
	tenantID := uuid.New()

	for range 3 {
		m.Observe(context.Background(), monitor.Event{
			Kind: monitor.EventSuccess, TaskName: "send_report", TenantID: tenantID,
		})
	}
	m.Observe(context.Background(), monitor.Event{
		Kind: monitor.EventFailure, TaskName: "send_report", TenantID: tenantID,
	})

	assert.Equal(t, uint64(3), m.CounterValue("send_report", "success", tenantID))
	assert.Equal(t, uint64(1), m.CounterValue("send_report", "failure", tenantID))
	assert.Zero(t, m.CounterValue("send_report", "success", uuid.New()), "counters are per tenant")
}

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := monitor.NewMetrics()
	tenantID := uuid.New()

	m.Observe(context.Background(), monitor.Event{
		Kind:     monitor.EventSuccess,
		TaskName: "generate_content",
		TenantID: tenantID,
		Duration: 120 * time.Millisecond,
	})
	m.RegisterGauge("queue_depth.default", func(ctx context.Context) float64 { return 7 })

	snap := m.Snapshot(context.Background())

	require.Len(t, snap.Counters, 1)
	assert.Equal(t, "generate_content", snap.Counters[0].Task)
	assert.Equal(t, "success", snap.Counters[0].Status)
	assert.Equal(t, uint64(1), snap.Counters[0].Value)

	require.Len(t, snap.Histograms, 1)
	assert.Equal(t, uint64(1), snap.Histograms[0].Total)
	assert.InDelta(t, 0.12, snap.Histograms[0].Sum, 0.001)

	assert.Equal(t, float64(7), snap.Gauges["queue_depth.default"])
}

func TestMetrics_AsDispatcherObserver(t *testing.T) {
	t.Parallel()

	m := monitor.NewMetrics()
	d := monitor.NewDispatcher()
	d.Register(m)

	tenantID := uuid.New()
	d.Publish(context.Background(), monitor.Event{
		Kind: monitor.EventRetry, TaskName: "sync_billing", TenantID: tenantID, Attempt: 1,
	})

	assert.Equal(t, uint64(1), m.CounterValue("sync_billing", "retry", tenantID))
}
