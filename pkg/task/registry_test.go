package task_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/task"
)

func noopHandler() task.Handler {
	return task.HandlerFunc(func(ctx context.Context, args json.RawMessage) error {
		return nil
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("successful registration", func(t *testing.T) {
		t.Parallel()

		r := task.NewRegistry()
		err := r.Register(task.Definition{Name: "send_report", Handler: noopHandler()})
		require.NoError(t, err)

		def, err := r.Lookup("send_report")
		require.NoError(t, err)
		assert.Equal(t, "send_report", def.Name)
		assert.Equal(t, task.DefaultQueueName, def.Queue)
		assert.Equal(t, task.PriorityDefault, def.Priority)
	})

	t.Run("duplicate name fails fast", func(t *testing.T) {
		t.Parallel()

		r := task.NewRegistry()
		require.NoError(t, r.Register(task.Definition{Name: "sync_billing", Handler: noopHandler()}))

		err := r.Register(task.Definition{Name: "sync_billing", Handler: noopHandler()})
		assert.ErrorIs(t, err, task.ErrDuplicateTask)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		t.Parallel()

		r := task.NewRegistry()
		err := r.Register(task.Definition{Handler: noopHandler()})
		assert.ErrorIs(t, err, task.ErrEmptyTaskName)
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		t.Parallel()

		r := task.NewRegistry()
		err := r.Register(task.Definition{Name: "cleanup"})
		assert.ErrorIs(t, err, task.ErrNilHandler)
	})

	t.Run("invalid priority rejected", func(t *testing.T) {
		t.Parallel()

		r := task.NewRegistry()
		err := r.Register(task.Definition{Name: "cleanup", Handler: noopHandler(), Priority: -5})
		assert.ErrorIs(t, err, task.ErrInvalidPriority)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	newRegistry := func(opts ...task.RegistryOption) *task.Registry {
		r := task.NewRegistry(opts...)
		require.NoError(t, r.Register(task.Definition{
			Name:     "report.weekly",
			Handler:  noopHandler(),
			Queue:    "reports",
			Priority: task.PriorityHigh,
		}))
		require.NoError(t, r.Register(task.Definition{
			Name:    "report",
			Handler: noopHandler(),
			Queue:   "reports-generic",
		}))
		return r
	}

	t.Run("exact match wins", func(t *testing.T) {
		t.Parallel()

		route, err := newRegistry().Resolve("report.weekly")
		require.NoError(t, err)
		assert.Equal(t, "reports", route.Queue)
		assert.Equal(t, task.PriorityHigh, route.Priority)
		assert.False(t, route.Defaulted)
	})

	t.Run("longest prefix match", func(t *testing.T) {
		t.Parallel()

		route, err := newRegistry().Resolve("report.weekly.csv")
		require.NoError(t, err)
		require.NotNil(t, route.Definition)
		assert.Equal(t, "report.weekly", route.Definition.Name)
		assert.Equal(t, "reports", route.Queue)
	})

	t.Run("shorter prefix when longest does not match", func(t *testing.T) {
		t.Parallel()

		route, err := newRegistry().Resolve("report.monthly")
		require.NoError(t, err)
		require.NotNil(t, route.Definition)
		assert.Equal(t, "report", route.Definition.Name)
		assert.Equal(t, "reports-generic", route.Queue)
	})

	t.Run("default queue fallback", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		r := newRegistry(task.WithDefaultQueue("catch-all"), task.WithRegistryLogger(logger))

		route, err := r.Resolve("billing.reconcile")
		require.NoError(t, err)
		assert.Nil(t, route.Definition)
		assert.Equal(t, "catch-all", route.Queue)
		assert.True(t, route.Defaulted)
	})

	t.Run("unknown task without default queue", func(t *testing.T) {
		t.Parallel()

		_, err := newRegistry().Resolve("billing.reconcile")
		assert.ErrorIs(t, err, task.ErrUnknownTask)
	})

	t.Run("lookup rejects defaulted routes", func(t *testing.T) {
		t.Parallel()

		r := newRegistry(task.WithDefaultQueue("catch-all"),
			task.WithRegistryLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

		_, err := r.Lookup("billing.reconcile")
		assert.ErrorIs(t, err, task.ErrUnknownTask)
	})
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := task.NewRegistry()
	require.NoError(t, r.Register(task.Definition{Name: "b", Handler: noopHandler()}))
	require.NoError(t, r.Register(task.Definition{Name: "a", Handler: noopHandler()}))

	assert.Equal(t, []string{"a", "b"}, r.Names())
}
