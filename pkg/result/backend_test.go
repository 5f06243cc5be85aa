package result_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/result"
	"github.com/eduforge/taskq/pkg/task"
)

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	b := result.NewMemoryBackend()
	ctx := context.Background()

	inv := &task.Invocation{
		ID:       uuid.New(),
		TaskName: "send_report",
		Status:   task.StatusRunning,
		Attempt:  1,
	}
	require.NoError(t, b.SetStatus(ctx, inv, ""))

	info, err := b.GetStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, info.Status)
	assert.Equal(t, int8(1), info.Attempt)
	assert.Empty(t, info.Error)

	// Transitions overwrite the previous status.
	inv.Status = task.StatusDeadLettered
	inv.Attempt = 3
	require.NoError(t, b.SetStatus(ctx, inv, "handler error"))

	info, err = b.GetStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDeadLettered, info.Status)
	assert.Equal(t, "handler error", info.Error)
}

func TestMemoryBackend_Missing(t *testing.T) {
	t.Parallel()

	b := result.NewMemoryBackend()
	_, err := b.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, result.ErrStatusNotFound)
}

func TestNoopBackend(t *testing.T) {
	t.Parallel()

	b := result.NewNoopBackend()
	ctx := context.Background()

	inv := &task.Invocation{ID: uuid.New(), Status: task.StatusSuccess}
	require.NoError(t, b.SetStatus(ctx, inv, ""))

	_, err := b.GetStatus(ctx, inv.ID)
	assert.ErrorIs(t, err, result.ErrStatusNotFound)
}
