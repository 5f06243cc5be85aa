package beat_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/beat"
	"github.com/eduforge/taskq/pkg/task"
)

type emissionLog struct {
	mu   sync.Mutex
	invs []*task.Invocation
}

func (l *emissionLog) enqueue(_ context.Context, inv *task.Invocation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invs = append(l.invs, inv)
	return nil
}

func (l *emissionLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.invs)
}

func (l *emissionLog) last() *task.Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.invs) == 0 {
		return nil
	}
	return l.invs[len(l.invs)-1]
}

func runScheduler(t *testing.T, s *beat.Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.Run(ctx))
}

func TestScheduler_EmitsOnInterval(t *testing.T) {
	t.Parallel()

	log := &emissionLog{}
	s, err := beat.NewScheduler(log.enqueue, beat.WithTickInterval(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.Add(beat.Entry{
		Name:       "attendance-rollup",
		TaskName:   "attendance.rollup",
		Queue:      "reports",
		Priority:   task.PriorityHigh,
		MaxRetries: 2,
		Schedule:   beat.Every(50 * time.Millisecond),
	}))

	runScheduler(t, s, 180*time.Millisecond)

	// Fires land near 50/100/150ms after the lease is acquired.
	n := log.count()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 4)

	inv := log.last()
	require.NotNil(t, inv)
	assert.Equal(t, "attendance.rollup", inv.TaskName)
	assert.Equal(t, "reports", inv.Queue)
	assert.Equal(t, task.PriorityHigh, inv.Priority)
	assert.EqualValues(t, 2, inv.MaxRetries)
	assert.Equal(t, task.StatusPending, inv.Status)
}

func TestScheduler_OnlyLeaseHolderEmits(t *testing.T) {
	t.Parallel()

	state := beat.NewLeaseState()
	holder := state.Contender("other-process")
	held, err := holder.Acquire(context.Background(), time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	log := &emissionLog{}
	s, err := beat.NewScheduler(log.enqueue,
		beat.WithTickInterval(5*time.Millisecond),
		beat.WithLease(state.Contender("this-process")),
	)
	require.NoError(t, err)
	require.NoError(t, s.Add(beat.Entry{
		Name:     "cleanup",
		TaskName: "session.cleanup",
		Schedule: beat.Every(10 * time.Millisecond),
	}))

	runScheduler(t, s, 100*time.Millisecond)
	assert.Zero(t, log.count(), "a process without the lease must not emit")
}

func TestScheduler_TakeoverDoesNotReEmit(t *testing.T) {
	t.Parallel()

	store := beat.NewMemoryStore()
	// The previous holder fired moments ago; the next slot is an hour away.
	require.NoError(t, store.SetLastFire(context.Background(), "digest", time.Now()))

	log := &emissionLog{}
	s, err := beat.NewScheduler(log.enqueue,
		beat.WithTickInterval(5*time.Millisecond),
		beat.WithStore(store),
	)
	require.NoError(t, err)
	require.NoError(t, s.Add(beat.Entry{
		Name:     "digest",
		TaskName: "digest.send",
		Schedule: beat.Every(time.Hour),
	}))

	runScheduler(t, s, 100*time.Millisecond)
	assert.Zero(t, log.count())
}

func TestScheduler_MissedSlotsEmitSingleCatchUp(t *testing.T) {
	t.Parallel()

	store := beat.NewMemoryStore()
	// Three slots were missed while no process held the lease.
	require.NoError(t, store.SetLastFire(context.Background(), "digest", time.Now().Add(-3*time.Hour)))

	log := &emissionLog{}
	s, err := beat.NewScheduler(log.enqueue,
		beat.WithTickInterval(5*time.Millisecond),
		beat.WithStore(store),
	)
	require.NoError(t, err)
	require.NoError(t, s.Add(beat.Entry{
		Name:     "digest",
		TaskName: "digest.send",
		Schedule: beat.Every(time.Hour),
	}))

	runScheduler(t, s, 100*time.Millisecond)
	assert.Equal(t, 1, log.count(), "one catch-up, never a backlog burst")
}

func TestScheduler_Validation(t *testing.T) {
	t.Parallel()

	_, err := beat.NewScheduler(nil)
	assert.ErrorIs(t, err, beat.ErrNilEnqueue)

	log := &emissionLog{}
	s, err := beat.NewScheduler(log.enqueue)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Add(beat.Entry{TaskName: "x", Schedule: beat.Every(time.Second)}), beat.ErrEmptyEntryName)
	assert.ErrorIs(t, s.Add(beat.Entry{Name: "x", Schedule: beat.Every(time.Second)}), beat.ErrEmptyTaskName)
	assert.ErrorIs(t, s.Add(beat.Entry{Name: "x", TaskName: "y"}), beat.ErrNilSchedule)

	require.NoError(t, s.Add(beat.Entry{Name: "x", TaskName: "y", Schedule: beat.Every(time.Second)}))
	assert.ErrorIs(t, s.Add(beat.Entry{Name: "x", TaskName: "z", Schedule: beat.Every(time.Second)}), beat.ErrDuplicateEntry)

	empty, err := beat.NewScheduler(log.enqueue)
	require.NoError(t, err)
	assert.ErrorIs(t, empty.Run(context.Background()), beat.ErrNoEntries)
}

func TestMemoryLease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	state := beat.NewLeaseState()
	a := state.Contender("a")
	b := state.Contender("b")

	held, err := a.Acquire(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = b.Acquire(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, held, "held lease must not transfer")

	renewed, err := a.Renew(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, renewed)

	renewed, err = b.Renew(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, renewed, "non-holder cannot renew")

	require.NoError(t, a.Release(ctx))
	held, err = b.Acquire(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, held, "released lease is up for grabs")

	// Expiry hands the lease over without a release.
	state2 := beat.NewLeaseState()
	c := state2.Contender("c")
	held, err = c.Acquire(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)
	time.Sleep(20 * time.Millisecond)

	renewed, err = c.Renew(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, renewed, "expired lease cannot be renewed")

	d := state2.Contender("d")
	held, err = d.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	t.Run("valid table", func(t *testing.T) {
		t.Parallel()

		const table = `
entries:
  - name: nightly-report
    task: report.generate
    schedule: "0 2 * * *"
    args: {scope: all}
    queue: reports
    priority: 75
    max_retries: 2
  - name: heartbeat
    task: health.ping
    schedule: "@every 30s"
`
		entries, err := beat.LoadTable(strings.NewReader(table))
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "nightly-report", entries[0].Name)
		assert.Equal(t, "report.generate", entries[0].TaskName)
		assert.Equal(t, "reports", entries[0].Queue)
		assert.Equal(t, task.PriorityHigh, entries[0].Priority)
		assert.EqualValues(t, 2, entries[0].MaxRetries)
		assert.JSONEq(t, `{"scope":"all"}`, string(entries[0].Args))

		assert.Equal(t, "heartbeat", entries[1].Name)
		assert.Nil(t, entries[1].Args)
	})

	t.Run("bad schedule", func(t *testing.T) {
		t.Parallel()

		_, err := beat.LoadTable(strings.NewReader("entries:\n  - {name: x, task: y, schedule: nope}\n"))
		assert.Error(t, err)
	})

	t.Run("missing task", func(t *testing.T) {
		t.Parallel()

		_, err := beat.LoadTable(strings.NewReader("entries:\n  - {name: x, schedule: \"@hourly\"}\n"))
		assert.ErrorIs(t, err, beat.ErrEmptyTaskName)
	})
}
