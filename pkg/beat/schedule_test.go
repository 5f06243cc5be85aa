package beat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/beat"
)

func TestEvery(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := beat.Every(45 * time.Second)
	assert.Equal(t, from.Add(45*time.Second), s.Next(from))
	assert.Equal(t, "every 45s", s.String())
}

func TestHourlyAt(t *testing.T) {
	t.Parallel()

	s := beat.HourlyAt(15)

	before := time.Date(2026, 3, 10, 12, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC), s.Next(before))

	after := time.Date(2026, 3, 10, 12, 20, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 13, 15, 0, 0, time.UTC), s.Next(after))
}

func TestDailyAt(t *testing.T) {
	t.Parallel()

	s := beat.DailyAt(2, 30)

	morning := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC), s.Next(morning))

	evening := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC), s.Next(evening))

	exactly := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC), s.Next(exactly),
		"a fire time equal to from moves to the next day")
}

func TestWeeklyOn(t *testing.T) {
	t.Parallel()

	s := beat.WeeklyOn(time.Monday, 9, 0)

	// 2026-03-10 is a Tuesday.
	tuesday := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := s.Next(tuesday)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), next)
}

func TestMonthlyOn_ClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	s := beat.MonthlyOn(31, 0, 0)

	jan := time.Date(2026, 1, 31, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), s.Next(jan),
		"February has no 31st")
}

func TestCron(t *testing.T) {
	t.Parallel()

	t.Run("standard expression", func(t *testing.T) {
		t.Parallel()

		s, err := beat.Cron("0 2 * * *")
		require.NoError(t, err)

		from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), s.Next(from))
	})

	t.Run("descriptor", func(t *testing.T) {
		t.Parallel()

		s, err := beat.Cron("@every 30m")
		require.NoError(t, err)

		from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, from.Add(30*time.Minute), s.Next(from))
	})

	t.Run("invalid expression", func(t *testing.T) {
		t.Parallel()

		_, err := beat.Cron("not a cron")
		assert.Error(t, err)
	})
}
