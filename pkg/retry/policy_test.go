package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/retry"
)

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Hour,
	}

	tests := []struct {
		attempt int8
		min     time.Duration
		max     time.Duration
	}{
		{0, 1 * time.Second, 2 * time.Second},
		{1, 2 * time.Second, 3 * time.Second},
		{2, 4 * time.Second, 5 * time.Second},
		{3, 8 * time.Second, 9 * time.Second},
		{4, 16 * time.Second, 17 * time.Second},
	}

	// Jitter is random, so sample each attempt several times.
	for _, tt := range tests {
		for range 50 {
			d := p.Delay(tt.attempt)
			assert.GreaterOrEqual(t, d, tt.min, "attempt %d", tt.attempt)
			assert.Less(t, d, tt.max, "attempt %d", tt.attempt)
		}
	}
}

func TestPolicy_DelayCapsAtMax(t *testing.T) {
	t.Parallel()

	p := retry.Policy{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
	}

	for range 20 {
		assert.Equal(t, 5*time.Second, p.Delay(10))
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	p := retry.Policy{MaxRetries: 2}

	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(1))
	assert.True(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestPolicy_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("fills unset fields", func(t *testing.T) {
		t.Parallel()

		p := retry.Policy{MaxRetries: -1}.Normalize()
		assert.Equal(t, retry.DefaultMaxRetries, p.MaxRetries)
		assert.Equal(t, retry.DefaultBaseDelay, p.BaseDelay)
		assert.Equal(t, retry.DefaultMaxDelay, p.MaxDelay)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		t.Parallel()

		p := retry.Policy{MaxRetries: 7, BaseDelay: time.Millisecond, MaxDelay: time.Second}.Normalize()
		require.Equal(t, int8(7), p.MaxRetries)
		require.Equal(t, time.Millisecond, p.BaseDelay)
		require.Equal(t, time.Second, p.MaxDelay)
	})

	t.Run("zero max retries means no retries", func(t *testing.T) {
		t.Parallel()

		p := retry.Policy{MaxRetries: 0}.Normalize()
		assert.Equal(t, int8(0), p.MaxRetries)
		assert.True(t, p.Exhausted(0))
	})
}
