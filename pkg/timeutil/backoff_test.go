package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	t.Run("rejects attempts below one", func(t *testing.T) {
		_, err := RetryDelay(0)
		require.Error(t, err)
		_, err = RetryDelay(-3)
		require.Error(t, err)
	})

	t.Run("first attempts land inside the jitter band", func(t *testing.T) {
		d1, err := RetryDelay(1)
		require.NoError(t, err)
		assert.Equal(t, 31*time.Second, d1)
		assert.GreaterOrEqual(t, d1, 27*time.Second)
		assert.LessOrEqual(t, d1, 33*time.Second)

		d2, err := RetryDelay(2)
		require.NoError(t, err)
		assert.Equal(t, 121*time.Second, d2)
		assert.GreaterOrEqual(t, d2, 108*time.Second)
		assert.LessOrEqual(t, d2, 132*time.Second)
	})

	t.Run("is deterministic per attempt", func(t *testing.T) {
		for attempt := 1; attempt <= 10; attempt++ {
			first, err := RetryDelay(attempt)
			require.NoError(t, err)
			second, err := RetryDelay(attempt)
			require.NoError(t, err)
			assert.Equal(t, first, second, "attempt %d", attempt)
		}
	})

	t.Run("repeats the last base beyond attempt five", func(t *testing.T) {
		for attempt := 5; attempt <= 9; attempt++ {
			d, err := RetryDelay(attempt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, 1080*time.Second, "attempt %d", attempt)
			assert.LessOrEqual(t, d, 1320*time.Second, "attempt %d", attempt)
		}
	})

	t.Run("never returns below one second", func(t *testing.T) {
		for attempt := 1; attempt <= 50; attempt++ {
			d, err := RetryDelay(attempt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, time.Second)
		}
	})
}
