package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notifykit/notifykit/pkg/queue"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	t.Parallel()

	t.Run("exponential doubles per attempt", func(t *testing.T) {
		t.Parallel()

		policy := queue.BackoffPolicy{Kind: queue.BackoffExponential, BaseDelay: 2 * time.Second}

		assert.Equal(t, 2*time.Second, policy.Delay(1))
		assert.Equal(t, 4*time.Second, policy.Delay(2))
		assert.Equal(t, 8*time.Second, policy.Delay(3))
	})

	t.Run("delays never decrease", func(t *testing.T) {
		t.Parallel()

		policy := queue.DefaultBackoff
		prev := time.Duration(0)
		for attempt := 1; attempt <= 10; attempt++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
			prev = delay
		}
	})

	t.Run("fixed stays constant", func(t *testing.T) {
		t.Parallel()

		policy := queue.BackoffPolicy{Kind: queue.BackoffFixed, BaseDelay: 5 * time.Second}

		assert.Equal(t, 5*time.Second, policy.Delay(1))
		assert.Equal(t, 5*time.Second, policy.Delay(7))
	})

	t.Run("max delay caps growth", func(t *testing.T) {
		t.Parallel()

		policy := queue.BackoffPolicy{
			Kind:      queue.BackoffExponential,
			BaseDelay: time.Second,
			MaxDelay:  5 * time.Second,
		}

		assert.Equal(t, 4*time.Second, policy.Delay(3))
		assert.Equal(t, 5*time.Second, policy.Delay(4))
		assert.Equal(t, 5*time.Second, policy.Delay(20))
	})
}
