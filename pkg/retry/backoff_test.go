package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelays(t *testing.T) {
	base := 100 * time.Millisecond
	max := 10 * time.Second

	t.Run("AttemptZeroIsFree", func(t *testing.T) {
		for _, strategy := range []BackoffStrategy{ConstantBackoff, LinearBackoff, ExponentialBackoff, FibonacciBackoff, RandomBackoff, JitteredBackoff} {
			b := NewBackoff(strategy, base, max, 0.1)
			assert.Equalf(t, time.Duration(0), b.Delay(0), "strategy %s", strategy)
			assert.Equalf(t, time.Duration(0), b.Delay(-1), "strategy %s", strategy)
		}
	})

	t.Run("Constant", func(t *testing.T) {
		b := NewBackoff(ConstantBackoff, base, max, 0)
		for n := 1; n <= 5; n++ {
			assert.Equal(t, base, b.Delay(n))
		}
	})

	t.Run("Linear", func(t *testing.T) {
		b := NewBackoff(LinearBackoff, base, max, 0)
		assert.Equal(t, base, b.Delay(1))
		assert.Equal(t, 3*base, b.Delay(3))
		assert.Equal(t, 5*base, b.Delay(5))
	})

	t.Run("Exponential", func(t *testing.T) {
		b := NewBackoff(ExponentialBackoff, base, max, 0)
		assert.Equal(t, base, b.Delay(1))
		assert.Equal(t, 2*base, b.Delay(2))
		assert.Equal(t, 4*base, b.Delay(3))
		assert.Equal(t, 8*base, b.Delay(4))
	})

	t.Run("Fibonacci", func(t *testing.T) {
		b := NewBackoff(FibonacciBackoff, base, max, 0)
		expected := []int64{1, 1, 2, 3, 5, 8}
		for n := 1; n <= 6; n++ {
			assert.Equalf(t, time.Duration(expected[n-1])*base, b.Delay(n), "fib attempt %d", n)
		}
	})

	t.Run("RandomWithinBounds", func(t *testing.T) {
		b := NewBackoff(RandomBackoff, base, max, 0)
		for i := 0; i < 50; i++ {
			d := b.Delay(1)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, max)
		}
	})

	t.Run("JitteredAroundExponential", func(t *testing.T) {
		b := NewBackoff(JitteredBackoff, base, max, 0.5)
		for i := 0; i < 50; i++ {
			d := b.Delay(3)
			exp := 4 * base
			assert.GreaterOrEqual(t, d, exp/2)
			assert.LessOrEqual(t, d, exp+exp/2)
		}
	})
}

func TestBackoffMonotonicUntilCap(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	for _, strategy := range []BackoffStrategy{LinearBackoff, ExponentialBackoff} {
		b := NewBackoff(strategy, base, max, 0)
		prev := time.Duration(0)
		capped := false
		for n := 1; n <= 12; n++ {
			d := b.Delay(n)
			assert.GreaterOrEqualf(t, d, prev, "strategy %s attempt %d", strategy, n)
			assert.LessOrEqualf(t, d, max, "strategy %s attempt %d", strategy, n)
			if d == max {
				capped = true
			}
			if capped {
				assert.Equalf(t, max, d, "strategy %s stays at cap after hitting it", strategy)
			}
			prev = d
		}
		assert.Truef(t, capped, "strategy %s should hit the cap", strategy)
	}
}

func TestBackoffLargeAttemptStaysCapped(t *testing.T) {
	b := NewBackoff(ExponentialBackoff, time.Second, time.Minute, 0)
	assert.Equal(t, time.Minute, b.Delay(100))
}
