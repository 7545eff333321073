package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffStrategy names the function mapping an attempt number to a wait
// duration before the next attempt.
type BackoffStrategy string

const (
	ConstantBackoff    BackoffStrategy = "CONSTANT"
	LinearBackoff      BackoffStrategy = "LINEAR"
	ExponentialBackoff BackoffStrategy = "EXPONENTIAL"
	FibonacciBackoff   BackoffStrategy = "FIBONACCI"
	RandomBackoff      BackoffStrategy = "RANDOM"
	JitteredBackoff    BackoffStrategy = "JITTERED"
)

// Backoff computes per-attempt delays for one strategy. Fibonacci values
// are memoized across calls.
type Backoff struct {
	Strategy     BackoffStrategy
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64

	mu       sync.Mutex
	fibCache map[int]int64
	rng      *rand.Rand
}

// NewBackoff builds a backoff with the given strategy. A zero MaxDelay
// means no cap.
func NewBackoff(strategy BackoffStrategy, base, max time.Duration, jitterFactor float64) *Backoff {
	return &Backoff{
		Strategy:     strategy,
		BaseDelay:    base,
		MaxDelay:     max,
		JitterFactor: jitterFactor,
		fibCache:     map[int]int64{0: 0, 1: 1},
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before attempt n (1-indexed). Attempt 0 and
// below wait nothing. Every strategy is capped at MaxDelay.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var d time.Duration
	switch b.Strategy {
	case LinearBackoff:
		d = b.BaseDelay * time.Duration(attempt)
	case ExponentialBackoff:
		d = b.exponential(attempt)
	case FibonacciBackoff:
		d = time.Duration(b.fib(attempt)) * b.BaseDelay
	case RandomBackoff:
		d = b.uniform(b.BaseDelay, b.MaxDelay)
	case JitteredBackoff:
		base := b.exponential(attempt)
		b.mu.Lock()
		jitter := (b.rng.Float64()*2 - 1) * b.JitterFactor * float64(base)
		b.mu.Unlock()
		d = base + time.Duration(jitter)
	default: // ConstantBackoff
		d = b.BaseDelay
	}
	if d < 0 {
		d = 0
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

func (b *Backoff) exponential(attempt int) time.Duration {
	// Guard the shift: past ~62 doublings the cap applies anyway.
	if attempt > 62 {
		return b.MaxDelay
	}
	factor := math.Pow(2, float64(attempt-1))
	return time.Duration(float64(b.BaseDelay) * factor)
}

func (b *Backoff) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return min + time.Duration(b.rng.Int63n(int64(max-min)))
}

// fib returns the n-th Fibonacci number, memoized (fib(0)=0, fib(1)=1).
func (b *Backoff) fib(n int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fibLocked(n)
}

func (b *Backoff) fibLocked(n int) int64 {
	if v, ok := b.fibCache[n]; ok {
		return v
	}
	v := b.fibLocked(n-1) + b.fibLocked(n-2)
	b.fibCache[n] = v
	return v
}
