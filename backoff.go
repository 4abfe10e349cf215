package relay

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy determines the delay before a retry attempt.
//
// Attempts are 1-indexed: Delay(1) is the wait before the first retry.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts an ordinary function into a [BackoffStrategy].
type BackoffFunc func(attempt int) time.Duration

// Delay calls the underlying function.
func (f BackoffFunc) Delay(attempt int) time.Duration { return f(attempt) }

// constantBackoff returns the same delay for every attempt.
type constantBackoff struct {
	d time.Duration
}

func (b *constantBackoff) Delay(_ int) time.Duration { return b.d }

// ConstantBackoff returns a strategy with a fixed delay regardless of the
// attempt number.
func ConstantBackoff(d time.Duration) BackoffStrategy {
	return &constantBackoff{d: d}
}

// exponentialBackoff returns base * 2^(attempt-1).
type exponentialBackoff struct {
	base time.Duration
}

func (b *exponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return time.Duration(float64(b.base) * math.Pow(2, float64(attempt-1)))
}

// ExponentialBackoff returns a strategy whose delay doubles with each
// attempt: base for the first retry, 2*base for the second, and so on.
func ExponentialBackoff(base time.Duration) BackoffStrategy {
	return &exponentialBackoff{base: base}
}

// exponentialJitterBackoff returns a random duration in
// [0, base * 2^(attempt-1)].
type exponentialJitterBackoff struct {
	base time.Duration
}

func (b *exponentialJitterBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ceil := int64(float64(b.base) * math.Pow(2, float64(attempt-1)))
	if ceil <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(ceil + 1))
}

// ExponentialJitterBackoff returns a strategy whose delay is uniformly
// distributed in [0, base * 2^(attempt-1)], spreading concurrent retries
// across time. The jittered value never exceeds the un-jittered one, so any
// cap applied on top still holds.
func ExponentialJitterBackoff(base time.Duration) BackoffStrategy {
	return &exponentialJitterBackoff{base: base}
}
