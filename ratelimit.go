package relay

import (
	"context"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

type rateLimitConfig struct {
	blocking bool
	burst    int
}

// RateLimitOption configures rate limiter behavior.
type RateLimitOption func(*rateLimitConfig)

// RateLimitBlocking makes the limiter wait for a token instead of rejecting.
// The default is reject-fast: no queuing beyond the caller's own retry.
func RateLimitBlocking() RateLimitOption {
	return func(cfg *rateLimitConfig) {
		cfg.blocking = true
	}
}

// Burst sets the bucket capacity in whole tokens. Default: one second's
// worth of tokens at the configured rate.
func Burst(n int) RateLimitOption {
	return func(cfg *rateLimitConfig) {
		cfg.burst = n
	}
}

// ---------------------------------------------------------------------------
// RateLimiter
// ---------------------------------------------------------------------------.

// fixedPointScale represents one whole token, giving nanosecond-level
// precision for fractional refills.
const fixedPointScale int64 = 1_000_000_000

// RateLimiter is a client-side token bucket throttling outbound dispatches.
// Lock-free via atomic CAS for both refill and acquisition. A local
// rejection never reaches the dependency, so it is never breaker-eligible.
type RateLimiter struct {
	rate     float64 // tokens per second
	capacity int64   // fixed-point
	clock    Clock
	cfg      rateLimitConfig

	tokens   atomic.Int64
	lastNano atomic.Int64
}

// NewRateLimiter creates a limiter allowing rate dispatches per second.
func NewRateLimiter(rate float64, clock Clock, opts ...RateLimitOption) *RateLimiter {
	var cfg rateLimitConfig
	for _, o := range opts {
		o(&cfg)
	}

	capacity := int64(rate * float64(fixedPointScale))
	if cfg.burst > 0 {
		capacity = int64(cfg.burst) * fixedPointScale
	}

	rl := &RateLimiter{
		rate:     rate,
		capacity: capacity,
		clock:    clock,
		cfg:      cfg,
	}

	// Start full.
	rl.tokens.Store(capacity)
	rl.lastNano.Store(clock.Now().UnixNano())

	return rl
}

// refill credits tokens for the time elapsed since the last refill. The
// CAS on lastNano claims the elapsed window so concurrent refills never
// double-credit.
func (rl *RateLimiter) refill() {
	for {
		oldLast := rl.lastNano.Load()
		nowNano := rl.clock.Now().UnixNano()

		elapsed := nowNano - oldLast
		if elapsed <= 0 {
			return
		}

		if !rl.lastNano.CompareAndSwap(oldLast, nowNano) {
			continue
		}

		// scale = 1e9 = nanos/sec, so elapsed-nanos * rate is already
		// fixed-point tokens.
		add := int64(float64(elapsed) * rl.rate)
		if add <= 0 {
			return
		}

		for {
			old := rl.tokens.Load()

			updated := old + add
			if updated > rl.capacity {
				updated = rl.capacity
			}

			if rl.tokens.CompareAndSwap(old, updated) {
				return
			}
		}
	}
}

func (rl *RateLimiter) tryAcquire() bool {
	for {
		current := rl.tokens.Load()
		if current < fixedPointScale {
			return false
		}

		if rl.tokens.CompareAndSwap(current, current-fixedPointScale) {
			return true
		}
	}
}

// Allow attempts to take a token. Reject mode returns ErrRateLimited when
// the bucket is empty; blocking mode waits for a token, honoring ctx.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	rl.refill()

	if rl.tryAcquire() {
		return nil
	}

	if !rl.cfg.blocking {
		return ErrRateLimited
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		timer := rl.clock.NewTimer(time.Millisecond)
		select {
		case <-timer.C():
			rl.refill()

			if rl.tryAcquire() {
				return nil
			}
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		}
	}
}

// Saturated reports whether the bucket is currently empty.
func (rl *RateLimiter) Saturated() bool {
	rl.refill()

	return rl.tokens.Load() < fixedPointScale
}
