package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// rateLimitClock — controllable clock for deterministic rate limiter tests
// ---------------------------------------------------------------------------

// rateLimitClock allows explicit control of the current time and produces
// timers that auto-fire after a short real sleep, so blocking-mode tests
// never hang.
type rateLimitClock struct {
	mu  sync.Mutex
	now time.Time
}

func newRateLimitClock(t time.Time) *rateLimitClock {
	return &rateLimitClock{now: t}
}

func (c *rateLimitClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *rateLimitClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}

func (c *rateLimitClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *rateLimitClock) NewTimer(time.Duration) Timer {
	ch := make(chan time.Time, 1)
	go func() {
		time.Sleep(1 * time.Millisecond)
		ch <- time.Now()
	}()
	return &rateLimitTimer{ch: ch}
}

type rateLimitTimer struct {
	ch chan time.Time
}

func (t *rateLimitTimer) C() <-chan time.Time      { return t.ch }
func (t *rateLimitTimer) Stop() bool               { return true }
func (t *rateLimitTimer) Reset(time.Duration) bool { return false }

// ---------------------------------------------------------------------------
// Acquire within limit succeeds
// ---------------------------------------------------------------------------

func TestRateLimiterAllowWithinLimit(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(10, clk)

	// The bucket starts full with 10 tokens. Acquiring once should succeed.
	if err := rl.Allow(context.Background()); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}
}

func TestRateLimiterAllowMultipleWithinLimit(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(5, clk)

	// 5 tokens available, acquire all 5.
	for i := range 5 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() call %d = %v, want nil", i, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Exceed limit in reject mode returns ErrRateLimited
// ---------------------------------------------------------------------------

func TestRateLimiterRejectModeExceedLimit(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(3, clk)

	// Drain all 3 tokens.
	for range 3 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() = %v, want nil", err)
		}
	}

	// The 4th call should be rejected.
	err := rl.Allow(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() = %v, want ErrRateLimited", err)
	}
}

// ---------------------------------------------------------------------------
// Refill restores tokens as time advances
// ---------------------------------------------------------------------------

func TestRateLimiterRefill(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(2, clk)

	// Drain the bucket.
	for range 2 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() = %v, want nil", err)
		}
	}

	if err := rl.Allow(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() on empty bucket = %v, want ErrRateLimited", err)
	}

	// One second at 2/s refills 2 tokens.
	clk.advance(time.Second)

	for range 2 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() after refill = %v, want nil", err)
		}
	}
}

// ---------------------------------------------------------------------------
// Refill never exceeds capacity
// ---------------------------------------------------------------------------

func TestRateLimiterRefillCapped(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(2, clk)

	// A long idle period must not accumulate more than capacity.
	clk.advance(time.Hour)

	for i := range 2 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() call %d = %v, want nil", i, err)
		}
	}

	if err := rl.Allow(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() past capacity = %v, want ErrRateLimited", err)
	}
}

// ---------------------------------------------------------------------------
// Burst overrides the default capacity
// ---------------------------------------------------------------------------

func TestRateLimiterBurst(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(1, clk, Burst(5))

	for i := range 5 {
		if err := rl.Allow(context.Background()); err != nil {
			t.Fatalf("Allow() call %d = %v, want nil", i, err)
		}
	}

	if err := rl.Allow(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() past burst = %v, want ErrRateLimited", err)
	}
}

// ---------------------------------------------------------------------------
// Blocking mode waits for a token
// ---------------------------------------------------------------------------

func TestRateLimiterBlockingWaits(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(1, clk, RateLimitBlocking())

	if err := rl.Allow(context.Background()); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}

	done := make(chan error, 1)

	go func() {
		done <- rl.Allow(context.Background())
	}()

	// Let the waiter spin once, then refill.
	time.Sleep(5 * time.Millisecond)
	clk.advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocking Allow() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Allow() did not return after refill")
	}
}

// ---------------------------------------------------------------------------
// Blocking mode honors context cancellation
// ---------------------------------------------------------------------------

func TestRateLimiterBlockingCancel(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(1, clk, RateLimitBlocking())

	if err := rl.Allow(context.Background()); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- rl.Allow(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("blocking Allow() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Allow() did not return after cancel")
	}
}

// ---------------------------------------------------------------------------
// Saturated reflects bucket state
// ---------------------------------------------------------------------------

func TestRateLimiterSaturated(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(1, clk)

	if rl.Saturated() {
		t.Fatal("Saturated() on full bucket = true, want false")
	}

	if err := rl.Allow(context.Background()); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}

	if !rl.Saturated() {
		t.Fatal("Saturated() on empty bucket = false, want true")
	}
}

// ---------------------------------------------------------------------------
// Concurrent acquisition never over-admits
// ---------------------------------------------------------------------------

func TestRateLimiterConcurrentAcquire(t *testing.T) {
	clk := newRateLimitClock(time.Now())
	rl := NewRateLimiter(10, clk)

	const goroutines = 50

	var (
		admitted int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()

			if err := rl.Allow(context.Background()); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if admitted != 10 {
		t.Fatalf("admitted %d calls with 10 tokens, want 10", admitted)
	}
}
