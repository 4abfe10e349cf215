package relay

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// ConstantBackoff: same delay for every attempt
// ---------------------------------------------------------------------------

func TestConstantBackoff(t *testing.T) {
	s := ConstantBackoff(100 * time.Millisecond)

	for _, attempt := range []int{1, 2, 5, 10} {
		if got := s.Delay(attempt); got != 100*time.Millisecond {
			t.Fatalf("Delay(%d) = %v, want 100ms", attempt, got)
		}
	}
}

// ---------------------------------------------------------------------------
// ExponentialBackoff: doubles per attempt, 1-indexed
// ---------------------------------------------------------------------------

func TestExponentialBackoff(t *testing.T) {
	s := ExponentialBackoff(time.Second)

	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{6, 32 * time.Second},
	} {
		if got := s.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialBackoffClampsLowAttempts(t *testing.T) {
	s := ExponentialBackoff(time.Second)

	if got := s.Delay(0); got != time.Second {
		t.Fatalf("Delay(0) = %v, want 1s (clamped to attempt 1)", got)
	}

	if got := s.Delay(-3); got != time.Second {
		t.Fatalf("Delay(-3) = %v, want 1s (clamped to attempt 1)", got)
	}
}

// ---------------------------------------------------------------------------
// ExponentialJitterBackoff: bounded by the un-jittered delay
// ---------------------------------------------------------------------------

func TestExponentialJitterBackoffBounds(t *testing.T) {
	s := ExponentialJitterBackoff(100 * time.Millisecond)

	for attempt := 1; attempt <= 5; attempt++ {
		ceil := ExponentialBackoff(100 * time.Millisecond).Delay(attempt)

		for range 50 {
			got := s.Delay(attempt)
			if got < 0 || got > ceil {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, got, ceil)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// BackoffFunc adapts plain functions
// ---------------------------------------------------------------------------

func TestBackoffFunc(t *testing.T) {
	s := BackoffFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})

	if got := s.Delay(7); got != 7*time.Millisecond {
		t.Fatalf("Delay(7) = %v, want 7ms", got)
	}
}
