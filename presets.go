package relay

import "time"

// Pattern: Factory Function — each preset produces a ready-made option bundle
// for a common use case, avoiding boilerplate configuration.

// DashboardDefaults returns options matching the standard dashboard session
// profile: 30s per-attempt timeout, 3 retries with 1s exponential backoff
// capped at 30s, and circuit breakers with a 5-failure threshold and 60s
// open timeout. These are also the zero-option defaults of [New]; the preset
// exists so callers can state the profile explicitly and layer overrides on
// top.
func DashboardDefaults() []Option {
	return []Option{
		WithDefaultTimeout(30 * time.Second),
		WithRetryPolicy(NewRetryPolicy(
			MaxRetries(3),
			Backoff(ExponentialBackoff(time.Second)),
			MaxDelay(30*time.Second),
		)),
		WithBreakers(WithBreaker(
			FailureThreshold(5),
			OpenTimeout(60*time.Second),
		)),
	}
}

// InteractiveClient returns options for latency-sensitive views where a
// stale error beats a long wait: 5s timeout, 2 retries with 200ms
// exponential backoff capped at 2s, and breakers that open after 3 failures
// and re-probe after 15s.
func InteractiveClient() []Option {
	return []Option{
		WithDefaultTimeout(5 * time.Second),
		WithRetryPolicy(NewRetryPolicy(
			MaxRetries(2),
			Backoff(ExponentialBackoff(200*time.Millisecond)),
			MaxDelay(2*time.Second),
		)),
		WithBreakers(WithBreaker(
			FailureThreshold(3),
			OpenTimeout(15*time.Second),
		)),
	}
}

// BackgroundSync returns options for background refresh loops that can wait
// out transient trouble: 60s timeout, 5 retries with jittered 2s exponential
// backoff capped at 60s, breakers with the default threshold but a 120s open
// timeout, and remote rate limiting counted toward the breaker since a
// background loop has no user to pace it.
func BackgroundSync() []Option {
	return []Option{
		WithDefaultTimeout(60 * time.Second),
		WithRetryPolicy(NewRetryPolicy(
			MaxRetries(5),
			Backoff(ExponentialJitterBackoff(2*time.Second)),
			MaxDelay(60*time.Second),
		)),
		WithBreakers(
			WithBreaker(OpenTimeout(120*time.Second)),
			RateLimitedTripsBreaker(),
		),
	}
}
