package relay

import "time"

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

type retryConfig struct {
	strategy   BackoffStrategy
	maxRetries int
	maxDelay   time.Duration
}

// RetryOption configures a [RetryPolicy].
type RetryOption func(*retryConfig)

// MaxRetries sets how many retries may follow the first attempt.
func MaxRetries(n int) RetryOption {
	return func(cfg *retryConfig) {
		cfg.maxRetries = n
	}
}

// MaxDelay caps the computed backoff delay.
func MaxDelay(d time.Duration) RetryOption {
	return func(cfg *retryConfig) {
		cfg.maxDelay = d
	}
}

// Backoff sets the backoff strategy.
func Backoff(s BackoffStrategy) RetryOption {
	return func(cfg *retryConfig) {
		cfg.strategy = s
	}
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxRetries: 3,
		strategy:   ExponentialBackoff(time.Second),
		maxDelay:   30 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------.

// RetryPolicy decides whether a failed attempt may be retried and how long
// to wait first. It is stateless; per-call attempt counting lives in the
// pipeline's [AttemptContext].
type RetryPolicy struct {
	cfg retryConfig
}

// NewRetryPolicy creates a policy with the given options. Defaults: 3
// retries, exponential backoff from 1s, capped at 30s.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	cfg := defaultRetryConfig()
	for _, o := range opts {
		o(&cfg)
	}

	return &RetryPolicy{cfg: cfg}
}

// MaxRetries returns the configured retry budget.
func (p *RetryPolicy) MaxRetries() int { return p.cfg.maxRetries }

// ShouldRetry reports whether the attempt numbered attempt (1-indexed) may
// be followed by another. Auth failures are never retried here — they need a
// credential refresh, not repetition — and CircuitOpen recovers only through
// the breaker's own timeout.
func (p *RetryPolicy) ShouldRetry(attempt int, ce *ClassifiedError) bool {
	if ce == nil || !ce.Retryable {
		return false
	}

	if ce.Kind == KindAuth || ce.Kind == KindCircuitOpen {
		return false
	}

	return attempt <= p.cfg.maxRetries
}

// DelayFor returns the capped backoff delay before retrying attempt
// (1-indexed): min(strategy delay, maxDelay).
func (p *RetryPolicy) DelayFor(attempt int) time.Duration {
	delay := p.cfg.strategy.Delay(attempt)
	if p.cfg.maxDelay > 0 && delay > p.cfg.maxDelay {
		delay = p.cfg.maxDelay
	}

	return delay
}
