package relay

import (
	"log/slog"
	"time"
)

// OutcomeEvent is the structured record emitted once per terminal Execute
// outcome, success or failure.
type OutcomeEvent struct {
	Err      *ClassifiedError // nil on success
	Endpoint string
	Method   string
	Attempts int
	Status   int
	Duration time.Duration
}

// Success reports whether the call ended in Terminal(Success).
func (ev OutcomeEvent) Success() bool { return ev.Err == nil }

// Hooks holds optional callbacks for pipeline lifecycle events. All fields
// are nil by default; set only the ones you care about. A Hooks value must
// not be mutated after construction — emit methods read the fields without
// synchronisation.
//
// Hook failures must never affect pipeline outcomes, so callbacks should not
// panic and should return quickly.
type Hooks struct {
	// OnRetry fires before each backoff wait.
	OnRetry func(endpoint string, attempt int, delay time.Duration, err error)
	// OnCircuitOpen fires when an endpoint's breaker opens.
	OnCircuitOpen func(endpoint string)
	// OnCircuitClose fires when a successful probe closes the breaker.
	OnCircuitClose func(endpoint string)
	// OnCircuitHalfOpen fires when the breaker admits a probe.
	OnCircuitHalfOpen func(endpoint string)
	// OnRateLimited fires when the local limiter rejects a call.
	OnRateLimited func(endpoint string)
	// OnAuthFailure fires exactly once per terminal Auth failure. This is
	// the navigation/redirect port: the embedding application decides how to
	// send the user back to authentication.
	OnAuthFailure func(endpoint string)
	// OnTokenRefreshed fires after a credential refresh succeeds.
	OnTokenRefreshed func(subject string)
	// OnOutcome fires once per terminal outcome with a structured record.
	OnOutcome func(ev OutcomeEvent)
}

func (h *Hooks) emitRetry(endpoint string, attempt int, delay time.Duration, err error) {
	if h.OnRetry != nil {
		h.OnRetry(endpoint, attempt, delay, err)
	}
}

func (h *Hooks) emitCircuitOpen(endpoint string) {
	if h.OnCircuitOpen != nil {
		h.OnCircuitOpen(endpoint)
	}
}

func (h *Hooks) emitCircuitClose(endpoint string) {
	if h.OnCircuitClose != nil {
		h.OnCircuitClose(endpoint)
	}
}

func (h *Hooks) emitCircuitHalfOpen(endpoint string) {
	if h.OnCircuitHalfOpen != nil {
		h.OnCircuitHalfOpen(endpoint)
	}
}

func (h *Hooks) emitRateLimited(endpoint string) {
	if h.OnRateLimited != nil {
		h.OnRateLimited(endpoint)
	}
}

func (h *Hooks) emitAuthFailure(endpoint string) {
	if h.OnAuthFailure != nil {
		h.OnAuthFailure(endpoint)
	}
}

func (h *Hooks) emitTokenRefreshed(subject string) {
	if h.OnTokenRefreshed != nil {
		h.OnTokenRefreshed(subject)
	}
}

func (h *Hooks) emitOutcome(ev OutcomeEvent) {
	if h.OnOutcome != nil {
		h.OnOutcome(ev)
	}
}

// LogHooks returns a Hooks value that records every event on logger.
// Failure outcomes log at the classifier's severity (warning or error);
// successes log at debug.
func LogHooks(logger *slog.Logger) Hooks {
	return Hooks{
		OnRetry: func(endpoint string, attempt int, delay time.Duration, err error) {
			logger.Warn("retrying request",
				"endpoint", endpoint,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		},
		OnCircuitOpen: func(endpoint string) {
			logger.Error("circuit opened", "endpoint", endpoint)
		},
		OnCircuitClose: func(endpoint string) {
			logger.Info("circuit closed", "endpoint", endpoint)
		},
		OnCircuitHalfOpen: func(endpoint string) {
			logger.Info("circuit half-open, probing", "endpoint", endpoint)
		},
		OnRateLimited: func(endpoint string) {
			logger.Warn("rate limited locally", "endpoint", endpoint)
		},
		OnAuthFailure: func(endpoint string) {
			logger.Warn("authentication required", "endpoint", endpoint)
		},
		OnTokenRefreshed: func(subject string) {
			logger.Info("credential refreshed", "subject", subject)
		},
		OnOutcome: func(ev OutcomeEvent) {
			if ev.Success() {
				logger.Debug("request succeeded",
					"endpoint", ev.Endpoint,
					"method", ev.Method,
					"status", ev.Status,
					"attempts", ev.Attempts,
					"duration", ev.Duration,
				)

				return
			}

			attrs := []any{
				"endpoint", ev.Endpoint,
				"method", ev.Method,
				"kind", ev.Err.Kind.String(),
				"status", ev.Status,
				"attempts", ev.Attempts,
				"duration", ev.Duration,
			}

			if ev.Err.Kind.Severity() == SeverityWarning {
				logger.Warn("request failed", attrs...)
			} else {
				logger.Error("request failed", attrs...)
			}
		},
	}
}
