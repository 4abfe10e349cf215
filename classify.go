package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Classify maps a raw dispatch outcome for endpoint to a [*ClassifiedError].
// Exactly one of err and status is meaningful: err is the transport-level
// error when no usable response arrived, status is the HTTP status code
// otherwise. Classify never returns nil for a failed outcome; callers decide
// success (2xx/3xx) before calling it.
func Classify(endpoint string, status int, err error) *ClassifiedError {
	if err != nil {
		kind := KindNetwork
		if isTimeout(err) {
			kind = KindTimeout
		}

		return &ClassifiedError{
			Endpoint:  endpoint,
			Kind:      kind,
			Retryable: true,
			cause:     err,
		}
	}

	ce := &ClassifiedError{Endpoint: endpoint, Status: status}

	switch {
	case status == http.StatusUnauthorized:
		ce.Kind = KindAuth

	case status == http.StatusRequestTimeout:
		// A server-reported request timeout behaves like a local one.
		ce.Kind = KindTimeout
		ce.Retryable = true

	case status == http.StatusTooManyRequests:
		ce.Kind = KindRateLimited
		ce.Retryable = true

	case status >= 500:
		ce.Kind = KindServerFault
		ce.Retryable = true

	default:
		// 403, 404 and every remaining 4xx are the caller's problem.
		ce.Kind = KindClientFault
	}

	return ce
}

// classifyRejection wraps a pre-dispatch sentinel (breaker or local limiter)
// into the typed error the caller sees.
func classifyRejection(endpoint string, sentinel error) *ClassifiedError {
	ce := &ClassifiedError{Endpoint: endpoint, cause: sentinel}

	if errors.Is(sentinel, ErrRateLimited) {
		// Local throttling never reached the dependency; it retries like a
		// remote 429 but stays invisible to the breaker.
		ce.Kind = KindRateLimited
		ce.Retryable = true

		return ce
	}

	ce.Kind = KindCircuitOpen

	return ce
}

// isTimeout reports whether a transport error is timeout-shaped: a context
// deadline or a net.Error that timed out.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error

	return errors.As(err, &nerr) && nerr.Timeout()
}

// BreakerEligible reports whether a failure counts toward the circuit
// breaker threshold: retryable dependency-health faults only. Rate limiting
// is excluded unless the registry opts in via [RateLimitedTripsBreaker].
func BreakerEligible(ce *ClassifiedError) bool {
	switch ce.Kind {
	case KindNetwork, KindTimeout, KindServerFault:
		return true
	default:
		return false
	}
}
