package relay

import (
	"errors"
	"strconv"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------.

// ErrorKind is the typed category of a classified failure. The pipeline's
// retry and breaker decisions key off the kind, never off raw status codes.
type ErrorKind int

// Classified error kinds.
const (
	// KindNetwork is a transport failure with no response received.
	KindNetwork ErrorKind = iota
	// KindTimeout is an attempt that exceeded its dispatch timeout.
	KindTimeout
	// KindAuth is an authoritative unauthorized response (HTTP 401).
	KindAuth
	// KindRateLimited is a rate-limit rejection (HTTP 429 or the local
	// client-side limiter).
	KindRateLimited
	// KindClientFault is a non-retryable caller error (4xx other than
	// 401/408/429).
	KindClientFault
	// KindServerFault is a dependency-side error (HTTP 5xx).
	KindServerFault
	// KindCircuitOpen is a pre-dispatch rejection by the circuit breaker.
	KindCircuitOpen
)

// String returns the kind as a stable lowercase identifier.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindClientFault:
		return "client_fault"
	case KindServerFault:
		return "server_fault"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Severity grades a failure for observability. It never drives control flow.
type Severity int

const (
	// SeverityWarning covers caller-side and throttling failures.
	SeverityWarning Severity = iota
	// SeverityError covers dependency-health failures.
	SeverityError
)

// String returns "warning" or "error".
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}

	return "error"
}

// Severity maps the kind to its observability grade: ClientFault,
// RateLimited and CircuitOpen are warnings; Network, Timeout, ServerFault
// and Auth are errors.
func (k ErrorKind) Severity() Severity {
	switch k {
	case KindClientFault, KindRateLimited, KindCircuitOpen:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// ---------------------------------------------------------------------------
// ClassifiedError
// ---------------------------------------------------------------------------.

// ClassifiedError is the typed failure surfaced by the pipeline. It carries
// enough structure (kind, HTTP status, endpoint key) for the caller to render
// an appropriate message; the core itself produces no user-facing text.
type ClassifiedError struct {
	cause error

	// Endpoint is the stable endpoint key the failure belongs to.
	Endpoint string
	// Kind is the typed category.
	Kind ErrorKind
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Retryable reports whether the retry policy may attempt this again.
	Retryable bool
}

// Error renders kind, endpoint and status. The cause, if any, is appended.
func (e *ClassifiedError) Error() string {
	msg := e.Kind.String() + ": " + e.Endpoint
	if e.Status != 0 {
		msg += " (http " + strconv.Itoa(e.Status) + ")"
	}

	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}

	return msg
}

// Unwrap exposes the underlying transport or sentinel error.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// AsClassified extracts a *ClassifiedError from err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}

	return nil, false
}

// KindOf returns the classified kind of err, or ok=false when err carries no
// classification.
func KindOf(err error) (ErrorKind, bool) {
	if ce, ok := AsClassified(err); ok {
		return ce.Kind, true
	}

	return 0, false
}

// Sentinel errors for pre-dispatch rejections.
var (
	// ErrCircuitOpen is returned when the breaker rejects a call without
	// dispatching.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRateLimited is returned when the local limiter rejects a call.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoCredential is returned when no credential is available and the
	// refresh collaborator cannot produce one.
	ErrNoCredential = errors.New("no valid credential")
)
