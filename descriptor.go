package relay

import (
	"context"
	"net/http"
	"time"
)

// Descriptor describes one logical backend operation. It is immutable per
// attempt: a retry reuses the same descriptor with a new [AttemptContext],
// never a mutated one.
type Descriptor struct {
	// Method is the HTTP method.
	Method string
	// Endpoint is the stable endpoint key: method-agnostic path template
	// ("/clients/{id}"), not the concrete URL. Circuit state and telemetry
	// are bucketed by it.
	Endpoint string
	// Path is the concrete request path with parameters filled in. Empty
	// means the endpoint key is the path.
	Path string
	// Headers are caller-supplied headers. The pipeline copies them before
	// adding the bearer credential, so the descriptor is never written to.
	Headers map[string]string
	// Body is the request payload, nil for body-less methods.
	Body []byte
	// Timeout bounds a single dispatch attempt. Zero uses the pipeline
	// default.
	Timeout time.Duration
}

// path returns the concrete request path.
func (d Descriptor) path() string {
	if d.Path != "" {
		return d.Path
	}

	return d.Endpoint
}

// mutating reports whether the operation can change server state, which
// drives query-cache invalidation.
func (d Descriptor) mutating() bool {
	switch d.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Response is the successful result of a dispatched request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport is the collaborator that actually performs the network send.
// Implementations must honor ctx's deadline and return either a Response
// (any status) or a transport-level error when no response was received.
type Transport interface {
	Send(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error)
}

// TransportFunc adapts a function into a [Transport].
type TransportFunc func(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error)

// Send calls the underlying function.
func (f TransportFunc) Send(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error) {
	return f(ctx, method, path, headers, body)
}

// Refresher is the collaborator auth endpoint that exchanges the current
// credential for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, current Credential) (Credential, error)
}

// RefresherFunc adapts a function into a [Refresher].
type RefresherFunc func(ctx context.Context, current Credential) (Credential, error)

// Refresh calls the underlying function.
func (f RefresherFunc) Refresh(ctx context.Context, current Credential) (Credential, error) {
	return f(ctx, current)
}

// AttemptContext tracks one Execute call's progress through the retry loop.
// It is an immutable value: each retry derives the next context instead of
// mutating shared state.
type AttemptContext struct {
	// LastErr is the classified failure of the previous attempt, nil on the
	// first.
	LastErr *ClassifiedError
	// Attempt is the 1-indexed attempt number.
	Attempt int
	// MaxAttempts is the total attempt budget (first attempt + retries).
	MaxAttempts int
}

// next derives the context for the following attempt.
func (a AttemptContext) next(ce *ClassifiedError) AttemptContext {
	return AttemptContext{
		Attempt:     a.Attempt + 1,
		MaxAttempts: a.MaxAttempts,
		LastErr:     ce,
	}
}
