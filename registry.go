package relay

import (
	"net/http"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// CircuitStatus is the read-only diagnostic view of one endpoint's circuit
// record.
type CircuitStatus struct {
	Endpoint     string `json:"endpoint,omitempty"`
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// Registry owns per-endpoint circuit records, keyed by a stable endpoint
// identifier (method + path template, not the concrete URL). Records are
// created lazily on the first recorded failure and removed again on a
// recorded success; an endpoint without a record is closed.
//
// Construct one Registry per process or session and share it by reference —
// its map is the only place circuit state lives.
type Registry struct {
	clock Clock
	hooks *Hooks
	cfg   breakerConfig

	rateLimitedTrips bool

	mu       sync.RWMutex
	breakers map[string]*breaker
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// RateLimitedTripsBreaker makes remote 429 responses count toward the
// failure threshold, treating persistent rate-limiting as a dependency
// health signal. Off by default.
func RateLimitedTripsBreaker() RegistryOption {
	return func(r *Registry) {
		r.rateLimitedTrips = true
	}
}

// WithBreaker applies options to every circuit breaker the registry creates.
func WithBreaker(opts ...BreakerOption) RegistryOption {
	return func(r *Registry) {
		for _, o := range opts {
			o(&r.cfg)
		}
	}
}

// NewRegistry creates an empty registry. Defaults: threshold 5, open
// timeout 60s. A nil hooks means no observation.
func NewRegistry(clock Clock, hooks *Hooks, opts ...RegistryOption) *Registry {
	if hooks == nil {
		hooks = &Hooks{}
	}

	r := &Registry{
		clock:    clock,
		hooks:    hooks,
		cfg:      defaultBreakerConfig(),
		breakers: make(map[string]*breaker),
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// get returns the breaker for endpoint, or nil if no record exists.
func (r *Registry) get(endpoint string) *breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.breakers[endpoint]
}

// getOrCreate returns the breaker for endpoint, creating the record lazily.
func (r *Registry) getOrCreate(endpoint string) *breaker {
	if b := r.get(endpoint); b != nil {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[endpoint]; ok {
		return b
	}

	b := newBreaker(endpoint, r.clock, r.hooks, r.cfg)
	r.breakers[endpoint] = b

	return b
}

// Allow reports whether a call to endpoint may dispatch. Returns
// ErrCircuitOpen when the circuit is open (or a half-open probe is already
// in flight); the winning caller after the open timeout is admitted as the
// single probe.
func (r *Registry) Allow(endpoint string) error {
	_, err := r.allowAttempt(endpoint)

	return err
}

// allowAttempt is Allow plus the probe flag: true when this caller holds
// the half-open probe claim and must settle it with a success, failure or
// abort record.
func (r *Registry) allowAttempt(endpoint string) (bool, error) {
	b := r.get(endpoint)
	if b == nil {
		return false, nil
	}

	return b.allow()
}

// RecordSuccess clears the endpoint's circuit record. A successful half-open
// probe closes the circuit first so observers see the transition.
func (r *Registry) RecordSuccess(endpoint string) {
	b := r.get(endpoint)
	if b == nil {
		return
	}

	b.recordSuccess()

	r.mu.Lock()
	delete(r.breakers, endpoint)
	r.mu.Unlock()
}

// RecordFailure records a classified failure against endpoint. Only
// breaker-eligible kinds count toward the threshold; anything else is
// neutral — it still releases a held probe claim, because a non-eligible
// probe response proves nothing about dependency health.
func (r *Registry) RecordFailure(endpoint string, ce *ClassifiedError) {
	if !r.eligible(ce) {
		// Neutral: no record is created, but a half-open probe is released.
		if b := r.get(endpoint); b != nil {
			b.recordNeutral()
		}

		return
	}

	r.getOrCreate(endpoint).recordFailure()
}

// RecordAbort marks an abandoned attempt whose outcome is unknown. It never
// counts as failure or success; a held half-open probe claim is released so
// the next caller can probe.
func (r *Registry) RecordAbort(endpoint string) {
	if b := r.get(endpoint); b != nil {
		b.recordNeutral()
	}
}

func (r *Registry) eligible(ce *ClassifiedError) bool {
	if ce == nil {
		return false
	}

	if r.rateLimitedTrips && ce.Kind == KindRateLimited && ce.Status != 0 {
		return true
	}

	return BreakerEligible(ce)
}

// Status returns the endpoint's circuit record, or a zero closed record if
// none exists. Reading status never mutates state.
func (r *Registry) Status(endpoint string) CircuitStatus {
	b := r.get(endpoint)
	if b == nil {
		return CircuitStatus{Endpoint: endpoint, State: StateClosed}
	}

	return b.snapshot()
}

// StatusAll returns the records of every endpoint with failure bookkeeping,
// sorted by endpoint key for stable output.
func (r *Registry) StatusAll() []CircuitStatus {
	r.mu.RLock()

	statuses := make([]CircuitStatus, 0, len(r.breakers))
	for _, b := range r.breakers {
		statuses = append(statuses, b.snapshot())
	}

	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Endpoint < statuses[j].Endpoint
	})

	return statuses
}

// StatusHandler returns an [http.Handler] that reports all circuit records
// as JSON, for admin and diagnostic surfaces. Read-only: serving status
// never changes breaker state.
func StatusHandler(reg *Registry) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")

		//nolint:errcheck // best-effort JSON encoding to HTTP response
		_ = json.NewEncoder(writer).Encode(struct {
			Circuits []CircuitStatus `json:"circuits"`
		}{Circuits: reg.StatusAll()})
	})
}
