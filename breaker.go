package relay

import (
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

type (
	breakerConfig struct {
		failureThreshold int
		openTimeout      time.Duration
	}

	// BreakerOption configures the circuit breakers a [Registry] creates.
	BreakerOption func(*breakerConfig)

	// breaker is the per-endpoint circuit state machine. Lock-free via
	// atomic CAS; owned by a [Registry], never used directly.
	breaker struct {
		clock Clock
		hooks *Hooks
		cfg   breakerConfig

		endpoint string

		state           atomic.Uint32 // stateClosed | stateOpen | stateHalfOpen
		failureCount    atomic.Int64
		lastFailureNano atomic.Int64
	}
)

// Circuit states (stored in atomic.Uint32).
const (
	stateClosed   uint32 = 0
	stateOpen     uint32 = 1
	stateHalfOpen uint32 = 2
)

// State names as reported by [CircuitStatus].
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

func defaultBreakerConfig() breakerConfig {
	return breakerConfig{
		failureThreshold: 5,
		openTimeout:      60 * time.Second,
	}
}

// FailureThreshold sets the number of consecutive breaker-eligible failures
// before an endpoint's circuit opens.
func FailureThreshold(n int) BreakerOption {
	return func(cfg *breakerConfig) {
		cfg.failureThreshold = n
	}
}

// OpenTimeout sets how long an open circuit rejects calls before admitting a
// half-open probe.
func OpenTimeout(d time.Duration) BreakerOption {
	return func(cfg *breakerConfig) {
		cfg.openTimeout = d
	}
}

func newBreaker(endpoint string, clock Clock, hooks *Hooks, cfg breakerConfig) *breaker {
	return &breaker{
		endpoint: endpoint,
		clock:    clock,
		hooks:    hooks,
		cfg:      cfg,
	}
}

// allow reports whether a call may dispatch, and whether the caller was
// admitted as the half-open probe. Closed always passes. Open passes only
// once the open timeout has elapsed, and then admits exactly one probe: the
// caller that wins the open->half-open CAS. Every other caller — ones racing
// the same transition and ones arriving while the probe is still in
// flight — is rejected with ErrCircuitOpen.
func (b *breaker) allow() (bool, error) {
	switch b.state.Load() {
	case stateClosed:
		return false, nil

	case stateHalfOpen:
		// A probe is already in flight.
		return false, ErrCircuitOpen

	default: // stateOpen
		last := time.Unix(0, b.lastFailureNano.Load())
		if b.clock.Since(last) < b.cfg.openTimeout {
			return false, ErrCircuitOpen
		}

		// The CAS is the probe claim; losing it means another caller probes.
		if !b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
			return false, ErrCircuitOpen
		}

		b.hooks.emitCircuitHalfOpen(b.endpoint)

		return true, nil
	}
}

// recordSuccess resets a closed circuit's failure count, or closes the
// circuit after a successful half-open probe.
func (b *breaker) recordSuccess() {
	switch b.state.Load() {
	case stateClosed:
		b.failureCount.Store(0)

	case stateHalfOpen:
		if b.state.CompareAndSwap(stateHalfOpen, stateClosed) {
			b.failureCount.Store(0)
			b.hooks.emitCircuitClose(b.endpoint)
		}

	default:
		// stateOpen — success cannot be attributed to a probe, ignore.
	}
}

// recordFailure counts a breaker-eligible failure. At the threshold the
// circuit opens; a failed half-open probe reopens it and restarts the
// timeout window.
func (b *breaker) recordFailure() {
	b.lastFailureNano.Store(b.clock.Now().UnixNano())

	switch b.state.Load() {
	case stateClosed:
		if b.failureCount.Add(1) < int64(b.cfg.failureThreshold) {
			return
		}

		if b.state.CompareAndSwap(stateClosed, stateOpen) {
			b.hooks.emitCircuitOpen(b.endpoint)
		}

	case stateHalfOpen:
		if b.state.CompareAndSwap(stateHalfOpen, stateOpen) {
			b.hooks.emitCircuitOpen(b.endpoint)
		}

	default:
		// stateOpen — already open.
	}
}

// recordNeutral releases a half-open probe claim without judging the
// dependency: the state returns to open with lastFailureAt untouched, so the
// next access re-probes immediately. Used for aborted attempts and for probe
// responses that say nothing about dependency health (client faults).
func (b *breaker) recordNeutral() {
	b.state.CompareAndSwap(stateHalfOpen, stateOpen)
}

// snapshot returns the current state without mutating it. Reading the state
// never triggers the open->half-open transition; only allow does that.
func (b *breaker) snapshot() CircuitStatus {
	return CircuitStatus{
		Endpoint:     b.endpoint,
		State:        stateName(b.state.Load()),
		FailureCount: int(b.failureCount.Load()),
	}
}

func stateName(s uint32) string {
	switch s {
	case stateOpen:
		return StateOpen
	case stateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
