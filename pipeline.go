package relay

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------.

// pipelineSetup collects options before the pipeline is wired, so the clock
// and hooks resolve first and every component shares them.
type pipelineSetup struct {
	clock     Clock
	hooks     Hooks
	breakers  *Registry
	retry     *RetryPolicy
	tokens    *TokenStore
	refresher Refresher
	limiter   *RateLimiter
	limitRate float64
	limitOpts []RateLimitOption
	queries   *QueryCache
	timeout   time.Duration

	registryOpts []RegistryOption
}

// Option configures a [Pipeline].
type Option func(*pipelineSetup)

// WithClock sets the clock shared by every pipeline component.
func WithClock(c Clock) Option {
	return func(s *pipelineSetup) {
		s.clock = c
	}
}

// WithHooks sets the lifecycle hooks shared by every pipeline component.
func WithHooks(h Hooks) Option {
	return func(s *pipelineSetup) {
		s.hooks = h
	}
}

// WithRegistry supplies an externally constructed circuit breaker registry,
// e.g. one shared with a diagnostics handler.
func WithRegistry(reg *Registry) Option {
	return func(s *pipelineSetup) {
		s.breakers = reg
	}
}

// WithBreakers configures the registry the pipeline builds when none is
// supplied via [WithRegistry].
func WithBreakers(opts ...RegistryOption) Option {
	return func(s *pipelineSetup) {
		s.registryOpts = append(s.registryOpts, opts...)
	}
}

// WithRetryPolicy sets the retry policy. Default: 3 retries, exponential
// backoff from 1s capped at 30s.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(s *pipelineSetup) {
		s.retry = p
	}
}

// WithTokenStore enables credential attachment: the store owns the current
// credential and the refresher is the collaborator auth endpoint used when
// it is absent, expiring or expired. Without this option the pipeline sends
// unauthenticated requests.
func WithTokenStore(store *TokenStore, refresher Refresher) Option {
	return func(s *pipelineSetup) {
		s.tokens = store
		s.refresher = refresher
	}
}

// WithRateLimit adds a client-side token bucket allowing rate dispatches per
// second.
func WithRateLimit(rate float64, opts ...RateLimitOption) Option {
	return func(s *pipelineSetup) {
		s.limitRate = rate
		s.limitOpts = opts
	}
}

// WithRateLimiter supplies an externally constructed limiter, e.g. one
// shared between pipelines.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *pipelineSetup) {
		s.limiter = rl
	}
}

// WithQueryCache enables read-response caching and write invalidation.
func WithQueryCache(qc *QueryCache) Option {
	return func(s *pipelineSetup) {
		s.queries = qc
	}
}

// WithDefaultTimeout bounds dispatch attempts whose descriptor carries no
// timeout. Default 30s.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *pipelineSetup) {
		s.timeout = d
	}
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------.

// Pipeline executes logical backend operations through a fixed sequence of
// stages: circuit check, credential attach, dispatch, classify, then retry
// or terminal. All shared state (circuit records, the current credential)
// lives in components the pipeline holds by reference and mutates only
// between suspension points.
type Pipeline struct {
	transport Transport
	clock     Clock
	hooks     Hooks
	breakers  *Registry
	retry     *RetryPolicy
	tokens    *TokenStore
	refresher Refresher
	limiter   *RateLimiter
	queries   *QueryCache
	timeout   time.Duration

	refreshGroup singleflight.Group
}

// New creates a pipeline dispatching through transport.
func New(transport Transport, opts ...Option) *Pipeline {
	setup := pipelineSetup{timeout: 30 * time.Second}

	for _, o := range opts {
		o(&setup)
	}

	if setup.clock == nil {
		setup.clock = RealClock{}
	}

	p := &Pipeline{
		transport: transport,
		clock:     setup.clock,
		hooks:     setup.hooks,
		retry:     setup.retry,
		tokens:    setup.tokens,
		refresher: setup.refresher,
		limiter:   setup.limiter,
		queries:   setup.queries,
		timeout:   setup.timeout,
	}

	p.breakers = setup.breakers
	if p.breakers == nil {
		p.breakers = NewRegistry(setup.clock, &p.hooks, setup.registryOpts...)
	}

	if p.retry == nil {
		p.retry = NewRetryPolicy()
	}

	if p.limiter == nil && setup.limitRate > 0 {
		p.limiter = NewRateLimiter(setup.limitRate, setup.clock, setup.limitOpts...)
	}

	return p
}

// CircuitStatus returns the endpoint's circuit record for diagnostics.
// Read-only and idempotent.
func (p *Pipeline) CircuitStatus(endpoint string) CircuitStatus {
	return p.breakers.Status(endpoint)
}

// Breakers exposes the registry, e.g. for mounting [StatusHandler].
func (p *Pipeline) Breakers() *Registry { return p.breakers }

// Execute runs one logical operation to a terminal outcome. On failure the
// returned error is a *ClassifiedError (or the caller's context error when
// the call was aborted). Retryable failures are retried with capped
// exponential backoff before surfacing; Auth and CircuitOpen surface
// immediately.
//
// Aborting ctx cancels any pending retry wait and records nothing against
// the endpoint's circuit: an abandoned attempt's outcome is unknown and
// counts as neutral.
func (p *Pipeline) Execute(ctx context.Context, req Descriptor) (*Response, error) {
	started := p.clock.Now()

	if p.queries != nil && !req.mutating() {
		if resp, ok := p.queries.Lookup(req.Endpoint); ok {
			return resp, nil
		}
	}

	attempt := AttemptContext{
		Attempt:     1,
		MaxAttempts: p.retry.MaxRetries() + 1,
	}

	for {
		resp, ce := p.attemptOnce(ctx, req)

		if ctx.Err() != nil {
			p.breakers.RecordAbort(req.Endpoint)

			return nil, ctx.Err()
		}

		if ce == nil {
			return p.terminalSuccess(req, resp, attempt, started), nil
		}

		// Circuit update. Pre-dispatch breaker rejections mutate nothing;
		// everything else is recorded, and non-eligible kinds release a held
		// probe claim without counting.
		if ce.Kind != KindCircuitOpen {
			p.breakers.RecordFailure(req.Endpoint, ce)
		}

		if ce.Kind == KindAuth {
			// The auth collaborator owns re-authentication; clear the
			// credential once and surface immediately.
			if p.tokens != nil {
				p.tokens.Clear()
			}

			p.hooks.emitAuthFailure(req.Endpoint)

			return nil, p.terminalFailure(req, ce, attempt, started)
		}

		if !p.retry.ShouldRetry(attempt.Attempt, ce) {
			return nil, p.terminalFailure(req, ce, attempt, started)
		}

		delay := p.retry.DelayFor(attempt.Attempt)
		p.hooks.emitRetry(req.Endpoint, attempt.Attempt, delay, ce)

		timer := p.clock.NewTimer(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		}

		attempt = attempt.next(ce)
	}
}

// attemptOnce runs the per-attempt stages: CircuitCheck, CredentialAttach,
// Dispatch, Classify. It returns the response on success or the classified
// failure otherwise; circuit bookkeeping belongs to the caller.
func (p *Pipeline) attemptOnce(ctx context.Context, req Descriptor) (*Response, *ClassifiedError) {
	// CircuitCheck.
	probe, err := p.breakers.allowAttempt(req.Endpoint)
	if err != nil {
		return nil, classifyRejection(req.Endpoint, err)
	}

	// Local throttle, before spending a credential refresh on a call that
	// would be dropped anyway.
	if p.limiter != nil {
		if limErr := p.limiter.Allow(ctx); limErr != nil {
			if errors.Is(limErr, ErrRateLimited) {
				p.hooks.emitRateLimited(req.Endpoint)
			}

			return nil, classifyRejection(req.Endpoint, ErrRateLimited)
		}
	}

	// CredentialAttach.
	token, refreshed, cerr := p.credential(ctx, req.Endpoint)
	if cerr != nil {
		return nil, cerr
	}

	// The refresh call is a suspension point: the circuit may have opened
	// while it ran, so re-validate instead of trusting the earlier check.
	// A held probe claim is ours and needs no re-check.
	if refreshed && !probe {
		if _, err = p.breakers.allowAttempt(req.Endpoint); err != nil {
			return nil, classifyRejection(req.Endpoint, err)
		}
	}

	// Dispatch, bounded by the attempt timeout.
	timeout := req.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, sendErr := p.transport.Send(
		dispatchCtx,
		req.Method,
		req.path(),
		p.withBearer(req.Headers, token),
		req.Body,
	)

	// Classify.
	if sendErr != nil {
		return nil, Classify(req.Endpoint, 0, sendErr)
	}

	if resp.Status >= 400 {
		return nil, Classify(req.Endpoint, resp.Status, nil)
	}

	return resp, nil
}

// credential resolves the bearer token for this attempt. Absent or expired
// credentials force a blocking refresh; a credential inside the refresh
// threshold is refreshed too, but its still-valid predecessor is used if the
// refresh fails. An expired credential is never returned.
func (p *Pipeline) credential(ctx context.Context, endpoint string) (string, bool, *ClassifiedError) {
	if p.tokens == nil {
		return "", false, nil
	}

	authErr := func(cause error) *ClassifiedError {
		return &ClassifiedError{
			Endpoint: endpoint,
			Kind:     KindAuth,
			cause:    cause,
		}
	}

	cred, ok := p.tokens.Current()

	switch {
	case !ok || p.tokens.IsExpired(cred):
		fresh, err := p.refresh(ctx, cred)
		if err != nil {
			return "", true, authErr(err)
		}

		return fresh.Token, true, nil

	case p.tokens.NeedsRefresh(cred):
		fresh, err := p.refresh(ctx, cred)
		if err == nil {
			return fresh.Token, true, nil
		}

		// Proactive refresh failed; the old credential carries the attempt
		// unless it expired while the refresh ran.
		if p.tokens.IsExpired(cred) {
			return "", true, authErr(err)
		}

		return cred.Token, true, nil

	default:
		return cred.Token, false, nil
	}
}

// refresh calls the auth collaborator, collapsed through singleflight so
// overlapping Execute calls share one refresh instead of stampeding it.
func (p *Pipeline) refresh(ctx context.Context, current Credential) (Credential, error) {
	if p.refresher == nil {
		return Credential{}, ErrNoCredential
	}

	v, err, _ := p.refreshGroup.Do("refresh", func() (any, error) {
		fresh, refreshErr := p.refresher.Refresh(ctx, current)
		if refreshErr != nil {
			return nil, refreshErr
		}

		p.tokens.Set(fresh)
		p.hooks.emitTokenRefreshed(fresh.Claims.Subject)

		return fresh, nil
	})
	if err != nil {
		return Credential{}, err
	}

	return v.(Credential), nil
}

// withBearer copies headers and attaches the Authorization header. The
// descriptor's own map is never written to.
func (p *Pipeline) withBearer(headers map[string]string, token string) map[string]string {
	if token == "" && len(headers) == 0 {
		return nil
	}

	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}

	if token != "" {
		out["Authorization"] = "Bearer " + token
	}

	return out
}

func (p *Pipeline) terminalSuccess(req Descriptor, resp *Response, attempt AttemptContext, started time.Time) *Response {
	p.breakers.RecordSuccess(req.Endpoint)

	if p.queries != nil {
		if req.mutating() {
			p.queries.Invalidate(req.Endpoint)
		} else {
			p.queries.Store(req.Endpoint, resp)
		}
	}

	p.hooks.emitOutcome(OutcomeEvent{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Attempts: attempt.Attempt,
		Status:   resp.Status,
		Duration: p.clock.Since(started),
	})

	return resp
}

func (p *Pipeline) terminalFailure(req Descriptor, ce *ClassifiedError, attempt AttemptContext, started time.Time) *ClassifiedError {
	p.hooks.emitOutcome(OutcomeEvent{
		Err:      ce,
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Attempts: attempt.Attempt,
		Status:   ce.Status,
		Duration: p.clock.Since(started),
	})

	return ce
}
