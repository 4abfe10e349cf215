package relay

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------.

// Claims are the decoded identity fields of a bearer credential: who it
// represents and when it was issued and expires. They are read locally to
// decide validity without a network round trip; signature verification is
// the backend's job, not this client's.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Credential is an opaque bearer token plus its decoded claims. Credentials
// are immutable values owned by a [TokenStore]; refresh replaces the whole
// value, never mutates it.
type Credential struct {
	Token  string
	Claims Claims
}

// DecodeCredential decodes the claims embedded in a raw bearer token. A
// token whose claims cannot be parsed yields zero claims — and a zero
// ExpiresAt reads as expired, so malformed credentials fail closed.
func DecodeCredential(token string) Credential {
	cred := Credential{Token: token}

	var rc jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return cred
	}

	cred.Claims.Subject = rc.Subject

	if rc.IssuedAt != nil {
		cred.Claims.IssuedAt = rc.IssuedAt.Time
	}

	if rc.ExpiresAt != nil {
		cred.Claims.ExpiresAt = rc.ExpiresAt.Time
	}

	return cred
}

// ---------------------------------------------------------------------------
// TokenStore
// ---------------------------------------------------------------------------.

// Persister is the collaborator-owned storage boundary notified when the
// current credential changes. Persistence failures are the collaborator's
// concern and never affect the store.
type Persister interface {
	// Save persists the new current credential.
	Save(cred Credential) error
	// Drop removes any persisted credential.
	Drop() error
}

// TokenStore owns the current credential. Construct one per session and
// share it by reference; nothing outside the store writes the credential.
type TokenStore struct {
	clock            Clock
	persister        Persister
	refreshThreshold time.Duration

	mu   sync.RWMutex
	cred *Credential
}

// TokenStoreOption configures a [TokenStore].
type TokenStoreOption func(*TokenStore)

// RefreshThreshold sets how close to expiry a credential must be before the
// pipeline refreshes it proactively. Default 300s.
func RefreshThreshold(d time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		s.refreshThreshold = d
	}
}

// WithPersister sets the storage collaborator notified on Set and Clear.
func WithPersister(p Persister) TokenStoreOption {
	return func(s *TokenStore) {
		s.persister = p
	}
}

// NewTokenStore creates an empty store.
func NewTokenStore(clock Clock, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		clock:            clock,
		refreshThreshold: 300 * time.Second,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Current returns the current credential, if any.
func (s *TokenStore) Current() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return Credential{}, false
	}

	return *s.cred, true
}

// Set replaces the current credential and notifies the persister.
func (s *TokenStore) Set(cred Credential) {
	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	if s.persister != nil {
		//nolint:errcheck // persistence is fire-and-forget by contract
		_ = s.persister.Save(cred)
	}
}

// SetToken decodes raw and stores the resulting credential.
func (s *TokenStore) SetToken(raw string) {
	s.Set(DecodeCredential(raw))
}

// Clear evicts the current credential, as on logout or an authoritative
// unauthorized response.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()

	if s.persister != nil {
		//nolint:errcheck // persistence is fire-and-forget by contract
		_ = s.persister.Drop()
	}
}

// IsExpired reports whether cred may no longer be attached to a request:
// true when the expiry claim is missing or not in the future.
func (s *TokenStore) IsExpired(cred Credential) bool {
	exp := cred.Claims.ExpiresAt
	if exp.IsZero() {
		return true
	}

	return !exp.After(s.clock.Now())
}

// NeedsRefresh reports whether cred is close enough to expiry to refresh
// proactively. An already-expired credential is not "needs refresh" — that
// is the harder failure reported by [TokenStore.IsExpired].
func (s *TokenStore) NeedsRefresh(cred Credential) bool {
	if s.IsExpired(cred) {
		return false
	}

	return cred.Claims.ExpiresAt.Sub(s.clock.Now()) < s.refreshThreshold
}
