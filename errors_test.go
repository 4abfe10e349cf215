package relay

import (
	"errors"
	"fmt"
	"testing"
)

// ---------------------------------------------------------------------------
// Kind names and severities
// ---------------------------------------------------------------------------

func TestErrorKindString(t *testing.T) {
	for _, tc := range []struct {
		kind ErrorKind
		want string
	}{
		{KindNetwork, "network"},
		{KindTimeout, "timeout"},
		{KindAuth, "auth"},
		{KindRateLimited, "rate_limited"},
		{KindClientFault, "client_fault"},
		{KindServerFault, "server_fault"},
		{KindCircuitOpen, "circuit_open"},
		{ErrorKind(99), "unknown"},
	} {
		if got := tc.kind.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestErrorKindSeverity(t *testing.T) {
	warnings := map[ErrorKind]bool{
		KindClientFault: true,
		KindRateLimited: true,
		KindCircuitOpen: true,
	}

	for _, kind := range []ErrorKind{
		KindNetwork, KindTimeout, KindAuth, KindRateLimited,
		KindClientFault, KindServerFault, KindCircuitOpen,
	} {
		want := SeverityError
		if warnings[kind] {
			want = SeverityWarning
		}

		if got := kind.Severity(); got != want {
			t.Fatalf("%v.Severity() = %v, want %v", kind, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Error rendering and unwrapping
// ---------------------------------------------------------------------------

func TestClassifiedErrorMessage(t *testing.T) {
	ce := &ClassifiedError{
		Endpoint: "/clients",
		Kind:     KindServerFault,
		Status:   503,
	}

	want := "server_fault: /clients (http 503)"
	if got := ce.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	ce := Classify("/a", 0, cause)

	if !errors.Is(ce, cause) {
		t.Fatal("errors.Is(ce, cause) = false, want true")
	}
}

// ---------------------------------------------------------------------------
// AsClassified / KindOf walk wrapped chains
// ---------------------------------------------------------------------------

func TestAsClassified(t *testing.T) {
	ce := &ClassifiedError{Endpoint: "/a", Kind: KindTimeout}
	wrapped := fmt.Errorf("execute: %w", ce)

	got, ok := AsClassified(wrapped)
	if !ok || got != ce {
		t.Fatalf("AsClassified() = (%v, %v), want original error", got, ok)
	}

	if _, ok = AsClassified(errors.New("plain")); ok {
		t.Fatal("AsClassified(plain) = true, want false")
	}
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(&ClassifiedError{Kind: KindRateLimited})
	if !ok || kind != KindRateLimited {
		t.Fatalf("KindOf() = (%v, %v), want (KindRateLimited, true)", kind, ok)
	}

	if _, ok = KindOf(errors.New("plain")); ok {
		t.Fatal("KindOf(plain) = true, want false")
	}
}
