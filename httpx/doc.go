// Package httpx provides a net/http transport adapter for the relay
// pipeline.
//
// Transport wraps a standard http.Client and a base URL, translating the
// pipeline's request shape into *http.Request and the response back into
// relay.Response with the body fully read.
package httpx
