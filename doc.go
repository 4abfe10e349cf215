// Package relay turns a logical "call this backend operation" intent into a
// safely-dispatched network request.
//
// The central type is Pipeline, which guards every call behind a per-endpoint
// circuit breaker, attaches and refreshes bearer credentials, classifies raw
// failures into a small typed taxonomy, and retries transient errors with
// capped exponential backoff. Optional stages add client-side rate limiting
// and query-cache invalidation.
package relay
