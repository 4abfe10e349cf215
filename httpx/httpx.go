package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/byte4ever/relay"
)

// Transport dispatches pipeline requests over a standard http.Client.
//
// Pattern: Adapter — bridges net/http and the pipeline's transport boundary
// by building requests against a fixed base URL and draining response bodies
// into values the retry loop can hold.
type Transport struct {
	hc      *http.Client
	baseURL string

	maxBodyBytes int64
}

// Option configures a [Transport].
type Option func(*Transport)

// WithHTTPClient sets the underlying client. Defaults to
// http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *Transport) {
		t.hc = hc
	}
}

// WithMaxBodyBytes caps how much of a response body is read. Zero means
// unlimited.
func WithMaxBodyBytes(n int64) Option {
	return func(t *Transport) {
		t.maxBodyBytes = n
	}
}

// NewTransport creates a transport sending requests to paths under baseURL.
// A trailing slash on baseURL is ignored.
func NewTransport(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		hc:      http.DefaultClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	for _, o := range opts {
		o(t)
	}

	return t
}

// Send implements [relay.Transport]. A response of any status is returned as
// a value; an error means no response was received at all, which is how the
// classifier tells network faults from HTTP faults.
func (t *Transport) Send(
	ctx context.Context,
	method, path string,
	headers map[string]string,
	body []byte,
) (*relay.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpx: %w", err)
	}
	defer resp.Body.Close()

	var src io.Reader = resp.Body
	if t.maxBodyBytes > 0 {
		src = io.LimitReader(resp.Body, t.maxBodyBytes)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("httpx: read body: %w", err)
	}

	return &relay.Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   data,
	}, nil
}

func (t *Transport) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return t.baseURL + path
}
