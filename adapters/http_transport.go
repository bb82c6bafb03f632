// adapters/http_transport.go
// --------------------------
// The production Transport: a thin net/http wrapper that joins the base URL
// with the request path, copies headers both ways, and reads the full body.
// Response header names are lowercased so the executor can probe them
// without canonicalization concerns. Retries, credentials, and caching are
// all upstream; this layer only moves bytes.
package adapters

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	resilientclient "github.com/negotia/resilient-client"
)

// HTTPTransport dispatches requests against a single API base URL.
type HTTPTransport struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// NewHTTPTransport builds a transport for the given base URL. The underlying
// http.Client carries no timeout of its own; the executor applies the fixed
// per-request timeout through the context.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *resilientclient.Request) (*resilientclient.Response, error) {
	fullURL := t.BaseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if t.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		if len(vals) > 0 {
			headers[strings.ToLower(k)] = vals[0]
		}
	}

	return &resilientclient.Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Data:       data,
	}, nil
}

// WithTimeout sets a hard cap on the underlying client in addition to the
// executor's per-request context deadline. Zero removes the cap.
func (t *HTTPTransport) WithTimeout(d time.Duration) *HTTPTransport {
	t.Client.Timeout = d
	return t
}
