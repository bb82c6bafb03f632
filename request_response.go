// request_response.go
// -------------------
// Normalized request and response types exchanged between application call
// sites, the request executor, and the Transport. The executor owns retry,
// refresh, and caching decisions; a Transport only moves one Request to one
// Response over the wire.
package resilientclient

import (
	"encoding/json"
	"net/url"
)

// Category identifies which cache/staleness policy applies to a request.
// Categories correspond to areas of the rate-negotiation API with different
// volatility, see DefaultPolicies.
type Category string

const (
	CategoryDefault         Category = "default"
	CategoryNegotiations    Category = "negotiations"
	CategoryRateLines       Category = "rate-lines"
	CategoryMessaging       Category = "messaging"
	CategoryAnalytics       Category = "analytics"
	CategoryRecommendations Category = "recommendations"
)

// Request describes one logical call against the remote API.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte

	// Category selects the cache policy for cacheable reads.
	Category Category

	// CacheKey enables read-through caching for GET requests. Nil disables it.
	CacheKey *CacheKey

	// Mutation, when set on a state-changing call, describes the optimistic
	// cache update applied before dispatch and rolled back on failure.
	Mutation *MutationIntent

	// id is assigned by the executor and carried through log fields.
	id string

	// noRefresh marks requests that must never be routed through the refresh
	// coordinator. Set on the auth endpoints themselves.
	noRefresh bool
}

// clone returns a shallow copy with its own header map, so per-dispatch
// header mutation never leaks between retries.
func (r *Request) clone() *Request {
	out := *r
	out.Headers = make(map[string]string, len(r.Headers)+2)
	for k, v := range r.Headers {
		out.Headers[k] = v
	}
	return &out
}

// Response is the normalized result of a dispatched request.
type Response struct {
	StatusCode int
	// Headers are lowercased header names mapped to their first value.
	Headers map[string]string
	Data    []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}
