package resilientclient

import "context"

// Transport moves a single normalized request over the wire. Implementations
// must not retry, refresh credentials, or consult the cache; those concerns
// belong to the executor. A (nil, error) return means no response was
// received at all, which the classifier maps to KindNetwork.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// RequestHook is a middleware stage run against every outgoing request, in
// registration order, before dispatch. Hooks may mutate and must return the
// request they were given (or a replacement).
type RequestHook func(req *Request) *Request

// ResponseHook is a middleware stage run against every response or dispatch
// error, in registration order. Hooks may observe or substitute both values.
type ResponseHook func(resp *Response, err error) (*Response, error)

// TokenStore owns the current credential pair. Get must be cheap enough to
// call once per dispatch; Set must be atomic with respect to concurrent Gets.
type TokenStore interface {
	Get() *Credential
	Set(cred *Credential) error
	Clear() error
}
