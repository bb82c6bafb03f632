// mock/mock_transport.go
// ----------------------
// A scriptable Transport for tests. Stubs are consumed in order; the last
// stub repeats once the script runs out, so "fail twice then succeed" and
// "always 429" scenarios are both a few lines. Every dispatched request is
// recorded for assertions.
package mock

import (
	"context"
	"sync"
	"time"

	resilientclient "github.com/negotia/resilient-client"
)

// Stub is one scripted dispatch outcome.
type Stub struct {
	Status  int
	Headers map[string]string
	Body    []byte
	// Err, when set, simulates a transport failure: no response at all.
	Err error
	// Delay holds the response back, widening race windows in
	// concurrency tests.
	Delay time.Duration
}

// Transport replays a scripted sequence of outcomes.
type Transport struct {
	mu       sync.Mutex
	stubs    []Stub
	requests []*resilientclient.Request

	// Handler, when set, overrides the stub script entirely.
	Handler func(ctx context.Context, req *resilientclient.Request) (*resilientclient.Response, error)
}

// NewTransport builds a transport replaying the given stubs in order.
func NewTransport(stubs ...Stub) *Transport {
	return &Transport{stubs: stubs}
}

// Enqueue appends further stubs to the script.
func (t *Transport) Enqueue(stubs ...Stub) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stubs = append(t.stubs, stubs...)
}

func (t *Transport) RoundTrip(ctx context.Context, req *resilientclient.Request) (*resilientclient.Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	handler := t.Handler
	var stub Stub
	if handler == nil {
		if len(t.stubs) == 0 {
			t.mu.Unlock()
			return &resilientclient.Response{StatusCode: 200, Headers: map[string]string{}, Data: []byte(`{}`)}, nil
		}
		stub = t.stubs[0]
		if len(t.stubs) > 1 {
			t.stubs = t.stubs[1:]
		}
	}
	t.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}

	if stub.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(stub.Delay):
		}
	}
	if stub.Err != nil {
		return nil, stub.Err
	}
	headers := stub.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return &resilientclient.Response{
		StatusCode: stub.Status,
		Headers:    headers,
		Data:       stub.Body,
	}, nil
}

// Requests returns a snapshot of every request dispatched so far.
func (t *Transport) Requests() []*resilientclient.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*resilientclient.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// RequestCount returns how many dispatches have happened.
func (t *Transport) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}
