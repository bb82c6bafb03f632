// middleware.go
// -------------
// Explicit middleware registration. Stages run in registration order on
// every dispatch attempt, after the built-in credential and header
// attachment. Registration is safe at any time; in-flight dispatches keep
// the chain they started with.
package resilientclient

// UseRequest appends a request stage to the middleware chain.
func (c *Client) UseRequest(hook RequestHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHooks = append(c.requestHooks, hook)
}

// UseResponse appends a response/error stage to the middleware chain.
func (c *Client) UseResponse(hook ResponseHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHooks = append(c.responseHooks, hook)
}

func (c *Client) requestHooksSnapshot() []RequestHook {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestHook, len(c.requestHooks))
	copy(out, c.requestHooks)
	return out
}

func (c *Client) responseHooksSnapshot() []ResponseHook {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResponseHook, len(c.responseHooks))
	copy(out, c.responseHooks)
	return out
}
