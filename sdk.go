// sdk.go
// ------
// The Client is the entry point of the SDK. It wires the token store, the
// refresh coordinator, the retry policy, the cache, and the middleware chain
// around a Transport, and exposes the call surface application code uses:
// Do plus the verb helpers, Login/Logout, and cache controls.
//
// All shared mutable state (credential, refresh slot, cache) lives on the
// Client instance rather than in package globals, so tests and embedders can
// construct isolated clients.
package resilientclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client is the resilience and synchronization layer between application
// call sites and the rate-negotiation API.
type Client struct {
	mu sync.Mutex

	config    *Config
	transport Transport
	tokens    TokenStore
	cache     *Cache
	retry     *RetryPolicy
	executor  *RequestExecutor
	refresher *RefreshCoordinator
	logger    *log.Logger
	timeout   time.Duration

	requestHooks  []RequestHook
	responseHooks []ResponseHook

	onAuthExpired func(*NormalizedError)
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithTokenStore replaces the default file-backed credential store.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

// WithLogger replaces the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy replaces the config-derived retry policy.
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithOnAuthExpired registers the callback invoked when a token refresh
// fails and the application must prompt for a new login.
func WithOnAuthExpired(fn func(*NormalizedError)) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

// NewClient builds a client around the given transport. A nil config uses
// DefaultConfig.
func NewClient(cfg *Config, transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport must not be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:    cfg,
		transport: transport,
		retry:     cfg.retryPolicy(),
		timeout:   cfg.requestTimeout(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = log.New()
		if cfg.Debug {
			c.logger.SetLevel(log.DebugLevel)
		}
	}
	if c.tokens == nil {
		var key *[32]byte
		if cfg.EncryptionKey != "" {
			var err error
			if key, err = cfg.encryptionKey(); err != nil {
				return nil, err
			}
		}
		store, err := NewFileTokenStore(cfg.TokenDir, key)
		if err != nil {
			return nil, err
		}
		c.tokens = store
	}

	c.cache = NewCache(cfg.cachePolicies(), c.logger)
	c.executor = newRequestExecutor(c)
	c.refresher = newRefreshCoordinator(c.tokens, c.refreshCredential, c.timeout, c.logger, c.onAuthExpired)
	return c, nil
}

// Do runs one logical request. GET requests carrying a CacheKey go through
// the read-through cache; everything else dispatches directly through the
// executor, including mutating requests with their optimistic protocol.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if req.Category == "" {
		req.Category = CategoryDefault
	}

	if req.Method == http.MethodGet && req.CacheKey != nil && req.Mutation == nil {
		key := *req.CacheKey
		fetch := func(fctx context.Context) ([]byte, error) {
			resp, err := c.executor.Execute(fctx, req)
			if err != nil {
				return nil, err
			}
			return resp.Data, nil
		}
		data, err := c.cache.ReadThrough(ctx, key, fetch)
		if err != nil {
			return nil, err
		}
		return &Response{StatusCode: http.StatusOK, Headers: map[string]string{}, Data: data}, nil
	}

	return c.executor.Execute(ctx, req)
}

// Get performs an uncached GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// GetCached performs a read-through GET keyed by category and parameters.
func (c *Client) GetCached(ctx context.Context, path string, category Category, params ...string) (*Response, error) {
	key := NewCacheKey(category, params...)
	return c.Do(ctx, &Request{
		Method:   http.MethodGet,
		Path:     path,
		Category: category,
		CacheKey: &key,
	})
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Mutate performs a state-changing call with an optimistic cache update.
func (c *Client) Mutate(ctx context.Context, method, path string, body []byte, intent *MutationIntent) (*Response, error) {
	return c.Do(ctx, &Request{Method: method, Path: path, Body: body, Mutation: intent})
}

// Cache exposes the shared response cache.
func (c *Client) Cache() *Cache { return c.cache }

// InvalidateCache removes every cached entry matching pattern.
func (c *Client) InvalidateCache(pattern string) { c.cache.Invalidate(pattern) }

// Credential returns a snapshot of the stored credential, or nil when
// logged out.
func (c *Client) Credential() *Credential { return c.tokens.Get() }

// Close stops background cache pollers. The client stays usable for
// uncached calls.
func (c *Client) Close() { c.cache.Close() }
