// request_executor.go
// -------------------
// The per-request state machine: attach credential, dispatch, classify
// failures, and decide between surfacing, backing off for a retry, or
// routing a 401 through the refresh coordinator. A request is replayed after
// a refresh at most once, so a server that keeps rejecting fresh tokens
// cannot trap the client in a refresh loop. Optimistic mutations are applied
// before the first dispatch and rolled back on any terminal failure.
package resilientclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/negotia/resilient-client/internal"
)

// RequestExecutor drives retries, refresh routing, and mutation bookkeeping
// for a single logical request.
type RequestExecutor struct {
	client *Client
}

func newRequestExecutor(c *Client) *RequestExecutor {
	return &RequestExecutor{client: c}
}

// Execute runs the request to completion: a passing response, an exhausted
// retry budget, or a non-retryable classification.
func (re *RequestExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	c := re.client
	if req.id == "" {
		req.id = uuid.NewString()
	}
	logger := c.logger.WithFields(log.Fields{
		"request_id": req.id,
		"method":     req.Method,
		"path":       req.Path,
	})

	var snap *mutationSnapshot
	if req.Mutation != nil {
		snap = c.cache.applyOptimistic(req.Mutation)
	}
	fail := func(err error) (*Response, error) {
		if req.Mutation != nil {
			c.cache.rollback(snap)
		}
		return nil, err
	}

	attempt := 0
	refreshed := false
	for {
		attached := c.tokens.Get()
		resp, err := re.dispatch(ctx, req, attached)
		if err == nil && resp != nil && resp.StatusCode < 400 {
			if req.Mutation != nil {
				c.cache.commit(req.Mutation)
			}
			if attempt > 0 || refreshed {
				logger.WithField("attempt", attempt).Debug("request succeeded after recovery")
			}
			return resp, nil
		}

		nerr := Classify(err, resp)

		if nerr.Kind == KindAuthentication && !req.noRefresh && !refreshed {
			// One refresh-and-replay per request.
			refreshed = true
			stale := ""
			if attached != nil {
				stale = attached.AccessToken
			}
			logger.Debug("authentication rejected, coordinating refresh")
			if rerr := c.refresher.Refresh(ctx, stale); rerr != nil {
				return fail(asNormalized(rerr))
			}
			continue
		}

		if c.retry.ShouldRetry(nerr, attempt) {
			delay := re.retryDelay(nerr, resp, attempt)
			logger.WithFields(log.Fields{
				"kind":    nerr.Kind.String(),
				"attempt": attempt,
				"delay":   delay,
			}).Debug("retrying request")
			attempt++
			select {
			case <-ctx.Done():
				return fail(Classify(ctx.Err(), nil))
			case <-time.After(delay):
			}
			continue
		}

		logger.WithFields(log.Fields{
			"kind": nerr.Kind.String(),
			"code": nerr.Code,
		}).Debug("request failed")
		return fail(nerr)
	}
}

// dispatch performs one attempt: clone, attach headers and credential, run
// the middleware chain, and hand off to the transport under the fixed
// timeout.
func (re *RequestExecutor) dispatch(ctx context.Context, req *Request, cred *Credential) (*Response, error) {
	c := re.client

	out := req.clone()
	if out.Headers["Content-Type"] == "" && len(out.Body) > 0 {
		out.Headers["Content-Type"] = "application/json"
	}
	if out.Headers["Accept"] == "" {
		out.Headers["Accept"] = "application/json"
	}
	if cred != nil && cred.AccessToken != "" {
		out.Headers["Authorization"] = "Bearer " + cred.AccessToken
	}
	for _, hook := range c.requestHooksSnapshot() {
		out = hook(out)
	}

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.transport.RoundTrip(dctx, out)
	for _, hook := range c.responseHooksSnapshot() {
		resp, err = hook(resp, err)
	}
	return resp, err
}

// retryDelay computes the backoff for the next attempt, honoring a
// server-supplied Retry-After on 429 when it exceeds our own backoff.
func (re *RequestExecutor) retryDelay(nerr *NormalizedError, resp *Response, attempt int) time.Duration {
	delay := re.client.retry.BackoffDelay(attempt)
	if nerr.Kind == KindRateLimited && resp != nil {
		if ra := internal.ParseRetryAfter(resp.Headers["retry-after"]); ra > delay {
			return ra
		}
	}
	return delay
}
