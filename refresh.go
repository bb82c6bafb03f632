// refresh.go
// ----------
// Single-flight token refresh. However many requests hit a 401 at once,
// exactly one refresh call goes out; everyone else queues on it and shares
// its outcome. This prevents the rotation race where a second refresh call
// carries an already-invalidated refresh token. A refresh failure clears the
// stored credential, fails all queued requests with an Authentication error,
// and signals the application boundary that a re-login is required.
package resilientclient

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "refresh"

// refreshFunc performs the actual /auth/refresh exchange.
type refreshFunc func(ctx context.Context, refreshToken string) (*Credential, error)

// RefreshCoordinator serializes token refreshes across the whole client.
type RefreshCoordinator struct {
	group     singleflight.Group
	store     TokenStore
	refresh   refreshFunc
	timeout   time.Duration
	logger    *log.Logger
	onExpired func(*NormalizedError)
}

func newRefreshCoordinator(store TokenStore, refresh refreshFunc, timeout time.Duration, logger *log.Logger, onExpired func(*NormalizedError)) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:     store,
		refresh:   refresh,
		timeout:   timeout,
		logger:    logger,
		onExpired: onExpired,
	}
}

// Refresh obtains a fresh credential, joining any refresh already in flight.
// staleAccessToken is the token the server just rejected; when the stored
// credential has already rotated past it, no network call is made. On
// success the Token Store holds the new credential; on failure the store is
// cleared and an Authentication error is returned.
func (rc *RefreshCoordinator) Refresh(ctx context.Context, staleAccessToken string) error {
	_, err, shared := rc.group.Do(refreshFlightKey, func() (interface{}, error) {
		cred := rc.store.Get()
		if cred == nil || cred.RefreshToken == "" {
			ne := authError("", nil)
			rc.signalExpired(ne)
			return nil, ne
		}
		if staleAccessToken != "" && cred.AccessToken != staleAccessToken {
			// An earlier flight already rotated the credential.
			return cred, nil
		}

		// The flight outlives any single waiter, so it runs under its own
		// timeout rather than a waiter's context.
		fctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
		defer cancel()

		fresh, rerr := rc.refresh(fctx, cred.RefreshToken)
		if rerr != nil {
			if cerr := rc.store.Clear(); cerr != nil {
				rc.logger.WithField("error", cerr).Warn("failed to clear credential after refresh failure")
			}
			ne := authFailure(rerr)
			rc.signalExpired(ne)
			return nil, ne
		}
		if fresh.RefreshToken == "" {
			// Servers that do not rotate the refresh token omit it.
			fresh.RefreshToken = cred.RefreshToken
		}
		if serr := rc.store.Set(fresh); serr != nil {
			return nil, serr
		}
		rc.logger.Debug("credential refreshed")
		return fresh, nil
	})
	if err != nil {
		if shared {
			rc.logger.Debug("queued request failed with shared refresh outcome")
		}
		return err
	}
	return nil
}

func (rc *RefreshCoordinator) signalExpired(ne *NormalizedError) {
	if rc.onExpired != nil {
		rc.onExpired(ne)
	}
}

// authFailure folds any refresh failure into an Authentication error. A
// request whose refresh fails surfaces as Authentication and is not retried
// again.
func authFailure(err error) *NormalizedError {
	if ne, ok := err.(*NormalizedError); ok {
		if ne.Kind == KindAuthentication {
			return ne
		}
		return &NormalizedError{
			Kind:    KindAuthentication,
			Code:    "401",
			Message: messageCatalog[KindAuthentication],
			cause:   ne,
		}
	}
	return authError("", err)
}
