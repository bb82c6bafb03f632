// auth.go
// -------
// The login/refresh/logout endpoints. These contracts are consumed, not
// owned: both login and refresh return {token, refreshToken, user?}. Auth
// requests run through the same executor as everything else (so transient
// failures still back off and retry) but are flagged noRefresh: a 401 from
// /auth/login is a wrong password, not a reason to start a refresh cycle.
package resilientclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Login authenticates against POST /auth/login and stores the returned
// credential pair. The raw user payload, when present, is returned alongside
// the credential for the application to consume.
func (c *Client) Login(ctx context.Context, email, password string) (*Credential, json.RawMessage, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.executor.Execute(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      body,
		noRefresh: true,
	})
	if err != nil {
		return nil, nil, err
	}

	var parsed authResponse
	cred, err := credentialFromAuthBody(resp.Data, &parsed)
	if err != nil {
		return nil, nil, err
	}
	if err := c.tokens.Set(cred); err != nil {
		return nil, nil, err
	}
	c.logger.WithField("email", email).Debug("login succeeded")
	return cred, parsed.User, nil
}

// Logout clears the session. The remote call is best-effort: a failed
// server-side logout never prevents the local credential from being cleared.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.executor.Execute(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "/auth/logout",
		noRefresh: true,
	})
	if err != nil {
		c.logger.WithField("error", err).Debug("remote logout failed, clearing locally")
	}
	c.cache.Clear()
	return c.tokens.Clear()
}

// refreshCredential exchanges a refresh token at POST /auth/refresh. Called
// only from inside the refresh coordinator's single flight.
func (c *Client) refreshCredential(ctx context.Context, refreshToken string) (*Credential, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	resp, err := c.executor.Execute(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "/auth/refresh",
		Body:      body,
		noRefresh: true,
	})
	if err != nil {
		return nil, err
	}
	return credentialFromAuthBody(resp.Data, nil)
}

// credentialFromAuthBody parses a login/refresh response body. The advisory
// expiry is taken from the access token's exp claim when it is a JWT.
func credentialFromAuthBody(data []byte, out *authResponse) (*Credential, error) {
	var parsed authResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if parsed.Token == "" {
		return nil, fmt.Errorf("auth response carried no token")
	}
	if out != nil {
		*out = parsed
	}
	return &Credential{
		AccessToken:  parsed.Token,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    deriveExpiry(parsed.Token),
	}, nil
}
