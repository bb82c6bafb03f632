package resilientclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(store TokenStore, refresh refreshFunc, onExpired func(*NormalizedError)) *RefreshCoordinator {
	return newRefreshCoordinator(store, refresh, time.Second, silentLogger(), onExpired)
}

func TestRefreshRotatesCredential(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Set(&Credential{AccessToken: "a1", RefreshToken: "r1"}))

	var gotRefreshToken string
	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		gotRefreshToken = refreshToken
		return &Credential{AccessToken: "a2", RefreshToken: "r2"}, nil
	}, nil)

	require.NoError(t, rc.Refresh(context.Background(), "a1"))
	assert.Equal(t, "r1", gotRefreshToken)
	cred := store.Get()
	require.NotNil(t, cred)
	assert.Equal(t, "a2", cred.AccessToken)
	assert.Equal(t, "r2", cred.RefreshToken)
}

func TestRefreshSkipsWhenAlreadyRotated(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Set(&Credential{AccessToken: "a2", RefreshToken: "r2"}))

	var calls int32
	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		atomic.AddInt32(&calls, 1)
		return &Credential{AccessToken: "a3", RefreshToken: "r3"}, nil
	}, nil)

	// The caller saw a 401 on a token the store has already moved past.
	require.NoError(t, rc.Refresh(context.Background(), "a1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, "a2", store.Get().AccessToken)
}

func TestRefreshWithoutCredentialSignalsExpired(t *testing.T) {
	store := NewMemoryTokenStore()
	var signaled *NormalizedError
	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		t.Fatal("refresh must not be attempted without a refresh token")
		return nil, nil
	}, func(ne *NormalizedError) { signaled = ne })

	err := rc.Refresh(context.Background(), "")
	var ne *NormalizedError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindAuthentication, ne.Kind)
	require.NotNil(t, signaled)
	assert.Equal(t, KindAuthentication, signaled.Kind)
}

func TestRefreshFailureClearsStore(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Set(&Credential{AccessToken: "a1", RefreshToken: "r1"}))

	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		return nil, errors.New("refresh endpoint unreachable")
	}, nil)

	err := rc.Refresh(context.Background(), "a1")
	var ne *NormalizedError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindAuthentication, ne.Kind)
	assert.Nil(t, store.Get())
}

func TestRefreshKeepsOldRefreshTokenWhenServerOmitsIt(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Set(&Credential{AccessToken: "a1", RefreshToken: "r1"}))

	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		return &Credential{AccessToken: "a2"}, nil
	}, nil)

	require.NoError(t, rc.Refresh(context.Background(), "a1"))
	assert.Equal(t, "r1", store.Get().RefreshToken)
}

func TestConcurrentRefreshSingleFlight(t *testing.T) {
	store := NewMemoryTokenStore()
	require.NoError(t, store.Set(&Credential{AccessToken: "a1", RefreshToken: "r1"}))

	var calls int32
	rc := newTestCoordinator(store, func(ctx context.Context, refreshToken string) (*Credential, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return &Credential{AccessToken: "a2", RefreshToken: "r2"}, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rc.Refresh(context.Background(), "a1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers share one flight")
	assert.Equal(t, "a2", store.Get().AccessToken)
}
