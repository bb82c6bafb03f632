package resilientclient

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileTokenStore(dir, nil)
	require.NoError(t, err)

	assert.Nil(t, store.Get())

	cred := &Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, store.Set(cred))

	got := store.Get()
	require.NotNil(t, got)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
	assert.Equal(t, cred.RefreshToken, got.RefreshToken)

	// A new store over the same directory sees the persisted credential.
	reopened, err := NewFileTokenStore(dir, nil)
	require.NoError(t, err)
	got = reopened.Get()
	require.NotNil(t, got)
	assert.Equal(t, "access-1", got.AccessToken)

	require.NoError(t, store.Clear())
	assert.Nil(t, store.Get())
	_, err = os.Stat(filepath.Join(dir, credentialNamespace, credentialFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestFileTokenStoreOverwriteObservesOldOrNew(t *testing.T) {
	store, err := NewFileTokenStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(&Credential{AccessToken: "a1", RefreshToken: "r1"}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = store.Set(&Credential{AccessToken: "a2", RefreshToken: "r2"})
		}
	}()
	for i := 0; i < 50; i++ {
		got := store.Get()
		require.NotNil(t, got)
		assert.Contains(t, []string{"a1", "a2"}, got.AccessToken)
		assert.NotEmpty(t, got.RefreshToken)
	}
	<-done
}

func TestFileTokenStoreEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := sha256.Sum256([]byte("test key material"))

	store, err := NewFileTokenStore(dir, &key)
	require.NoError(t, err)
	require.NoError(t, store.Set(&Credential{AccessToken: "secret-access", RefreshToken: "secret-refresh"}))

	raw, err := os.ReadFile(filepath.Join(dir, credentialNamespace, credentialFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")

	reopened, err := NewFileTokenStore(dir, &key)
	require.NoError(t, err)
	got := reopened.Get()
	require.NotNil(t, got)
	assert.Equal(t, "secret-access", got.AccessToken)

	// The wrong key reads as logged out, not as garbage.
	otherKey := sha256.Sum256([]byte("different key"))
	wrong, err := NewFileTokenStore(dir, &otherKey)
	require.NoError(t, err)
	assert.Nil(t, wrong.Get())
}

func TestMemoryTokenStoreSnapshots(t *testing.T) {
	store := NewMemoryTokenStore()
	assert.Nil(t, store.Get())

	require.NoError(t, store.Set(&Credential{AccessToken: "a", RefreshToken: "r"}))
	snap := store.Get()
	snap.AccessToken = "tampered"
	assert.Equal(t, "a", store.Get().AccessToken)

	require.NoError(t, store.Clear())
	assert.Nil(t, store.Get())
}

func TestDeriveExpiry(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": float64(exp.Unix()),
	})
	signed, err := token.SignedString([]byte("signing-key"))
	require.NoError(t, err)

	assert.Equal(t, exp.Unix(), deriveExpiry(signed).Unix())
	assert.True(t, deriveExpiry("not-a-jwt").IsZero())
	assert.True(t, deriveExpiry("").IsZero())
}

func TestCredentialOAuth2Interop(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	cred := &Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: exp}

	tok := cred.Token()
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)

	back := CredentialFromToken(tok)
	assert.Equal(t, cred.AccessToken, back.AccessToken)
	assert.Equal(t, cred.RefreshToken, back.RefreshToken)
	assert.False(t, back.Expired())
}
