// token_store.go
// --------------
// Credential persistence. The file store keeps the access/refresh pair as
// JSON under a namespaced directory so a restarted process picks the session
// back up. Writes go through a temp file and rename, so a concurrent Get
// observes either the old or the new credential, never a torn one. The
// expiry is advisory only: the pipeline waits for the server's 401 rather
// than trusting local clocks.
package resilientclient

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/oauth2"
)

const (
	credentialNamespace = "negotia"
	credentialFileName  = "credential.json"
)

// Credential is the access/refresh token pair issued by the auth endpoints.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the advisory expiry has passed. A zero ExpiresAt
// never expires locally.
func (c *Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Token converts the credential to its oauth2 equivalent.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
		TokenType:    "Bearer",
	}
}

// CredentialFromToken converts an oauth2 token into a Credential.
func CredentialFromToken(t *oauth2.Token) *Credential {
	return &Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
}

// deriveExpiry extracts the advisory expiry from a JWT access token's exp
// claim. Tokens that are not JWTs, or carry no exp, yield a zero time.
func deriveExpiry(accessToken string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return time.Time{}
}

// FileTokenStore persists the credential as a JSON file, optionally sealed
// with nacl/secretbox when an encryption key is provided.
type FileTokenStore struct {
	mu     sync.RWMutex
	path   string
	key    *[32]byte
	cached *Credential
	loaded bool
}

// NewFileTokenStore creates a store rooted at dir. An empty dir selects the
// user config directory. key may be nil to store the credential unencrypted.
func NewFileTokenStore(dir string, key *[32]byte) (*FileTokenStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		dir = base
	}
	return &FileTokenStore{
		path: filepath.Join(dir, credentialNamespace, credentialFileName),
		key:  key,
	}, nil
}

// Get returns a snapshot of the current credential, or nil when logged out.
func (s *FileTokenStore) Get() *Credential {
	s.mu.RLock()
	if s.loaded {
		cred := s.snapshotLocked()
		s.mu.RUnlock()
		return cred
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.cached = s.readFile()
		s.loaded = true
	}
	return s.snapshotLocked()
}

func (s *FileTokenStore) snapshotLocked() *Credential {
	if s.cached == nil {
		return nil
	}
	cred := *s.cached
	return &cred
}

// Set atomically replaces the stored credential.
func (s *FileTokenStore) Set(cred *Credential) error {
	if cred == nil {
		return errors.New("credential must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if s.key != nil {
		data, err = sealCredential(data, s.key)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "credential-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credential file: %w", err)
	}

	copied := *cred
	s.cached = &copied
	s.loaded = true
	return nil
}

// Clear removes the stored credential. Missing files are not an error.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) readFile() *Credential {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	if s.key != nil {
		data, err = openCredential(data, s.key)
		if err != nil {
			return nil
		}
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil
	}
	if cred.AccessToken == "" {
		return nil
	}
	return &cred
}

// sealCredential encrypts data with a random nonce prepended to the box.
func sealCredential(data []byte, key *[32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, key), nil
}

func openCredential(data []byte, key *[32]byte) ([]byte, error) {
	if len(data) < 24 {
		return nil, errors.New("credential file too short")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])
	plain, ok := secretbox.Open(nil, data[24:], &nonce, key)
	if !ok {
		return nil, errors.New("credential file failed decryption")
	}
	return plain, nil
}

// MemoryTokenStore keeps the credential in process memory only. Used by
// tests and embedders that manage persistence themselves.
type MemoryTokenStore struct {
	mu   sync.RWMutex
	cred *Credential
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Get() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil
	}
	cred := *s.cred
	return &cred
}

func (s *MemoryTokenStore) Set(cred *Credential) error {
	if cred == nil {
		return errors.New("credential must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cred
	s.cred = &copied
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}
