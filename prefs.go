// prefs.go
// --------
// Durable user-level cache preferences. Unlike the session-scoped
// credential, these survive logout: a user who lengthened the analytics
// staleness window keeps that choice across sessions. Stored as JSON under
// the same namespace directory as the credential.
package resilientclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const preferencesFileName = "cache_preferences.json"

// PreferenceStore persists per-category cache policy overrides.
type PreferenceStore struct {
	mu   sync.Mutex
	path string
}

// NewPreferenceStore creates a store rooted at dir. An empty dir selects the
// user config directory.
func NewPreferenceStore(dir string) (*PreferenceStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		dir = base
	}
	return &PreferenceStore{
		path: filepath.Join(dir, credentialNamespace, preferencesFileName),
	}, nil
}

// Load returns the saved overrides, or an empty map when none exist.
func (s *PreferenceStore) Load() (map[Category]PolicyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[Category]PolicyConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	prefs := map[Category]PolicyConfig{}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the stored overrides atomically.
func (s *PreferenceStore) Save(prefs map[Category]PolicyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "prefs-*")
	if err != nil {
		return fmt.Errorf("create temp preferences file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close preferences file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace preferences file: %w", err)
	}
	return nil
}
