// config.go
// ---------
// Client configuration: base URL, the fixed per-request timeout, retry
// knobs, credential storage, and per-category cache policy overrides.
// Config can be built in code or loaded from a YAML file; LoadConfig layers
// the file over DefaultConfig so omitted keys keep their defaults.
package resilientclient

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRequestTimeout is the fixed timeout applied to every dispatch.
const DefaultRequestTimeout = 30 * time.Second

// Duration wraps time.Duration so YAML configs can use strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// PolicyConfig overrides the staleness window and poll interval for one
// request category. A zero poll interval disables polling.
type PolicyConfig struct {
	Staleness    Duration `yaml:"staleness"`
	PollInterval Duration `yaml:"poll_interval"`
}

// Config holds all client settings.
type Config struct {
	// BaseURL is the root of the rate-negotiation API, e.g.
	// "https://api.negotia.example".
	BaseURL string `yaml:"base_url"`

	// RequestTimeout is the fixed timeout for every dispatch attempt.
	RequestTimeout Duration `yaml:"request_timeout"`

	MaxRetries  int      `yaml:"max_retries"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`

	// TokenDir is the directory holding the persisted credential file.
	// Empty selects the user config dir under the client namespace.
	TokenDir string `yaml:"token_dir"`

	// EncryptionKey, when set to 64 hex characters (32 bytes), enables
	// at-rest encryption of the persisted credential.
	EncryptionKey string `yaml:"encryption_key"`

	// CachePolicies overrides the built-in per-category policy table.
	CachePolicies map[Category]PolicyConfig `yaml:"cache_policies"`

	// Debug raises the log level to debug.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the built-in settings. BaseURL must still be set by
// the caller.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: Duration(DefaultRequestTimeout),
		MaxRetries:     DefaultMaxAttempts,
		BaseBackoff:    Duration(DefaultBaseBackoff),
		MaxBackoff:     Duration(DefaultMaxBackoff),
	}
}

// LoadConfig reads a YAML config file layered over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EncryptionKey != "" {
		if _, err := c.encryptionKey(); err != nil {
			return err
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// encryptionKey decodes the configured hex key into the 32-byte array
// secretbox expects.
func (c *Config) encryptionKey() (*[32]byte, error) {
	raw, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("encryption_key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// retryPolicy builds the RetryPolicy described by this config.
func (c *Config) retryPolicy() *RetryPolicy {
	p := NewRetryPolicy()
	if c.MaxRetries > 0 {
		p.MaxAttempts = c.MaxRetries
	}
	if c.BaseBackoff > 0 {
		p.BaseBackoff = c.BaseBackoff.Std()
	}
	if c.MaxBackoff > 0 {
		p.MaxBackoff = c.MaxBackoff.Std()
	}
	return p
}

// cachePolicies merges the config overrides over the built-in table.
func (c *Config) cachePolicies() map[Category]CachePolicy {
	policies := DefaultPolicies()
	for cat, override := range c.CachePolicies {
		p := policies[cat]
		if override.Staleness > 0 {
			p.StaleAfter = override.Staleness.Std()
		}
		p.PollInterval = override.PollInterval.Std()
		policies[cat] = p
	}
	return policies
}

func (c *Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout.Std()
	}
	return DefaultRequestTimeout
}
