package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/cashflowhq/ledgersync/pkg/vault"
)

// LastSyncLayout is the wire format of the lastSync watermark.
const LastSyncLayout = "2006-01-02T15:04:05"

// SyncConfig is the per-installation sync document. Password holds the
// plaintext secret in memory only; on disk it is always the vault
// ciphertext with the PasswordEncrypted marker set.
type SyncConfig struct {
	Host              string `json:"flexibee_url"`
	Company           string `json:"company"`
	User              string `json:"username"`
	Password          string `json:"password"`
	PasswordEncrypted bool   `json:"password_encrypted"`
	Enabled           bool   `json:"enabled"`
	LastSync          string `json:"last_sync,omitempty"`
	ImportFromDate    string `json:"import_from_date,omitempty"`
}

// Configured reports whether the document carries enough to attempt a
// connection.
func (c *SyncConfig) Configured() bool {
	return c.Host != "" && c.Company != "" && c.User != ""
}

// Store persists the sync document as JSON, encrypting the secret through
// the vault on the way out and decrypting it on the way in.
type Store struct {
	path  string
	vault *vault.Vault
	mu    sync.Mutex
}

// NewStore returns a store rooted at path.
func NewStore(path string, v *vault.Vault) *Store {
	return &Store{path: path, vault: v}
}

// Load reads the sync document. A missing file yields a zero document so
// a fresh installation starts unconfigured rather than erroring.
func (s *Store) Load() (*SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*SyncConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &SyncConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync config: %w", err)
	}

	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sync config: %w", err)
	}

	if cfg.PasswordEncrypted {
		cfg.Password = s.vault.Decrypt(cfg.Password)
		cfg.PasswordEncrypted = false
	}
	return &cfg, nil
}

// Save writes the document, encrypting the secret first. When the new
// document omits the watermark the previous one is preserved, so updating
// credentials never resets the incremental cursor.
func (s *Store) Save(cfg *SyncConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.LastSync == "" {
		prev, err := s.load()
		if err == nil && prev.LastSync != "" {
			cfg.LastSync = prev.LastSync
		}
	}

	out := *cfg
	if out.Password != "" {
		ciphertext, err := s.vault.Encrypt(out.Password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		out.Password = ciphertext
		out.PasswordEncrypted = true
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sync config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sync config: %w", err)
	}
	return nil
}

// SetLastSync persists only the watermark, leaving the rest of the
// document untouched.
func (s *Store) SetLastSync(watermark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.LastSync = watermark
	out := *cfg
	if out.Password != "" {
		ciphertext, err := s.vault.Encrypt(out.Password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		out.Password = ciphertext
		out.PasswordEncrypted = true
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sync config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sync config: %w", err)
	}
	return nil
}
