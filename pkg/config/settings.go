// Package config provides the two configuration layers of the sync engine.
//
// Settings are operator-tunable knobs (rate limits, pacing, retry policy,
// page sizes, file locations) loaded once from a YAML file with ${ENV}
// substitution and full defaults — a missing file is not an error.
//
// SyncConfig is the persisted per-installation sync document (host,
// company, account, encrypted secret, enabled flag, lastSync watermark,
// importFromDate). It is mutated only by the orchestrator after a
// successful run, and its secret never touches disk in plaintext: the
// Store encrypts through the vault on save and decrypts on load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the operator-tunable knobs. Zero values are filled from
// DefaultSettings before validation.
type Settings struct {
	// DataDir holds the key file, the sync document, and the ledger
	// database.
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	RateLimit RateLimitSettings `yaml:"rate_limit"`
	Pacing    PacingSettings    `yaml:"pacing"`
	Retry     RetrySettings     `yaml:"retry"`
	Fetch     FetchSettings     `yaml:"fetch"`
}

// RateLimitSettings bound outbound request rate over a sliding window.
// Durations are plain numbers in the file so the YAML stays editable
// without duration syntax.
type RateLimitSettings struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the sliding window as a duration.
func (r RateLimitSettings) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// PacingSettings tune the adaptive inter-request delay.
type PacingSettings struct {
	MinDelayMs     int     `yaml:"min_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	IncreaseFactor float64 `yaml:"increase_factor"`
	DecreaseFactor float64 `yaml:"decrease_factor"`
}

// MinDelay returns the pacing floor as a duration.
func (p PacingSettings) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the pacing ceiling as a duration.
func (p PacingSettings) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}

// RetrySettings control the retry executor.
type RetrySettings struct {
	MaxRetries            int     `yaml:"max_retries"`
	BackoffFactor         float64 `yaml:"backoff_factor"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-attempt timeout as a duration.
func (r RetrySettings) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSeconds) * time.Second
}

// FetchSettings control pagination. MaxPages is the safety cap bounding a
// server that always returns full pages; the natural termination condition
// is a short or empty page.
type FetchSettings struct {
	PageSize int `yaml:"page_size"`
	MaxPages int `yaml:"max_pages"`
}

// DefaultSettings returns production defaults: 50 requests per minute,
// pacing between 100ms and 2s, three attempts with factor-2 backoff and a
// 30s per-request timeout, 100-record pages capped at 1000 pages.
func DefaultSettings() *Settings {
	return &Settings{
		DataDir:  "data",
		LogLevel: "info",
		RateLimit: RateLimitSettings{
			MaxRequests:   50,
			WindowSeconds: 60,
		},
		Pacing: PacingSettings{
			MinDelayMs:     100,
			MaxDelayMs:     2000,
			IncreaseFactor: 1.5,
			DecreaseFactor: 0.9,
		},
		Retry: RetrySettings{
			MaxRetries:            3,
			BackoffFactor:         2,
			RequestTimeoutSeconds: 30,
		},
		Fetch: FetchSettings{
			PageSize: 100,
			MaxPages: 1000,
		},
	}
}

// LoadSettings reads settings from a YAML file, substituting ${VAR}
// references with environment variable values. A missing file yields the
// defaults; a malformed file is an error.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks that values are within acceptable ranges.
func (s *Settings) Validate() error {
	if s.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive")
	}
	if s.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive")
	}
	if s.Pacing.MinDelayMs < 0 || s.Pacing.MaxDelayMs < s.Pacing.MinDelayMs {
		return fmt.Errorf("pacing delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if s.Pacing.IncreaseFactor <= 1 {
		return fmt.Errorf("pacing.increase_factor must be greater than 1")
	}
	if s.Pacing.DecreaseFactor <= 0 || s.Pacing.DecreaseFactor >= 1 {
		return fmt.Errorf("pacing.decrease_factor must be between 0 and 1")
	}
	if s.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be positive")
	}
	if s.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be at least 1")
	}
	if s.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch.page_size must be positive")
	}
	if s.Fetch.MaxPages <= 0 {
		return fmt.Errorf("fetch.max_pages must be positive")
	}
	return nil
}

// KeyFile returns the path of the vault key file.
func (s *Settings) KeyFile() string {
	return filepath.Join(s.DataDir, ".ledgersync_key")
}

// ConfigFile returns the path of the persisted sync document.
func (s *Settings) ConfigFile() string {
	return filepath.Join(s.DataDir, "flexibee_config.json")
}

// LedgerFile returns the path of the ledger database.
func (s *Settings) LedgerFile() string {
	return filepath.Join(s.DataDir, "cashflow.db")
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
