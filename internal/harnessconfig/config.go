// Package harnessconfig loads the daemon's configuration surface (§6 of the
// specification): database path, output buffer cap, session timeout, slot
// count, spawned executable, and credentials directory. Loading follows the
// teacher's own convention for its GlobalConfig: a plain JSON-tagged struct,
// defaulted when the file is absent, read with os.ReadFile and written with
// json.MarshalIndent.
package harnessconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the harness daemon's full configuration surface.
type Config struct {
	DatabasePath                string        `json:"databasePath"`
	OutputBufferBytesPerSession int           `json:"outputBufferBytesPerSession"`
	SessionTimeout               time.Duration `json:"sessionTimeoutMs"`
	MaxSessions                  int           `json:"maxSessions"`
	Executable                   string        `json:"executable"`
	ExecutableArgs               []string      `json:"executableArgs,omitempty"`
	CredentialsDir               string        `json:"credentialsDir,omitempty"`
	HTTPAddr                     string        `json:"httpAddr"`
	AuthToken                    string        `json:"authToken,omitempty"`
	RateLimitRPS                 float64       `json:"rateLimitRps"`
	Debug                        bool          `json:"debug"`
}

const (
	DefaultOutputBufferBytes = 1 << 20 // ~1 MiB
	DefaultSessionTimeout    = 10 * time.Minute
	DefaultMaxSessions       = 4
	DefaultHTTPAddr          = "127.0.0.1:8787"
	DefaultRateLimitRPS      = 10
)

// MarshalJSON renders SessionTimeout as milliseconds, matching the wire
// field name sessionTimeoutMs from the specification's configuration
// surface.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias struct {
		DatabasePath                string   `json:"databasePath"`
		OutputBufferBytesPerSession int      `json:"outputBufferBytesPerSession"`
		SessionTimeoutMs            int64    `json:"sessionTimeoutMs"`
		MaxSessions                 int      `json:"maxSessions"`
		Executable                  string   `json:"executable"`
		ExecutableArgs              []string `json:"executableArgs,omitempty"`
		CredentialsDir              string   `json:"credentialsDir,omitempty"`
		HTTPAddr                    string   `json:"httpAddr"`
		AuthToken                   string   `json:"authToken,omitempty"`
		RateLimitRPS                float64  `json:"rateLimitRps"`
		Debug                       bool     `json:"debug"`
	}
	return json.Marshal(alias{
		DatabasePath:                c.DatabasePath,
		OutputBufferBytesPerSession: c.OutputBufferBytesPerSession,
		SessionTimeoutMs:            c.SessionTimeout.Milliseconds(),
		MaxSessions:                 c.MaxSessions,
		Executable:                  c.Executable,
		ExecutableArgs:              c.ExecutableArgs,
		CredentialsDir:              c.CredentialsDir,
		HTTPAddr:                    c.HTTPAddr,
		AuthToken:                   c.AuthToken,
		RateLimitRPS:                c.RateLimitRPS,
		Debug:                       c.Debug,
	})
}

// UnmarshalJSON accepts sessionTimeoutMs as milliseconds; 0 disables the
// sweeper per the specification.
func (c *Config) UnmarshalJSON(data []byte) error {
	var alias struct {
		DatabasePath                string   `json:"databasePath"`
		OutputBufferBytesPerSession int      `json:"outputBufferBytesPerSession"`
		SessionTimeoutMs            *int64   `json:"sessionTimeoutMs"`
		MaxSessions                 int      `json:"maxSessions"`
		Executable                  string   `json:"executable"`
		ExecutableArgs              []string `json:"executableArgs,omitempty"`
		CredentialsDir              string   `json:"credentialsDir,omitempty"`
		HTTPAddr                    string   `json:"httpAddr"`
		AuthToken                   string   `json:"authToken,omitempty"`
		RateLimitRPS                float64  `json:"rateLimitRps"`
		Debug                       bool     `json:"debug"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = Config{
		DatabasePath:                alias.DatabasePath,
		OutputBufferBytesPerSession: alias.OutputBufferBytesPerSession,
		MaxSessions:                 alias.MaxSessions,
		Executable:                  alias.Executable,
		ExecutableArgs:              alias.ExecutableArgs,
		CredentialsDir:              alias.CredentialsDir,
		HTTPAddr:                    alias.HTTPAddr,
		AuthToken:                   alias.AuthToken,
		RateLimitRPS:                alias.RateLimitRPS,
		Debug:                       alias.Debug,
	}
	if alias.SessionTimeoutMs != nil {
		c.SessionTimeout = time.Duration(*alias.SessionTimeoutMs) * time.Millisecond
	} else {
		c.SessionTimeout = DefaultSessionTimeout
	}
	return nil
}

// Default returns the configuration used when no file is present, matching
// the defaults enumerated in the specification's configuration surface.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		DatabasePath:                filepath.Join(home, ".harness", "sessions.db"),
		OutputBufferBytesPerSession: DefaultOutputBufferBytes,
		SessionTimeout:               DefaultSessionTimeout,
		MaxSessions:                  DefaultMaxSessions,
		Executable:                   "claude",
		HTTPAddr:                     DefaultHTTPAddr,
		RateLimitRPS:                 DefaultRateLimitRPS,
	}
}

// Load reads a harness config file, returning Default() if path is empty
// or absent. A present file's zero-valued fields do not override defaults
// for DatabasePath/HTTPAddr/MaxSessions/OutputBufferBytesPerSession/
// RateLimitRPS, matching the teacher's "empty config is a valid config"
// posture. SessionTimeout is taken as parsed: an absent sessionTimeoutMs
// keeps the default and an explicit 0 disables the sweeper.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("harnessconfig: read %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("harnessconfig: parse %s: %w", path, err)
	}

	if loaded.DatabasePath != "" {
		cfg.DatabasePath = loaded.DatabasePath
	}
	if loaded.OutputBufferBytesPerSession != 0 {
		cfg.OutputBufferBytesPerSession = loaded.OutputBufferBytesPerSession
	}
	cfg.SessionTimeout = loaded.SessionTimeout
	if loaded.MaxSessions != 0 {
		cfg.MaxSessions = loaded.MaxSessions
	}
	if loaded.Executable != "" {
		cfg.Executable = loaded.Executable
	}
	if loaded.ExecutableArgs != nil {
		cfg.ExecutableArgs = loaded.ExecutableArgs
	}
	if loaded.CredentialsDir != "" {
		cfg.CredentialsDir = loaded.CredentialsDir
	}
	if loaded.HTTPAddr != "" {
		cfg.HTTPAddr = loaded.HTTPAddr
	}
	if loaded.AuthToken != "" {
		cfg.AuthToken = loaded.AuthToken
	}
	if loaded.RateLimitRPS != 0 {
		cfg.RateLimitRPS = loaded.RateLimitRPS
	}
	cfg.Debug = loaded.Debug
	return cfg, nil
}

// Save writes cfg as indented JSON to path, creating the owning directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("harnessconfig: create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
