// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the stampede
// fleet.
//
// Configuration is loaded from a single YAML file specified by:
//   - STAMPEDE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables never override
// individual values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "8s" or "2m30s"
// instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the master configuration for a stampede run.
type Config struct {
	// Server configures the target chat server.
	Server ServerConfig `yaml:"server"`

	// Fleet configures how many identities run and how they are named.
	Fleet FleetConfig `yaml:"fleet"`

	// Secrets configures per-identity credential material.
	Secrets SecretsConfig `yaml:"secrets"`

	// Admission configures the shared connection-attempt gate.
	Admission AdmissionConfig `yaml:"admission"`

	// Backoff configures per-identity reconnection delays.
	Backoff BackoffConfig `yaml:"backoff"`

	// Session configures per-identity lifecycle limits.
	Session SessionConfig `yaml:"session"`

	// Behavior configures in-session activity.
	Behavior BehaviorConfig `yaml:"behavior"`

	// Console configures operator output and the transcript.
	Console ConsoleConfig `yaml:"console"`
}

// ServerConfig identifies the target server.
type ServerConfig struct {
	// Address is the host:port to dial.
	Address string `yaml:"address"`

	// DialTimeout bounds each TCP connect attempt.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// FleetConfig sizes and names the fleet.
type FleetConfig struct {
	// Count is the number of identities to run.
	Count int `yaml:"count"`

	// Start is the index of the first identity. Useful for running
	// disjoint fleets from several machines against one server.
	Start int `yaml:"start"`

	// Prefix is prepended to the index to form each identity name.
	Prefix string `yaml:"prefix"`

	// StatusInterval is how often the supervisor logs fleet-wide
	// state counts. Zero disables the report.
	StatusInterval Duration `yaml:"status_interval"`
}

// SecretsConfig controls credential material.
type SecretsConfig struct {
	// SharedSecretFile is a file holding one secret used by every
	// identity. Mutually exclusive with SharedSecret.
	SharedSecretFile string `yaml:"shared_secret_file"`

	// SharedSecret is an inline secret. File form is preferred;
	// inline exists for throwaway test runs.
	SharedSecret string `yaml:"shared_secret"`

	// DeriveSecrets derives a distinct secret per identity from the
	// shared secret with a keyed hash, instead of reusing it
	// verbatim.
	DeriveSecrets bool `yaml:"derive_secrets"`

	// CredentialsPath is where learned registration results persist
	// across runs. Empty keeps credentials in memory only.
	CredentialsPath string `yaml:"credentials_path"`

	// AgeIdentityPath is an age identity file; when set the
	// credentials file is encrypted at rest.
	AgeIdentityPath string `yaml:"age_identity_path"`
}

// AdmissionConfig tunes the shared gate pacing connection attempts.
type AdmissionConfig struct {
	// InitialDelay is the gap enforced between consecutive
	// connection attempts before any throttle signal arrives.
	InitialDelay Duration `yaml:"initial_delay"`

	// Ceiling caps how far throttle signals can stretch the delay.
	Ceiling Duration `yaml:"ceiling"`
}

// BackoffConfig tunes per-identity reconnection delays.
type BackoffConfig struct {
	// Base is the first reconnection delay.
	Base Duration `yaml:"base"`

	// Ceiling caps the grown delay.
	Ceiling Duration `yaml:"ceiling"`

	// Growth multiplies the delay after each failed attempt.
	Growth float64 `yaml:"growth"`

	// Jitter is the fraction of Base added or subtracted at random
	// from each delay, in [0, 1).
	Jitter float64 `yaml:"jitter"`
}

// SessionConfig bounds per-identity lifecycles.
type SessionConfig struct {
	// MaxReconnectAttempts marks an identity failed after this many
	// consecutive reconnections without a stable session. Zero means
	// retry forever.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// MaxLoginRetries bounds authentication resends within one
	// session before the session is abandoned.
	MaxLoginRetries int `yaml:"max_login_retries"`

	// LoginRetryDelay is the pause before resending credentials
	// after an authentication failure.
	LoginRetryDelay Duration `yaml:"login_retry_delay"`

	// ThrottleCooldownMin and ThrottleCooldownMax bound the
	// randomized extra pause taken after the server signals
	// throttling, on top of regular backoff.
	ThrottleCooldownMin Duration `yaml:"throttle_cooldown_min"`
	ThrottleCooldownMax Duration `yaml:"throttle_cooldown_max"`
}

// BehaviorConfig selects in-session activity.
type BehaviorConfig struct {
	// ScriptPath points at a JSONC behavior script. Empty means
	// idle sessions that only hold the connection.
	ScriptPath string `yaml:"script_path"`
}

// ConsoleConfig controls operator output.
type ConsoleConfig struct {
	// Verbose lowers the console level to debug.
	Verbose bool `yaml:"verbose"`

	// TranscriptPath enables the durable transcript. Empty disables
	// it.
	TranscriptPath string `yaml:"transcript_path"`

	// TranscriptMaxBytes rotates the transcript past this size.
	// Zero disables rotation.
	TranscriptMaxBytes int64 `yaml:"transcript_max_bytes"`
}

// Default returns the built-in configuration. Values match a small
// local test server; real runs override at least server.address and
// fleet.count.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     "127.0.0.1:6667",
			DialTimeout: Duration(10 * time.Second),
		},
		Fleet: FleetConfig{
			Count:          10,
			Start:          0,
			Prefix:         "stampede-",
			StatusInterval: Duration(30 * time.Second),
		},
		Admission: AdmissionConfig{
			InitialDelay: Duration(250 * time.Millisecond),
			Ceiling:      Duration(time.Minute),
		},
		Backoff: BackoffConfig{
			Base:    Duration(time.Second),
			Ceiling: Duration(5 * time.Minute),
			Growth:  2.0,
			Jitter:  0.1,
		},
		Session: SessionConfig{
			MaxReconnectAttempts: 0,
			MaxLoginRetries:      3,
			LoginRetryDelay:      Duration(2 * time.Second),
			ThrottleCooldownMin:  Duration(5 * time.Second),
			ThrottleCooldownMax:  Duration(15 * time.Second),
		},
	}
}

// Load loads configuration from the STAMPEDE_CONFIG environment
// variable. There are no fallbacks: if the variable is unset, this
// fails.
func Load() (*Config, error) {
	path := os.Getenv("STAMPEDE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("STAMPEDE_CONFIG environment variable not set; " +
			"set it to the path of your stampede.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, fmt.Errorf("server.address is required"))
	}
	if c.Server.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.dial_timeout must be positive"))
	}

	if c.Fleet.Count <= 0 {
		errs = append(errs, fmt.Errorf("fleet.count must be positive"))
	}
	if c.Fleet.Start < 0 {
		errs = append(errs, fmt.Errorf("fleet.start must not be negative"))
	}
	if c.Fleet.Prefix == "" {
		errs = append(errs, fmt.Errorf("fleet.prefix is required"))
	}

	if c.Secrets.SharedSecret != "" && c.Secrets.SharedSecretFile != "" {
		errs = append(errs, fmt.Errorf("secrets.shared_secret and secrets.shared_secret_file are mutually exclusive"))
	}
	if c.Secrets.SharedSecret == "" && c.Secrets.SharedSecretFile == "" {
		errs = append(errs, fmt.Errorf("one of secrets.shared_secret or secrets.shared_secret_file is required"))
	}
	if c.Secrets.AgeIdentityPath != "" && c.Secrets.CredentialsPath == "" {
		errs = append(errs, fmt.Errorf("secrets.age_identity_path requires secrets.credentials_path"))
	}

	if c.Admission.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("admission.initial_delay must be positive"))
	}
	if c.Admission.Ceiling < c.Admission.InitialDelay {
		errs = append(errs, fmt.Errorf("admission.ceiling must be at least admission.initial_delay"))
	}

	if c.Backoff.Base <= 0 {
		errs = append(errs, fmt.Errorf("backoff.base must be positive"))
	}
	if c.Backoff.Ceiling < c.Backoff.Base {
		errs = append(errs, fmt.Errorf("backoff.ceiling must be at least backoff.base"))
	}
	if c.Backoff.Growth <= 1.0 {
		errs = append(errs, fmt.Errorf("backoff.growth must be greater than 1.0"))
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter >= 1.0 {
		errs = append(errs, fmt.Errorf("backoff.jitter must be in [0, 1)"))
	}

	if c.Session.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.max_reconnect_attempts must not be negative"))
	}
	if c.Session.MaxLoginRetries < 0 {
		errs = append(errs, fmt.Errorf("session.max_login_retries must not be negative"))
	}
	if c.Session.ThrottleCooldownMax < c.Session.ThrottleCooldownMin {
		errs = append(errs, fmt.Errorf("session.throttle_cooldown_max must be at least session.throttle_cooldown_min"))
	}

	if c.Console.TranscriptMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("console.transcript_max_bytes must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
