// Package config loads service configuration from an optional YAML
// file with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "750ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BridgeConfig configures the verification-provider client and the
// webhook verifier.
type BridgeConfig struct {
	APIURL string `yaml:"api_url"`
	// APIKey is normally supplied via BRIDGE_API_KEY.
	APIKey string `yaml:"api_key"`
	// WebhookPublicKeyPEM is normally supplied via
	// BRIDGE_WEBHOOK_PUBLIC_KEY_PEM; escaped newlines are tolerated.
	WebhookPublicKeyPEM string `yaml:"webhook_public_key_pem"`
}

// HandshakeConfig configures the cross-context resume protocol. The
// inquiry parameter aliases are provider-defined and have changed
// across provider iterations, so they are configuration rather than
// literals.
type HandshakeConfig struct {
	StaleAfter          Duration `yaml:"stale_after"`
	PollInterval        Duration `yaml:"poll_interval"`
	InquiryParamAliases []string `yaml:"inquiry_param_aliases"`
}

// SessionConfig configures the watcher. TerminalStatuses is the set of
// customer statuses that tear down the embedded flow; an unrecognized
// status is treated as non-terminal so the embedding stays visible.
type SessionConfig struct {
	PollInterval     Duration `yaml:"poll_interval"`
	TerminalStatuses []string `yaml:"terminal_statuses"`
}

// Config is the root configuration.
type Config struct {
	ListenPort    int    `yaml:"listen_port"`
	DataDir       string `yaml:"data_dir"`
	PublicBaseURL string `yaml:"public_base_url"`

	Bridge    BridgeConfig    `yaml:"bridge"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Session   SessionConfig   `yaml:"session"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenPort:    8080,
		DataDir:       "./data",
		PublicBaseURL: "http://localhost:8080",
		Bridge: BridgeConfig{
			APIURL: "https://api.sandbox.bridge.xyz/v0",
		},
		Handshake: HandshakeConfig{
			StaleAfter:          Duration(30 * time.Second),
			PollInterval:        Duration(750 * time.Millisecond),
			InquiryParamAliases: []string{"inquiry-id", "inquiryId", "inquiry_id", "session-id"},
		},
		Session: SessionConfig{
			PollInterval:     Duration(4 * time.Second),
			TerminalStatuses: []string{"active", "rejected", "paused", "manual_review", "offboarded"},
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over
// the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BRIDGE_API_KEY"); v != "" {
		c.Bridge.APIKey = v
	}
	if v := os.Getenv("BRIDGE_API_URL"); v != "" {
		c.Bridge.APIURL = v
	}
	if v := os.Getenv("BRIDGE_WEBHOOK_PUBLIC_KEY_PEM"); v != "" {
		c.Bridge.WebhookPublicKeyPEM = v
	}
	if v := os.Getenv("KYBGATE_PUBLIC_BASE_URL"); v != "" {
		c.PublicBaseURL = v
	}
}

// CallbackURL returns the absolute URL of the callback route the
// provider redirects to.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/kyb-callback"
}
