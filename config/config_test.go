package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreed/kybgate/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 30*time.Second, cfg.Handshake.StaleAfter.Std())
	assert.Contains(t, cfg.Handshake.InquiryParamAliases, "inquiry-id")
	assert.Contains(t, cfg.Session.TerminalStatuses, "active")
	assert.Contains(t, cfg.Session.TerminalStatuses, "rejected")
	assert.Equal(t, "http://localhost:8080/kyb-callback", cfg.CallbackURL())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
public_base_url: https://kyb.example.com
handshake:
  stale_after: 45s
  inquiry_param_aliases: ["inquiry-id", "verification-id"]
session:
  poll_interval: 2s
  terminal_statuses: ["active", "rejected"]
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://kyb.example.com/kyb-callback", cfg.CallbackURL())
	assert.Equal(t, 45*time.Second, cfg.Handshake.StaleAfter.Std())
	assert.Equal(t, []string{"inquiry-id", "verification-id"}, cfg.Handshake.InquiryParamAliases)
	assert.Equal(t, 2*time.Second, cfg.Session.PollInterval.Std())
	assert.Equal(t, []string{"active", "rejected"}, cfg.Session.TerminalStatuses)
	// Untouched sections keep defaults.
	assert.Equal(t, 8080, cfg.ListenPort)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_API_KEY", "sk-env")
	t.Setenv("KYBGATE_PUBLIC_BASE_URL", "https://env.example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Bridge.APIKey)
	assert.Equal(t, "https://env.example.com/kyb-callback", cfg.CallbackURL())
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("handshake:\n  stale_after: soon\n"), 0o600))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
