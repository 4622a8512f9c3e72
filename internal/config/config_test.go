package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kissplugins/ksbi-state/internal/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ksbi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "repositories:\n  - acme/widget\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/widget"}, cfg.Repositories)
	assert.Equal(t, "ksbi-state.db", cfg.Store)
	assert.Equal(t, "header_scan", cfg.Detection.Mode)
	assert.Equal(t, "https://github.com", cfg.Detection.GitBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Daemon.RefreshEvery())
	assert.Equal(t, time.Hour, cfg.Daemon.SweepEvery())
	assert.Equal(t, "ksbi.state.changed", cfg.NATS.Subject)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("KSBI_TEST_STORE", "/var/lib/ksbi/state.db")
	path := writeConfig(t, "store: ${KSBI_TEST_STORE}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ksbi/state.db", cfg.Store)
}

func TestLoadRejectsUnknownDetectionMode(t *testing.T) {
	path := writeConfig(t, "detection:\n  mode: telepathy\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection mode")
}

func TestLoadRejectsActiveListWithoutDir(t *testing.T) {
	path := writeConfig(t, "plugins:\n  active_list: /tmp/active.json\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestRetryPolicyConversion(t *testing.T) {
	rc := RetryConfig{Mode: "exponential", Initial: "2s", Max: "1m", MaxRetries: 5}
	p := rc.Policy()
	assert.Equal(t, retry.BackoffExponential, p.Mode)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, time.Minute, p.Max)
	assert.Equal(t, 5, p.MaxRetries)

	// Empty values fall back to defaults.
	def := RetryConfig{}.Policy()
	assert.Equal(t, retry.DefaultPolicy().Mode, def.Mode)
	assert.Equal(t, retry.DefaultPolicy().Initial, def.Initial)
}

func TestDaemonIntervalParsing(t *testing.T) {
	d := DaemonConfig{RefreshInterval: "90s", SweepInterval: "bogus"}
	assert.Equal(t, 90*time.Second, d.RefreshEvery())
	assert.Equal(t, time.Hour, d.SweepEvery(), "unparseable intervals fall back to the default")
}

func TestValidateRejectsBadDuration(t *testing.T) {
	cfg := Default()
	cfg.Daemon.RefreshInterval = "soon"
	require.Error(t, cfg.Validate())
}
