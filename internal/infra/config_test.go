package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	require.Equal(t, AuthModeHeaders, cfg.Auth.Mode)
	require.False(t, cfg.Permissions.Enforce)
	require.Equal(t, "REQ", cfg.Jira.ProjectKey)
	require.Equal(t, "canceled", cfg.Jira.CanceledLabel)
	require.EqualValues(t, 3, cfg.Jira.RetryAttempts)
	require.Equal(t, 5*time.Second, cfg.Jira.RetryMaxDelay)
	require.False(t, cfg.Jira.Configured())
	require.Equal(t, AdvisoryHeuristic, cfg.Advisory.Provider)
	require.Equal(t, time.Second, cfg.Audit.FlushInterval)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PERMISSIONS_ENFORCE", "true")
	t.Setenv("JIRA_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("JIRA_USERNAME", "bot@acme.io")
	t.Setenv("JIRA_API_TOKEN", "secret")
	t.Setenv("JIRA_CANCELED_LABEL", "rf-canceled")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.Permissions.Enforce)
	require.True(t, cfg.Jira.Configured())
	require.Equal(t, "rf-canceled", cfg.Jira.CanceledLabel)
	require.Equal(t, ":9000", cfg.Server.Addr())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "logger:\n  level: debug\n  format: console\nadvisory:\n  provider: none\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logger.Level)
	require.Equal(t, AdvisoryNone, cfg.Advisory.Provider)

	logger, err := NewLogger(cfg.Logger)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestLoadConfigRejectsJWTWithoutKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_MODE", "jwt")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "loud"})
	require.Error(t, err)
}
