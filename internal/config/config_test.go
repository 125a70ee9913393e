package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/deal-assistant/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEAL_ASSISTANT_CONFIG", "")
	t.Setenv("PORT", "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, config.SpeechMock, cfg.Speech)
	assert.Equal(t, 15*time.Second, cfg.CallTimeout)
	assert.Equal(t, "local", cfg.DefaultVariant)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
port: "9090"
crm:
  base_url: https://crm.example.com
  token: file-token
call_timeout: 5s
policy:
  validate_close_date: true
  stages: [qualified, proposal]
storage:
  backend: sqlite
  sqlite_dsn: /tmp/deals.db
rate_limit:
  rps: 2
  burst: 4
`)
	t.Setenv("PORT", "")
	t.Setenv("DEAL_ASSISTANT_CRM_TOKEN", "env-token")
	t.Setenv("DEAL_ASSISTANT_SESSION_TTL", "1h")
	t.Setenv("DEAL_ASSISTANT_STAGES", "won, lost")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "https://crm.example.com", cfg.CRM.BaseURL)
	assert.Equal(t, "env-token", cfg.CRM.Token)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.Policy.ValidateCloseDate)
	assert.Equal(t, []string{"won", "lost"}, cfg.Policy.Stages)
	assert.Equal(t, config.StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/deals.db", cfg.Storage.SQLite)
	assert.Equal(t, 2.0, cfg.RateLimit.RPS)
	assert.Equal(t, 4, cfg.RateLimit.Burst)
}

func TestLoadPlatformPort(t *testing.T) {
	t.Setenv("PORT", "3000")
	cfg, err := config.Load(writeFile(t, "port: \"9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DEAL_ASSISTANT_STORAGE_BACKEND", "firestore")
	t.Setenv("DEAL_ASSISTANT_SPEECH", "carrier")
	t.Setenv("DEAL_ASSISTANT_GCP_PROJECT", "")

	_, err := config.Load(writeFile(t, "{}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firestore")
	assert.Contains(t, err.Error(), "speech")
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("DEAL_ASSISTANT_CALL_TIMEOUT", "soon")
	_, err := config.Load(writeFile(t, "{}\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
