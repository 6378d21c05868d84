package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "botdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/botdesk.db

reports:
  max_name_len: 64
  confirm_window: 2m
  sweep_interval: 30s

logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/botdesk.db", cfg.Database.Path)
	assert.Equal(t, 64, cfg.Reports.MaxNameLen)
	assert.Equal(t, 2*time.Minute, cfg.Reports.ConfirmWindow)
	assert.Equal(t, 30*time.Second, cfg.Reports.SweepInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BOTDESK_DB", "/data/botdesk.db")
	path := writeConfig(t, `
database:
  path: ${BOTDESK_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/botdesk.db", cfg.Database.Path)
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path is required")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/botdesk.db

reports:
  confirm_window: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirm_window")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
