package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/thread-router/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ASSISTANT_ID", "asst_default")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Registry.Driver)
	assert.Equal(t, "./data/threads.db", cfg.Registry.SQLite.Path)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Assistant.BaseURL)
	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)
	assert.Equal(t, "asst_default", cfg.Assistant.AssistantID)
	assert.Equal(t, 500*time.Millisecond, cfg.Assistant.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Assistant.RunTimeout)
	assert.Greater(t, cfg.Server.MiddlewareTimeout, cfg.Assistant.RunTimeout+cfg.Assistant.RequestTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
registry:
  driver: redis
  redis:
    host: cache.local
    port: 6380
assistant:
  thread_id: thread_file
  poll_interval: 1s
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("OPENAI_THREAD_ID", "thread_env")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Registry.Driver)
	assert.Equal(t, "cache.local:6380", cfg.Registry.Redis.Addr())
	assert.True(t, cfg.Registry.Redis.Enabled())
	assert.Equal(t, "thread_env", cfg.Assistant.ThreadID)
	assert.Equal(t, time.Second, cfg.Assistant.PollInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("REGISTRY_DRIVER", "shelve")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_MiddlewareTimeoutTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  middleware_timeout: 2m
assistant:
  run_timeout: 2m
  request_timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "middleware_timeout")
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := config.PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "threads", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/threads?sslmode=disable", c.DSN())
}
