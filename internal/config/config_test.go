package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BOARDSYNC_AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./boardsync.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Board.DebounceDelay)
	assert.Equal(t, 30*time.Second, cfg.Board.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Board.IdleCheckInterval)
	assert.Equal(t, 30*time.Minute, cfg.Board.IdleTimeout)
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOARDSYNC_AUTH_JWT_SECRET", "test-secret")
	t.Setenv("BOARDSYNC_SERVER_PORT", "9090")
	t.Setenv("BOARDSYNC_DATABASE_PATH", "/tmp/other.db")
	t.Setenv("BOARDSYNC_BOARD_DEBOUNCE_DELAY", "2s")
	t.Setenv("BOARDSYNC_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Board.DebounceDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boardsync.yaml")
	content := `
server:
  port: 7070
auth:
  jwt_secret: file-secret
board:
  idle_timeout: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.Board.IdleTimeout)
	// Untouched keys keep defaults.
	assert.Equal(t, 30*time.Second, cfg.Board.HeartbeatInterval)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/boardsync.yaml")
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty host", func(c *Config) { c.Server.Host = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero debounce", func(c *Config) { c.Board.DebounceDelay = 0 }},
		{"zero heartbeat", func(c *Config) { c.Board.HeartbeatInterval = 0 }},
		{"idle timeout below check interval", func(c *Config) { c.Board.IdleTimeout = c.Board.IdleCheckInterval / 2 }},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOARDSYNC_AUTH_JWT_SECRET", "test-secret")
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
