package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DISPATCH_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Feed.Interval)
	assert.Equal(t, "dispatch.events", cfg.Redis.Channel)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Less(t, 3*cfg.AI.Timeout, cfg.Server.RequestTimeout)
}

func TestLoadConfig_FileAndSecrets(t *testing.T) {
	dir := writeConfig(t, `
storage:
  driver: memory
ai:
  provider: openai
  model: gpt-4o-mini
  openai_api_key: from-file
feed:
  interval: 2s
auth:
  jwt_secret: file-secret
`)
	t.Setenv("DISPATCH_OPENAI_API_KEY", "from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Feed.Interval)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "from-env", cfg.AI.APIKey())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "storage:\n  driver: sqlite\nauth:\n  jwt_secret: x\n", "storage driver"},
		{"unknown provider", "ai:\n  provider: llama\nauth:\n  jwt_secret: x\n", "ai provider"},
		{"missing secret", "storage:\n  driver: memory\n", "jwt_secret"},
		{"ai timeout too long", "ai:\n  timeout: 10s\nserver:\n  request_timeout: 30s\nauth:\n  jwt_secret: x\n", "ai.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
