package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Backend(t *testing.T) {
	t.Run("RAGCHAT_BASE_URL replaces base url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RAGCHAT_BASE_URL", "http://rag:9000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://rag:9000", cfg.Backend.BaseURL)
	})

	t.Run("empty variable leaves file value", func(t *testing.T) {
		clearEnv(t)

		cfg := &Config{Backend: BackendConfig{BaseURL: "http://from-file"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://from-file", cfg.Backend.BaseURL)
	})
}

func TestEnvOverrides_Auth(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGCHAT_TOKEN", "tok")
	t.Setenv("RAGCHAT_TOKEN_FILE", "/run/secrets/token")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.Equal(t, "/run/secrets/token", cfg.Auth.TokenFile)
}

func TestEnvOverrides_FilesAndLogging(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGCHAT_UPLOAD_FIELD", "file")
	t.Setenv("RAGCHAT_LOG_LEVEL", "DEBUG")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "file", cfg.Files.UploadField)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}
