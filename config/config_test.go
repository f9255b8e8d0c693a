package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", " s3cret ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "session-events", cfg.MQ.SessionEventChannel)
	assert.Empty(t, cfg.Storage.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "k")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("STORAGE_DRIVER", "minio")
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "https://cdn.example.com/media/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,https://app.example.com")
	t.Setenv("DB_USE_SSL", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, StorageDriverMinio, cfg.Storage.Driver)
	assert.Equal(t, "https://cdn.example.com/media", cfg.Storage.PublicBaseURL)
	assert.Equal(t, []string{"http://localhost:5173", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Database.UseSSL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidateFailsClosedWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestValidateDrivers(t *testing.T) {
	cfg := Config{
		StoreDriver: "mongo",
		Auth:        AuthConfig{JWTSecret: "k", TokenTTL: time.Hour},
		Storage:     StorageConfig{Driver: "ftp"},
		MQ:          MQConfig{Driver: "kafka"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported STORE_DRIVER "mongo"`)
	assert.Contains(t, err.Error(), `unsupported STORAGE_DRIVER "ftp"`)
	assert.Contains(t, err.Error(), `unsupported MQ_DRIVER "kafka"`)
}
