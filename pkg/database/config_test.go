package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_HOST", "")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "ensemble", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, int32(10), cfg.MaxConns)
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Contains(t, cfg.DSN(), "host=db.internal port=5433 user=app password=secret")
}

func TestLoadConfigFromEnvBadPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}
