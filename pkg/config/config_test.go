package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VERTA_HOST", "app.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", cfg.Host)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, []int{429, 503, 504}, cfg.RetryStatus)
	assert.Equal(t, OnConflictLookup, cfg.OnConflict)
	assert.False(t, cfg.IgnoreConnErr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VERTA_HOST", "http://localhost:3000")
	t.Setenv("VERTA_EMAIL", "dev@example.com")
	t.Setenv("VERTA_DEV_KEY", "secret")
	t.Setenv("VERTA_MAX_RETRIES", "2")
	t.Setenv("VERTA_IGNORE_CONN_ERR", "true")
	t.Setenv("VERTA_RETRY_STATUS", "502, 503")
	t.Setenv("VERTA_ON_CREATE_CONFLICT", "FAIL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", cfg.Email)
	assert.Equal(t, "secret", cfg.DevKey)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.True(t, cfg.IgnoreConnErr)
	assert.Equal(t, []int{502, 503}, cfg.RetryStatus)
	assert.Equal(t, OnConflictFail, cfg.OnConflict)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL())
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("VERTA_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadStatusList(t *testing.T) {
	t.Setenv("VERTA_RETRY_STATUS", "503,abc")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("VERTA_HOST: file.example.com\nVERTA_MAX_RETRIES: 1\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file.example.com", cfg.Host)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	cfg := Default("")
	assert.Error(t, cfg.Validate())

	cfg = Default("example.com")
	cfg.Email = "a@b.c"
	assert.Error(t, cfg.Validate())

	cfg.DevKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.BackoffBase = time.Minute
	assert.Error(t, cfg.Validate())
}

func TestBaseURL_DefaultsToHTTPS(t *testing.T) {
	assert.Equal(t, "https://app.example.com", Default("app.example.com/").BaseURL())
}

func TestApplyLogger(t *testing.T) {
	l := log.New()
	ApplyLogger(l, LoggerConfig{Level: "debug", Format: "json"})
	assert.Equal(t, log.DebugLevel, l.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, l.Formatter)

	ApplyLogger(l, LoggerConfig{Level: "nonsense"})
	assert.Equal(t, log.InfoLevel, l.GetLevel())
}
