package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStubConfig_Defaults(t *testing.T) {
	cfg, err := readStubConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
}

func TestReadStubConfig_Env(t *testing.T) {
	t.Setenv("STUB_HOST", "0.0.0.0")
	t.Setenv("STUB_PORT", "8080")

	cfg, err := readStubConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestReadStubConfig_RejectsBadPort(t *testing.T) {
	t.Setenv("STUB_PORT", "70000")

	_, err := readStubConfig(viper.New())
	assert.Error(t, err)
}
