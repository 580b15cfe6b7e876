package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// stubConfig holds the listen address of the stub service.
type stubConfig struct {
	Host string
	Port int
}

func (c stubConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadStubConfig() (stubConfig, error) {
	return readStubConfig(viper.New())
}

func readStubConfig(v *viper.Viper) (stubConfig, error) {
	v.SetDefault("STUB_HOST", "127.0.0.1")
	v.SetDefault("STUB_PORT", 3000)
	v.AutomaticEnv()

	cfg := stubConfig{
		Host: v.GetString("STUB_HOST"),
		Port: v.GetInt("STUB_PORT"),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return stubConfig{}, fmt.Errorf("STUB_PORT %d out of range", cfg.Port)
	}
	return cfg, nil
}
