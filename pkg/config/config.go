package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Race resolution modes for a create that reports the name already exists.
const (
	OnConflictLookup = "lookup"
	OnConflictFail   = "fail"
)

// Config is the session configuration. It is read once at construction and
// handed to every component; nothing re-reads the environment afterwards.
type Config struct {
	Host          string
	Email         string
	DevKey        string
	MaxRetries    int
	IgnoreConnErr bool
	Debug         bool
	Timeout       time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	RetryStatus   []int
	OnConflict    string

	Logger LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(newViper())
}

// LoadFile reads configuration from a file. Environment variables still
// take precedence over file values.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// Defaults
	v.SetDefault("VERTA_HOST", "")
	v.SetDefault("VERTA_EMAIL", "")
	v.SetDefault("VERTA_DEV_KEY", "")
	v.SetDefault("VERTA_MAX_RETRIES", 5)
	v.SetDefault("VERTA_IGNORE_CONN_ERR", false)
	v.SetDefault("VERTA_DEBUG", false)
	v.SetDefault("VERTA_TIMEOUT", "30s")
	v.SetDefault("VERTA_BACKOFF_BASE", "500ms")
	v.SetDefault("VERTA_BACKOFF_MAX", "30s")
	v.SetDefault("VERTA_RETRY_STATUS", "429,503,504")
	v.SetDefault("VERTA_ON_CREATE_CONFLICT", OnConflictLookup)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "text")

	// Env
	v.AutomaticEnv()

	return v
}

func load(v *viper.Viper) (*Config, error) {
	timeout, err := time.ParseDuration(v.GetString("VERTA_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("parse VERTA_TIMEOUT: %w", err)
	}
	base, err := time.ParseDuration(v.GetString("VERTA_BACKOFF_BASE"))
	if err != nil {
		return nil, fmt.Errorf("parse VERTA_BACKOFF_BASE: %w", err)
	}
	maxDelay, err := time.ParseDuration(v.GetString("VERTA_BACKOFF_MAX"))
	if err != nil {
		return nil, fmt.Errorf("parse VERTA_BACKOFF_MAX: %w", err)
	}
	statuses, err := parseStatusList(v.GetString("VERTA_RETRY_STATUS"))
	if err != nil {
		return nil, fmt.Errorf("parse VERTA_RETRY_STATUS: %w", err)
	}

	cfg := &Config{
		Host:          v.GetString("VERTA_HOST"),
		Email:         v.GetString("VERTA_EMAIL"),
		DevKey:        v.GetString("VERTA_DEV_KEY"),
		MaxRetries:    v.GetInt("VERTA_MAX_RETRIES"),
		IgnoreConnErr: v.GetBool("VERTA_IGNORE_CONN_ERR"),
		Debug:         v.GetBool("VERTA_DEBUG"),
		Timeout:       timeout,
		BackoffBase:   base,
		BackoffMax:    maxDelay,
		RetryStatus:   statuses,
		OnConflict:    strings.ToLower(v.GetString("VERTA_ON_CREATE_CONFLICT")),
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
	}

	return cfg, nil
}

// Default returns the built-in defaults for host, without reading the
// environment.
func Default(host string) *Config {
	return &Config{
		Host:        host,
		MaxRetries:  5,
		Timeout:     30 * time.Second,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
		RetryStatus: []int{429, 503, 504},
		OnConflict:  OnConflictLookup,
		Logger:      LoggerConfig{Level: "info", Format: "text"},
	}
}

// Validate checks that the configuration can build a session.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required (VERTA_HOST)"))
	}
	if (c.Email == "") != (c.DevKey == "") {
		errs = append(errs, errors.New("email and developer key must be provided together"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries must be >= 0"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be >= 0"))
	}
	if c.BackoffMax > 0 && c.BackoffBase > c.BackoffMax {
		errs = append(errs, errors.New("backoff base must not exceed backoff max"))
	}
	if c.OnConflict != OnConflictLookup && c.OnConflict != OnConflictFail {
		errs = append(errs, fmt.Errorf("unknown create conflict mode %q", c.OnConflict))
	}
	return errors.Join(errs...)
}

// BaseURL returns Host with a scheme, defaulting to https.
func (c *Config) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// InitLogger applies the logger settings to the standard logrus logger.
func InitLogger(cfg *Config) {
	ApplyLogger(log.StandardLogger(), cfg.Logger)
}

// ApplyLogger configures l with the given level and format.
func ApplyLogger(l *log.Logger, lc LoggerConfig) {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		level = log.InfoLevel
	}
	l.SetLevel(level)

	if lc.Format == "json" {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func parseStatusList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		if code < 100 || code > 599 {
			return nil, fmt.Errorf("status %d out of range", code)
		}
		out = append(out, code)
	}
	return out, nil
}
