// Package config loads the billing engine configuration.
//
// Sources, later ones win:
//
//	defaults -> YAML file -> .env file -> BILLING_* environment -> command-line flags
//
// Flags are applied by cmd/server on top of the Config returned here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port           int           `yaml:"port"`
	DBPath         string        `yaml:"db"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	CatalogPath    string        `yaml:"catalog"`
	WatchCatalog   bool          `yaml:"watch_catalog"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SaveTimeout    time.Duration `yaml:"save_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           8080,
		DBPath:         "./data/billing.db",
		LogLevel:       "info",
		LogFormat:      "text",
		SessionTTL:     30 * time.Minute,
		SweepInterval:  time.Minute,
		SaveTimeout:    10 * time.Second,
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
	}
}

// Load builds the configuration. path may be empty, in which case no
// YAML file is read.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.DBPath = getEnv("BILLING_DB", c.DBPath)
	c.LogLevel = getEnv("BILLING_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("BILLING_LOG_FORMAT", c.LogFormat)
	c.CatalogPath = getEnv("BILLING_CATALOG", c.CatalogPath)

	if c.Port, err = getEnvInt("BILLING_PORT", c.Port); err != nil {
		return err
	}
	if c.WatchCatalog, err = getEnvBool("BILLING_WATCH_CATALOG", c.WatchCatalog); err != nil {
		return err
	}
	if c.SessionTTL, err = getEnvDuration("BILLING_SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if c.SweepInterval, err = getEnvDuration("BILLING_SWEEP_INTERVAL", c.SweepInterval); err != nil {
		return err
	}
	if c.SaveTimeout, err = getEnvDuration("BILLING_SAVE_TIMEOUT", c.SaveTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("BILLING_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q (want text or json)", c.LogFormat)
	}
	if c.SessionTTL <= 0 || c.SweepInterval <= 0 || c.SaveTimeout <= 0 {
		return fmt.Errorf("session_ttl, sweep_interval and save_timeout must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
