// Package config is the read-only settings object handed to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/pkg/configutil"

	"github.com/joho/godotenv"
)

const (
	DefaultDomain    = "otelms.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

type AlertConfig struct {
	Smtp SmtpConfig `json:"smtp"`
}

type Config struct {
	HotelID  string `json:"hotel_id"`
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`

	Debug    bool  `json:"debug"`
	Headless *bool `json:"headless"`
	// HttpOnly skips the headless browser entirely, dialogs are then unavailable.
	HttpOnly bool `json:"http_only"`

	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	CacheDir        string `json:"cache_dir"`
	OutputDir       string `json:"output_dir"`
	Database        string `json:"database"`
	Timezone        string `json:"timezone"`
	WaitTimeoutMs   int    `json:"wait_timeout_ms"`
	UserAgent       string `json:"user_agent"`

	Schedule string `json:"schedule"`
	Listen   string `json:"listen"`

	Otlp   telemetry.OtlpConfig `json:"otlp"`
	Alerts AlertConfig          `json:"alerts"`
}

// Load reads the json5 file at path (plus its .local override), then a .env
// file if one exists, then OTELMS_* environment variables, then defaults.
// A missing config file is fine as long as the environment fills the gaps.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	err = godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OTELMS_HOTEL_ID", &c.HotelID)
	str("OTELMS_DOMAIN", &c.Domain)
	str("OTELMS_USERNAME", &c.Username)
	str("OTELMS_PASSWORD", &c.Password)
	str("OTELMS_DATABASE", &c.Database)
	str("OTELMS_OUTPUT_DIR", &c.OutputDir)
	str("OTELMS_CACHE_DIR", &c.CacheDir)

	if v, ok := lookup("OTELMS_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err == nil {
			c.Debug = debug
		}
	}
	if v, ok := lookup("OTELMS_HEADLESS"); ok {
		headless, err := strconv.ParseBool(v)
		if err == nil {
			c.Headless = &headless
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.Headless == nil {
		headless := true
		c.Headless = &headless
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 3600
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.Database == "" {
		c.Database = "otelms.db"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Lima"
	}
	if c.WaitTimeoutMs <= 0 {
		c.WaitTimeoutMs = 10_000
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Schedule == "" {
		c.Schedule = "*/30 * * * *"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
}

func (c Config) Validate() error {
	var err error
	if c.HotelID == "" {
		err = errors.Join(err, fmt.Errorf("hotel_id is required"))
	}
	if c.Username == "" {
		err = errors.Join(err, fmt.Errorf("username is required"))
	}
	if c.Password == "" {
		err = errors.Join(err, fmt.Errorf("password is required"))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BaseURL is the hotel's own subdomain, e.g. https://demo.otelms.com.
func (c Config) BaseURL() string {
	return fmt.Sprintf("https://%s.%s", c.HotelID, c.Domain)
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMs) * time.Millisecond
}

func (c Config) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}
