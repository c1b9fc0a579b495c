// Package config loads settings from the environment, optionally layered
// over a YAML file named by CONFIG_FILE. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort    int    `yaml:"http_port"`
	SMTPPort    int    `yaml:"smtp_port"`
	DBPath      string `yaml:"db_path"`
	PollingPath string `yaml:"polling_path"`
	LogLevel    string `yaml:"log_level"`

	// Recipient domains accepted for delivery. Empty accepts any domain.
	MailDomains []string `yaml:"mail_domains"`
	// Local parts that cannot receive mail or be claimed as a mailbox.
	// Nil selects the built-in list.
	Blacklist           []string `yaml:"blacklist"`
	BannedSenderDomains []string `yaml:"banned_sender_domains"`

	SMTPAuthEnabled bool   `yaml:"smtp_auth_enabled"`
	SMTPUsername    string `yaml:"smtp_username"`
	SMTPPassword    string `yaml:"smtp_password"`

	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	RetentionMaxAge    time.Duration `yaml:"retention_max_age"`
	RetentionInterval  time.Duration `yaml:"retention_interval"`
}

func Load() (Config, error) {
	cfg := defaults()
	if path := getEnvString("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTPPort:           3025,
		SMTPPort:           2025,
		PollingPath:        "/socket.io/",
		LogLevel:           "info",
		SMTPUsername:       "shortmail",
		SMTPPassword:       "shortmail",
		SessionIdleTimeout: 60 * time.Minute,
		RetentionMaxAge:    24 * time.Hour,
		RetentionInterval:  time.Hour,
	}
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.SMTPPort = getEnvInt("SMTP_PORT", c.SMTPPort)
	c.DBPath = getEnvString("DB_PATH", c.DBPath)
	c.PollingPath = getEnvString("POLLING_PATH", c.PollingPath)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.MailDomains = getEnvList("MAIL_DOMAIN", c.MailDomains)
	c.Blacklist = getEnvList("BLACKLIST", c.Blacklist)
	c.BannedSenderDomains = getEnvList("BANNED_SENDER_DOMAINS", c.BannedSenderDomains)
	c.SMTPAuthEnabled = getEnvBool("SMTP_AUTH_ENABLED", c.SMTPAuthEnabled)
	c.SMTPUsername = getEnvString("SMTP_USERNAME", c.SMTPUsername)
	c.SMTPPassword = getEnvString("SMTP_PASSWORD", c.SMTPPassword)
	c.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout)
	c.RetentionMaxAge = getEnvDuration("RETENTION_MAX_AGE", c.RetentionMaxAge)
	c.RetentionInterval = getEnvDuration("RETENTION_INTERVAL", c.RetentionInterval)
}

func (c *Config) normalize() {
	c.MailDomains = lowerAll(c.MailDomains)
	if c.Blacklist != nil {
		c.Blacklist = append([]string{}, lowerAll(c.Blacklist)...)
	}
	c.BannedSenderDomains = lowerAll(c.BannedSenderDomains)
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !strings.HasPrefix(c.PollingPath, "/") {
		c.PollingPath = "/" + c.PollingPath
	}
	if !strings.HasSuffix(c.PollingPath, "/") {
		c.PollingPath += "/"
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// getEnvList reads a comma-separated value. Unset or blank keeps fallback.
func getEnvList(key string, fallback []string) []string {
	value := getEnvString(key, "")
	if value == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return append([]string{}, items...)
}

func lowerAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
