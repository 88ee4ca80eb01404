package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	DefaultMaxUploadBytes = 16 << 20
	DefaultPageSize       = 12
	MaxPageSize           = 100
	minSecretKeyLength    = 16
)

// SMTPConfig configures the outgoing mail relay. An empty host logs mail instead.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string     `yaml:"port"`
	DatabaseURL             string     `yaml:"databaseURL"`
	LogLevel                string     `yaml:"logLevel"`
	LogFormat               string     `yaml:"logFormat"`
	UploadDir               string     `yaml:"uploadDir"`
	MaxUploadBytes          int64      `yaml:"maxUploadBytes"`
	SecretKey               string     `yaml:"secretKey"`
	SessionTTL              string     `yaml:"sessionTTL"`
	ResetTokenTTL           string     `yaml:"resetTokenTTL"`
	RedisAddr               string     `yaml:"redisAddr"`
	RedisPassword           string     `yaml:"redisPassword"`
	PublicBaseURL           string     `yaml:"publicBaseURL"`
	TrustedProxies          []string   `yaml:"trustedProxies"`
	LoginRateLimitPerMinute int        `yaml:"loginRateLimitPerMinute"`
	ResetRateLimitPerMinute int        `yaml:"resetRateLimitPerMinute"`
	PageSize                int        `yaml:"pageSize"`
	SMTP                    SMTPConfig `yaml:"smtp"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                    "8080",
		LogLevel:                "info",
		LogFormat:               "json",
		UploadDir:               "uploads",
		MaxUploadBytes:          DefaultMaxUploadBytes,
		SessionTTL:              "24h",
		ResetTokenTTL:           "30m",
		PublicBaseURL:           "http://localhost:8080",
		LoginRateLimitPerMinute: 10,
		ResetRateLimitPerMinute: 5,
		PageSize:                DefaultPageSize,
		SMTP:                    SMTPConfig{Port: 587},
	}
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first; a missing config file is allowed so the
// service can run from environment variables alone.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LIBRARY_SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("LIBRARY_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("LIBRARY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("LIBRARY_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTP.From = v
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if len(cfg.SecretKey) < minSecretKeyLength {
		return fmt.Errorf("config: secretKey must be at least %d characters (set in config.yaml or LIBRARY_SECRET_KEY)", minSecretKeyLength)
	}
	if strings.TrimSpace(cfg.UploadDir) == "" {
		return errors.New("config: uploadDir is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return fmt.Errorf("config: pageSize must be between 1 and %d", MaxPageSize)
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.ResetRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	u, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: publicBaseURL must be an absolute http(s) URL")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.From == "" {
		return errors.New("config: smtp.from is required when smtp.host is set")
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("resetTokenTTL", cfg.ResetTokenTTL); err != nil {
		return err
	}
	return nil
}

// ParseDuration parses a positive duration string for the named key.
func ParseDuration(key, raw string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", key, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
