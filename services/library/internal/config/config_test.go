package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "DATABASE_URL", "LIBRARY_SECRET_KEY", "LIBRARY_UPLOAD_DIR", "LIBRARY_MAX_UPLOAD_BYTES", "LIBRARY_PUBLIC_BASE_URL", "SMTP_HOST", "SMTP_FROM", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
databaseURL: "sqlite://library.db"
secretKey: "0123456789abcdef0123"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8080" || cfg.PageSize != 12 || cfg.MaxUploadBytes != 16<<20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.UploadDir != "uploads" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	ttl, err := ParseDuration("resetTokenTTL", cfg.ResetTokenTTL)
	if err != nil || ttl != 30*time.Minute {
		t.Fatalf("reset ttl = %v (%v), want 30m", ttl, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://library:library@db:5432/library")
	t.Setenv("LIBRARY_SECRET_KEY", "env-secret-key-0123456789")
	t.Setenv("LIBRARY_MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("LIBRARY_PUBLIC_BASE_URL", "https://music.example.com/")
	t.Setenv("LIBRARY_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_FROM", "library@example.com")
	t.Setenv("REDIS_ADDR", "redis:6379")

	path := writeConfig(t, `
port: "9000"
databaseURL: "sqlite://library.db"
secretKey: "file-secret-key-0123456789"
maxUploadBytes: 999
pageSize: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9000" || cfg.PageSize != 20 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") {
		t.Fatalf("databaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.SecretKey != "env-secret-key-0123456789" || cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.PublicBaseURL != "https://music.example.com" {
		t.Fatalf("publicBaseURL = %q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.SMTP.Port != 2525 || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://library.db")
	t.Setenv("LIBRARY_SECRET_KEY", "env-secret-key-0123456789")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "sqlite://library.db" {
		t.Fatalf("unexpected databaseURL %q", cfg.DatabaseURL)
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database",
			content: `secretKey: "0123456789abcdef0123"`,
			wantErr: "databaseURL",
		},
		{
			name:    "short secret",
			content: "databaseURL: \"sqlite://x.db\"\nsecretKey: \"short\"",
			wantErr: "secretKey",
		},
		{
			name:    "page size too large",
			content: "databaseURL: \"sqlite://x.db\"\nsecretKey: \"0123456789abcdef0123\"\npageSize: 500",
			wantErr: "pageSize",
		},
		{
			name:    "bad session ttl",
			content: "databaseURL: \"sqlite://x.db\"\nsecretKey: \"0123456789abcdef0123\"\nsessionTTL: \"soon\"",
			wantErr: "sessionTTL",
		},
		{
			name:    "relative public url",
			content: "databaseURL: \"sqlite://x.db\"\nsecretKey: \"0123456789abcdef0123\"\npublicBaseURL: \"/library\"",
			wantErr: "publicBaseURL",
		},
		{
			name:    "smtp without from",
			content: "databaseURL: \"sqlite://x.db\"\nsecretKey: \"0123456789abcdef0123\"\nsmtp:\n  host: \"smtp.example.com\"",
			wantErr: "smtp.from",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}
