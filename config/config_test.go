package config

import (
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DatabaseURL != defaultDatabaseURL {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.UploadDir != "uploads" || cfg.ApiPort != 8000 || cfg.DownloadTimeout != time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.RequireTelegram(); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"DATABASE_URL":     "postgres://bills@localhost/bills",
		"TELEGRAM_TOKEN":   " 123:abc ",
		"UPLOAD_DIR":       "/var/lib/bills",
		"API_PORT":         "9090",
		"DOWNLOAD_TIMEOUT": "15s",
		"CORS_ORIGINS":     "http://localhost:3000, http://127.0.0.1:3000,",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.TelegramToken != "123:abc" {
		t.Fatalf("token not trimmed: %q", cfg.TelegramToken)
	}
	if cfg.ApiAddress() != ":9090" {
		t.Fatalf("ApiAddress = %q", cfg.ApiAddress())
	}
	if cfg.DownloadTimeout != 15*time.Second {
		t.Fatalf("DownloadTimeout = %v", cfg.DownloadTimeout)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestFromEnvRejectsBadPort(t *testing.T) {
	if _, err := FromEnv(lookupFrom(map[string]string{"API_PORT": "http"})); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnvRejectsOriginWithoutScheme(t *testing.T) {
	if _, err := FromEnv(lookupFrom(map[string]string{"CORS_ORIGINS": "localhost:3000"})); err == nil {
		t.Fatalf("expected error")
	}
	cfg, err := FromEnv(lookupFrom(map[string]string{"CORS_ORIGINS": "*"}))
	if err != nil || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("wildcard origin: %v, %v", cfg, err)
	}
}
