package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	defaultDatabaseURL     = "sqlite://tmp/dev.sqlite3"
	defaultUploadDir       = "uploads"
	defaultApiPort         = 8000
	defaultLogLevel        = "info"
	defaultDownloadTimeout = 60 * time.Second
)

// Config is built once at startup and handed to constructors.
type Config struct {
	DatabaseURL        string
	TelegramToken      string
	TelegramWebhookURL string
	UploadDir          string
	ApiPort            int
	LogLevel           string
	CORSOrigins        []string
	DownloadTimeout    time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", errors.WithStack(err))
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:        get("DATABASE_URL", defaultDatabaseURL),
		TelegramToken:      get("TELEGRAM_TOKEN", ""),
		TelegramWebhookURL: get("TELEGRAM_WEBHOOK_URL", ""),
		UploadDir:          get("UPLOAD_DIR", defaultUploadDir),
		LogLevel:           get("LOG_LEVEL", defaultLogLevel),
		ApiPort:            defaultApiPort,
		DownloadTimeout:    defaultDownloadTimeout,
	}

	if raw := get("API_PORT", ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, errors.Errorf("API_PORT is invalid: %q", raw)
		}
		cfg.ApiPort = port
	}

	if raw := get("DOWNLOAD_TIMEOUT", ""); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			return nil, errors.Errorf("DOWNLOAD_TIMEOUT is invalid: %q", raw)
		}
		cfg.DownloadTimeout = timeout
	}

	if raw := get("CORS_ORIGINS", ""); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			switch {
			case origin == "":
				continue
			case origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://"):
				return nil, errors.Errorf("CORS_ORIGINS entry must be * or start with http:// or https://: %q", origin)
			}
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	return cfg, nil
}

// RequireTelegram is checked by modes which can't work without a bot.
func (cfg *Config) RequireTelegram() error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is missing")
	}
	return nil
}

func (cfg *Config) ApiAddress() string {
	return fmt.Sprintf(":%d", cfg.ApiPort)
}
