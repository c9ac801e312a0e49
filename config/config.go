package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL = "https://alphabackend-production.up.railway.app"

	FrontendBubbletea = "bubbletea"
	FrontendClassic   = "classic"

	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

type APIConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type AutoRefreshConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type StorageConfig struct {
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	CookieName    string        `yaml:"cookie_name"`
	MaxAddresses  int           `yaml:"max_addresses"`
	Expiry        time.Duration `yaml:"expiry"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type UIConfig struct {
	Frontend      string        `yaml:"frontend"`
	ToastDuration time.Duration `yaml:"toast_duration"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Filters hides matching envelopes from the inbox listing.
type Filters struct {
	IgnoreSenders           []string `yaml:"ignore_senders"`
	IgnoreKeywordsInSubject []string `yaml:"ignore_keywords_in_subject"`
}

type Config struct {
	API         APIConfig         `yaml:"api"`
	AutoRefresh AutoRefreshConfig `yaml:"auto_refresh"`
	Storage     StorageConfig     `yaml:"storage"`
	UI          UIConfig          `yaml:"ui"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Filters     Filters           `yaml:"filters"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		AutoRefresh: AutoRefreshConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:        DriverFile,
			Path:          filepath.Join(stateDir(), "jar.json"),
			CookieName:    "tempEmails",
			MaxAddresses:  10,
			Expiry:        7 * 24 * time.Hour,
			SweepInterval: 30 * time.Minute,
		},
		UI: UIConfig{
			Frontend:      FrontendBubbletea,
			ToastDuration: 3 * time.Second,
		},
		Log: LogConfig{
			File:  "tmpmail.log",
			Level: "info",
		},
	}
}

func stateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "tmpmail")
}

// Load builds the configuration from defaults, the YAML file at path (a
// missing file is not an error), a .env file in the working directory and
// TMPMAIL_* environment variables, in that order, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	cfg.API.BaseURL = getEnvString("TMPMAIL_API_BASE_URL", cfg.API.BaseURL)
	cfg.API.Timeout = getEnvDuration("TMPMAIL_API_TIMEOUT", cfg.API.Timeout)
	cfg.API.RetryAttempts = getEnvInt("TMPMAIL_API_RETRY_ATTEMPTS", cfg.API.RetryAttempts)
	cfg.API.RetryDelay = getEnvDuration("TMPMAIL_API_RETRY_DELAY", cfg.API.RetryDelay)

	cfg.AutoRefresh.Enabled = getEnvBool("TMPMAIL_AUTO_REFRESH", cfg.AutoRefresh.Enabled)
	cfg.AutoRefresh.Interval = getEnvDuration("TMPMAIL_REFRESH_INTERVAL", cfg.AutoRefresh.Interval)

	cfg.Storage.Driver = getEnvString("TMPMAIL_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = getEnvString("TMPMAIL_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.MaxAddresses = getEnvInt("TMPMAIL_MAX_ADDRESSES", cfg.Storage.MaxAddresses)
	cfg.Storage.Expiry = getEnvDuration("TMPMAIL_ADDRESS_EXPIRY", cfg.Storage.Expiry)

	cfg.UI.Frontend = getEnvString("TMPMAIL_UI", cfg.UI.Frontend)

	cfg.Log.File = getEnvString("TMPMAIL_LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnvString("TMPMAIL_LOG_LEVEL", cfg.Log.Level)

	cfg.Metrics.Addr = getEnvString("TMPMAIL_METRICS_ADDR", cfg.Metrics.Addr)
}

func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("api.retry_attempts must be at least 1")
	}
	if c.API.RetryDelay < 0 {
		return fmt.Errorf("api.retry_delay must not be negative")
	}
	if c.AutoRefresh.Interval < time.Second {
		return fmt.Errorf("auto_refresh.interval must be at least 1s")
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("storage.driver %q must be %q or %q", c.Storage.Driver, DriverFile, DriverSQLite)
	}
	if c.Storage.MaxAddresses < 1 {
		return fmt.Errorf("storage.max_addresses must be at least 1")
	}
	if c.Storage.Expiry <= 0 {
		return fmt.Errorf("storage.expiry must be positive")
	}
	switch c.UI.Frontend {
	case FrontendBubbletea, FrontendClassic:
	default:
		return fmt.Errorf("ui.frontend %q must be %q or %q", c.UI.Frontend, FrontendBubbletea, FrontendClassic)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
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
		if err == nil {
			return parsed
		}
	}
	return fallback
}
