package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the vela data service.
type Config struct {
	Server   Server         `yaml:"server"`
	Backend  Backend        `yaml:"backend"`
	Auth     Auth           `yaml:"auth"`
	Cache    Cache          `yaml:"cache"`
	Archive  Archive        `yaml:"archive"`
	Backfill BackfillConfig `yaml:"backfill"`
	Logging  Logging        `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Backend holds the remote OHLCV endpoint configuration.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured HTTP timeout, defaulting to 30 seconds.
func (b Backend) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Auth holds credentials for the hosted auth provider. When Token is set a
// static session is used and the provider is never contacted.
type Auth struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
}

// Cache controls the historical-series cache bounds and its optional
// persistence mirror.
type Cache struct {
	MaxEntries int    `yaml:"max_entries"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	Persist    bool   `yaml:"persist"`
	SQLitePath string `yaml:"sqlite_path"`
}

// TTL returns the configured cache expiration window, defaulting to 30
// minutes.
func (c Cache) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Archive holds the Parquet archive location.
type Archive struct {
	DataDir string `yaml:"data_dir"`
}

// BackfillConfig holds parameters for the Alpaca backfill tool.
type BackfillConfig struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VELA_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}

	if v := os.Getenv("VELA_AUTH_URL"); v != "" {
		cfg.Auth.BaseURL = v
	}

	if v := os.Getenv("VELA_AUTH_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	if v := os.Getenv("VELA_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Cache.SQLitePath = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Archive.DataDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Backfill.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Backfill.APISecret = v
	}
}
