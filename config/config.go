package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	CueScore   CueScoreConfig   `yaml:"cuescore"`
	Updater    UpdaterConfig    `yaml:"updater"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "postgres://" selects the postgres driver;
// anything else is treated as a sqlite file path.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// StorageConfig controls the write-coalescing persistence queue.
type StorageConfig struct {
	DebounceMillis int           `yaml:"debounce_millis"`
	Debounce       time.Duration `yaml:"-"`
	MaxValueBytes  int           `yaml:"max_value_bytes"`
}

// CueScoreConfig holds the external scoreboard client configuration.
// Relay values are templates; the scoreboard URL (tableCode included)
// is substituted for the %s verb.
type CueScoreConfig struct {
	ScoreboardURL  string        `yaml:"scoreboard_url"`
	Relay          string        `yaml:"relay"`
	FallbackRelay  string        `yaml:"fallback_relay"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	RatePerSec     float64       `yaml:"rate_per_sec"`
	RateBurst      int           `yaml:"rate_burst"`
}

// UpdaterConfig holds the score reconciliation cadence.
type UpdaterConfig struct {
	InitialDelaySeconds int           `yaml:"initial_delay_seconds"`
	InitialDelay        time.Duration `yaml:"-"`
	IntervalSeconds     int           `yaml:"interval_seconds"`
	Interval            time.Duration `yaml:"-"`
	CallGapMillis       int           `yaml:"call_gap_millis"`
	CallGap             time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 2
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "pooltv.db"
	}

	if cfg.Storage.DebounceMillis <= 0 {
		cfg.Storage.DebounceMillis = 100
	}
	cfg.Storage.Debounce = time.Duration(cfg.Storage.DebounceMillis) * time.Millisecond
	if cfg.Storage.MaxValueBytes <= 0 {
		cfg.Storage.MaxValueBytes = 5_000_000
	}

	if cfg.CueScore.ScoreboardURL == "" {
		cfg.CueScore.ScoreboardURL = "https://cuescore.com/ajax/scoreboard-v2/"
	}
	if cfg.CueScore.Relay == "" {
		cfg.CueScore.Relay = "https://api.codetabs.com/v1/proxy?quest=%s"
	}
	if cfg.CueScore.FallbackRelay == "" {
		cfg.CueScore.FallbackRelay = "https://cors-anywhere.herokuapp.com/%s"
	}
	if cfg.CueScore.TimeoutSeconds <= 0 {
		cfg.CueScore.TimeoutSeconds = 15
	}
	cfg.CueScore.Timeout = time.Duration(cfg.CueScore.TimeoutSeconds) * time.Second
	if cfg.CueScore.RatePerSec <= 0 {
		cfg.CueScore.RatePerSec = 2
	}
	if cfg.CueScore.RateBurst <= 0 {
		cfg.CueScore.RateBurst = 2
	}

	if cfg.Updater.InitialDelaySeconds <= 0 {
		cfg.Updater.InitialDelaySeconds = 5
	}
	cfg.Updater.InitialDelay = time.Duration(cfg.Updater.InitialDelaySeconds) * time.Second
	if cfg.Updater.IntervalSeconds <= 0 {
		cfg.Updater.IntervalSeconds = 30
	}
	cfg.Updater.Interval = time.Duration(cfg.Updater.IntervalSeconds) * time.Second
	if cfg.Updater.CallGapMillis <= 0 {
		cfg.Updater.CallGapMillis = 500
	}
	cfg.Updater.CallGap = time.Duration(cfg.Updater.CallGapMillis) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
