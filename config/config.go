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
	Scanner    ScannerConfig    `yaml:"scanner"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	TokenTTLMinutes int     `yaml:"token_ttl_minutes"`
}

// ScannerConfig holds the tunables of the detection pipeline.
type ScannerConfig struct {
	TickIntervalMillis  int           `yaml:"tick_interval_ms"`
	TickInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
	MinConfidence       float64       `yaml:"min_confidence"`
	OccurrenceThreshold int           `yaml:"occurrence_threshold"`
	DebounceMillis      int           `yaml:"debounce_ms"`
	Debounce            time.Duration `yaml:"-"`
	HistorySize         int           `yaml:"history_size"`
	FrameBuffer         int           `yaml:"frame_buffer"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
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

	if cfg.Scanner.TickIntervalMillis <= 0 {
		cfg.Scanner.TickIntervalMillis = 250
	}
	cfg.Scanner.TickInterval = time.Duration(cfg.Scanner.TickIntervalMillis) * time.Millisecond

	if cfg.Scanner.MinConfidence <= 0 {
		cfg.Scanner.MinConfidence = 0.8
	}
	if cfg.Scanner.OccurrenceThreshold <= 0 {
		cfg.Scanner.OccurrenceThreshold = 3
	}
	if cfg.Scanner.DebounceMillis <= 0 {
		cfg.Scanner.DebounceMillis = 800
	}
	cfg.Scanner.Debounce = time.Duration(cfg.Scanner.DebounceMillis) * time.Millisecond

	if cfg.Scanner.HistorySize <= 0 {
		cfg.Scanner.HistorySize = 10
	}
	if cfg.Scanner.FrameBuffer <= 0 {
		cfg.Scanner.FrameBuffer = 8
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Server.TokenTTLMinutes <= 0 {
		cfg.Server.TokenTTLMinutes = 120
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
