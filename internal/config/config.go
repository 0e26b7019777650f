package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JobAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type IdentityConfig struct {
	SignInURL    string        `yaml:"sign_in_url"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenPath    string        `yaml:"token_path"` // file holding the current session token
	SessionGrace time.Duration `yaml:"session_grace"`
}

type TrackerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxAttempts     int           `yaml:"max_attempts"`
	Cooldown        time.Duration `yaml:"cooldown"`
	HistoryCapacity int           `yaml:"history_capacity"`
	HistoryKey      string        `yaml:"history_key"`
	MaxValueBytes   int           `yaml:"max_value_bytes"` // per-key storage ceiling, 0 = unlimited
}

type WebConfig struct {
	Port      int `yaml:"port"`
	RateLimit int `yaml:"rate_limit"` // requests per minute per caller, 0 disables
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	API      JobAPIConfig   `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Web      WebConfig      `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values with the defaults the tracker was tuned
// for. Exposed so tests can build configs without a yaml file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Tracker.PollInterval <= 0 {
		cfg.Tracker.PollInterval = time.Second
	}
	if cfg.Tracker.MaxAttempts <= 0 {
		cfg.Tracker.MaxAttempts = 150
	}
	if cfg.Tracker.Cooldown <= 0 {
		cfg.Tracker.Cooldown = 2 * time.Second
	}
	if cfg.Tracker.HistoryCapacity <= 0 {
		cfg.Tracker.HistoryCapacity = 20
	}
	if cfg.Tracker.HistoryKey == "" {
		cfg.Tracker.HistoryKey = "analysis_history"
	}
	if cfg.Identity.SessionGrace <= 0 {
		cfg.Identity.SessionGrace = 30 * time.Second
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
}
