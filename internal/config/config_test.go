package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://jobs.example.com
redis:
  url: localhost:6379
`)
	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracker.PollInterval != time.Second {
		t.Errorf("poll interval default = %v", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.MaxAttempts != 150 {
		t.Errorf("max attempts default = %d", cfg.Tracker.MaxAttempts)
	}
	if cfg.Tracker.Cooldown != 2*time.Second {
		t.Errorf("cooldown default = %v", cfg.Tracker.Cooldown)
	}
	if cfg.Tracker.HistoryCapacity != 20 {
		t.Errorf("history capacity default = %d", cfg.Tracker.HistoryCapacity)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("web port default = %d", cfg.Web.Port)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://jobs.example.com
  timeout: 5s
redis:
  url: localhost:6379
tracker:
  poll_interval: 250ms
  max_attempts: 10
  history_capacity: 5
`)
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracker.PollInterval != 250*time.Millisecond || cfg.Tracker.MaxAttempts != 10 {
		t.Errorf("tracker overrides = %+v", cfg.Tracker)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("api timeout = %v", cfg.API.Timeout)
	}
	if !cfg.Runtime.Dev {
		t.Errorf("dev flag not carried")
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Run("missing api base url", func(t *testing.T) {
		path := writeConfig(t, "redis:\n  url: localhost:6379\n")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("missing redis url", func(t *testing.T) {
		path := writeConfig(t, "api:\n  base_url: https://jobs.example.com\n")
		if _, err := LoadConfig(path, false); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Fatal("expected error")
		}
	})
}
