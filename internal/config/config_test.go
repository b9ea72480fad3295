package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Budget.DailyLimit != 5.0 {
		t.Errorf("DailyLimit = %v, want 5.0", cfg.Budget.DailyLimit)
	}
	if cfg.Budget.ResetCron != "0 3 * * *" {
		t.Errorf("ResetCron = %q", cfg.Budget.ResetCron)
	}
}

func TestLoadJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// comments are allowed
		server: {port: 9090, workers: 8},
		budget: {daily_limit: 10.0, per_user_limit: 1.0, critical_threshold: 0.1, retention_days: 30, reset_cron: "0 4 * * *"},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Server.Workers)
	}
	if cfg.Budget.DailyLimit != 10.0 {
		t.Errorf("DailyLimit = %v, want 10.0", cfg.Budget.DailyLimit)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MIGUE_WHATSAPP_APP_SECRET", "env-secret")
	t.Setenv("MIGUE_PORT", "7070")
	t.Setenv("MIGUE_DAILY_LIMIT", "2.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WhatsApp.AppSecret != "env-secret" {
		t.Errorf("AppSecret = %q", cfg.WhatsApp.AppSecret)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Budget.DailyLimit != 2.5 {
		t.Errorf("DailyLimit = %v, want 2.5", cfg.Budget.DailyLimit)
	}
}

func TestValidateRejectsImpossibleValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"daily limit zero", func(c *Config) { c.Budget.DailyLimit = 0 }},
		{"per-user above daily", func(c *Config) { c.Budget.PerUserLimit = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an impossible config")
			}
		})
	}
}

func TestMinInterval(t *testing.T) {
	c := ServerConfig{RateMinInterval: 5}
	if got := c.MinInterval(); got != 5*time.Second {
		t.Errorf("MinInterval = %v", got)
	}
	c.RateMinInterval = 0
	if got := c.MinInterval(); got != 2*time.Second {
		t.Errorf("default MinInterval = %v, want 2s", got)
	}
}
