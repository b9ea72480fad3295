// Package config loads the assistant configuration: a JSON5 file overlaid
// with MIGUE_* environment variables. Secrets (API keys, signing secret,
// DSN) are env-only and never written back to the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Providers ProvidersConfig `json:"providers"`
	Budget    BudgetConfig    `json:"budget"`
	Agent     AgentConfig     `json:"agent"`
	Tools     ToolsConfig     `json:"tools"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Workers         int    `json:"workers"`           // background pipeline workers
	QueueSize       int    `json:"queue_size"`        // pending pipeline jobs
	RateMinInterval int    `json:"rate_min_interval"` // per-sender minimum seconds between messages
}

// MinInterval returns the per-sender minimum message interval.
func (c *ServerConfig) MinInterval() time.Duration {
	if c.RateMinInterval <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RateMinInterval) * time.Second
}

// WhatsAppConfig configures the Cloud API channel.
// VerifyToken, AppSecret and AccessToken come from env only.
type WhatsAppConfig struct {
	PhoneNumberID string `json:"phone_number_id"`
	VerifyToken   string `json:"-"` // MIGUE_WHATSAPP_VERIFY_TOKEN
	AppSecret     string `json:"-"` // MIGUE_WHATSAPP_APP_SECRET
	AccessToken   string `json:"-"` // MIGUE_WHATSAPP_ACCESS_TOKEN
	GraphBaseURL  string `json:"graph_base_url,omitempty"`
}

// ProvidersConfig holds LLM provider credentials (env-only).
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
}

// BudgetConfig bounds model spend. Amounts are USD.
type BudgetConfig struct {
	DailyLimit        float64 `json:"daily_limit"`
	PerUserLimit      float64 `json:"per_user_limit"`
	CriticalThreshold float64 `json:"critical_threshold"` // below this, force cheapest model
	RetentionDays     int     `json:"retention_days"`     // usage counter retention
	ResetCron         string  `json:"reset_cron"`         // maintenance schedule, gronx syntax
}

// AgentConfig tunes the turn executor.
type AgentConfig struct {
	MaxToolIterations int `json:"max_tool_iterations"`
	MaxResponseChars  int `json:"max_response_chars"`
	LongContextTokens int `json:"long_context_tokens"`
}

// ToolsConfig configures governed tool execution.
type ToolsConfig struct {
	AllowlistPath string `json:"allowlist_path"` // JSON file of allowlisted send_message recipients
}

// DatabaseConfig selects the storage backend. A postgres:// DSN uses pgx,
// anything else is a SQLite path. DSN from env only.
type DatabaseConfig struct {
	DSN string `json:"-"` // MIGUE_DATABASE_DSN
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"` // OTLP HTTP endpoint; empty = stdout exporter
	ServiceName string `json:"service_name,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Workers:         4,
			QueueSize:       256,
			RateMinInterval: 2,
		},
		WhatsApp: WhatsAppConfig{
			GraphBaseURL: "https://graph.facebook.com/v21.0",
		},
		Budget: BudgetConfig{
			DailyLimit:        5.0,
			PerUserLimit:      0.50,
			CriticalThreshold: 0.05,
			RetentionDays:     90,
			ResetCron:         "0 3 * * *",
		},
		Agent: AgentConfig{
			MaxToolIterations: 6,
			MaxResponseChars:  4096,
			LongContextTokens: 8000,
		},
		Tools: ToolsConfig{
			AllowlistPath: "allowlist.json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "migue",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("MIGUE_WHATSAPP_VERIFY_TOKEN", &c.WhatsApp.VerifyToken)
	envStr("MIGUE_WHATSAPP_APP_SECRET", &c.WhatsApp.AppSecret)
	envStr("MIGUE_WHATSAPP_ACCESS_TOKEN", &c.WhatsApp.AccessToken)
	envStr("MIGUE_WHATSAPP_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	envStr("MIGUE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("MIGUE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("MIGUE_DATABASE_DSN", &c.Database.DSN)
	envStr("MIGUE_HOST", &c.Server.Host)
	envStr("MIGUE_ALLOWLIST_PATH", &c.Tools.AllowlistPath)
	envStr("MIGUE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("MIGUE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MIGUE_DAILY_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Budget.DailyLimit = f
		}
	}
	if v := os.Getenv("MIGUE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// Validate checks internal consistency. Missing credentials are not
// fatal here (doctor reports them); impossible values are.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Budget.DailyLimit <= 0 {
		return fmt.Errorf("budget.daily_limit must be positive")
	}
	if c.Budget.PerUserLimit > c.Budget.DailyLimit {
		return fmt.Errorf("budget.per_user_limit exceeds daily_limit")
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 4
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 256
	}
	return nil
}
