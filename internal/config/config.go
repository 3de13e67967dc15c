// Package config loads and validates ingestion service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Official   OfficialConfig   `mapstructure:"official"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Standings  StandingsConfig  `mapstructure:"standings"`
	DB         DBConfig         `mapstructure:"db"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound HTTP and retry behavior shared by every source.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
	RespectRobots    bool   `mapstructure:"respect_robots"`
}

// OfficialConfig tunes the rate-limited official API client.
type OfficialConfig struct {
	BaseURL                string `mapstructure:"base_url"`
	Quota                  int    `mapstructure:"quota"`
	WindowSeconds          int    `mapstructure:"window_seconds"`
	MinSpacingMs           int    `mapstructure:"min_spacing_ms"`
	CacheTTLSeconds        int    `mapstructure:"cache_ttl_seconds"`
	CalendarTTLSeconds     int    `mapstructure:"calendar_ttl_seconds"`
	BreakerFailures        int    `mapstructure:"breaker_failures"`
	BreakerCooldownSeconds int    `mapstructure:"breaker_cooldown_seconds"`
}

// AggregatorConfig points at the results aggregator and its event catalog.
// Events replace or extend the built-in catalog per (season, round).
type AggregatorConfig struct {
	BaseURL      string             `mapstructure:"base_url"`
	TopClass     string             `mapstructure:"top_class"`
	PolitenessMs int                `mapstructure:"politeness_ms"`
	Events       []aggregator.Event `mapstructure:"events"`
}

// StandingsConfig points at the standings page. Affiliations map a driver
// name ("S. OGIER" or "Ogier S.") to a team label; empty uses the built-in table.
type StandingsConfig struct {
	BaseURL      string            `mapstructure:"base_url"`
	Affiliations map[string]string `mapstructure:"affiliations"`
}

// DBConfig selects and sizes the store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 600)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("official.base_url", "https://api.wrc.com")
	v.SetDefault("official.quota", 200)
	v.SetDefault("official.window_seconds", 3600)
	v.SetDefault("official.min_spacing_ms", 500)
	v.SetDefault("official.cache_ttl_seconds", 600)
	v.SetDefault("official.calendar_ttl_seconds", 3600)
	v.SetDefault("official.breaker_failures", 5)
	v.SetDefault("official.breaker_cooldown_seconds", 60)
	v.SetDefault("aggregator.base_url", aggregator.DefaultBaseURL)
	v.SetDefault("aggregator.top_class", aggregator.DefaultTopClass)
	v.SetDefault("aggregator.politeness_ms", 1000)
	v.SetDefault("standings.base_url", "https://toyotagazooracing.com")
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Official.Quota <= 0 {
		return fmt.Errorf("official.quota must be > 0")
	}
	if c.Official.WindowSeconds <= 0 {
		return fmt.Errorf("official.window_seconds must be > 0")
	}
	if c.Official.MinSpacingMs < 0 {
		return fmt.Errorf("official.min_spacing_ms must be >= 0")
	}
	if c.Aggregator.PolitenessMs < 0 {
		return fmt.Errorf("aggregator.politeness_ms must be >= 0")
	}
	for i, ev := range c.Aggregator.Events {
		if ev.Season == 0 || ev.Round == 0 || ev.EventID == 0 || ev.Slug == "" {
			return fmt.Errorf("aggregator.events[%d] needs season, round, event_id and slug", i)
		}
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DB.Driver)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// Seconds converts a whole-second knob into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond knob into a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// RequestTimeout bounds one trigger request, long enough for a season run.
func (c Config) RequestTimeout() time.Duration {
	return Seconds(c.Server.RequestTimeoutSeconds)
}
