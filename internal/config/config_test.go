package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Official.Quota != 200 || cfg.Official.WindowSeconds != 3600 || cfg.Official.MinSpacingMs != 500 {
		t.Fatalf("unexpected quota defaults: %+v", cfg.Official)
	}
	if cfg.Official.CacheTTLSeconds != 600 || cfg.Official.CalendarTTLSeconds != 3600 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Official)
	}
	if cfg.Aggregator.TopClass != aggregator.DefaultTopClass || cfg.Aggregator.PolitenessMs != 1000 {
		t.Fatalf("unexpected aggregator defaults: %+v", cfg.Aggregator)
	}
	if cfg.DB.Driver != DriverMemory {
		t.Fatalf("expected memory driver by default, got %q", cfg.DB.Driver)
	}
	if got := cfg.RequestTimeout(); got != 10*time.Minute {
		t.Fatalf("expected 10m request timeout, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
http:
  timeout_seconds: 45
  max_retries: 4
  user_agent: rally-bot/1.0
official:
  quota: 50
  min_spacing_ms: 0
aggregator:
  top_class: WRC2
  politeness_ms: 2500
  events:
    - season: 2026
      round: 1
      name: Monte Carlo
      event_id: 95000
      slug: rallye-monte-carlo-2026
standings:
  affiliations:
    "S. OGIER": Toyota
db:
  driver: postgres
  dsn: postgres://rally@localhost/rally
  max_conns: 8
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.HTTP.UserAgent != "rally-bot/1.0" || cfg.HTTP.MaxRetries != 4 {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.Official.Quota != 50 || cfg.Official.MinSpacingMs != 0 || cfg.Official.WindowSeconds != 3600 {
		t.Fatalf("expected official overrides merged with defaults: %+v", cfg.Official)
	}
	want := aggregator.Event{Season: 2026, Round: 1, Name: "Monte Carlo", EventID: 95000, Slug: "rallye-monte-carlo-2026"}
	if len(cfg.Aggregator.Events) != 1 || cfg.Aggregator.Events[0] != want {
		t.Fatalf("expected catalog override to be loaded: %+v", cfg.Aggregator.Events)
	}
	if cfg.Aggregator.TopClass != "WRC2" || Millis(cfg.Aggregator.PolitenessMs) != 2500*time.Millisecond {
		t.Fatalf("expected aggregator overrides: %+v", cfg.Aggregator)
	}
	if len(cfg.Standings.Affiliations) != 1 {
		t.Fatalf("expected one affiliation: %+v", cfg.Standings.Affiliations)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides: %+v", cfg.DB)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RALLY_SERVER_PORT", "7070")
	t.Setenv("RALLY_OFFICIAL_QUOTA", "10")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Official.Quota != 10 {
		t.Fatalf("expected env overrides, got port %d quota %d", cfg.Server.Port, cfg.Official.Quota)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Official: OfficialConfig{Quota: 200, WindowSeconds: 3600},
		DB:       DBConfig{Driver: DriverMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"zero quota", func(c *Config) { c.Official.Quota = 0 }, "official.quota"},
		{"zero window", func(c *Config) { c.Official.WindowSeconds = 0 }, "official.window_seconds"},
		{"negative spacing", func(c *Config) { c.Official.MinSpacingMs = -5 }, "official.min_spacing_ms"},
		{"negative politeness", func(c *Config) { c.Aggregator.PolitenessMs = -1 }, "aggregator.politeness_ms"},
		{
			"incomplete catalog event",
			func(c *Config) { c.Aggregator.Events = []aggregator.Event{{Season: 2026, Round: 1}} },
			"aggregator.events[0]",
		},
		{"postgres without dsn", func(c *Config) { c.DB.Driver = DriverPostgres }, "db.dsn"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "sqlite" }, "db.driver"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.edit(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
