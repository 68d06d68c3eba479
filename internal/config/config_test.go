package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tripcal/internal/tz"
)

func TestLoad_FirstRunCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HomeTimezone != tz.DefaultHomeTimezone || cfg.Cache.Type != "memory" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %o", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Cache.TTL != 24*time.Hour || again.BusinessHours.Start != "08:30" {
		t.Errorf("defaults did not round-trip: %+v", again)
	}
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
home_timezone: Europe/Berlin
business_hours:
  start: "09:00"
  governs: destination
cities:
  Lisbon: Europe/Lisbon
trip:
  destination: Lisbon
  start: "2025-09-01"
  end: "2025-09-05"
cache:
  type: sqlite
  ttl: 30m
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if cfg.BusinessHours.End != "17:00" || cfg.Thresholds.EarlyHour != 6 {
		t.Errorf("missing values should be defaulted: %+v", cfg)
	}
	if cfg.Cache.TTL != 30*time.Minute || cfg.Cache.CleanupFrequency != time.Hour {
		t.Errorf("unexpected cache durations: %+v", cfg.Cache)
	}

	p, err := cfg.Policy()
	if err != nil {
		t.Fatalf("policy failed: %v", err)
	}
	if p.HomeTimezone != "Europe/Berlin" || p.BusinessStart != (tz.Clock{Hour: 9}) || p.Governs != tz.DestinationGoverns {
		t.Errorf("unexpected policy: %+v", p)
	}

	r := cfg.Resolver()
	if r.Resolve("lisbon") != "Europe/Lisbon" || r.Resolve("Tokyo") != "Asia/Tokyo" {
		t.Errorf("resolver should merge built-in and configured cities")
	}

	w, ok, err := cfg.TripWindow()
	if err != nil || !ok {
		t.Fatalf("trip window: ok=%v err=%v", ok, err)
	}
	if !w.Start.Equal(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected trip start %v", w.Start)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad clock", func(c *Config) { c.BusinessHours.Start = "8am" }, "business_hours.start"},
		{"inverted hours", func(c *Config) { c.BusinessHours.End = "08:00" }, "not after start"},
		{"bad governor", func(c *Config) { c.BusinessHours.Governs = "both" }, "governs"},
		{"bad home", func(c *Config) { c.HomeTimezone = "Mars/Base" }, "home_timezone"},
		{"bad threshold", func(c *Config) { c.Thresholds.LateHour = 25 }, "late_hour"},
		{"bad cache", func(c *Config) { c.Cache.Type = "redis" }, "cache.type"},
		{"mysql without dsn", func(c *Config) { c.Cache.Type = "mysql" }, "mysql_dsn"},
		{"half trip", func(c *Config) { c.Trip.Start = "2025-09-01" }, "together"},
		{"inverted trip", func(c *Config) { c.Trip.Start, c.Trip.End = "2025-09-05", "2025-09-01" }, "trip"},
		{"bad refresh", func(c *Config) { c.RefreshCron = "every quarter hour" }, "refresh"},
		{"empty ics url", func(c *Config) { c.ICS = []ICSConfig{{ID: "x"}} }, "ics[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRIPCAL_HOME_TIMEZONE", "Asia/Seoul")
	t.Setenv("TRIPCAL_BUSINESS_HOURS_GOVERNS", "destination")
	t.Setenv("TRIPCAL_CACHE_TTL", "2h")
	t.Setenv("TRIPCAL_BASIC_AUTH_USERNAME", "admin")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	if cfg.HomeTimezone != "Asia/Seoul" || cfg.BusinessHours.Governs != "destination" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Errorf("expected 2h ttl, got %v", cfg.Cache.TTL)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Username != "admin" {
		t.Errorf("expected basic auth from env, got %+v", cfg.BasicAuth)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("unset keys must keep their values, got listen=%q", cfg.Listen)
	}
}
