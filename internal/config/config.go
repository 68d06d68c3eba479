package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"tripcal/internal/model"
	"tripcal/internal/tz"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// BusinessHoursConfig is the working-day window. Governs selects whose wall
// clock it is read on: "home" or "destination".
type BusinessHoursConfig struct {
	Start   string `yaml:"start" json:"start"`
	End     string `yaml:"end" json:"end"`
	Governs string `yaml:"governs" json:"governs"`
}

// ThresholdConfig holds the destination-local hour cutoffs.
type ThresholdConfig struct {
	EarlyHour     int `yaml:"early_hour" json:"early_hour"`
	VeryEarlyHour int `yaml:"very_early_hour" json:"very_early_hour"`
	LateHour      int `yaml:"late_hour" json:"late_hour"`
	VeryLateHour  int `yaml:"very_late_hour" json:"very_late_hour"`
}

// TripConfig pins the trip the refresh job analyzes. Empty fields are
// derived from the calendar.
type TripConfig struct {
	Destination string `yaml:"destination" json:"destination"`
	Start       string `yaml:"start" json:"start"`
	End         string `yaml:"end" json:"end"`
}

// CacheConfig selects the analysis result store.
type CacheConfig struct {
	Type             string        `yaml:"type" json:"type"`
	TTL              time.Duration `yaml:"ttl" json:"ttl"`
	CleanupFrequency time.Duration `yaml:"cleanup_frequency" json:"cleanup_frequency"`
	SQLitePath       string        `yaml:"sqlite_path" json:"sqlite_path"`
	MySQLDSN         string        `yaml:"mysql_dsn" json:"mysql_dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// HomeTimezone is the traveler's IANA zone.
	HomeTimezone string `yaml:"home_timezone" json:"home_timezone"`

	BusinessHours  BusinessHoursConfig `yaml:"business_hours" json:"business_hours"`
	Thresholds     ThresholdConfig     `yaml:"thresholds" json:"thresholds"`
	TravelKeywords []string            `yaml:"travel_keywords" json:"travel_keywords"`

	// Cities extends or overrides the built-in city table.
	Cities map[string]string `yaml:"cities,omitempty" json:"cities,omitempty"`
	// DefaultTimezone is used for destinations the city table does not know.
	DefaultTimezone string `yaml:"default_timezone" json:"default_timezone"`

	Trip TripConfig `yaml:"trip" json:"trip"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`
	// HorizonDays bounds the analysis when no trip dates are known.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
	// ExpandLimit caps recurrence expansion per event.
	ExpandLimit int    `yaml:"expand_limit" json:"expand_limit"`
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	p := tz.DefaultPolicy()
	return &Config{
		Listen:       "127.0.0.1:8080",
		HomeTimezone: tz.DefaultHomeTimezone,
		BusinessHours: BusinessHoursConfig{
			Start:   "08:30",
			End:     "17:00",
			Governs: "home",
		},
		Thresholds: ThresholdConfig{
			EarlyHour:     p.EarlyHour,
			VeryEarlyHour: p.VeryEarlyHour,
			LateHour:      p.LateHour,
			VeryLateHour:  p.VeryLateHour,
		},
		TravelKeywords:  append([]string(nil), p.TravelKeywords...),
		DefaultTimezone: tz.DefaultFallbackTimezone,
		RefreshCron:     "*/15 * * * *",
		HorizonDays:     7,
		ExpandLimit:     5000,
		ICSCacheDir:     "./var/ics-cache",
		ICS:             []ICSConfig{},
		Cache: CacheConfig{
			Type:             "memory",
			TTL:              24 * time.Hour,
			CleanupFrequency: time.Hour,
			SQLitePath:       "./var/tripcal.db",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.HomeTimezone == "" {
		c.HomeTimezone = d.HomeTimezone
	}
	if c.BusinessHours.Start == "" {
		c.BusinessHours.Start = d.BusinessHours.Start
	}
	if c.BusinessHours.End == "" {
		c.BusinessHours.End = d.BusinessHours.End
	}
	if c.BusinessHours.Governs == "" {
		c.BusinessHours.Governs = d.BusinessHours.Governs
	}
	// An all-zero block means the section was omitted.
	if c.Thresholds == (ThresholdConfig{}) {
		c.Thresholds = d.Thresholds
	}
	if c.TravelKeywords == nil {
		c.TravelKeywords = d.TravelKeywords
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = d.DefaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.ExpandLimit <= 0 {
		c.ExpandLimit = d.ExpandLimit
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = d.ICSCacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Cache.Type == "" {
		c.Cache.Type = d.Cache.Type
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Cache.CleanupFrequency <= 0 {
		c.Cache.CleanupFrequency = d.Cache.CleanupFrequency
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = d.Cache.SQLitePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("default_timezone %q: %w", c.DefaultTimezone, err)
	}
	switch c.Cache.Type {
	case "memory", "sqlite", "mysql":
	default:
		return fmt.Errorf("cache.type %q: expected memory, sqlite or mysql", c.Cache.Type)
	}
	if c.Cache.Type == "mysql" && c.Cache.MySQLDSN == "" {
		return errors.New("cache.mysql_dsn is required for the mysql cache")
	}
	if (c.Trip.Start == "") != (c.Trip.End == "") {
		return errors.New("trip.start and trip.end must be set together")
	}
	if _, _, err := c.TripWindow(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("refresh %q: %w", c.RefreshCron, err)
	}
	for i, src := range c.ICS {
		if src.URL == "" {
			return fmt.Errorf("ics[%d]: url is empty", i)
		}
	}
	return nil
}

// Policy converts the config into the engine's policy.
func (c *Config) Policy() (tz.Policy, error) {
	p := tz.DefaultPolicy()

	if _, err := time.LoadLocation(c.HomeTimezone); err != nil {
		return p, fmt.Errorf("home_timezone %q: %w", c.HomeTimezone, err)
	}
	p.HomeTimezone = c.HomeTimezone

	start, err := tz.ParseClock(c.BusinessHours.Start)
	if err != nil {
		return p, fmt.Errorf("business_hours.start: %w", err)
	}
	end, err := tz.ParseClock(c.BusinessHours.End)
	if err != nil {
		return p, fmt.Errorf("business_hours.end: %w", err)
	}
	if end.Minutes() <= start.Minutes() {
		return p, fmt.Errorf("business_hours: end %s is not after start %s", c.BusinessHours.End, c.BusinessHours.Start)
	}
	gov, err := tz.ParseGovernor(c.BusinessHours.Governs)
	if err != nil {
		return p, fmt.Errorf("business_hours.governs: %w", err)
	}
	p.BusinessStart, p.BusinessEnd, p.Governs = start, end, gov

	th := c.Thresholds
	for name, h := range map[string]int{
		"early_hour": th.EarlyHour, "very_early_hour": th.VeryEarlyHour,
		"late_hour": th.LateHour, "very_late_hour": th.VeryLateHour,
	} {
		if h < 0 || h > 23 {
			return p, fmt.Errorf("thresholds.%s %d: must be 0-23", name, h)
		}
	}
	if th.VeryEarlyHour > th.EarlyHour || th.LateHour > th.VeryLateHour {
		return p, errors.New("thresholds: expected very_early_hour <= early_hour and late_hour <= very_late_hour")
	}
	p.EarlyHour, p.VeryEarlyHour = th.EarlyHour, th.VeryEarlyHour
	p.LateHour, p.VeryLateHour = th.LateHour, th.VeryLateHour

	p.TravelKeywords = append([]string(nil), c.TravelKeywords...)
	return p, nil
}

// Resolver builds the city resolver: built-in cities overlaid with Cities.
func (c *Config) Resolver() *tz.Resolver {
	cities := tz.DefaultCities()
	for k, v := range c.Cities {
		cities[k] = v
	}
	return tz.NewResolver(cities, c.DefaultTimezone)
}

// TripWindow returns the configured trip window. ok is false when no dates
// are configured.
func (c *Config) TripWindow() (w model.TravelWindow, ok bool, err error) {
	if c.Trip.Start == "" || c.Trip.End == "" {
		return model.TravelWindow{}, false, nil
	}
	w, err = model.ParseWindow(c.Trip.Start, c.Trip.End)
	if err != nil {
		return model.TravelWindow{}, false, fmt.Errorf("trip: %w", err)
	}
	return w, true, nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults (0600) on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tripcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
