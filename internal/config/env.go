package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TRIPCAL_HOME_TIMEZONE or
// TRIPCAL_BUSINESS_HOURS_START.
const EnvPrefix = "TRIPCAL"

var envKeys = []string{
	"listen",
	"home_timezone",
	"default_timezone",
	"business_hours.start",
	"business_hours.end",
	"business_hours.governs",
	"trip.destination",
	"trip.start",
	"trip.end",
	"refresh",
	"ics_cache_dir",
	"cache.type",
	"cache.ttl",
	"cache.cleanup_frequency",
	"cache.sqlite_path",
	"cache.mysql_dsn",
	"logging.level",
	"logging.format",
	"basic_auth.username",
	"basic_auth.password",
}

// ApplyEnv overlays TRIPCAL_* environment variables onto cfg. Only keys that
// are actually set in the environment are applied.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	str("listen", &cfg.Listen)
	str("home_timezone", &cfg.HomeTimezone)
	str("default_timezone", &cfg.DefaultTimezone)
	str("business_hours.start", &cfg.BusinessHours.Start)
	str("business_hours.end", &cfg.BusinessHours.End)
	str("business_hours.governs", &cfg.BusinessHours.Governs)
	str("trip.destination", &cfg.Trip.Destination)
	str("trip.start", &cfg.Trip.Start)
	str("trip.end", &cfg.Trip.End)
	str("refresh", &cfg.RefreshCron)
	str("ics_cache_dir", &cfg.ICSCacheDir)
	str("cache.type", &cfg.Cache.Type)
	str("cache.sqlite_path", &cfg.Cache.SQLitePath)
	str("cache.mysql_dsn", &cfg.Cache.MySQLDSN)
	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)

	if v.IsSet("cache.ttl") {
		if d := v.GetDuration("cache.ttl"); d > 0 {
			cfg.Cache.TTL = d
		}
	}
	if v.IsSet("cache.cleanup_frequency") {
		if d := v.GetDuration("cache.cleanup_frequency"); d > 0 {
			cfg.Cache.CleanupFrequency = d
		}
	}

	if v.IsSet("basic_auth.username") || v.IsSet("basic_auth.password") {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		str("basic_auth.username", &cfg.BasicAuth.Username)
		str("basic_auth.password", &cfg.BasicAuth.Password)
	}
}
