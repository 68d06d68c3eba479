package di

import (
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/metrics"
	"tripcal/internal/refresh"
	"tripcal/internal/store"
	"tripcal/internal/tz"
	"tripcal/internal/web"
)

// fetchTimeout bounds a single ICS download.
const fetchTimeout = 30 * time.Second

// BuildContainer creates and configures a dependency injection container.
// configPath is created with defaults on first run.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return LoadConfig(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(cfg *config.Config) (*zap.Logger, error) {
		if err := appLog.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return nil, err
		}
		return appLog.L(), nil
	}); err != nil {
		return nil, err
	}

	// Register analysis engine
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*tz.Analyzer, error) {
		policy, err := cfg.Policy()
		if err != nil {
			return nil, err
		}
		return tz.NewAnalyzer(cfg.Resolver(), policy, logger.Named("tz")), nil
	}); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
		return store.New(store.Options{
			Type:             cfg.Cache.Type,
			CleanupFrequency: cfg.Cache.CleanupFrequency,
			SQLitePath:       cfg.Cache.SQLitePath,
			MySQLDSN:         cfg.Cache.MySQLDSN,
		}, logger.Named("store"))
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config) *ics.Fetcher {
		return ics.NewFetcher(cfg.ICSCacheDir, fetchTimeout)
	}); err != nil {
		return nil, err
	}

	// Register refresh job
	if err := container.Provide(func(cfg *config.Config, f *ics.Fetcher, a *tz.Analyzer, repo store.Repository, m *metrics.Metrics, logger *zap.Logger) *refresh.Job {
		return refresh.NewJob(cfg, f, a, repo, m, logger.Named("refresh"))
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(cfg *config.Config, a *tz.Analyzer, repo store.Repository, job *refresh.Job, m *metrics.Metrics) *web.Server {
		return web.NewServer(cfg, a, repo, job, m)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// LoadConfig loads the YAML file, applies TRIPCAL_* environment overrides
// and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
