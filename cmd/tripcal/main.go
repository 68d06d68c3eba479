package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tripcal/internal/config"
	"tripcal/internal/di"
	appLog "tripcal/internal/log"
	"tripcal/internal/refresh"
	"tripcal/internal/store"
	"tripcal/internal/tz"
	"tripcal/internal/web"
)

const version = "0.1.0"

// refreshTimeout bounds one scheduled refresh cycle.
const refreshTimeout = 2 * time.Minute

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	pretty      bool
	events      string
	destination string
	from        string
	to          string
	home        string
}

func main() {
	flags := parseFlags()

	container, err := di.BuildContainer(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override the config file before anything is built from it.
	if err := container.Invoke(func(cfg *config.Config) {
		if flags.listen != "" {
			cfg.Listen = flags.listen
		}
		if flags.home != "" {
			cfg.HomeTimezone = flags.home
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer appLog.Sync()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once || flags.events != "" {
		err = container.Invoke(func(cfg *config.Config, a *tz.Analyzer, job *refresh.Job) error {
			return runOnce(ctx, flags, cfg, a, job, os.Stdout)
		})
	} else {
		err = container.Invoke(func(cfg *config.Config, logger *zap.Logger, srv *web.Server, job *refresh.Job, repo store.Repository) error {
			return serve(ctx, cfg, logger, srv, job, repo)
		})
	}
	if err != nil {
		appLog.Error("tripcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tripcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Analyze once, print the JSON result and exit")
	flag.BoolVar(&cfg.pretty, "pretty", false, "Indent JSON output")
	flag.StringVar(&cfg.events, "events", "", "Analyze events from a .json or .ics file instead of the configured calendars")
	flag.StringVar(&cfg.destination, "destination", "", "Trip destination city (derived from the events if empty)")
	flag.StringVar(&cfg.from, "from", "", "Travel window start (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&cfg.to, "to", "", "Travel window end (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&cfg.home, "home", "", "Home IANA timezone (overrides config if set)")

	flag.Parse()

	return cfg
}

// runOnce analyzes the -events file, or runs one refresh over the configured
// calendars, and prints the result.
func runOnce(ctx context.Context, flags flagConfig, cfg *config.Config, a *tz.Analyzer, job *refresh.Job, out io.Writer) error {
	var (
		res *tz.Result
		err error
	)
	if flags.events == "" {
		res, err = job.Run(ctx)
	} else {
		var req tz.Request
		req, err = buildRequest(flags, cfg, a.Resolver(), time.Now())
		if err == nil {
			res, err = a.Analyze(req)
		}
	}
	if err != nil {
		return err
	}
	return printResult(out, res, flags.pretty)
}

func printResult(out io.Writer, res *tz.Result, pretty bool) error {
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// serve runs the HTTP API and the scheduled refresh until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, srv *web.Server, job *refresh.Job, repo store.Repository) error {
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	logger.Info("tripcal starting",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("home_timezone", cfg.HomeTimezone),
		zap.String("refresh", cfg.RefreshCron),
		zap.Int("ics_count", len(cfg.ICS)),
		zap.String("cache", cfg.Cache.Type),
	)

	if len(cfg.ICS) > 0 {
		go func() {
			runCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
			_, _ = job.Run(runCtx)
		}()

		c, err := job.Schedule(cfg.RefreshCron, refreshTimeout)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	} else {
		logger.Info("no ICS sources configured; scheduled refresh disabled")
	}

	err := web.StartServer(ctx, srv, cfg.Listen)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("tripcal exiting")
	return nil
}
