package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/njoerd114/pawsync/internal/booking"
	"github.com/njoerd114/pawsync/internal/config"
	"github.com/njoerd114/pawsync/internal/localstore"
	"github.com/njoerd114/pawsync/internal/remote"
	"github.com/njoerd114/pawsync/internal/remote/memstore"
	"github.com/njoerd114/pawsync/internal/remote/pgstore"
	"github.com/njoerd114/pawsync/internal/remote/redisstore"
	"github.com/njoerd114/pawsync/internal/retry"
	syncp "github.com/njoerd114/pawsync/internal/sync"
	"github.com/njoerd114/pawsync/internal/telemetry"
)

// commonFlags registers the flags every subcommand shares.
type commonFlags struct {
	config  *string
	verbose *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	return fs, commonFlags{
		config:  fs.String("config", defaultCfg, "path to config.yaml"),
		verbose: fs.Bool("verbose", false, "enable debug logging"),
	}
}

// app is everything a subcommand needs, opened from the config file.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	local  *localstore.Lazy
	remote remote.Store

	engine      *syncp.Engine
	repos       *syncp.Repositories
	coordinator *booking.Coordinator
	lifecycle   *booking.Lifecycle

	failures atomic.Int64
	closers  []func() error
}

// openApp loads the config and wires logging, telemetry, both stores, the
// sync engine and the booking services.
func openApp(ctx context.Context, flags commonFlags) (*app, error) {
	cfg, err := config.Load(*flags.config)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", *flags.config, err)
	}

	a := &app{cfg: cfg}
	a.log = a.newLogger(*flags.verbose)
	slog.SetDefault(a.log)
	a.log.Debug("config loaded", "path", *flags.config, "driver", cfg.Remote.Driver)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			SampleRatio:  cfg.Telemetry.SampleRatio,
			Headers:      cfg.Telemetry.Headers,
		})
		if err != nil {
			a.log.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.log.Debug("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.closers = append(a.closers, func() error {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return shutdownTel(flushCtx)
			})
		}
	}

	// --- Local store ---------------------------------------------------------

	path := cfg.LocalStore.Path
	if path == "" {
		if path, err = localstore.DefaultPath(); err != nil {
			a.close()
			return nil, fmt.Errorf("resolving cache path: %w", err)
		}
	}
	a.local = localstore.NewLazy(path)
	a.closers = append(a.closers, a.local.Close)

	// --- Remote store --------------------------------------------------------

	rem, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		a.close()
		return nil, err
	}
	a.remote = rem
	a.closers = append(a.closers, rem.Close)

	// --- Sync engine and booking services ------------------------------------

	policies, err := syncp.WithIntervals(syncp.DefaultPolicies(), cfg.Sync.Intervals)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.engine = syncp.NewEngine(a.local, rem, a.log, syncp.WithFailureHook(func(*syncp.Failure) {
		a.failures.Add(1)
	}))
	a.repos = syncp.NewRepositories(a.engine, policies)

	rp := retry.Policy{Attempts: cfg.Booking.MaxAttempts, BaseDelay: cfg.Booking.BaseDelay, MaxDelay: cfg.Booking.MaxDelay}
	a.coordinator = booking.NewCoordinator(rem, a.local, rp, a.log)
	a.lifecycle = booking.NewLifecycle(rem, a.local, rp, a.log)
	return a, nil
}

// finish waits for background work, closes everything, and reports
// background failures as an error so the exit status reflects them.
func (a *app) finish() error {
	a.engine.Wait()
	a.close()
	if n := a.failures.Load(); n > 0 {
		return fmt.Errorf("%d background sync task(s) failed, see log", n)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("shutdown", "error", err)
		}
	}
	a.closers = nil
}

// newLogger builds the text handler, writing to a rotated file when
// log.file is set.
func (a *app) newLogger(verbose bool) *slog.Logger {
	level := a.cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if a.cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   a.cfg.Log.File,
			MaxSize:    a.cfg.Log.MaxSizeMB,
			MaxBackups: a.cfg.Log.MaxBackups,
			MaxAge:     a.cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		w = lj
		a.closers = append(a.closers, lj.Close)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openRemote(ctx context.Context, cfg config.RemoteConfig) (remote.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres remote store: %w", err)
		}
		return s, nil
	case config.DriverRedis:
		s, err := redisstore.Open(ctx, redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis remote store: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		return memstore.New(), nil
	}
	return nil, errors.New("no remote driver configured")
}
