package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/njoerd114/pawsync/internal/config"
	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/sync"
)

// Environment variables the wizard stores secrets under.
const (
	EnvPostgresPassword = "PAWSYNC_PG_PASSWORD"
	EnvRedisPassword    = "PAWSYNC_REDIS_PASSWORD"
)

// CheckFunc verifies that the remote store described by cfg is reachable.
// cfg has its secrets already substituted.
type CheckFunc func(ctx context.Context, cfg *config.Config) error

// Wizard guides the user through writing a pawsync configuration.
type Wizard struct {
	prompt *Prompter
	check  CheckFunc
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard wired to the given I/O and logger. check may be
// nil to skip the connectivity step.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger, check CheckFunc) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		check:  check,
		logger: logger,
		w:      w,
	}
}

// Run executes the wizard and writes the config to cfgPath. It returns
// without writing if the user keeps an existing file.
func (wiz *Wizard) Run(ctx context.Context, cfgPath string) error {
	fmt.Fprintf(wiz.w, "\nWelcome to pawsync setup!\n\n")

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	fmt.Fprintf(wiz.w, "Step 1/4: Remote store\n")
	cfg := &config.Config{}
	secrets, err := wiz.remote(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 2/4: Connection check\n")
	if err := wiz.verify(ctx, cfg, secrets); err != nil {
		return err
	}

	fmt.Fprintf(wiz.w, "Step 3/4: Sync intervals\n")
	defaults := sync.DefaultPolicies()
	stay := wiz.prompt.Duration("Refresh stay updates every", defaults[model.CollStayUpdates].Interval)
	if stay != defaults[model.CollStayUpdates].Interval {
		cfg.Sync.Intervals = map[string]time.Duration{model.CollStayUpdates: stay}
	}
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 4/4: Save configuration\n")
	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if len(secrets) > 0 {
		if err := config.WriteEnv(cfgPath, secrets); err != nil {
			return fmt.Errorf("writing secrets: %w", err)
		}
	}
	wiz.logger.Info("config written", "path", cfgPath, "driver", cfg.Remote.Driver)
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)
	return nil
}

// remote fills cfg.Remote and returns the secrets referenced from it.
func (wiz *Wizard) remote(cfg *config.Config) (map[string]string, error) {
	drivers := []string{config.DriverPostgres, config.DriverRedis, config.DriverMemory}
	idx, err := wiz.prompt.Select("Where is the authoritative data stored?", drivers)
	if err != nil {
		return nil, fmt.Errorf("selecting driver: %w", err)
	}
	cfg.Remote.Driver = drivers[idx]

	switch cfg.Remote.Driver {
	case config.DriverPostgres:
		host := wiz.prompt.String("PostgreSQL host:port", "localhost:5432")
		db := wiz.prompt.String("Database", "pawsync")
		user := wiz.prompt.String("User", "pawsync")
		pw := wiz.prompt.Secret("Password")
		cfg.Remote.DSN = postgresDSN(host, db, user)
		return map[string]string{EnvPostgresPassword: pw}, nil

	case config.DriverRedis:
		cfg.Remote.Redis.Address = wiz.prompt.String("Redis address", "localhost:6379")
		if !wiz.prompt.Confirm("Does the server require a password?", false) {
			return nil, nil
		}
		pw := wiz.prompt.Secret("Password")
		cfg.Remote.Redis.Password = "${" + EnvRedisPassword + "}"
		return map[string]string{EnvRedisPassword: pw}, nil
	}

	fmt.Fprintf(wiz.w, "  The memory store keeps data for a single process only.\n")
	return nil, nil
}

func (wiz *Wizard) verify(ctx context.Context, cfg *config.Config, secrets map[string]string) error {
	if wiz.check == nil || cfg.Remote.Driver == config.DriverMemory {
		fmt.Fprintf(wiz.w, "  (skipped)\n\n")
		return nil
	}

	probe := *cfg
	probe.Remote.DSN = os.Expand(cfg.Remote.DSN, lookup(secrets))
	probe.Remote.Redis.Password = os.Expand(cfg.Remote.Redis.Password, lookup(secrets))

	fmt.Fprintf(wiz.w, "  Connecting to %s...", cfg.Remote.Driver)
	if err := wiz.check(ctx, &probe); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		wiz.logger.Debug("connection check failed", "driver", cfg.Remote.Driver, "error", err)
		return fmt.Errorf("cannot reach the %s store: %w\n\n  Check the settings, then try again", cfg.Remote.Driver, err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")
	return nil
}

// --- helpers -----------------------------------------------------------------

// postgresDSN builds a URL whose password is a ${VAR} reference resolved from
// the .env file at load time.
func postgresDSN(host, db, user string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(user),
		Host:   host,
		Path:   "/" + db,
	}
	// Inserted after encoding so the braces are not escaped.
	return fmt.Sprintf("postgres://%s:${%s}@%s%s", u.User.String(), EnvPostgresPassword, u.Host, u.EscapedPath())
}

func lookup(vars map[string]string) func(string) string {
	return func(k string) string {
		if v, ok := vars[k]; ok {
			return v
		}
		return os.Getenv(k)
	}
}
