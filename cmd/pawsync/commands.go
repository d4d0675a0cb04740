package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/pawsync/internal/booking"
	"github.com/njoerd114/pawsync/internal/config"
	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/setup"
	syncp "github.com/njoerd114/pawsync/internal/sync"
)

const dateLayout = "2006-01-02"

// --- Subcommands -------------------------------------------------------------

// runRead prints a scope read through the local cache.
func runRead(args []string) error {
	fs, common := newFlagSet("read")
	collection := fs.String("collection", "", "collection name")
	scope := fs.String("scope", "", "scope key, e.g. an owner or pet id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *collection == "" || *scope == "" {
		return errors.New("read: --collection and --scope are required")
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		repo, err := a.repos.ByName(*collection)
		if err != nil {
			return err
		}
		docs, err := repo.ReadDocuments(ctx, *scope)
		if err != nil {
			return err
		}
		return printJSON(documentsJSON(docs))
	})
}

// runReconcile pulls a scope from the remote store into the cache.
func runReconcile(args []string) error {
	fs, common := newFlagSet("reconcile")
	collection := fs.String("collection", "", "collection name")
	scope := fs.String("scope", "", "scope key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *collection == "" || *scope == "" {
		return errors.New("reconcile: --collection and --scope are required")
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		repo, err := a.repos.ByName(*collection)
		if err != nil {
			return err
		}
		n, err := repo.Reconcile(ctx, *scope)
		if err != nil {
			return err
		}
		a.log.Info("reconcile complete", "collection", *collection, "scope", *scope, "mode", repo.Policy().Mode, "documents", n)
		return nil
	})
}

// runBook creates a booking through the coordinator.
func runBook(args []string) error {
	fs, common := newFlagSet("book")
	unit := fs.String("unit", "", "bookable unit id")
	owner := fs.String("owner", "", "owner id")
	pet := fs.String("pet", "", "pet id")
	start := fs.String("start", "", "first night, YYYY-MM-DD")
	end := fs.String("end", "", "departure day, YYYY-MM-DD")
	amount := fs.Int64("amount-cents", 0, "price of the stay in cents")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dates, err := parseDates(*start, *end)
	if err != nil {
		return fmt.Errorf("book: %w", err)
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		b, err := a.coordinator.CreateBooking(ctx, booking.Request{
			UnitID:      *unit,
			OwnerID:     *owner,
			PetID:       *pet,
			Dates:       dates,
			AmountCents: *amount,
		})
		if errors.Is(err, model.ErrCapacityExhausted) {
			return fmt.Errorf("unit %q is fully booked: %w", *unit, err)
		}
		if err != nil {
			return err
		}
		return printJSON(b)
	})
}

// runTransition moves a booking to another status.
func runTransition(args []string) error {
	fs, common := newFlagSet("transition")
	id := fs.String("booking", "", "booking id")
	to := fs.String("to", "", "target status: confirmed, checked-in, checked-out, cancelled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := model.ParseBookingStatus(*to)
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	if *id == "" {
		return errors.New("transition: --booking is required")
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		b, err := a.lifecycle.Transition(ctx, *id, status)
		if err != nil {
			return err
		}
		return printJSON(b)
	})
}

// runAddUnit adds a bookable unit with a server-assigned id. This is the
// manager edit path; the unit starts fully available.
func runAddUnit(args []string) error {
	fs, common := newFlagSet("add-unit")
	kennel := fs.String("kennel", "", "kennel id")
	name := fs.String("name", "", "unit name, e.g. \"Run 1\"")
	capacity := fs.Int("capacity", 1, "number of slots")
	price := fs.Int64("price-cents", 0, "price per night in cents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *kennel == "" || *name == "" {
		return errors.New("add-unit: --kennel and --name are required")
	}
	if *capacity < 1 {
		return fmt.Errorf("add-unit: capacity must be at least 1, got %d", *capacity)
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		id, err := a.remote.Add(ctx, model.CollBookableUnits, map[string]any{
			"kennelId":           *kennel,
			"name":               *name,
			"capacity":           *capacity,
			"available":          *capacity,
			"pricePerNightCents": *price,
		})
		if err != nil {
			return fmt.Errorf("adding unit: %w", err)
		}
		fmt.Println(id)
		return nil
	})
}

// runWatchStay keeps a booking's stay updates fresh until interrupted.
func runWatchStay(args []string) error {
	fs, common := newFlagSet("watch-stay")
	id := fs.String("booking", "", "booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("watch-stay: --booking is required")
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		updates, err := a.repos.StayUpdates.ReadScoped(ctx, *id)
		if err != nil {
			return err
		}
		a.log.Info("stay view opened", "booking_id", *id, "updates", len(updates))

		w := a.repos.WatchStay(ctx, *id)
		<-ctx.Done()
		w.Stop()
		a.log.Info("stay view closed", "booking_id", *id)
		return nil
	})
}

// runStatus shows the cache file and the sync policy of each collection,
// plus last sync times when --scope is given.
func runStatus(args []string) error {
	fs, common := newFlagSet("status")
	scope := fs.String("scope", "", "scope key to show last sync times for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(common, func(ctx context.Context, a *app) error {
		fmt.Printf("Remote:  %s\n", a.cfg.Remote.Driver)
		fmt.Printf("Cache:   %s", a.local.Path())
		if info, err := os.Stat(a.local.Path()); err == nil {
			fmt.Printf(" (%s)", humanSize(info.Size()))
		} else {
			fmt.Print(" (not created yet)")
		}
		fmt.Println()
		fmt.Println()

		for _, name := range a.repos.Names() {
			repo, _ := a.repos.ByName(name)
			p := repo.Policy()
			line := fmt.Sprintf("  %-16s %-12s every %s", name, p.Mode, intervalString(p.Interval))
			if *scope != "" {
				last, err := syncp.LastSync(ctx, a.local, name, *scope)
				if err != nil {
					return err
				}
				line += "  last sync " + lastSyncString(last)
			}
			fmt.Println(line)
		}
		return nil
	})
}

// runInit walks the user through writing the config file.
func runInit(args []string) error {
	fs, common := newFlagSet("init")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	level := slog.LevelWarn
	if *common.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	wiz := setup.NewWizard(os.Stdin, os.Stdout, logger, checkRemote)
	return wiz.Run(ctx, *common.config)
}

// checkRemote opens and closes the configured remote store.
func checkRemote(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rem, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	return rem.Close()
}

// --- helpers -----------------------------------------------------------------

// withApp opens the app, runs fn with a context cancelled on SIGINT/SIGTERM,
// and waits for background work before returning.
func withApp(common commonFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := openApp(ctx, common)
	if err != nil {
		return err
	}
	if err := fn(ctx, a); err != nil {
		_ = a.finish()
		return err
	}
	return a.finish()
}

func parseDates(start, end string) (model.DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("--start %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("--end %q: %w", end, err)
	}
	r := model.DateRange{Start: model.Millis(s), End: model.Millis(e)}
	return r, r.Validate()
}

type documentJSON struct {
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
	Fields    map[string]any `json:"fields"`
}

func documentsJSON(docs []model.Document) []documentJSON {
	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = documentJSON{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, Fields: d.Fields}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intervalString(d time.Duration) string {
	if d == syncp.IntervalNone {
		return "never (sync once)"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return d.String()
}

func lastSyncString(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return model.FromMillis(ms).Local().Format(time.DateTime)
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
