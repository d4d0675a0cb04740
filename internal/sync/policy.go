package sync

import (
	"fmt"
	"time"

	"github.com/njoerd114/pawsync/internal/model"
)

// Staleness intervals.
const (
	IntervalNone = time.Duration(0) // never stale once synced
	Interval15m  = 15 * time.Minute
	Interval24h  = 24 * time.Hour
	Interval7d   = 7 * 24 * time.Hour
	Interval30d  = 30 * 24 * time.Hour
)

// Mode selects what a reconciliation fetches.
type Mode int

const (
	// ModeFull re-fetches the whole scope and upserts it (remote wins).
	ModeFull Mode = iota
	// ModeIncremental fetches only documents created after the newest one
	// already cached. Used for append-only collections.
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Policy governs how stale a cached scope may become.
type Policy struct {
	Interval time.Duration
	Mode     Mode
	// BlockOnEmpty makes a read of an empty scope fetch from the remote
	// store before returning.
	BlockOnEmpty bool
}

// Stale reports whether a scope last synced at lastMs needs reconciling at
// nowMs. lastMs == 0 means never synced.
func (p Policy) Stale(lastMs, nowMs int64) bool {
	if lastMs == 0 {
		return true
	}
	if p.Interval <= 0 {
		return false
	}
	return nowMs-lastMs > p.Interval.Milliseconds()
}

// DefaultPolicies returns the per-collection policies.
func DefaultPolicies() map[string]Policy {
	full := func(interval time.Duration) Policy {
		return Policy{Interval: interval, Mode: ModeFull, BlockOnEmpty: true}
	}
	return map[string]Policy{
		model.CollPets:           full(Interval24h),
		model.CollVaccines:       full(Interval30d),
		model.CollMedicalRecords: full(Interval24h),
		model.CollKennels:        full(Interval7d),
		model.CollBookableUnits:  full(Interval15m),
		model.CollBookings:       full(Interval15m),
		model.CollStayUpdates:    full(Interval15m),
		// Sync once, then only explicit incremental syncs.
		model.CollInvoices: {Interval: IntervalNone, Mode: ModeIncremental, BlockOnEmpty: true},
	}
}

// WithIntervals returns a copy of policies with the intervals in overrides
// applied. Unknown collection names are an error.
func WithIntervals(policies map[string]Policy, overrides map[string]time.Duration) (map[string]Policy, error) {
	out := make(map[string]Policy, len(policies))
	for name, p := range policies {
		out[name] = p
	}
	for name, d := range overrides {
		p, ok := out[name]
		if !ok {
			return nil, fmt.Errorf("sync policy override for unknown collection %q", name)
		}
		if d < 0 {
			return nil, fmt.Errorf("sync policy for %q: interval must not be negative, got %s", name, d)
		}
		p.Interval = d
		out[name] = p
	}
	return out, nil
}
