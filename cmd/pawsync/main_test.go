package main

import (
	"testing"
	"time"

	syncp "github.com/njoerd114/pawsync/internal/sync"
)

func TestParseDates(t *testing.T) {
	r, err := parseDates("2026-03-01", "2026-03-04")
	if err != nil {
		t.Fatalf("parseDates: %v", err)
	}
	if got := r.End - r.Start; got != (72 * time.Hour).Milliseconds() {
		t.Errorf("range = %dms, want three nights", got)
	}

	if _, err := parseDates("2026-03-04", "2026-03-01"); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := parseDates("03/01/2026", "2026-03-04"); err == nil {
		t.Error("expected error for bad layout")
	}
}

func TestIntervalString(t *testing.T) {
	tests := map[time.Duration]string{
		syncp.IntervalNone: "never (sync once)",
		syncp.Interval15m:  "15m0s",
		syncp.Interval7d:   "7d",
		syncp.Interval30d:  "30d",
	}
	for d, want := range tests {
		if got := intervalString(d); got != want {
			t.Errorf("intervalString(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for n, want := range tests {
		if got := humanSize(n); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", n, got, want)
		}
	}
}
