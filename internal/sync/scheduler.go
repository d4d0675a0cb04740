package sync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reconcilable is a repository the scheduler can refresh.
type Reconcilable interface {
	Collection() string
	Stale(ctx context.Context, scope string) (bool, error)
	Reconcile(ctx context.Context, scope string) (int, error)
}

// Scheduler decides when a scope is refreshed. It keeps no state of its own;
// staleness is read from the sync metadata on every call.
type Scheduler struct {
	bg  *Background
	log *slog.Logger

	mu      sync.Mutex
	watches map[*Watch]struct{}
}

// NewScheduler creates a Scheduler that runs reconciliations on bg.
func NewScheduler(bg *Background, logger *slog.Logger) *Scheduler {
	return &Scheduler{bg: bg, log: logger, watches: make(map[*Watch]struct{})}
}

// StopAll stops every Watch still running. Once it returns no timer can
// start another background task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	running := make([]*Watch, 0, len(s.watches))
	for w := range s.watches {
		running = append(running, w)
	}
	s.mu.Unlock()

	for _, w := range running {
		w.Stop()
	}
}

// Trigger starts a detached reconciliation of scope if it is stale and
// reports whether it did. It never waits for the reconciliation.
func (s *Scheduler) Trigger(ctx context.Context, target Reconcilable, scope string) bool {
	stale, err := target.Stale(ctx, scope)
	if err != nil {
		s.log.Warn("checking staleness", "collection", target.Collection(), "scope", scope, "error", err)
		return false
	}
	if !stale {
		return false
	}
	s.reconcile(ctx, target, scope)
	return true
}

func (s *Scheduler) reconcile(ctx context.Context, target Reconcilable, scope string) {
	s.bg.Go(ctx, Task{
		Kind:       TaskReconcile,
		Collection: target.Collection(),
		Key:        scope,
		Run: func(ctx context.Context) error {
			n, err := target.Reconcile(ctx, scope)
			if err == nil {
				s.log.Debug("reconciled", "collection", target.Collection(), "scope", scope, "documents", n)
			}
			return err
		},
	})
}

// Watch is a recurring reconciliation started by [Scheduler.Every].
type Watch struct {
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	inFlight atomic.Bool
}

// Stop cancels future ticks and waits for the timer goroutine to exit. A
// reconciliation already running is left to finish. Safe to call repeatedly.
func (w *Watch) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

// Every reconciles scope once per interval until the returned Watch is
// stopped or ctx is cancelled. A tick is skipped while the previous
// reconciliation is still running.
func (s *Scheduler) Every(ctx context.Context, target Reconcilable, scope string, interval time.Duration) *Watch {
	w := &Watch{stop: make(chan struct{}), done: make(chan struct{})}

	s.mu.Lock()
	s.watches[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(w.done)
		defer func() {
			s.mu.Lock()
			delete(s.watches, w)
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.log.Info("watching scope", "collection", target.Collection(), "scope", scope, "interval", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				s.log.Info("watch stopped", "collection", target.Collection(), "scope", scope)
				return
			case <-ticker.C:
				if !w.inFlight.CompareAndSwap(false, true) {
					continue
				}
				s.bg.Go(ctx, Task{
					Kind:       TaskReconcile,
					Collection: target.Collection(),
					Key:        scope,
					Run: func(ctx context.Context) error {
						defer w.inFlight.Store(false)
						_, err := target.Reconcile(ctx, scope)
						return err
					},
				})
			}
		}
	}()
	return w
}
