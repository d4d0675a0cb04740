package sync

import (
	"log/slog"
	"time"
)

// Engine holds what every repository shares: the two stores, the
// background runner, the scheduler, and the clock. Create one with
// [NewEngine] and build repositories on it with [NewRepository] or
// [NewRepositories].
type Engine struct {
	local     LocalStore
	remote    RemoteStore
	bg        *Background
	scheduler *Scheduler
	log       *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	now       func() time.Time
	onFailure func(*Failure)
}

// WithClock overrides the clock used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithFailureHook registers fn to observe background failures.
func WithFailureHook(fn func(*Failure)) Option {
	return func(o *engineOptions) { o.onFailure = fn }
}

// NewEngine creates an Engine over the given stores.
func NewEngine(local LocalStore, remote RemoteStore, logger *slog.Logger, opts ...Option) *Engine {
	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	bg := NewBackground(logger, o.onFailure)
	return &Engine{
		local:     local,
		remote:    remote,
		bg:        bg,
		scheduler: NewScheduler(bg, logger),
		log:       logger,
		now:       o.now,
	}
}

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// Wait stops every running [Watch] and then blocks until all background
// pushes and reconciliations have finished. Callers must not start new reads
// or writes on the engine while Wait runs.
func (e *Engine) Wait() {
	e.scheduler.StopAll()
	e.bg.Wait()
}

func (e *Engine) nowMillis() int64 { return e.now().UnixMilli() }
