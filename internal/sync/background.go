package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/pawsync/internal/model"
)

const (
	otelScope       = "pawsync/sync"
	metricStarted   = "pawsync.sync.tasks.started"
	metricSucceeded = "pawsync.sync.tasks.succeeded"
	metricFailed    = "pawsync.sync.tasks.failed"
)

// Task kinds run in the background.
const (
	TaskPush      = "push"
	TaskReconcile = "reconcile"
)

// Task is a detached unit of work.
type Task struct {
	Kind       string // TaskPush or TaskReconcile
	Collection string
	Key        string // document id for pushes, scope for reconciles
	Run        func(ctx context.Context) error
}

// Failure describes a background task that failed. It matches
// model.ErrBackgroundSync and the underlying cause with errors.Is.
type Failure struct {
	Kind       string
	Collection string
	Key        string
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("background %s of %s/%s: %v", f.Kind, f.Collection, f.Key, f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{model.ErrBackgroundSync, f.Err}
}

// Background runs fire-and-forget tasks. Callers never see a task's result;
// failures are logged, counted, and passed to the optional failure hook.
// Nothing is retried.
type Background struct {
	log       *slog.Logger
	onFailure func(*Failure)
	wg        sync.WaitGroup

	// OTel instruments, never nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntStarted   metric.Int64Counter
	cntSucceeded metric.Int64Counter
	cntFailed    metric.Int64Counter
}

// NewBackground creates a Background. onFailure may be nil.
func NewBackground(logger *slog.Logger, onFailure func(*Failure)) *Background {
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Background{
		log:       logger,
		onFailure: onFailure,

		tracer:       otel.Tracer(otelScope),
		cntStarted:   mustCounter(metricStarted, "Number of background sync tasks started"),
		cntSucceeded: mustCounter(metricSucceeded, "Number of background sync tasks that succeeded"),
		cntFailed:    mustCounter(metricFailed, "Number of background sync tasks that failed"),
	}
}

// Go starts task detached from ctx's cancellation and returns immediately.
func (b *Background) Go(ctx context.Context, task Task) {
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("sync.kind", task.Kind),
		attribute.String("sync.collection", task.Collection),
	)
	b.cntStarted.Add(ctx, 1, attrs)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, span := b.tracer.Start(ctx, "sync."+task.Kind, trace.WithAttributes(
			attribute.String("sync.collection", task.Collection),
			attribute.String("sync.key", task.Key),
		))
		defer span.End()

		err := task.Run(ctx)
		if err == nil {
			b.cntSucceeded.Add(ctx, 1, attrs)
			b.log.Debug("background task done", "kind", task.Kind, "collection", task.Collection, "key", task.Key)
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.cntFailed.Add(ctx, 1, attrs)

		f := &Failure{Kind: task.Kind, Collection: task.Collection, Key: task.Key, Err: err}
		b.log.Error("background task failed", "kind", task.Kind, "collection", task.Collection, "key", task.Key, "error", err)
		if b.onFailure != nil {
			b.onFailure(f)
		}
	}()
}

// Wait blocks until every task started so far has finished. It must not run
// concurrently with Go; stop the scheduler's watches first.
func (b *Background) Wait() {
	b.wg.Wait()
}
