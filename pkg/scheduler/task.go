package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Func is a work unit that completes before it returns.
type Func func() error

// AsyncFunc is a work unit whose completion is deferred: it runs on its own
// goroutine and reports failure through its return value.
type AsyncFunc func(ctx context.Context) error

// ErrorHandler receives every failure of a work unit. The error is a
// *RunError carrying the owning job id.
type ErrorHandler func(err error)

// Hooks observe task invocations. Both callbacks are optional.
type Hooks struct {
	OnRunStart  func(jobID string)
	OnRunFinish func(jobID string, duration time.Duration, err error)
}

// Task wraps one work unit. Run never panics and never returns an error:
// all failures are routed to the task's ErrorHandler.
//
// The only implementations are the synchronous and deferred variants built
// by NewJob and NewAsyncJob.
type Task interface {
	ID() string
	Async() bool
	Run()
}

type taskBase struct {
	id      string
	onError ErrorHandler
	hooks   Hooks
	logger  *slog.Logger
}

func (t *taskBase) ID() string { return t.id }

// DefaultErrorHandler logs the failure with the owning job id and keeps going.
func DefaultErrorHandler(logger *slog.Logger) ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(err error) {
		attrs := []any{"error", err}
		var re *RunError
		if errors.As(err, &re) {
			attrs = append(attrs, "job", re.JobID, "panicked", re.Panicked)
		}
		logger.Error("job failed", attrs...)
	}
}

func (t *taskBase) begin() time.Time {
	if t.hooks.OnRunStart != nil {
		t.guard("run start hook", func() { t.hooks.OnRunStart(t.id) })
	}
	return time.Now()
}

func (t *taskBase) finish(start time.Time, err error) {
	if t.hooks.OnRunFinish != nil {
		elapsed := time.Since(start)
		t.guard("run finish hook", func() { t.hooks.OnRunFinish(t.id, elapsed, err) })
	}
	if err != nil {
		t.guard("error handler", func() { t.onError(err) })
	}
}

// guard runs a caller-supplied callback and swallows anything it raises.
func (t *taskBase) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(what+" panicked", "job", t.id, "panic", r)
		}
	}()
	fn()
}

// invoke runs fn, converting a panic into a *RunError.
func (t *taskBase) invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RunError{JobID: t.id, Err: fmt.Errorf("%v", r), Panicked: true}
		}
	}()
	if ferr := fn(); ferr != nil {
		return &RunError{JobID: t.id, Err: ferr}
	}
	return nil
}

type syncTask struct {
	taskBase
	fn Func
}

func (t *syncTask) Async() bool { return false }

func (t *syncTask) Run() {
	start := t.begin()
	t.finish(start, t.invoke(t.fn))
}

type asyncTask struct {
	taskBase
	ctx context.Context
	fn  AsyncFunc
}

func (t *asyncTask) Async() bool { return true }

// Run launches the work unit and returns without waiting for it.
func (t *asyncTask) Run() {
	start := t.begin()
	go func() {
		t.finish(start, t.invoke(func() error { return t.fn(t.ctx) }))
	}()
}
