package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Timers arms recurring callbacks. It is the only clock a Job talks to, so
// tests can swap in virtual time.
type Timers interface {
	// Every calls fn every period until the returned Timer is stopped.
	Every(period time.Duration, fn func()) Timer
}

// Timer is a handle to an armed recurring callback. Stop is idempotent.
type Timer interface {
	Stop()
}

type stopFunc func()

func (f stopFunc) Stop() { f() }

var defaultTimers = sync.OnceValue(func() *TickerTimers {
	return NewTickerTimers(context.Background())
})

// DefaultTimers returns the process-wide ticker timer service.
func DefaultTimers() Timers {
	return defaultTimers()
}

// TickerTimers runs every armed callback on its own goroutine driven by a
// time.Ticker. A slow callback delays its own next tick but no other timer.
type TickerTimers struct {
	ctx context.Context
	wg  sync.WaitGroup
}

// NewTickerTimers creates a ticker service. Cancelling ctx disarms every
// timer it has handed out.
func NewTickerTimers(ctx context.Context) *TickerTimers {
	return &TickerTimers{ctx: ctx}
}

// Every implements Timers.
func (t *TickerTimers) Every(period time.Duration, fn func()) Timer {
	ctx, cancel := context.WithCancel(t.ctx)
	ticker := time.NewTicker(period)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// a tick may race with Stop; drop it once cancelled
				if ctx.Err() != nil {
					return
				}
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()

	return stopFunc(cancel)
}

// Wait blocks until every ticker goroutine has exited. Callers stop their
// timers or cancel the service context first.
func (t *TickerTimers) Wait() {
	t.wg.Wait()
}

// CronTimers multiplexes every armed callback onto a single robfig/cron
// dispatcher. Each tick runs on a fresh goroutine, and panics are recovered
// by the cron chain.
type CronTimers struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCronTimers creates and starts a cron-backed timer service.
func NewCronTimers(logger *slog.Logger) *CronTimers {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "cron")}

	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	c.Start()

	return &CronTimers{cron: c, logger: logger}
}

// fixedPeriod is a cron.Schedule that fires every period after the previous
// activation. Unlike cron.Every it keeps sub-second precision.
type fixedPeriod time.Duration

func (p fixedPeriod) Next(t time.Time) time.Time {
	return t.Add(time.Duration(p))
}

// Every implements Timers.
func (c *CronTimers) Every(period time.Duration, fn func()) Timer {
	id := c.cron.Schedule(fixedPeriod(period), cron.FuncJob(fn))
	return stopFunc(func() { c.cron.Remove(id) })
}

// Close stops the dispatcher and waits for in-flight callbacks until ctx ends.
func (c *CronTimers) Close(ctx context.Context) error {
	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		c.logger.Warn("cron timers close deadline exceeded")
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(kv []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
