// Package scheduler runs units of work at a fixed interval.
//
// Three pieces cooperate:
//   - a Task wraps one work unit and routes every failure (returned error
//     or panic) to an ErrorHandler, so nothing escapes a tick;
//   - a Job owns a Task, a period built from an Interval and one recurring
//     Timer, and implements the NOT_STARTED / RUNNING / STOPPED lifecycle;
//   - a Scheduler is a registry of jobs keyed by id with targeted and bulk
//     lifecycle calls and an aggregate Status.
//
// Basic usage:
//
//	s := scheduler.New(scheduler.WithSchedulerLogger(logger))
//
//	job, err := scheduler.NewJob(func() error {
//		return sync()
//	}, scheduler.Interval{Minutes: 5}, scheduler.WithID("sync"), scheduler.RunImmediately())
//	if err != nil {
//		return err
//	}
//	if err := s.AddJob(job); err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Deferred work units run on their own goroutine each tick:
//
//	job, err := scheduler.NewAsyncJob(func(ctx context.Context) error {
//		return client.Refresh(ctx)
//	}, scheduler.Interval{Seconds: 30})
//
// Timing comes from a Timers implementation. DefaultTimers uses a
// time.Ticker per job; NewCronTimers multiplexes all jobs onto a single
// robfig/cron dispatcher; schedulertest.FakeTimers gives virtual time for
// tests.
//
// Guarantees: a job never has two timers armed at once, and a job fires at
// least every period with best-effort accuracy. Stopping a job does not
// cancel deferred work already in flight, whose failure may still reach the
// error handler afterwards.
package scheduler
