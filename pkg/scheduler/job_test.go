package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler/schedulertest"
)

func newCountingJob(t *testing.T, clock scheduler.Timers, counter *int64, iv scheduler.Interval, opts ...scheduler.JobOption) *scheduler.Job {
	t.Helper()

	opts = append([]scheduler.JobOption{scheduler.WithTimers(clock)}, opts...)
	job, err := scheduler.NewJob(func() error {
		atomic.AddInt64(counter, 1)
		return nil
	}, iv, opts...)
	require.NoError(t, err)
	return job
}

func TestJob_New(t *testing.T) {
	job, err := scheduler.NewJob(func() error { return nil }, scheduler.Interval{Seconds: 1}, scheduler.WithID("testJob"))
	require.NoError(t, err)

	assert.Equal(t, "testJob", job.ID())
	assert.Equal(t, scheduler.StatusNotStarted, job.Status())
	assert.Equal(t, time.Second, job.Period())
	assert.False(t, job.Async())
	assert.False(t, job.RunsImmediately())
}

func TestJob_NewAsync(t *testing.T) {
	job, err := scheduler.NewAsyncJob(func(ctx context.Context) error { return nil }, scheduler.Interval{Seconds: 1},
		scheduler.WithID("asyncJob"), scheduler.RunImmediately())
	require.NoError(t, err)

	assert.Equal(t, "asyncJob", job.ID())
	assert.Equal(t, scheduler.StatusNotStarted, job.Status())
	assert.True(t, job.Async())
	assert.True(t, job.RunsImmediately())
}

func TestJob_GeneratedID(t *testing.T) {
	a, err := scheduler.NewJob(func() error { return nil }, scheduler.Interval{Seconds: 1})
	require.NoError(t, err)
	b, err := scheduler.NewJob(func() error { return nil }, scheduler.Interval{Seconds: 1}, scheduler.WithID(""))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID())
	assert.NotEmpty(t, b.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	c, err := scheduler.NewJob(func() error { return nil }, scheduler.Interval{Seconds: 1},
		scheduler.WithIDGenerator(func() string { return "fixed" }))
	require.NoError(t, err)
	assert.Equal(t, "fixed", c.ID())
}

func TestJob_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*scheduler.Job, error)
	}{
		{"nil work unit", func() (*scheduler.Job, error) {
			return scheduler.NewJob(nil, scheduler.Interval{Seconds: 1})
		}},
		{"nil async work unit", func() (*scheduler.Job, error) {
			return scheduler.NewAsyncJob(nil, scheduler.Interval{Seconds: 1})
		}},
		{"empty interval", func() (*scheduler.Job, error) {
			return scheduler.NewJob(func() error { return nil }, scheduler.Interval{})
		}},
		{"interval at max delay", func() (*scheduler.Job, error) {
			return scheduler.NewJob(func() error { return nil }, scheduler.Interval{Milliseconds: scheduler.MaxDelay})
		}},
		{"negative interval", func() (*scheduler.Job, error) {
			return scheduler.NewJob(func() error { return nil }, scheduler.Interval{Minutes: -1})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := tt.build()
			assert.Nil(t, job)
			require.Error(t, err)
			assert.ErrorIs(t, err, scheduler.ErrConfig)
		})
	}
}

func TestJob_RunsEveryPeriod(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 1})

	job.Start()
	assert.Equal(t, scheduler.StatusRunning, job.Status())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&counter))

	clock.Advance(time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&counter))

	clock.Advance(4000 * time.Millisecond)
	assert.Equal(t, int64(5), atomic.LoadInt64(&counter))

	job.Stop()
	assert.Equal(t, scheduler.StatusStopped, job.Status())

	clock.Advance(10 * time.Second)
	assert.Equal(t, int64(5), atomic.LoadInt64(&counter), "stopped job must not tick")
	assert.Equal(t, 0, clock.Armed())
}

func TestJob_DoubleStartArmsSingleTimer(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Milliseconds: 100})

	job.Start()
	job.Start()
	assert.Equal(t, 1, clock.Armed())
	assert.Equal(t, scheduler.StatusRunning, job.Status())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&counter))
}

func TestJob_RestartResetsPhase(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Milliseconds: 100})

	job.Start()
	clock.Advance(60 * time.Millisecond)
	job.Start()

	// the old timer would have fired at 100ms
	clock.Advance(60 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&counter))

	clock.Advance(40 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&counter))
}

func TestJob_StopIsIdempotent(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 1})

	job.Start()
	assert.NotPanics(t, func() {
		job.Stop()
		job.Stop()
	})
	assert.Equal(t, scheduler.StatusStopped, job.Status())
	assert.Equal(t, 0, clock.Armed())
}

func TestJob_StopBeforeStartStaysNotStarted(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 1})

	job.Stop()
	assert.Equal(t, scheduler.StatusNotStarted, job.Status())
}

func TestJob_Restart(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 1})

	job.Start()
	assert.Equal(t, scheduler.StatusRunning, job.Status())

	job.Stop()
	assert.Equal(t, scheduler.StatusStopped, job.Status())

	job.Start()
	assert.Equal(t, scheduler.StatusRunning, job.Status())

	clock.Advance(2 * time.Second)
	assert.Equal(t, int64(2), atomic.LoadInt64(&counter))

	job.Stop()
}

func TestJob_RunImmediately(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 1}, scheduler.RunImmediately())

	job.Start()
	assert.Equal(t, int64(1), atomic.LoadInt64(&counter), "first run happens inside Start")

	clock.Advance(time.Second)
	assert.Equal(t, int64(2), atomic.LoadInt64(&counter))

	// restarting fires the immediate run again
	job.Start()
	assert.Equal(t, int64(3), atomic.LoadInt64(&counter))
	assert.Equal(t, 1, clock.Armed())

	job.Stop()
}

func TestJob_RunImmediatelyCanReadStatus(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var job *scheduler.Job
	seen := make(chan scheduler.JobStatus, 1)

	job, err := scheduler.NewJob(func() error {
		seen <- job.Status()
		return nil
	}, scheduler.Interval{Seconds: 1}, scheduler.WithTimers(clock), scheduler.RunImmediately())
	require.NoError(t, err)

	job.Start()
	assert.Equal(t, scheduler.StatusNotStarted, <-seen)
	assert.Equal(t, scheduler.StatusRunning, job.Status())
}

func TestJob_FailingWorkUnitKeepsTicking(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	sink := &errorSink{}
	var calls int64

	job, err := scheduler.NewJob(func() error {
		atomic.AddInt64(&calls, 1)
		return errors.New("error")
	}, scheduler.Interval{Milliseconds: 100},
		scheduler.WithID("j1"),
		scheduler.WithTimers(clock),
		scheduler.WithErrorHandler(sink.handle),
	)
	require.NoError(t, err)

	job.Start()
	assert.NotPanics(t, func() { clock.Advance(time.Second) })

	assert.Equal(t, int64(10), atomic.LoadInt64(&calls))
	assert.Equal(t, 10, sink.count())
	assert.Equal(t, scheduler.StatusRunning, job.Status())
	job.Stop()
}

// Stop only disarms the timer. Deferred work already in flight keeps
// running and its failure still reaches the handler after the job stopped.
func TestJob_AsyncFailureAfterStopStillReported(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	sink := &errorSink{}
	release := make(chan struct{})
	var started int64

	job, err := scheduler.NewAsyncJob(func(ctx context.Context) error {
		atomic.AddInt64(&started, 1)
		<-release
		return errors.New("late failure")
	}, scheduler.Interval{Milliseconds: 100},
		scheduler.WithTimers(clock),
		scheduler.WithErrorHandler(sink.handle),
	)
	require.NoError(t, err)

	job.Start()
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt64(&started) == 1 }, time.Second, 5*time.Millisecond)

	job.Stop()
	require.Equal(t, scheduler.StatusStopped, job.Status())

	close(release)
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, scheduler.StatusStopped, job.Status())
}

func TestJob_Info(t *testing.T) {
	clock := schedulertest.NewFakeTimers()
	var counter int64
	job := newCountingJob(t, clock, &counter, scheduler.Interval{Seconds: 2}, scheduler.WithID("info"))

	job.Start()
	info := job.Info()
	assert.Equal(t, scheduler.JobInfo{
		ID:           "info",
		Status:       scheduler.StatusRunning,
		PeriodMillis: 2000,
	}, info)
}

func TestJobStatus_String(t *testing.T) {
	assert.Equal(t, "NOT_STARTED", scheduler.StatusNotStarted.String())
	assert.Equal(t, "RUNNING", scheduler.StatusRunning.String())
	assert.Equal(t, "STOPPED", scheduler.StatusStopped.String())
	assert.Equal(t, "UNKNOWN", scheduler.JobStatus(42).String())

	text, err := scheduler.StatusRunning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", string(text))

	var st scheduler.JobStatus
	require.NoError(t, st.UnmarshalText([]byte("STOPPED")))
	assert.Equal(t, scheduler.StatusStopped, st)
	assert.Error(t, st.UnmarshalText([]byte("PAUSED")))
}

func TestJob_TickerTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timers := scheduler.NewTickerTimers(ctx)
	defer func() {
		cancel()
		timers.Wait()
	}()

	var counter int64
	job := newCountingJob(t, timers, &counter, scheduler.Interval{Milliseconds: 20})

	job.Start()
	waitForAtLeast(t, &counter, 3, 2*time.Second)

	job.Stop()
	ensureNoIncrementAfterSettle(t, &counter)
}

func TestJob_CronTimers(t *testing.T) {
	timers := scheduler.NewCronTimers(nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = timers.Close(ctx)
	}()

	var counter int64
	job := newCountingJob(t, timers, &counter, scheduler.Interval{Milliseconds: 20})

	job.Start()
	waitForAtLeast(t, &counter, 3, 2*time.Second)

	job.Stop()
	ensureNoIncrementAfterSettle(t, &counter)
}

func TestCronTimers_RecoversPanics(t *testing.T) {
	timers := scheduler.NewCronTimers(nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = timers.Close(ctx)
	}()

	var counter int64
	timer := timers.Every(20*time.Millisecond, func() {
		atomic.AddInt64(&counter, 1)
		panic("raw callback panic")
	})
	defer timer.Stop()

	waitForAtLeast(t, &counter, 2, 2*time.Second)
}

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 5*time.Millisecond, "counter did not reach the expected value")
}

// ensureNoIncrementAfterSettle lets an in-flight tick land, then asserts
// the counter stays put.
func ensureNoIncrementAfterSettle(t *testing.T, counter *int64) {
	t.Helper()

	time.Sleep(30 * time.Millisecond)
	baseline := atomic.LoadInt64(counter)
	assert.Never(t, func() bool {
		return atomic.LoadInt64(counter) > baseline
	}, 150*time.Millisecond, 10*time.Millisecond, "counter increased after stop")
}
