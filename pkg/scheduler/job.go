package scheduler

import (
	"context"
	"encoding"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus int

const (
	// StatusNotStarted is the state of a freshly built job.
	StatusNotStarted JobStatus = iota
	// StatusRunning means a recurring timer is armed.
	StatusRunning
	// StatusStopped means the job was started and later stopped.
	StatusStopped
)

var (
	_ fmt.Stringer             = JobStatus(0)
	_ encoding.TextMarshaler   = JobStatus(0)
	_ encoding.TextUnmarshaler = (*JobStatus)(nil)
)

func (s JobStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusRunning:
		return "RUNNING"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status as its String form.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the String form.
func (s *JobStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NOT_STARTED":
		*s = StatusNotStarted
	case "RUNNING":
		*s = StatusRunning
	case "STOPPED":
		*s = StatusStopped
	default:
		return fmt.Errorf("scheduler: unknown job status %q", b)
	}
	return nil
}

// jobState is a closed set of variants. Only running carries a timer, so a
// live timer and StatusRunning cannot disagree.
type jobState interface {
	status() JobStatus
}

type notStarted struct{}

type running struct {
	timer Timer
}

type stopped struct{}

func (notStarted) status() JobStatus { return StatusNotStarted }
func (running) status() JobStatus    { return StatusRunning }
func (stopped) status() JobStatus    { return StatusStopped }

// IDGenerator supplies job ids when none is given.
type IDGenerator func() string

// JobOption configures a Job.
type JobOption func(*jobConfig)

type jobConfig struct {
	id             string
	runImmediately bool
	onError        ErrorHandler
	hooks          Hooks
	logger         *slog.Logger
	timers         Timers
	ctx            context.Context
	newID          IDGenerator
}

// WithID sets the job id. An empty id falls back to the id generator.
func WithID(id string) JobOption {
	return func(c *jobConfig) { c.id = id }
}

// RunImmediately makes Start invoke the task once before arming the timer.
func RunImmediately() JobOption {
	return func(c *jobConfig) { c.runImmediately = true }
}

// WithErrorHandler replaces the default logging error handler.
func WithErrorHandler(h ErrorHandler) JobOption {
	return func(c *jobConfig) { c.onError = h }
}

// WithHooks installs invocation hooks.
func WithHooks(h Hooks) JobOption {
	return func(c *jobConfig) { c.hooks = h }
}

// WithLogger sets the logger used by the job and its default error handler.
func WithLogger(l *slog.Logger) JobOption {
	return func(c *jobConfig) { c.logger = l }
}

// WithTimers sets the timer service. Defaults to DefaultTimers.
func WithTimers(t Timers) JobOption {
	return func(c *jobConfig) { c.timers = t }
}

// WithContext sets the context handed to deferred work units.
func WithContext(ctx context.Context) JobOption {
	return func(c *jobConfig) { c.ctx = ctx }
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(g IDGenerator) JobOption {
	return func(c *jobConfig) { c.newID = g }
}

// Job invokes its Task every period until stopped. A Job may be started and
// stopped any number of times; there is no terminal state.
type Job struct {
	id             string
	period         time.Duration
	runImmediately bool
	task           Task
	timers         Timers
	logger         *slog.Logger

	mu    sync.Mutex
	state jobState
}

// NewJob builds a job around a synchronous work unit.
func NewJob(fn Func, iv Interval, opts ...JobOption) (*Job, error) {
	if fn == nil {
		return nil, &ConfigError{Field: "fn", Reason: "work unit is required"}
	}
	return newJob(iv, opts, func(base taskBase, _ context.Context) Task {
		return &syncTask{taskBase: base, fn: fn}
	})
}

// NewAsyncJob builds a job around a deferred work unit. Each tick launches
// fn on a new goroutine without waiting for earlier ones to finish.
func NewAsyncJob(fn AsyncFunc, iv Interval, opts ...JobOption) (*Job, error) {
	if fn == nil {
		return nil, &ConfigError{Field: "fn", Reason: "work unit is required"}
	}
	return newJob(iv, opts, func(base taskBase, ctx context.Context) Task {
		return &asyncTask{taskBase: base, ctx: ctx, fn: fn}
	})
}

func newJob(iv Interval, opts []JobOption, build func(taskBase, context.Context) Task) (*Job, error) {
	cfg := jobConfig{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = cfg.newID()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.timers == nil {
		cfg.timers = DefaultTimers()
	}
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	if cfg.onError == nil {
		cfg.onError = DefaultErrorHandler(cfg.logger)
	}

	period, err := iv.Duration()
	if err != nil {
		return nil, fmt.Errorf("create job %q: %w", cfg.id, err)
	}

	task := build(taskBase{
		id:      cfg.id,
		onError: cfg.onError,
		hooks:   cfg.hooks,
		logger:  cfg.logger,
	}, cfg.ctx)

	return &Job{
		id:             cfg.id,
		period:         period,
		runImmediately: cfg.runImmediately,
		task:           task,
		timers:         cfg.timers,
		logger:         cfg.logger,
		state:          notStarted{},
	}, nil
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Period returns the resolved interval between invocations.
func (j *Job) Period() time.Duration { return j.period }

// Async reports whether the job wraps a deferred work unit.
func (j *Job) Async() bool { return j.task.Async() }

// RunsImmediately reports whether Start invokes the task before arming.
func (j *Job) RunsImmediately() bool { return j.runImmediately }

// Status returns the current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state.status()
}

// Start arms the recurring timer, restarting the job if it is already
// running. With RunImmediately the task is invoked once first, outside the
// job lock, so the work unit may read the job's status.
func (j *Job) Start() {
	if j.runImmediately {
		j.mu.Lock()
		j.disarmLocked()
		j.mu.Unlock()

		j.task.Run()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	// a concurrent Start may have armed a timer meanwhile
	j.disarmLocked()
	j.state = running{timer: j.timers.Every(j.period, j.task.Run)}

	j.logger.Debug("job started", "job", j.id, "period", j.period)
}

// Stop cancels the recurring timer. It does not wait for deferred work
// already in flight. Stopping a job that is not running is a no-op.
func (j *Job) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.disarmLocked() {
		j.logger.Debug("job stopped", "job", j.id)
	}
}

// disarmLocked stops the active timer, if any, and reports whether one was armed.
func (j *Job) disarmLocked() bool {
	r, ok := j.state.(running)
	if !ok {
		return false
	}
	r.timer.Stop()
	j.state = stopped{}
	return true
}

// JobInfo is a point-in-time description of a Job.
type JobInfo struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	PeriodMillis   int64     `json:"period_ms"`
	Async          bool      `json:"async"`
	RunImmediately bool      `json:"run_immediately"`
}

// Info returns a snapshot of the job.
func (j *Job) Info() JobInfo {
	return JobInfo{
		ID:             j.id,
		Status:         j.Status(),
		PeriodMillis:   j.period.Milliseconds(),
		Async:          j.task.Async(),
		RunImmediately: j.runImmediately,
	}
}
