package scheduler

import (
	"log/slog"
	"slices"
	"sync"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSchedulerLogger sets the registry logger.
func WithSchedulerLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler is a registry of jobs keyed by id. It holds no timers itself:
// every lifecycle call is delegated to the job. Work units never run while
// the registry lock is held.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	order  []string
	logger *slog.Logger
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*Job),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers job and starts it. A job whose id is already registered
// is rejected with a *DuplicateIDError and the registered job is left as is.
// A job removed while it is being started is stopped again before AddJob returns.
func (s *Scheduler) AddJob(job *Job) error {
	if job == nil {
		return &ConfigError{Field: "job", Reason: "job is required"}
	}

	s.mu.Lock()
	if _, exists := s.jobs[job.ID()]; exists {
		s.mu.Unlock()
		s.logger.Warn("duplicate job id rejected", "job", job.ID())
		return &DuplicateIDError{ID: job.ID()}
	}
	s.jobs[job.ID()] = job
	s.order = append(s.order, job.ID())
	s.mu.Unlock()

	job.Start()

	s.mu.RLock()
	current, registered := s.jobs[job.ID()]
	s.mu.RUnlock()
	if !registered || current != job {
		job.Stop()
		s.logger.Info("job removed while starting", "job", job.ID())
		return nil
	}

	s.logger.Info("job added", "job", job.ID(), "period", job.Period(), "async", job.Async())
	return nil
}

// GetJob returns the job registered under id.
func (s *Scheduler) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return job, nil
}

// StartJob starts (or restarts) the job registered under id.
func (s *Scheduler) StartJob(id string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	job.Start()
	return nil
}

// StopJob stops the job registered under id.
func (s *Scheduler) StopJob(id string) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	job.Stop()
	return nil
}

// RemoveJob stops and unregisters the job under id. Removing an unknown id
// is a no-op.
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	job.Stop()
	s.logger.Info("job removed", "job", id)
}

// Stop stops every registered job. Jobs stay registered.
func (s *Scheduler) Stop() {
	jobs := s.Jobs()
	for _, job := range jobs {
		job.Stop()
	}
	s.logger.Info("scheduler stopped", "jobs", len(jobs))
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id])
	}
	return jobs
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Status partitions the registry into running and idle jobs.
type Status struct {
	TotalJobs  int
	ActiveJobs []*Job
	IdleJobs   []*Job
}

// Status returns the aggregate view. Both partitions keep registration order.
func (s *Scheduler) Status() Status {
	jobs := s.Jobs()

	st := Status{
		TotalJobs:  len(jobs),
		ActiveJobs: make([]*Job, 0, len(jobs)),
		IdleJobs:   make([]*Job, 0),
	}
	for _, job := range jobs {
		if job.Status() == StatusRunning {
			st.ActiveJobs = append(st.ActiveJobs, job)
		} else {
			st.IdleJobs = append(st.IdleJobs, job)
		}
	}
	return st
}
