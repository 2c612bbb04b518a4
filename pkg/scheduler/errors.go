package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below via errors.Is.
var (
	// ErrConfig indicates that a job could not be constructed from its configuration.
	ErrConfig = errors.New("scheduler: invalid configuration")

	// ErrDuplicateID indicates that a job with the same id is already registered.
	ErrDuplicateID = errors.New("scheduler: job id already exists")

	// ErrNotFound indicates that no job is registered under the id.
	ErrNotFound = errors.New("scheduler: job not found")
)

// ConfigError is returned by job constructors when the interval or the
// work unit is unusable. It is never retried: fix the input and rebuild.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfig, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Field, e.Reason)
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// DuplicateIDError is returned by Scheduler.AddJob for an id that is already registered.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("scheduler: job id %q already exists", e.ID)
}

// Is reports whether target is ErrDuplicateID.
func (e *DuplicateIDError) Is(target error) bool { return target == ErrDuplicateID }

// NotFoundError is returned by registry lookups for an unknown id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scheduler: job id %q does not exist", e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// RunError describes a failed invocation of a work unit. It is only ever
// delivered to an ErrorHandler; it never propagates out of a Task.
type RunError struct {
	JobID    string
	Err      error
	Panicked bool
}

func (e *RunError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("job %s panicked: %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
