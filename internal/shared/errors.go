package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

// Common domain errors.
var (
	// ErrNotFound indicates that a requested job or record does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that configuration or input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that the request conflicts with registry state
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrDependencyFailure indicates that storage or an alert channel failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents missing jobs or records
	KindNotFound
	// KindValidation represents invalid configuration or input
	KindValidation
	// KindConflict represents duplicate registrations
	KindConflict
	// KindInternal represents internal errors
	KindInternal
	// KindDependencyFailure represents failing storage or alert channels
	KindDependencyFailure
	// KindTimeout represents deadline expiry
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindInternal:
		return "Internal"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindConflict:          ErrConflict,
	KindInternal:          ErrInternal,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities is the order KindOf checks an error chain in. Scheduler
// errors are recognised alongside the shared sentinels so callers never
// need to mark them by hand.
var kindPriorities = []struct {
	kind    Kind
	targets []error
}{
	{KindCanceled, []error{context.Canceled}},
	{KindTimeout, []error{context.DeadlineExceeded}},
	{KindNotFound, []error{ErrNotFound, scheduler.ErrNotFound}},
	{KindValidation, []error{ErrValidation, scheduler.ErrConfig}},
	{KindConflict, []error{ErrConflict, scheduler.ErrDuplicateID}},
	{KindDependencyFailure, []error{ErrDependencyFailure}},
	{KindInternal, []error{ErrInternal}},
}

// KindOf returns the Kind of err by walking its chain in priority order.
// Returns KindUnknown for nil and unrecognised errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindConflict:
//	    return http.StatusConflict
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		for _, target := range p.targets {
			if errors.Is(err, target) {
				return p.kind
			}
		}
	}
	return KindUnknown
}

// HasKind reports whether err classifies as kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for kind, or nil for kinds without one.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps err with the sentinel for kind so that KindOf(result) ==
// kind while errors.Is(result, err) still holds. Marking an error with a kind
// it already has returns it unchanged.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap adds context to err. Returns nil for a nil err.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf adds formatted context to err. Returns nil for a nil err.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
