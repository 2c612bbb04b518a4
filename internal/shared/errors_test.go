package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

func TestKindOf(t *testing.T) {
	_, cfgErr := scheduler.NewJob(nil, scheduler.Interval{Seconds: 1})
	require.Error(t, cfgErr)

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("plain"), KindUnknown},
		{"not found sentinel", ErrNotFound, KindNotFound},
		{"scheduler not found", &scheduler.NotFoundError{ID: "x"}, KindNotFound},
		{"scheduler duplicate", &scheduler.DuplicateIDError{ID: "x"}, KindConflict},
		{"scheduler config", cfgErr, KindValidation},
		{"wrapped validation", fmt.Errorf("load: %w", ErrValidation), KindValidation},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("op: %w", context.DeadlineExceeded), KindTimeout},
		{"dependency", ErrDependencyFailure, KindDependencyFailure},
		{"internal", ErrInternal, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, HasKind(tt.err, tt.want))
		})
	}
}

func TestKindOf_PriorityForJoinedErrors(t *testing.T) {
	err := errors.Join(ErrInternal, &scheduler.NotFoundError{ID: "j1"})
	assert.Equal(t, KindNotFound, KindOf(err))

	err = errors.Join(context.Canceled, ErrValidation)
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestMarkKind(t *testing.T) {
	base := errors.New("sqlite busy")

	marked := MarkKind(base, KindDependencyFailure)
	assert.Equal(t, KindDependencyFailure, KindOf(marked))
	assert.ErrorIs(t, marked, base)

	// idempotent
	assert.Same(t, marked, MarkKind(marked, KindDependencyFailure))

	assert.Equal(t, ErrNotFound, MarkKind(nil, KindNotFound))
	assert.Nil(t, MarkKind(nil, KindCanceled))
	assert.Same(t, base, MarkKind(base, KindUnknown))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "NotFound", KindNotFound.String())
	assert.Equal(t, "Conflict", KindConflict.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	assert.Nil(t, Wrapf(nil, "ctx %d", 1))

	base := errors.New("base")
	assert.Same(t, base, Wrap(base, ""))

	w := Wrapf(base, "job %s", "j1")
	assert.EqualError(t, w, "job j1: base")
	assert.ErrorIs(t, w, base)
}

func TestSentinelOf(t *testing.T) {
	assert.Equal(t, ErrNotFound, SentinelOf(KindNotFound))
	assert.Equal(t, ErrDependencyFailure, SentinelOf(KindDependencyFailure))
	assert.Nil(t, SentinelOf(KindTimeout))
	assert.Nil(t, SentinelOf(KindUnknown))
}
