package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"syscall"
	"testing"
	"time"
)

type tempError struct{ temporary bool }

func (e tempError) Error() string   { return fmt.Sprintf("temporary=%v", e.temporary) }
func (e tempError) Temporary() bool { return e.temporary }

// instant never sleeps and records requested delays.
func instant(delays *[]time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*delays = append(*delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("send: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.EOF, true},
		{"conn reset", fmt.Errorf("post: %w", syscall.ECONNRESET), true},
		{"temporary", tempError{true}, true},
		{"not temporary", tempError{false}, false},
		{"plain", errors.New("bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	c := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := c.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelay_JitterStaysInUpperHalf(t *testing.T) {
	c := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
		Rand:         rand.New(rand.NewSource(1)),
	}
	for i := 0; i < 200; i++ {
		d := c.delay(2)
		if d < 100*time.Millisecond || d > 200*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 200ms]", d)
		}
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var delays []time.Duration
	cfg := Config{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, After: instant(&delays)}

	var retried []int
	cfg.OnRetry = func(attempt int, err error, d time.Duration) { retried = append(retried, attempt) }

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if fmt.Sprint(delays) != "[10ms 20ms]" {
		t.Errorf("delays = %v", delays)
	}
	if fmt.Sprint(retried) != "[1 2]" {
		t.Errorf("OnRetry attempts = %v", retried)
	}
}

func TestDo_Exhausted(t *testing.T) {
	var delays []time.Duration
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, After: instant(&delays)}

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if ex.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d", ex.Attempts, calls)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("ExhaustedError must unwrap to the last error")
	}
	if len(delays) != 2 {
		t.Errorf("slept %d times, want 2", len(delays))
	}
}

func TestDoIf_RejectedErrorReturnedAsIs(t *testing.T) {
	permanent := errors.New("chat not found")
	calls := 0
	err := DoIf(context.Background(), DefaultConfig(), func(context.Context) error {
		calls++
		return permanent
	}, func(error) bool { return false })

	if err != permanent {
		t.Errorf("err = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		After: func(time.Duration) <-chan time.Time {
			cancel()
			return make(chan time.Time)
		},
	}

	calls := 0
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return io.EOF
	})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want canceled joined with last error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no attempts", Config{InitialDelay: time.Millisecond}},
		{"no delay", Config{MaxAttempts: 1}},
		{"max below initial", Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}},
		{"shrinking", Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), tt.cfg, func(context.Context) error {
				called = true
				return nil
			})
			if err == nil || called {
				t.Errorf("err = %v, called = %v", err, called)
			}
		})
	}
}
