package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Config controls backoff between attempts.
type Config struct {
	// MaxAttempts counts the first call too.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay uniformly over [delay/2, delay].
	Jitter bool
	// Rand feeds jitter; a time-seeded source is used when nil.
	Rand *rand.Rand
	// OnRetry observes every failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
	// After replaces time.After, for tests.
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns three attempts with 500ms doubling delays and jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func (c Config) normalize() (Config, error) {
	if c.MaxAttempts <= 0 {
		return c, errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return c, errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay is smaller than InitialDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.Multiplier < 1 {
		return c, errors.New("retry: Multiplier must be >= 1")
	}
	if c.Jitter && c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.After == nil {
		c.After = time.After
	}
	return c, nil
}

// Func is one attempt.
type Func func(ctx context.Context) error

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, returns an error DefaultRetryable rejects,
// runs out of attempts, or ctx ends.
func Do(ctx context.Context, cfg Config, fn Func) error {
	return DoIf(ctx, cfg, fn, DefaultRetryable)
}

// DoIf is Do with a caller-supplied retry predicate. A rejected error is
// returned unchanged.
func DoIf(ctx context.Context, cfg Config, fn Func, retryable func(error) bool) error {
	c, err := cfg.normalize()
	if err != nil {
		return err
	}

	var last error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return errors.Join(err, last)
			}
			return err
		}

		if last = fn(ctx); last == nil {
			return nil
		}
		if attempt == c.MaxAttempts {
			break
		}
		if !retryable(last) {
			return last
		}

		delay := c.delay(attempt)
		if c.OnRetry != nil {
			c.OnRetry(attempt, last, delay)
		}
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), last)
		case <-c.After(delay):
		}
	}
	return &ExhaustedError{Attempts: c.MaxAttempts, Last: last}
}

// delay returns the pause after the given failed attempt.
func (c Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.Multiplier
	}
	delay := min(time.Duration(d), c.MaxDelay)
	if c.Jitter && delay > 1 {
		half := delay / 2
		delay = half + time.Duration(c.Rand.Int63n(int64(delay-half)+1))
	}
	return delay
}

// DefaultRetryable accepts timeouts and dropped or refused connections.
// Cancellation is never retried.
func DefaultRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}
