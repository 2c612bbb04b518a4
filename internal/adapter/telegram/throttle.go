package telegram

import (
	"sync"
	"time"
)

// Throttle lets at most one event per key through every rate and counts what
// it holds back in between.
type Throttle struct {
	mu         sync.Mutex
	rate       time.Duration
	last       map[string]time.Time
	suppressed map[string]int
	now        func() time.Time
}

// NewThrottle creates a throttle. A non-positive rate lets everything through.
func NewThrottle(rate time.Duration) *Throttle {
	return &Throttle{
		rate:       rate,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
		now:        time.Now,
	}
}

// Allow reports whether an event for key may pass now. When it may, the
// number of events suppressed since the last one that passed is returned
// and reset.
func (t *Throttle) Allow(key string) (bool, int) {
	if t.rate <= 0 {
		return true, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.rate {
		t.suppressed[key]++
		return false, 0
	}
	t.last[key] = now
	n := t.suppressed[key]
	delete(t.suppressed, key)
	return true, n
}
