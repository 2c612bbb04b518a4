// Package schedulertest provides test doubles for the scheduler package.
package schedulertest

import (
	"sync"
	"time"

	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

// FakeTimers is a virtual clock. Nothing fires until Advance is called, and
// then every due callback runs synchronously on the caller's goroutine in
// time order.
type FakeTimers struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

// Compile-time interface check.
var _ scheduler.Timers = (*FakeTimers)(nil)

type fakeTimer struct {
	owner  *FakeTimers
	seq    int
	period time.Duration
	next   time.Duration
	fn     func()
}

// NewFakeTimers creates a virtual clock at time zero.
func NewFakeTimers() *FakeTimers {
	return &FakeTimers{}
}

// Every implements scheduler.Timers.
func (f *FakeTimers) Every(period time.Duration, fn func()) scheduler.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{owner: f, seq: f.seq, period: period, next: f.now + period, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Stop implements scheduler.Timer.
func (t *fakeTimer) Stop() {
	f := t.owner
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// Advance moves virtual time forward by d, firing every callback that
// becomes due. Callbacks may arm or stop timers.
func (f *FakeTimers) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	for {
		t := f.nextDueLocked(target)
		if t == nil {
			break
		}
		f.now = t.next
		t.next += t.period
		fn := t.fn

		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

func (f *FakeTimers) nextDueLocked(target time.Duration) *fakeTimer {
	var due *fakeTimer
	for _, t := range f.timers {
		if t.next > target {
			continue
		}
		if due == nil || t.next < due.next || (t.next == due.next && t.seq < due.seq) {
			due = t
		}
	}
	return due
}

// Armed returns the number of live timers.
func (f *FakeTimers) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Elapsed returns the virtual time since creation.
func (f *FakeTimers) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
