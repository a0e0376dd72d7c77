// Package presence holds the ephemeral typing state: the per-client
// idle/composing machine, the typist list a client renders, and the
// server-side registry of live connections. Nothing here is persisted.
package presence

import (
	"sync"
	"time"
)

// DefaultIdleAfter is how long a composer may pause before reverting to idle.
const DefaultIdleAfter = 3 * time.Second

// State of the local composer.
type State int

const (
	Idle State = iota
	Composing
)

func (s State) String() string {
	if s == Composing {
		return "composing"
	}
	return "idle"
}

// AnnounceFunc publishes the local typing flag. It is called without the
// tracker lock held, at most once per transition.
type AnnounceFunc func(typing bool)

// Tracker is the idle → composing → idle machine for one client in one
// channel. Every buffer change restarts the idle timer.
type Tracker struct {
	mu        sync.Mutex
	state     State
	idleAfter time.Duration
	announce  AnnounceFunc
	timer     *time.Timer
	gen       uint64
	stopped   bool
}

// NewTracker returns an idle tracker. idleAfter <= 0 uses DefaultIdleAfter.
func NewTracker(idleAfter time.Duration, announce AnnounceFunc) *Tracker {
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	if announce == nil {
		announce = func(bool) {}
	}
	return &Tracker{idleAfter: idleAfter, announce: announce}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Changed records a buffer edit.
func (t *Tracker) Changed() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	entered := t.state == Idle
	t.state = Composing
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idleAfter, func() { t.expire(gen) })
	t.mu.Unlock()

	if entered {
		t.announce(true)
	}
}

func (t *Tracker) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != Composing {
		t.mu.Unlock()
		return
	}
	t.state = Idle
	t.timer = nil
	t.mu.Unlock()
	t.announce(false)
}

// Sent returns to idle immediately; a message going out ends composing.
func (t *Tracker) Sent() {
	t.reset(false)
}

// Stop cancels the timer and ignores later changes. A composing tracker
// announces idle one last time.
func (t *Tracker) Stop() {
	t.reset(true)
}

func (t *Tracker) reset(stop bool) {
	t.mu.Lock()
	if stop {
		t.stopped = true
	}
	was := t.state
	t.state = Idle
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	if was == Composing {
		t.announce(false)
	}
}
