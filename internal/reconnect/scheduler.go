// Package reconnect decides whether and when a dropped connection is retried.
//
// The scheduler performs no I/O. Delays grow exponentially from a base delay
// and the number of attempts between two successful opens is bounded.
package reconnect

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

type Policy struct {
	BaseDelay time.Duration
	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		// stop doubling before overflowing
		if delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}

	return delay
}

// Handle identifies one armed reconnect timer.
type Handle struct {
	attempt int
	delay   time.Duration

	timer     *clock.Timer
	fired     bool
	cancelled bool
}

// Attempt is the 1-based attempt number this handle was armed for.
func (h *Handle) Attempt() int {
	return h.attempt
}

func (h *Handle) Delay() time.Duration {
	return h.delay
}

type Scheduler struct {
	clock  Clock
	policy Policy

	mu      sync.Mutex
	attempt int
	pending *Handle
}

func NewScheduler(clock Clock, policy Policy) *Scheduler {
	return &Scheduler{
		clock:  clock,
		policy: policy,
	}
}

// ScheduleNext arms a timer that calls onFire after the next backoff delay.
// It returns false, arming nothing, once the attempt limit is reached.
func (s *Scheduler) ScheduleNext(onFire func()) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt >= s.policy.MaxAttempts {
		return nil, false
	}

	s.cancelLocked(s.pending)

	delay := s.policy.Delay(s.attempt)
	s.attempt++

	handle := &Handle{
		attempt: s.attempt,
		delay:   delay,
	}
	handle.timer = s.clock.AfterFunc(delay, func() {
		s.fire(handle, onFire)
	})
	s.pending = handle

	return handle, true
}

// Cancel stops h if it is still armed. It is a no-op for nil, fired or
// already cancelled handles.
func (s *Scheduler) Cancel(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(h)
}

// Reset zeroes the attempt counter and cancels the pending timer.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt = 0
	s.cancelLocked(s.pending)
}

func (s *Scheduler) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempt
}

func (s *Scheduler) Pending() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending
}

func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempt >= s.policy.MaxAttempts
}

func (s *Scheduler) fire(h *Handle, onFire func()) {
	s.mu.Lock()
	if h.cancelled || h.fired {
		s.mu.Unlock()
		return
	}

	h.fired = true
	if s.pending == h {
		s.pending = nil
	}
	s.mu.Unlock()

	onFire()
}

// IMPORTANT: It must be called only when s.mu is held.
func (s *Scheduler) cancelLocked(h *Handle) {
	if h == nil || h.fired || h.cancelled {
		return
	}

	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}

	if s.pending == h {
		s.pending = nil
	}
}
