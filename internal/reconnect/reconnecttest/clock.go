// Package reconnecttest provides a mock clock that remembers what was armed.
package reconnecttest

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is a clock.Mock that records every AfterFunc delay and callback.
// Advance it with Add; due callbacks run on their own goroutine.
type Clock struct {
	*clock.Mock

	mu        sync.Mutex
	requested []time.Duration
	callbacks []func()
}

func NewClock() *Clock {
	return &Clock{
		Mock: clock.NewMock(),
	}
}

func (c *Clock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	c.mu.Lock()
	c.requested = append(c.requested, d)
	c.callbacks = append(c.callbacks, f)
	c.mu.Unlock()

	return c.Mock.AfterFunc(d, f)
}

// Requested returns every delay passed to AfterFunc, in call order.
func (c *Clock) Requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.requested...)
}

// FireLast runs the most recently armed callback on the calling goroutine,
// whether or not its timer was stopped. It stands in for a timer that
// expired while Stop was being called.
func (c *Clock) FireLast() {
	c.mu.Lock()
	var f func()
	if n := len(c.callbacks); n > 0 {
		f = c.callbacks[n-1]
	}
	c.mu.Unlock()

	if f != nil {
		f()
	}
}
