// Package config implements the persistent configuration store.
package config

import (
	"sync"
	"time"
)

// Coalescer schedules a single deferred task, replacing any pending one.
// A burst of Schedule calls inside the delay window runs the task once,
// with whatever closure was scheduled last.
type Coalescer struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
}

// NewCoalescer creates an idle coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{}
}

// Schedule runs fn after delay, cancelling any previously scheduled task.
func (c *Coalescer) Schedule(delay time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = fn
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		fn := c.pending
		c.pending = nil
		c.timer = nil
		c.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Flush runs the pending task immediately, if any, and cancels its timer.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	fn := c.pending
	c.pending = nil
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending task without running it.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}
