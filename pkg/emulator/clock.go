// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
)

// Clock supplies the current time to the run loop and reconciler
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the monotonic wall clock
var SystemClock Clock = systemClock{}

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	mu  syncutil.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
