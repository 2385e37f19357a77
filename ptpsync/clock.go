/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ptpsync implements the simulated PTP clock, the announce and
// leader goroutines, and the non-leader PTP state machine that keeps
// vehicle clocks aligned.
package ptpsync

import (
	"sync"
	"time"
)

// SimulatedClock is a nanosecond clock with an installable offset, the
// timing source every periodic schedule in the process reads.
type SimulatedClock struct {
	mu     sync.RWMutex
	offset int64
}

// NewSimulatedClock returns a clock with zero offset.
func NewSimulatedClock() *SimulatedClock {
	return &SimulatedClock{}
}

// Now returns the offset-adjusted current time in nanoseconds since the
// Unix epoch.
func (c *SimulatedClock) Now() uint64 {
	c.mu.RLock()
	off := c.offset
	c.mu.RUnlock()
	return uint64(time.Now().UnixNano() + off)
}

// Offset returns the currently installed offset, for tests that assert
// on convergence.
func (c *SimulatedClock) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// SetOffset installs a raw offset, used by tests to seed clock skew.
func (c *SimulatedClock) SetOffset(ns int64) {
	c.mu.Lock()
	c.offset = ns
	c.mu.Unlock()
}

// ApplyOffset nudges the clock by delta nanoseconds, the effect of a
// successful PTP round.
func (c *SimulatedClock) ApplyOffset(delta int64) {
	c.mu.Lock()
	c.offset -= delta
	c.mu.Unlock()
}
