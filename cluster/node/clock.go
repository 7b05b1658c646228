/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package node

import (
	"sync"
	"time"
)

// Clock is the source of wall time for every component that expires or schedules something.
// Relay sweeps, federation backoff and transfer timeouts all read it, so tests can drive time by hand
type Clock interface {
	Now() time.Time
	NowMillis() int64
}

// SystemClock reads the real wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// NowMillis returns the current unix time in milliseconds
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FakeClock is a manually advanced clock, safe to share amongst goroutines
type FakeClock struct {
	mutex   sync.Mutex
	current time.Time
}

// NewFakeClock creates a fake clock frozen at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

// Now returns the frozen time
func (f *FakeClock) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.current
}

// NowMillis returns the frozen time in unix milliseconds
func (f *FakeClock) NowMillis() int64 {
	return f.Now().UnixMilli()
}

// Advance moves the clock forward by d
func (f *FakeClock) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.current = f.current.Add(d)
}

// LogicalClock has a counter protected by a Mutex.
// The relay logger uses it to number lines, so interleaved subsystem files can be merged back in order
type LogicalClock struct {
	counter uint64
	mutex   sync.Mutex
}

// NewLogicalClock Creates and returns a new, empty, logical clock
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{
		0, sync.Mutex{},
	}
}

// IncrementClock increments the clock and returns its value
func (l *LogicalClock) IncrementClock() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.counter++
	return l.counter
}

// Snapshot returns the current value of the clock.
// Useful for reading without modifying
func (l *LogicalClock) Snapshot() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.counter
}
