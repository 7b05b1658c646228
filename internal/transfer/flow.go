/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package transfer

const (
	initialWindow = 2
	minWindow     = 1
	maxWindow     = 8

	// acks needed in a row before the window grows by one
	growAfterAcks = 4

	speedSamples = 10
)

// FlowControl is an additive increase, multiplicative decrease window over in-flight chunks
type FlowControl struct {
	Window              int
	ConsecutiveAcks     int
	ConsecutiveTimeouts int
	AvgRttMs            int64
	rttSamples          int
}

func NewFlowControl() *FlowControl {
	return &FlowControl{Window: initialWindow}
}

func (f *FlowControl) OnAck(rttMs int64) {
	f.ConsecutiveAcks++
	f.ConsecutiveTimeouts = 0

	f.rttSamples++
	if f.rttSamples == 1 {
		f.AvgRttMs = rttMs
	} else {
		f.AvgRttMs = (f.AvgRttMs*7 + rttMs) / 8
	}

	if f.ConsecutiveAcks >= growAfterAcks && f.Window < maxWindow {
		f.Window++
		f.ConsecutiveAcks = 0
	}
}

func (f *FlowControl) OnTimeout() {
	f.ConsecutiveTimeouts++
	f.ConsecutiveAcks = 0
	f.Window = max(f.Window/2, minWindow)
}

func (f *FlowControl) AvailableSlots(inFlight int) int {
	return max(f.Window-inFlight, 0)
}

type speedSample struct {
	bytes     int
	elapsedMs int64
}

// SpeedTracker averages throughput over the last few chunks
type SpeedTracker struct {
	samples []speedSample
	limit   int
}

func NewSpeedTracker() *SpeedTracker {
	return &SpeedTracker{limit: speedSamples}
}

func (s *SpeedTracker) Record(bytes int, elapsedMs int64) {
	if len(s.samples) >= s.limit {
		s.samples = s.samples[1:]
	}
	s.samples = append(s.samples, speedSample{bytes, elapsedMs})
}

// BytesPerSecond is 0 until a sample with a positive duration exists
func (s *SpeedTracker) BytesPerSecond() int64 {
	var bytes, ms int64
	for _, sample := range s.samples {
		bytes += int64(sample.bytes)
		ms += sample.elapsedMs
	}
	if ms <= 0 {
		return 0
	}
	return bytes * 1000 / ms
}

func (s *SpeedTracker) Reset() {
	s.samples = s.samples[:0]
}

type Limits struct {
	MaxUploads   int
	MaxDownloads int
}

func DefaultLimits() Limits {
	return Limits{MaxUploads: 3, MaxDownloads: 3}
}
