// Copyright 2026 KB-perByte
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing atomic counter.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Inc()            { c.v.Add(1) }
func (c *Counter) Add(delta int64) { c.v.Add(delta) }
func (c *Counter) Value() int64    { return c.v.Load() }
func (c *Counter) Reset()          { c.v.Store(0) }

// Gauge is an atomic value that moves in both directions.
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Set(value int64) { g.v.Store(value) }
func (g *Gauge) Inc()            { g.v.Add(1) }
func (g *Gauge) Dec()            { g.v.Add(-1) }
func (g *Gauge) Value() int64    { return g.v.Load() }

// latencyBuckets are the histogram upper bounds in milliseconds; the last
// bucket is unbounded.
var latencyBuckets = []int64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// LatencyHistogram accumulates request round-trip times.
type LatencyHistogram struct {
	mu      sync.RWMutex
	count   int64
	sum     int64
	min     int64
	max     int64
	buckets []int64
}

func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		min:     -1,
		buckets: make([]int64, len(latencyBuckets)+1),
	}
}

// Record adds one measurement.
func (h *LatencyHistogram) Record(d time.Duration) {
	ns := d.Nanoseconds()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += ns
	if h.min < 0 || ns < h.min {
		h.min = ns
	}
	if ns > h.max {
		h.max = ns
	}

	ms := d.Milliseconds()
	idx := len(latencyBuckets)
	for i, bound := range latencyBuckets {
		if ms < bound {
			idx = i
			break
		}
	}
	h.buckets[idx]++
}

// LatencyStats is a point-in-time view of a histogram.
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}

func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := LatencyStats{
		Count:   h.count,
		Buckets: append([]int64(nil), h.buckets...),
	}
	if h.count > 0 {
		stats.Min = time.Duration(h.min)
		stats.Max = time.Duration(h.max)
		stats.Avg = time.Duration(h.sum / h.count)
	}
	return stats
}

func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count, h.sum, h.min, h.max = 0, 0, -1, 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// Metrics counts client activity. All fields are safe for concurrent use.
type Metrics struct {
	RequestsSent      Counter
	RequestsSucceeded Counter
	RequestsFailed    Counter
	RequestsTimedOut  Counter
	Retries           Counter

	ResponsesReceived Counter
	ErrorsReceived    Counter
	RejectsReceived   Counter
	AbortsReceived    Counter
	LateReplies       Counter
	MalformedFrames   Counter

	WhoIsSent         Counter
	IAmReceived       Counter
	DevicesDiscovered Counter

	COVSubscriptions Counter
	COVNotifications Counter
	COVDropped       Counter

	BytesSent     Counter
	BytesReceived Counter

	ActiveRequests      Gauge
	ActiveSubscriptions Gauge

	RequestLatency *LatencyHistogram

	startTime    time.Time
	lastActivity atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		RequestLatency: NewLatencyHistogram(),
		startTime:      time.Now(),
	}
}

// RecordActivity stamps the last time any frame moved.
func (m *Metrics) RecordActivity() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last frame timestamp, or the start time when
// nothing has moved yet.
func (m *Metrics) LastActivity() time.Time {
	ns := m.lastActivity.Load()
	if ns == 0 {
		return m.startTime
	}
	return time.Unix(0, ns)
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Snapshot captures every counter at one instant.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		RequestsSent:      m.RequestsSent.Value(),
		RequestsSucceeded: m.RequestsSucceeded.Value(),
		RequestsFailed:    m.RequestsFailed.Value(),
		RequestsTimedOut:  m.RequestsTimedOut.Value(),
		Retries:           m.Retries.Value(),

		ResponsesReceived: m.ResponsesReceived.Value(),
		ErrorsReceived:    m.ErrorsReceived.Value(),
		RejectsReceived:   m.RejectsReceived.Value(),
		AbortsReceived:    m.AbortsReceived.Value(),
		LateReplies:       m.LateReplies.Value(),
		MalformedFrames:   m.MalformedFrames.Value(),

		WhoIsSent:         m.WhoIsSent.Value(),
		IAmReceived:       m.IAmReceived.Value(),
		DevicesDiscovered: m.DevicesDiscovered.Value(),

		COVSubscriptions: m.COVSubscriptions.Value(),
		COVNotifications: m.COVNotifications.Value(),
		COVDropped:       m.COVDropped.Value(),

		BytesSent:     m.BytesSent.Value(),
		BytesReceived: m.BytesReceived.Value(),

		ActiveRequests:      m.ActiveRequests.Value(),
		ActiveSubscriptions: m.ActiveSubscriptions.Value(),

		LatencyStats: m.RequestLatency.Stats(),
		LastActivity: m.LastActivity(),
	}
}

// MetricsSnapshot is an immutable copy of Metrics.
type MetricsSnapshot struct {
	Uptime time.Duration

	RequestsSent      int64
	RequestsSucceeded int64
	RequestsFailed    int64
	RequestsTimedOut  int64
	Retries           int64

	ResponsesReceived int64
	ErrorsReceived    int64
	RejectsReceived   int64
	AbortsReceived    int64
	LateReplies       int64
	MalformedFrames   int64

	WhoIsSent         int64
	IAmReceived       int64
	DevicesDiscovered int64

	COVSubscriptions int64
	COVNotifications int64
	COVDropped       int64

	BytesSent     int64
	BytesReceived int64

	ActiveRequests      int64
	ActiveSubscriptions int64

	LatencyStats LatencyStats
	LastActivity time.Time
}
