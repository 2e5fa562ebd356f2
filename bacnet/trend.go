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
	"fmt"
	"sync"
	"time"
)

// DefaultTrendCapacity holds a day of five-minute samples.
const DefaultTrendCapacity = 288

// RingKey addresses one trend buffer.
type RingKey struct {
	DeviceID uint32
	Object   ObjectIdentifier
}

type trendRing struct {
	records []LogRecord
	head    int
	count   int
	lastTS  time.Time
}

// TrendLogStore keeps fixed-capacity sample rings per (device, object).
// Appends are O(1) and overwrite the oldest record once full; timestamps
// must not go backwards within a ring. Records are immutable after insert.
type TrendLogStore struct {
	mu       sync.RWMutex
	capacity int
	rings    map[RingKey]*trendRing
}

// NewTrendLogStore creates a store; capacity <= 0 uses the default.
func NewTrendLogStore(capacity int) *TrendLogStore {
	if capacity <= 0 {
		capacity = DefaultTrendCapacity
	}
	return &TrendLogStore{
		capacity: capacity,
		rings:    make(map[RingKey]*trendRing),
	}
}

// Capacity returns the per-ring record limit.
func (s *TrendLogStore) Capacity() int { return s.capacity }

// Append records one sample. Samples older than the ring's newest record
// are refused with ErrTimestampRegression.
func (s *TrendLogStore) Append(key RingKey, rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[key]
	if !ok {
		ring = &trendRing{records: make([]LogRecord, s.capacity)}
		s.rings[key] = ring
	}

	if ring.count > 0 && rec.Timestamp.Before(ring.lastTS) {
		return fmt.Errorf("%w: %s before %s", ErrTimestampRegression,
			rec.Timestamp.Format(time.RFC3339), ring.lastTS.Format(time.RFC3339))
	}

	idx := (ring.head + ring.count) % s.capacity
	ring.records[idx] = rec
	if ring.count < s.capacity {
		ring.count++
	} else {
		ring.head = (ring.head + 1) % s.capacity
	}
	ring.lastTS = rec.Timestamp
	return nil
}

// Query returns records inside [start, end] oldest-first. Zero bounds are
// unbounded on that side. An unknown key yields an empty result.
func (s *TrendLogStore) Query(key RingKey, start, end time.Time) []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[key]
	if !ok {
		return nil
	}

	out := make([]LogRecord, 0, ring.count)
	for i := 0; i < ring.count; i++ {
		rec := ring.records[(ring.head+i)%s.capacity]
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && rec.Timestamp.After(end) {
			break
		}
		out = append(out, rec)
	}
	return out
}

// Count returns the number of records currently retained for a key.
func (s *TrendLogStore) Count(key RingKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ring, ok := s.rings[key]; ok {
		return ring.count
	}
	return 0
}

// Keys returns every ring currently holding records.
func (s *TrendLogStore) Keys() []RingKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RingKey, 0, len(s.rings))
	for key := range s.rings {
		out = append(out, key)
	}
	return out
}
