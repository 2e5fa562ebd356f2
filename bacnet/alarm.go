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

	"github.com/google/uuid"
)

// DefaultAlarmHistory bounds the events a registry retains.
const DefaultAlarmHistory = 128

// AlarmEvent is one alarm episode on an object. A closed event stays in
// history until the bound pushes it out.
type AlarmEvent struct {
	ID           uuid.UUID
	Object       ObjectIdentifier
	State        EventState
	RaisedAt     time.Time
	ClosedAt     time.Time
	Acknowledged bool
	AckBy        string
	AckAt        time.Time
}

// Active reports whether the event is still open.
func (e AlarmEvent) Active() bool { return e.ClosedAt.IsZero() }

// AlarmRegistry tracks alarm transitions per object with bounded history.
type AlarmRegistry struct {
	mu         sync.Mutex
	maxHistory int

	active    map[ObjectIdentifier]*AlarmEvent
	history   []*AlarmEvent
	lastState map[ObjectIdentifier]EventState
}

// NewAlarmRegistry creates a registry; maxHistory <= 0 uses the default.
func NewAlarmRegistry(maxHistory int) *AlarmRegistry {
	if maxHistory <= 0 {
		maxHistory = DefaultAlarmHistory
	}
	return &AlarmRegistry{
		maxHistory: maxHistory,
		active:     make(map[ObjectIdentifier]*AlarmEvent),
		lastState:  make(map[ObjectIdentifier]EventState),
	}
}

// RecordTransition notes an event-state change on an object. A transition
// to any non-normal state opens a new event; a return to normal closes the
// open event without deleting it. Repeating the current state is a no-op.
func (r *AlarmRegistry) RecordTransition(obj ObjectIdentifier, state EventState, ts time.Time) *AlarmEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, known := r.lastState[obj]; known && last == state {
		return nil
	}
	r.lastState[obj] = state

	if current, open := r.active[obj]; open {
		current.ClosedAt = ts
		delete(r.active, obj)
	}
	if state == EventStateNormal {
		return nil
	}

	event := &AlarmEvent{
		ID:       uuid.New(),
		Object:   obj,
		State:    state,
		RaisedAt: ts,
	}
	r.active[obj] = event
	r.history = append(r.history, event)
	if len(r.history) > r.maxHistory {
		excess := len(r.history) - r.maxHistory
		r.history = append([]*AlarmEvent(nil), r.history[excess:]...)
	}
	return snapshotEvent(event)
}

// Acknowledge marks an event acknowledged. Acknowledging twice fails with
// ErrAlreadyAcknowledged.
func (r *AlarmRegistry) Acknowledge(id uuid.UUID, who string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, event := range r.history {
		if event.ID != id {
			continue
		}
		if event.Acknowledged {
			return fmt.Errorf("%w: %s", ErrAlreadyAcknowledged, id)
		}
		event.Acknowledged = true
		event.AckBy = who
		event.AckAt = when
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEventNotFound, id)
}

// AcknowledgeObject acknowledges the open event on an object in the given
// state, the form the wire service uses.
func (r *AlarmRegistry) AcknowledgeObject(obj ObjectIdentifier, state EventState, who string, when time.Time) error {
	r.mu.Lock()
	event, open := r.active[obj]
	r.mu.Unlock()

	if !open || event.State != state {
		return fmt.Errorf("%w: no open %s event on %s", ErrEventNotFound, state, obj)
	}
	return r.Acknowledge(event.ID, who, when)
}

// ListActive returns open events most-recent-first.
func (r *AlarmRegistry) ListActive() []*AlarmEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*AlarmEvent, 0, len(r.active))
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Active() {
			out = append(out, snapshotEvent(r.history[i]))
		}
	}
	return out
}

// History returns every retained event most-recent-first.
func (r *AlarmRegistry) History() []*AlarmEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*AlarmEvent, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, snapshotEvent(r.history[i]))
	}
	return out
}

// Summary builds the wire alarm summary from the open events.
func (r *AlarmRegistry) Summary() []AlarmSummaryItem {
	events := r.ListActive()
	items := make([]AlarmSummaryItem, 0, len(events))
	for _, event := range events {
		items = append(items, AlarmSummaryItem{
			Object:          event.Object,
			EventState:      event.State,
			AcknowledgedSet: event.Acknowledged,
		})
	}
	return items
}

func snapshotEvent(e *AlarmEvent) *AlarmEvent {
	dup := *e
	return &dup
}
