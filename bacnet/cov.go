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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubscriptionState is the lifecycle state of a COV subscription.
type SubscriptionState int

const (
	SubscriptionPending SubscriptionState = iota
	SubscriptionActive
	SubscriptionRenewing
	SubscriptionExpired
	SubscriptionCancelled
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionPending:
		return "pending"
	case SubscriptionActive:
		return "active"
	case SubscriptionRenewing:
		return "renewing"
	case SubscriptionExpired:
		return "expired"
	case SubscriptionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// COVListener receives change notifications for one subscription.
type COVListener func(object ObjectIdentifier, values []PropertyValue)

// Subscription is a snapshot of one COV subscription.
type Subscription struct {
	ID        uuid.UUID
	DeviceID  uint32
	Object    ObjectIdentifier
	ProcessID uint32
	Lifetime  time.Duration
	State     SubscriptionState
	ExpiresAt time.Time
}

type covKey struct {
	device    uint32
	object    ObjectIdentifier
	processID uint32
}

type covEntry struct {
	id        uuid.UUID
	deviceID  uint32
	object    ObjectIdentifier
	processID uint32
	lifetime  time.Duration
	confirmed bool
	listener  COVListener

	state     SubscriptionState
	expiresAt time.Time
	timer     *time.Timer
}

// SubscriptionManager owns the client's COV subscriptions. Subscriptions
// are not renewed automatically; the owner must call Renew before the
// lifetime elapses or the subscription expires and notifications for it
// are dropped.
type SubscriptionManager struct {
	client *Client

	mu          sync.Mutex
	subs        map[uuid.UUID]*covEntry
	byKey       map[covKey]*covEntry
	nextProcess uint32
}

func newSubscriptionManager(c *Client) *SubscriptionManager {
	return &SubscriptionManager{
		client:      c,
		subs:        make(map[uuid.UUID]*covEntry),
		byKey:       make(map[covKey]*covEntry),
		nextProcess: 1,
	}
}

// Subscribe establishes a subscription on the peer and registers the
// listener. No local state is retained when the peer refuses.
func (m *SubscriptionManager) Subscribe(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, listener COVListener, opts ...SubscribeOption) (*Subscription, error) {
	options := &SubscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	lifetime := options.Lifetime

	m.mu.Lock()
	processID := options.ProcessID
	if processID == 0 {
		processID = m.nextProcess
		m.nextProcess++
	}
	key := covKey{device: deviceID, object: objectID, processID: processID}
	if _, exists := m.byKey[key]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("subscription already exists for %s process %d on device %d", objectID, processID, deviceID)
	}
	m.mu.Unlock()

	addr, err := m.client.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	lifetimeSecs := uint32(lifetime / time.Second)
	req := SubscribeCOVRequest{
		ProcessID: processID,
		Object:    objectID,
		Confirmed: &options.Confirmed,
		Lifetime:  &lifetimeSecs,
	}
	if _, err := m.client.sendRequest(ctx, addr, ServiceSubscribeCOV, req.Encode()); err != nil {
		return nil, err
	}

	entry := &covEntry{
		id:        uuid.New(),
		deviceID:  deviceID,
		object:    objectID,
		processID: processID,
		lifetime:  lifetime,
		confirmed: options.Confirmed,
		listener:  listener,
		state:     SubscriptionActive,
	}
	// Zero lifetime subscribes until cancelled; no expiry timer runs.
	if lifetime > 0 {
		entry.expiresAt = time.Now().Add(lifetime)
		entry.timer = time.AfterFunc(lifetime, func() { m.expire(entry.id) })
	}

	m.mu.Lock()
	if _, exists := m.byKey[key]; exists {
		m.mu.Unlock()
		if entry.timer != nil {
			entry.timer.Stop()
		}
		return nil, fmt.Errorf("subscription already exists for %s process %d on device %d", objectID, processID, deviceID)
	}
	m.subs[entry.id] = entry
	m.byKey[key] = entry
	m.mu.Unlock()

	m.client.metrics.COVSubscriptions.Inc()
	m.client.metrics.ActiveSubscriptions.Inc()
	m.client.logger.Debug("subscribed",
		slog.String("subscription", entry.id.String()),
		slog.Uint64("device_id", uint64(deviceID)),
		slog.String("object", objectID.String()),
		slog.Duration("lifetime", lifetime),
	)
	return m.snapshot(entry), nil
}

// Renew re-issues the subscription before its lifetime elapses and resets
// the expiry timer. Renewing an expired or cancelled subscription fails.
func (m *SubscriptionManager) Renew(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	entry, ok := m.subs[id]
	if !ok || entry.state == SubscriptionExpired || entry.state == SubscriptionCancelled {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	entry.state = SubscriptionRenewing
	deviceID, object, processID := entry.deviceID, entry.object, entry.processID
	lifetime, confirmed := entry.lifetime, entry.confirmed
	m.mu.Unlock()

	addr, err := m.client.resolveDevice(ctx, deviceID)
	if err == nil {
		lifetimeSecs := uint32(lifetime / time.Second)
		req := SubscribeCOVRequest{
			ProcessID: processID,
			Object:    object,
			Confirmed: &confirmed,
			Lifetime:  &lifetimeSecs,
		}
		_, err = m.client.sendRequest(ctx, addr, ServiceSubscribeCOV, req.Encode())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.state != SubscriptionRenewing {
		// expired while the renewal was in flight
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	if err != nil {
		entry.state = SubscriptionActive
		return err
	}
	entry.state = SubscriptionActive
	if lifetime > 0 {
		entry.expiresAt = time.Now().Add(lifetime)
		entry.timer.Reset(lifetime)
	}
	return nil
}

// Unsubscribe sends a cancellation and releases local state. Local state is
// released even when the peer cannot be reached; the wire error is
// returned for the caller's information.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	entry, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	m.removeLocked(entry, SubscriptionCancelled)
	deviceID, object, processID := entry.deviceID, entry.object, entry.processID
	m.mu.Unlock()

	addr, err := m.client.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	req := SubscribeCOVRequest{ProcessID: processID, Object: object}
	if _, err := m.client.sendRequest(ctx, addr, ServiceSubscribeCOV, req.Encode()); err != nil {
		return err
	}
	return nil
}

// Get returns a snapshot of a subscription.
func (m *SubscriptionManager) Get(id uuid.UUID) (*Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.subs[id]
	if !ok {
		return nil, false
	}
	return m.snapshot(entry), true
}

// List returns a snapshot of every tracked subscription.
func (m *SubscriptionManager) List() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subscription, 0, len(m.subs))
	for _, entry := range m.subs {
		out = append(out, m.snapshot(entry))
	}
	return out
}

func (m *SubscriptionManager) snapshot(entry *covEntry) *Subscription {
	return &Subscription{
		ID:        entry.id,
		DeviceID:  entry.deviceID,
		Object:    entry.object,
		ProcessID: entry.processID,
		Lifetime:  entry.lifetime,
		State:     entry.state,
		ExpiresAt: entry.expiresAt,
	}
}

func (m *SubscriptionManager) expire(id uuid.UUID) {
	m.mu.Lock()
	entry, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.removeLocked(entry, SubscriptionExpired)
	m.mu.Unlock()

	m.client.logger.Debug("subscription expired",
		slog.String("subscription", id.String()),
		slog.String("object", entry.object.String()),
	)
}

// removeLocked drops the entry from both indexes so later notifications no
// longer match.
func (m *SubscriptionManager) removeLocked(entry *covEntry, state SubscriptionState) {
	entry.state = state
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(m.subs, entry.id)
	delete(m.byKey, covKey{device: entry.deviceID, object: entry.object, processID: entry.processID})
	m.client.metrics.ActiveSubscriptions.Dec()
}

// dispatch routes an incoming notification to its subscription's listener.
// Notifications with no live subscription are dropped without error.
func (m *SubscriptionManager) dispatch(notif *COVNotification) {
	key := covKey{
		device:    notif.Device.Instance,
		object:    notif.Object,
		processID: notif.ProcessID,
	}

	m.mu.Lock()
	entry, ok := m.byKey[key]
	var listener COVListener
	if ok && (entry.state == SubscriptionActive || entry.state == SubscriptionRenewing) {
		listener = entry.listener
	}
	m.mu.Unlock()

	if listener == nil {
		m.client.metrics.COVDropped.Inc()
		m.client.logger.Debug("dropping unmatched COV notification",
			slog.Uint64("device_id", uint64(notif.Device.Instance)),
			slog.String("object", notif.Object.String()),
			slog.Uint64("process_id", uint64(notif.ProcessID)),
		)
		return
	}
	listener(notif.Object, notif.Values)
}

// shutdown drops every subscription without notifying peers.
func (m *SubscriptionManager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.subs {
		entry.state = SubscriptionCancelled
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	m.subs = make(map[uuid.UUID]*covEntry)
	m.byKey = make(map[covKey]*covEntry)
	m.client.metrics.ActiveSubscriptions.Set(0)
}
