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
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestSubscriptionManager() *SubscriptionManager {
	c := &Client{
		metrics: NewMetrics(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return newSubscriptionManager(c)
}

// registerEntry installs a subscription the way Subscribe does once the peer
// has acknowledged, without the wire exchange.
func registerEntry(m *SubscriptionManager, deviceID uint32, object ObjectIdentifier, processID uint32, lifetime time.Duration, listener COVListener) *covEntry {
	entry := &covEntry{
		id:        uuid.New(),
		deviceID:  deviceID,
		object:    object,
		processID: processID,
		lifetime:  lifetime,
		listener:  listener,
		state:     SubscriptionActive,
	}
	if lifetime > 0 {
		entry.expiresAt = time.Now().Add(lifetime)
		entry.timer = time.AfterFunc(lifetime, func() { m.expire(entry.id) })
	}
	m.mu.Lock()
	m.subs[entry.id] = entry
	m.byKey[covKey{device: deviceID, object: object, processID: processID}] = entry
	m.mu.Unlock()
	m.client.metrics.ActiveSubscriptions.Inc()
	return entry
}

func TestDispatchDeliversToActiveSubscription(t *testing.T) {
	m := newTestSubscriptionManager()
	object := ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 1}

	var calls atomic.Int32
	var gotValues []PropertyValue
	registerEntry(m, 100, object, 7, time.Minute, func(_ ObjectIdentifier, values []PropertyValue) {
		calls.Add(1)
		gotValues = values
	})

	m.dispatch(&COVNotification{
		ProcessID: 7,
		Device:    ObjectIdentifier{Type: ObjectTypeDevice, Instance: 100},
		Object:    object,
		Values:    []PropertyValue{{Property: PropertyPresentValue, Value: Real(75.5)}},
	})

	require.Equal(t, int32(1), calls.Load())
	require.Len(t, gotValues, 1)
	require.True(t, gotValues[0].Value.Equal(Real(75.5)))
}

func TestDispatchDropsNotificationAfterExpiry(t *testing.T) {
	m := newTestSubscriptionManager()
	object := ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 1}

	var calls atomic.Int32
	entry := registerEntry(m, 100, object, 7, 20*time.Millisecond, func(ObjectIdentifier, []PropertyValue) {
		calls.Add(1)
	})

	require.Eventually(t, func() bool {
		_, ok := m.Get(entry.id)
		return !ok
	}, time.Second, 5*time.Millisecond)

	// A stray notification with matching identifiers arrives after expiry.
	m.dispatch(&COVNotification{
		ProcessID: 7,
		Device:    ObjectIdentifier{Type: ObjectTypeDevice, Instance: 100},
		Object:    object,
		Values:    []PropertyValue{{Property: PropertyPresentValue, Value: Real(80)}},
	})

	require.Equal(t, int32(0), calls.Load())
	require.Equal(t, int64(1), m.client.metrics.COVDropped.Value())
}

func TestDispatchDropsUnmatchedNotification(t *testing.T) {
	m := newTestSubscriptionManager()

	m.dispatch(&COVNotification{
		ProcessID: 99,
		Device:    ObjectIdentifier{Type: ObjectTypeDevice, Instance: 42},
		Object:    ObjectIdentifier{Type: ObjectTypeAnalogInput, Instance: 3},
	})

	require.Equal(t, int64(1), m.client.metrics.COVDropped.Value())
}

func TestZeroLifetimeEntryDoesNotExpire(t *testing.T) {
	m := newTestSubscriptionManager()
	object := ObjectIdentifier{Type: ObjectTypeAnalogOutput, Instance: 2}

	var calls atomic.Int32
	entry := registerEntry(m, 200, object, 3, 0, func(ObjectIdentifier, []PropertyValue) {
		calls.Add(1)
	})
	require.Nil(t, entry.timer)
	require.True(t, entry.expiresAt.IsZero())

	time.Sleep(50 * time.Millisecond)

	sub, ok := m.Get(entry.id)
	require.True(t, ok)
	require.Equal(t, SubscriptionActive, sub.State)

	m.dispatch(&COVNotification{
		ProcessID: 3,
		Device:    ObjectIdentifier{Type: ObjectTypeDevice, Instance: 200},
		Object:    object,
		Values:    []PropertyValue{{Property: PropertyPresentValue, Value: Real(30)}},
	})
	require.Equal(t, int32(1), calls.Load())
}
