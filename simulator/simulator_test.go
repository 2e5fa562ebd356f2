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

package simulator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/simulator"
)

func testConfig() *simulator.Config {
	low := float32(65)
	high := float32(80)
	return &simulator.Config{
		DeviceID:      999123,
		Name:          "Test HVAC",
		ListenAddress: "127.0.0.1:0",
		TrendInterval: simulator.Duration(50 * time.Millisecond),
		Objects: []simulator.ObjectConfig{
			{
				Type: "ai", Instance: 1, Name: "Zone Temperature",
				Value: 72.5, Units: "degrees-fahrenheit",
				LowLimit: &low, HighLimit: &high,
				COVIncrement: 0.5, Trend: true,
			},
			{
				Type: "ao", Instance: 1, Name: "Damper Position",
				Value: 50, Units: "percent",
			},
			{Type: "bo", Instance: 1, Name: "Fan Status", Value: 1},
			{Type: "msv", Instance: 1, Name: "System Mode", Value: 2, States: 5},
		},
	}
}

// startPair brings up a simulator and a client wired to it over loopback.
func startPair(t *testing.T) (*simulator.Simulator, *bacnet.Client) {
	t.Helper()
	ctx := context.Background()

	sim, err := simulator.New(testConfig())
	require.NoError(t, err)
	require.NoError(t, sim.Start(ctx))
	t.Cleanup(func() { sim.Stop() })

	client, err := bacnet.NewClient(
		bacnet.WithLocalAddress("127.0.0.1:0"),
		bacnet.WithBroadcastAddress(sim.Addr().String()),
		bacnet.WithTimeout(time.Second),
		bacnet.WithRetries(1),
	)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { client.Close() })

	return sim, client
}

func TestDiscoverSimulatedDevice(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	devices, err := client.WhoIs(ctx, bacnet.WithDiscoveryTimeout(time.Second))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, uint32(999123), devices[0].Instance())
	assert.Equal(t, uint32(999), devices[0].VendorID)
}

func TestDiscoverRangeFilter(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	devices, err := client.WhoIs(ctx,
		bacnet.WithDiscoveryTimeout(500*time.Millisecond),
		bacnet.WithDeviceRange(1, 100))
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestReadPresentValue(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	value, err := client.ReadProperty(ctx, 999123,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.PropertyPresentValue)
	require.NoError(t, err)

	f, ok := value.AsReal()
	require.True(t, ok)
	assert.InDelta(t, 72.5, f, 0.001)
}

func TestReadObjectName(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	value, err := client.ReadProperty(ctx, 999123,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 999123),
		bacnet.PropertyObjectName)
	require.NoError(t, err)
	assert.Equal(t, "Test HVAC", value.String())
}

func TestReadUnknownObjectReturnsBACnetError(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	_, err := client.ReadProperty(ctx, 999123,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 42),
		bacnet.PropertyPresentValue)
	require.Error(t, err)

	var bacErr *bacnet.BACnetError
	require.ErrorAs(t, err, &bacErr)
	assert.Equal(t, bacnet.ErrorClassObject, bacErr.Class)
	assert.Equal(t, bacnet.ErrorCodeUnknownObject, bacErr.Code)
}

func TestObjectList(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	list, err := client.ObjectList(ctx, 999123)
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, bacnet.ObjectTypeDevice, list[0].Type)
}

func TestWriteAndRelinquish(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()
	ao := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1)

	require.NoError(t, client.WriteProperty(ctx, 999123, ao,
		bacnet.PropertyPresentValue, bacnet.Real(75.5),
		bacnet.WithPriority(8)))

	value, err := client.ReadProperty(ctx, 999123, ao, bacnet.PropertyPresentValue)
	require.NoError(t, err)
	f, _ := value.AsReal()
	assert.InDelta(t, 75.5, f, 0.001)

	// Releasing the slot restores the relinquish default.
	require.NoError(t, client.RelinquishProperty(ctx, 999123, ao, 8))

	value, err = client.ReadProperty(ctx, 999123, ao, bacnet.PropertyPresentValue)
	require.NoError(t, err)
	f, _ = value.AsReal()
	assert.InDelta(t, 50.0, f, 0.001)
}

func TestWriteToInputRejected(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	err := client.WriteProperty(ctx, 999123,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.PropertyPresentValue, bacnet.Real(60))
	require.Error(t, err)

	var bacErr *bacnet.BACnetError
	require.ErrorAs(t, err, &bacErr)
	assert.Equal(t, bacnet.ErrorClassProperty, bacErr.Class)
}

func TestCOVNotificationDelivered(t *testing.T) {
	sim, client := startPair(t)
	ctx := context.Background()
	ao := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1)

	notified := make(chan []bacnet.PropertyValue, 4)
	_, err := client.Subscriptions().Subscribe(ctx, 999123, ao,
		func(obj bacnet.ObjectIdentifier, values []bacnet.PropertyValue) {
			notified <- values
		},
		bacnet.WithLifetime(time.Minute))
	require.NoError(t, err)

	require.NoError(t, client.WriteProperty(ctx, 999123, ao,
		bacnet.PropertyPresentValue, bacnet.Real(80),
		bacnet.WithPriority(8)))

	select {
	case values := <-notified:
		require.NotEmpty(t, values)
		assert.Equal(t, bacnet.PropertyPresentValue, values[0].Property)
		f, _ := values[0].Value.AsReal()
		assert.InDelta(t, 80.0, f, 0.001)
	case <-time.After(2 * time.Second):
		t.Fatal("no COV notification received")
	}

	assert.Equal(t, int64(1), sim.Metrics().NotificationsSent.Value())
}

func TestCOVZeroLifetimeSubscribesUntilCancelled(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()
	ao := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1)

	notified := make(chan []bacnet.PropertyValue, 4)
	sub, err := client.Subscriptions().Subscribe(ctx, 999123, ao,
		func(obj bacnet.ObjectIdentifier, values []bacnet.PropertyValue) {
			notified <- values
		},
		bacnet.WithLifetime(0))
	require.NoError(t, err)
	require.Equal(t, bacnet.SubscriptionActive, sub.State)
	require.True(t, sub.ExpiresAt.IsZero())

	// Long past any accidental short expiry window.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, client.WriteProperty(ctx, 999123, ao,
		bacnet.PropertyPresentValue, bacnet.Real(62),
		bacnet.WithPriority(8)))

	select {
	case values := <-notified:
		require.NotEmpty(t, values)
		f, _ := values[0].Value.AsReal()
		assert.InDelta(t, 62.0, f, 0.001)
	case <-time.After(2 * time.Second):
		t.Fatal("no COV notification received")
	}

	require.NoError(t, client.Subscriptions().Unsubscribe(ctx, sub.ID))
}

func TestCOVUnsubscribeStopsNotifications(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()
	ao := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1)

	notified := make(chan struct{}, 4)
	sub, err := client.Subscriptions().Subscribe(ctx, 999123, ao,
		func(obj bacnet.ObjectIdentifier, values []bacnet.PropertyValue) {
			notified <- struct{}{}
		},
		bacnet.WithLifetime(time.Minute))
	require.NoError(t, err)

	require.NoError(t, client.Subscriptions().Unsubscribe(ctx, sub.ID))

	require.NoError(t, client.WriteProperty(ctx, 999123, ao,
		bacnet.PropertyPresentValue, bacnet.Real(81),
		bacnet.WithPriority(8)))

	select {
	case <-notified:
		t.Fatal("notification after unsubscribe")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTrendLogOverWire(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	// Let the sampler record a few points.
	time.Sleep(300 * time.Millisecond)

	records, err := client.ReadTrendLog(ctx, 999123,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1), nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	f, ok := records[0].Value.AsReal()
	require.True(t, ok)
	assert.InDelta(t, 72.5, f, 0.001)
}

func TestAlarmSummaryAndAcknowledge(t *testing.T) {
	sim, client := startPair(t)
	ctx := context.Background()
	ai := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)

	// Drive the zone temperature over its high limit from the local side.
	obj, ok := sim.Device().Object(ai)
	require.True(t, ok)
	require.NoError(t, obj.SetPresentValue(bacnet.Real(85)))

	items, err := client.AlarmSummary(ctx, 999123)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ai, items[0].Object)
	assert.Equal(t, bacnet.EventStateHighLimit, items[0].EventState)
	assert.False(t, items[0].AcknowledgedSet)

	require.NoError(t, client.AcknowledgeAlarm(ctx, 999123, ai,
		bacnet.EventStateHighLimit, "operator"))

	items, err = client.AlarmSummary(ctx, 999123)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].AcknowledgedSet)

	// A second acknowledgment is refused on the wire.
	err = client.AcknowledgeAlarm(ctx, 999123, ai,
		bacnet.EventStateHighLimit, "operator")
	require.Error(t, err)
}

func TestDeviceInfoOverWire(t *testing.T) {
	_, client := startPair(t)
	ctx := context.Background()

	details, err := client.DeviceInfo(ctx, 999123)
	require.NoError(t, err)
	assert.Equal(t, "Test HVAC", details.ObjectName)
	assert.Equal(t, "KB Controls", details.VendorName)
	assert.Equal(t, uint32(999), details.VendorID)
}

func TestSimulatorStopIsIdempotent(t *testing.T) {
	sim, err := simulator.New(testConfig())
	require.NoError(t, err)
	require.NoError(t, sim.Start(context.Background()))
	require.NoError(t, sim.Stop())
	require.NoError(t, sim.Stop())
	assert.False(t, sim.Running())
}

func TestLoadConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Objects = append(cfg.Objects, simulator.ObjectConfig{
		Type: "ai", Instance: 1, Name: "Duplicate",
	})
	_, err := simulator.New(cfg)
	assert.Error(t, err)
}

func TestDefaultHVACConfigIsValid(t *testing.T) {
	cfg := simulator.DefaultHVACConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(100), cfg.DeviceID)
	assert.NotEmpty(t, cfg.Objects)
}
