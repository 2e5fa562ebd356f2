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

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
	"github.com/KB-perByte/gobacnet/service"
	"github.com/KB-perByte/gobacnet/simulator"
)

func startService(t *testing.T) (*service.Service, *simulator.Simulator) {
	t.Helper()
	ctx := context.Background()

	cfg := simulator.DefaultHVACConfig()
	cfg.DeviceID = 555001
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Drift.Enabled = false

	sim, err := simulator.New(cfg)
	require.NoError(t, err)
	require.NoError(t, sim.Start(ctx))
	t.Cleanup(func() { sim.Stop() })

	svc, err := service.New(
		bacnet.WithLocalAddress("127.0.0.1:0"),
		bacnet.WithBroadcastAddress(sim.Addr().String()),
		bacnet.WithTimeout(time.Second),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { svc.Stop() })

	return svc, sim
}

func TestServiceDiscoverAndRead(t *testing.T) {
	svc, _ := startService(t)
	ctx := context.Background()

	devices, err := svc.Discover(ctx, bacnet.WithDiscoveryTimeout(time.Second))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, uint32(555001), devices[0].ID)

	reading, err := svc.ReadProperty(ctx, 555001,
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.PropertyPresentValue)
	require.NoError(t, err)
	f, ok := reading.Value.AsReal()
	require.True(t, ok)
	assert.InDelta(t, 72.0, f, 0.001)
}

func TestServiceWriteAndRelinquish(t *testing.T) {
	svc, _ := startService(t)
	ctx := context.Background()
	ao := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogOutput, 1)

	require.NoError(t, svc.WriteProperty(ctx, 555001, ao,
		bacnet.PropertyPresentValue, bacnet.Real(33),
		bacnet.WithPriority(8)))

	reading, err := svc.ReadProperty(ctx, 555001, ao, bacnet.PropertyPresentValue)
	require.NoError(t, err)
	f, _ := reading.Value.AsReal()
	assert.InDelta(t, 33.0, f, 0.001)

	require.NoError(t, svc.Relinquish(ctx, 555001, ao, 8))
}

func TestServiceListObjects(t *testing.T) {
	svc, _ := startService(t)
	ctx := context.Background()

	objects, err := svc.ListObjects(ctx, 555001)
	require.NoError(t, err)
	assert.NotEmpty(t, objects)
	assert.Equal(t, bacnet.ObjectTypeDevice, objects[0].Type)
}

func TestServiceSimulatorLifecycle(t *testing.T) {
	svc, err := service.New(bacnet.WithLocalAddress("127.0.0.1:0"))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	cfg := simulator.DefaultHVACConfig()
	cfg.DeviceID = 555002
	cfg.ListenAddress = "127.0.0.1:0"

	sim, err := svc.StartSimulator(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, sim.Running())
	assert.Equal(t, []uint32{555002}, svc.Simulators())

	// A second simulator with the same instance is refused.
	_, err = svc.StartSimulator(context.Background(), cfg)
	assert.Error(t, err)

	require.NoError(t, svc.StopSimulator(555002))
	assert.Empty(t, svc.Simulators())
	assert.Error(t, svc.StopSimulator(555002))
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		in      string
		want    bacnet.ObjectIdentifier
		wantErr bool
	}{
		{in: "analog-input:1", want: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)},
		{in: "ai:1", want: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)},
		{in: "0:1", want: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)},
		{in: "msv:2", want: bacnet.NewObjectIdentifier(bacnet.ObjectTypeMultiStateValue, 2)},
		{in: "bogus:1", wantErr: true},
		{in: "ai", wantErr: true},
		{in: "ai:x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := service.ParseObject(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProperty(t *testing.T) {
	prop, err := service.ParseProperty("present-value")
	require.NoError(t, err)
	assert.Equal(t, bacnet.PropertyPresentValue, prop)

	prop, err = service.ParseProperty("85")
	require.NoError(t, err)
	assert.Equal(t, bacnet.PropertyPresentValue, prop)

	_, err = service.ParseProperty("bogus")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	v, err := service.ParseValue(bacnet.ObjectTypeAnalogOutput, "75.5")
	require.NoError(t, err)
	f, _ := v.AsReal()
	assert.InDelta(t, 75.5, f, 0.001)

	v, err = service.ParseValue(bacnet.ObjectTypeBinaryOutput, "active")
	require.NoError(t, err)
	e, _ := v.AsEnumerated()
	assert.Equal(t, uint32(1), e)

	v, err = service.ParseValue(bacnet.ObjectTypeMultiStateValue, "3")
	require.NoError(t, err)
	u, _ := v.AsUnsigned()
	assert.Equal(t, uint32(3), u)

	v, err = service.ParseValue(bacnet.ObjectTypeAnalogOutput, "null")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = service.ParseValue(bacnet.ObjectTypeAnalogOutput, "abc")
	assert.Error(t, err)
}
