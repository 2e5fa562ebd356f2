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

package bacnet_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
)

func TestPriorityArrayLowestWins(t *testing.T) {
	pa := &bacnet.PriorityArray{}

	require.NoError(t, pa.Set(8, bacnet.Real(50)))
	require.NoError(t, pa.Set(12, bacnet.Real(30)))

	v, prio, ok := pa.Effective()
	require.True(t, ok)
	assert.Equal(t, uint8(8), prio)
	f, _ := v.AsReal()
	assert.Equal(t, float32(50), f)

	// A higher priority command takes over.
	require.NoError(t, pa.Set(3, bacnet.Real(90)))
	v, prio, ok = pa.Effective()
	require.True(t, ok)
	assert.Equal(t, uint8(3), prio)
	f, _ = v.AsReal()
	assert.Equal(t, float32(90), f)
}

func TestPriorityArrayRelinquish(t *testing.T) {
	pa := &bacnet.PriorityArray{}

	require.NoError(t, pa.Set(8, bacnet.Real(50)))
	require.NoError(t, pa.Set(3, bacnet.Real(90)))

	// Writing Null releases the slot.
	require.NoError(t, pa.Set(3, bacnet.Null()))
	_, prio, ok := pa.Effective()
	require.True(t, ok)
	assert.Equal(t, uint8(8), prio)

	pa.Relinquish(8)
	_, _, ok = pa.Effective()
	assert.False(t, ok)
}

func TestPriorityArrayRejectsBadPriority(t *testing.T) {
	pa := &bacnet.PriorityArray{}
	assert.Error(t, pa.Set(0, bacnet.Real(1)))
	assert.Error(t, pa.Set(17, bacnet.Real(1)))
}

func TestCommandableObjectFallsBackToRelinquishDefault(t *testing.T) {
	obj := bacnet.NewAnalogOutput(1, "Damper Position", 50.0, bacnet.UnitsPercent)

	require.NoError(t, obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Real(75), 8))
	f, _ := obj.PresentValue().AsReal()
	assert.Equal(t, float32(75), f)

	// Relinquishing the only command restores the default.
	require.NoError(t, obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Null(), 8))
	f, _ = obj.PresentValue().AsReal()
	assert.Equal(t, float32(50), f)
}

func TestWritePriorityZeroMeansLowestSlot(t *testing.T) {
	obj := bacnet.NewAnalogOutput(1, "Damper Position", 50.0, bacnet.UnitsPercent)

	require.NoError(t, obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Real(60), 0))
	values, err := obj.ReadProperty(bacnet.PropertyPriorityArray, 16)
	require.NoError(t, err)
	require.Len(t, values, 1)
	f, ok := values[0].AsReal()
	require.True(t, ok)
	assert.Equal(t, float32(60), f)
}

func TestNonCommandableObjectRejectsWrites(t *testing.T) {
	obj := bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit)

	err := obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Real(75), 0)
	assert.True(t, errors.Is(err, bacnet.ErrWriteAccessDenied))

	err = obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Real(75), 8)
	assert.True(t, errors.Is(err, bacnet.ErrPriorityNotApplicable))
}

func TestWriteRejectsWrongKind(t *testing.T) {
	analog := bacnet.NewAnalogOutput(1, "Damper", 0, bacnet.UnitsPercent)
	err := analog.WriteProperty(bacnet.PropertyPresentValue, bacnet.Unsigned(3), 8)
	assert.True(t, errors.Is(err, bacnet.ErrTypeMismatch))

	binary := bacnet.NewBinaryOutput(1, "Fan", false)
	err = binary.WriteProperty(bacnet.PropertyPresentValue, bacnet.Enumerated(2), 8)
	assert.True(t, errors.Is(err, bacnet.ErrTypeMismatch))
}

func TestMultiStateRange(t *testing.T) {
	obj := bacnet.NewMultiStateValue(1, "System Mode", 5, 1)

	require.NoError(t, obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Unsigned(5), 8))

	err := obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Unsigned(6), 8)
	assert.True(t, errors.Is(err, bacnet.ErrTypeMismatch))

	err = obj.WriteProperty(bacnet.PropertyPresentValue, bacnet.Unsigned(0), 8)
	assert.True(t, errors.Is(err, bacnet.ErrTypeMismatch))
}

func TestLimitAlarmTransitions(t *testing.T) {
	obj := bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit).
		WithLimits(65, 80)

	require.NoError(t, obj.SetPresentValue(bacnet.Real(85)))
	assert.Equal(t, bacnet.EventStateHighLimit, obj.EventState())
	assert.True(t, obj.StatusFlags().InAlarm)

	require.NoError(t, obj.SetPresentValue(bacnet.Real(60)))
	assert.Equal(t, bacnet.EventStateLowLimit, obj.EventState())

	require.NoError(t, obj.SetPresentValue(bacnet.Real(72)))
	assert.Equal(t, bacnet.EventStateNormal, obj.EventState())
	assert.False(t, obj.StatusFlags().InAlarm)
}

func TestDeviceObjectList(t *testing.T) {
	dev := bacnet.NewDevice(100, "HVAC Unit 1")
	dev.AddObject(bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit))
	dev.AddObject(bacnet.NewBinaryOutput(1, "Fan", true))

	list := dev.ObjectList()
	require.Len(t, list, 3)
	// The device object leads the list.
	assert.Equal(t, bacnet.ObjectTypeDevice, list[0].Type)
	assert.Equal(t, bacnet.ObjectTypeAnalogInput, list[1].Type)
	assert.Equal(t, bacnet.ObjectTypeBinaryOutput, list[2].Type)
}

func TestDeviceObjectListIndexed(t *testing.T) {
	dev := bacnet.NewDevice(100, "HVAC Unit 1")
	dev.AddObject(bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit))

	deviceObj := dev.ObjectID()

	// Index 0 is the element count.
	values, err := dev.ReadProperty(deviceObj, bacnet.PropertyObjectList, 0)
	require.NoError(t, err)
	require.Len(t, values, 1)
	n, ok := values[0].AsUnsigned()
	require.True(t, ok)
	assert.Equal(t, uint32(2), n)

	values, err = dev.ReadProperty(deviceObj, bacnet.PropertyObjectList, 1)
	require.NoError(t, err)
	require.Len(t, values, 1)
	oid, ok := values[0].AsObjectID()
	require.True(t, ok)
	assert.Equal(t, deviceObj, oid)
}

func TestDeviceUnknownObject(t *testing.T) {
	dev := bacnet.NewDevice(100, "HVAC Unit 1")

	_, err := dev.ReadProperty(
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 99),
		bacnet.PropertyPresentValue, bacnet.NoArrayIndex)
	assert.True(t, errors.Is(err, bacnet.ErrUnknownObject))
}

func TestDeviceUnknownProperty(t *testing.T) {
	dev := bacnet.NewDevice(100, "HVAC Unit 1")
	dev.AddObject(bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit))

	_, err := dev.ReadProperty(
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.PropertyIdentifier(9999), bacnet.NoArrayIndex)
	assert.True(t, errors.Is(err, bacnet.ErrPropertyNotFound))
}

func TestChangeHookFires(t *testing.T) {
	dev := bacnet.NewDevice(100, "HVAC Unit 1")
	ai := bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit)
	dev.AddObject(ai)

	var gotOld, gotNew bacnet.Value
	fired := 0
	dev.SetChangeHook(func(obj bacnet.ObjectIdentifier, old, next bacnet.Value) {
		fired++
		gotOld, gotNew = old, next
	})

	require.NoError(t, ai.SetPresentValue(bacnet.Real(73.5)))
	require.Equal(t, 1, fired)
	f, _ := gotOld.AsReal()
	assert.Equal(t, float32(72), f)
	f, _ = gotNew.AsReal()
	assert.Equal(t, float32(73.5), f)

	// Writing the same value again does not fire.
	require.NoError(t, ai.SetPresentValue(bacnet.Real(73.5)))
	assert.Equal(t, 1, fired)
}

func TestCOVIncrementGating(t *testing.T) {
	obj := bacnet.NewAnalogInput(1, "Zone Temperature", 72.0, bacnet.UnitsDegreesFahrenheit).
		WithCOVIncrement(0.5)

	// First report always passes.
	assert.True(t, obj.ExceedsCOVIncrement(bacnet.Real(72.0)))
	assert.False(t, obj.ExceedsCOVIncrement(bacnet.Real(72.2)))
	assert.True(t, obj.ExceedsCOVIncrement(bacnet.Real(72.6)))
	// Baseline moved to 72.6 on the last report.
	assert.False(t, obj.ExceedsCOVIncrement(bacnet.Real(72.4)))
}
