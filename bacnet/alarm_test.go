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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
)

func TestAlarmOpenAndClose(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	now := time.Now()

	ev := reg.RecordTransition(obj, bacnet.EventStateHighLimit, now)
	require.NotNil(t, ev)
	assert.True(t, ev.Active())
	assert.Len(t, reg.ListActive(), 1)

	// The return to normal closes the event but keeps it in history.
	reg.RecordTransition(obj, bacnet.EventStateNormal, now.Add(time.Minute))
	assert.Empty(t, reg.ListActive())
	require.Len(t, reg.History(), 1)
	assert.False(t, reg.History()[0].Active())
}

func TestAlarmRepeatStateIsNoOp(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	now := time.Now()

	reg.RecordTransition(obj, bacnet.EventStateHighLimit, now)
	reg.RecordTransition(obj, bacnet.EventStateHighLimit, now.Add(time.Second))

	assert.Len(t, reg.History(), 1)
}

func TestAlarmStateChangeOpensNewEvent(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	now := time.Now()

	reg.RecordTransition(obj, bacnet.EventStateHighLimit, now)
	reg.RecordTransition(obj, bacnet.EventStateLowLimit, now.Add(time.Minute))

	active := reg.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, bacnet.EventStateLowLimit, active[0].State)
	assert.Len(t, reg.History(), 2)
}

func TestAlarmAcknowledge(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	now := time.Now()

	ev := reg.RecordTransition(obj, bacnet.EventStateHighLimit, now)
	require.NotNil(t, ev)

	require.NoError(t, reg.Acknowledge(ev.ID, "operator", now.Add(time.Second)))

	err := reg.Acknowledge(ev.ID, "operator", now.Add(2*time.Second))
	assert.True(t, errors.Is(err, bacnet.ErrAlreadyAcknowledged))
}

func TestAlarmAcknowledgeUnknownEvent(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	err := reg.AcknowledgeObject(
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.EventStateHighLimit, "operator", time.Now())
	assert.True(t, errors.Is(err, bacnet.ErrEventNotFound))
}

func TestAlarmSummaryReflectsActive(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	obj1 := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	obj2 := bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryInput, 3)
	now := time.Now()

	reg.RecordTransition(obj1, bacnet.EventStateHighLimit, now)
	reg.RecordTransition(obj2, bacnet.EventStateOffNormal, now)
	require.NoError(t, reg.AcknowledgeObject(obj2, bacnet.EventStateOffNormal, "operator", now))

	summary := reg.Summary()
	require.Len(t, summary, 2)

	byObject := map[bacnet.ObjectIdentifier]bacnet.AlarmSummaryItem{}
	for _, item := range summary {
		byObject[item.Object] = item
	}
	assert.False(t, byObject[obj1].AcknowledgedSet)
	assert.True(t, byObject[obj2].AcknowledgedSet)
}

func TestAlarmHistoryCap(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(4)
	now := time.Now()

	for i := 0; i < 10; i++ {
		obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, uint32(i))
		reg.RecordTransition(obj, bacnet.EventStateHighLimit, now.Add(time.Duration(i)*time.Second))
	}

	assert.Len(t, reg.History(), 4)
}

func TestAlarmHistoryOrder(t *testing.T) {
	reg := bacnet.NewAlarmRegistry(0)
	now := time.Now()

	for i := 0; i < 3; i++ {
		obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, uint32(i))
		reg.RecordTransition(obj, bacnet.EventStateHighLimit, now.Add(time.Duration(i)*time.Second))
	}

	history := reg.History()
	require.Len(t, history, 3)
	// Most recent first.
	for i := 0; i < len(history)-1; i++ {
		assert.True(t, !history[i].RaisedAt.Before(history[i+1].RaisedAt),
			fmt.Sprintf("history[%d] older than history[%d]", i, i+1))
	}
}
