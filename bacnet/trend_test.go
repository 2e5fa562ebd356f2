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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/bacnet"
)

func trendKey() bacnet.RingKey {
	return bacnet.RingKey{
		DeviceID: 100,
		Object:   bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
	}
}

func TestTrendStoreAppendAndQuery(t *testing.T) {
	store := bacnet.NewTrendLogStore(10)
	key := trendKey()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.Append(key, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     bacnet.Real(float32(70 + i)),
		})
		require.NoError(t, err)
	}

	records := store.Query(key, time.Time{}, time.Time{})
	require.Len(t, records, 5)
	// Oldest first.
	assert.True(t, records[0].Timestamp.Equal(base))
	f, _ := records[4].Value.AsReal()
	assert.Equal(t, float32(74), f)
}

func TestTrendStoreOverwritesOldest(t *testing.T) {
	store := bacnet.NewTrendLogStore(3)
	key := trendKey()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(key, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     bacnet.Real(float32(i)),
		}))
	}

	records := store.Query(key, time.Time{}, time.Time{})
	require.Len(t, records, 3)
	f, _ := records[0].Value.AsReal()
	assert.Equal(t, float32(2), f)
	f, _ = records[2].Value.AsReal()
	assert.Equal(t, float32(4), f)
	assert.Equal(t, 3, store.Count(key))
}

func TestTrendStoreRejectsTimestampRegression(t *testing.T) {
	store := bacnet.NewTrendLogStore(10)
	key := trendKey()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(key, bacnet.LogRecord{Timestamp: base, Value: bacnet.Real(1)}))

	err := store.Append(key, bacnet.LogRecord{Timestamp: base.Add(-time.Second), Value: bacnet.Real(2)})
	assert.True(t, errors.Is(err, bacnet.ErrTimestampRegression))

	// Equal timestamps are allowed.
	require.NoError(t, store.Append(key, bacnet.LogRecord{Timestamp: base, Value: bacnet.Real(3)}))
}

func TestTrendStoreTimeWindow(t *testing.T) {
	store := bacnet.NewTrendLogStore(10)
	key := trendKey()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(key, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     bacnet.Real(float32(i)),
		}))
	}

	records := store.Query(key, base.Add(2*time.Minute), base.Add(4*time.Minute))
	require.Len(t, records, 3)
	f, _ := records[0].Value.AsReal()
	assert.Equal(t, float32(2), f)
}

func TestTrendStoreDefaultCapacity(t *testing.T) {
	store := bacnet.NewTrendLogStore(0)
	assert.Equal(t, bacnet.DefaultTrendCapacity, store.Capacity())
}

func TestTrendStoreSeparateRings(t *testing.T) {
	store := bacnet.NewTrendLogStore(10)
	k1 := trendKey()
	k2 := bacnet.RingKey{
		DeviceID: 100,
		Object:   bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 2),
	}
	now := time.Now()

	require.NoError(t, store.Append(k1, bacnet.LogRecord{Timestamp: now, Value: bacnet.Real(1)}))
	require.NoError(t, store.Append(k2, bacnet.LogRecord{Timestamp: now, Value: bacnet.Real(2)}))

	assert.Equal(t, 1, store.Count(k1))
	assert.Equal(t, 1, store.Count(k2))
	assert.Len(t, store.Keys(), 2)
}
