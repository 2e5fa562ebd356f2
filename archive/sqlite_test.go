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

package archive_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KB-perByte/gobacnet/archive"
	"github.com/KB-perByte/gobacnet/bacnet"
)

func openStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "trends.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestArchiveAndQuery(t *testing.T) {
	store := openStore(t)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := store.ArchiveSample(100, obj, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     bacnet.Real(float32(70 + i)),
		})
		require.NoError(t, err)
	}

	samples, err := store.Query(100, obj, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 70.0, samples[0].Value, 0.001)
	assert.True(t, samples[0].RecordedAt.Equal(base))
}

func TestArchiveTimeWindow(t *testing.T) {
	store := openStore(t)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		require.NoError(t, store.ArchiveSample(100, obj, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Value:     bacnet.Real(float32(i)),
		}))
	}

	samples, err := store.Query(100, obj, base.Add(2*time.Minute), base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestArchiveSeparatesPoints(t *testing.T) {
	store := openStore(t)
	ai1 := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	ai2 := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 2)
	now := time.Now()

	require.NoError(t, store.ArchiveSample(100, ai1, bacnet.LogRecord{Timestamp: now, Value: bacnet.Real(1)}))
	require.NoError(t, store.ArchiveSample(100, ai2, bacnet.LogRecord{Timestamp: now, Value: bacnet.Real(2)}))
	require.NoError(t, store.ArchiveSample(200, ai1, bacnet.LogRecord{Timestamp: now, Value: bacnet.Real(3)}))

	n, err := store.Count(100, ai1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveBinarySample(t *testing.T) {
	store := openStore(t)
	bo := bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryOutput, 1)

	require.NoError(t, store.ArchiveSample(100, bo, bacnet.LogRecord{
		Timestamp: time.Now(),
		Value:     bacnet.Enumerated(1),
		Status:    bacnet.StatusFlags{InAlarm: true},
	}))

	samples, err := store.Query(100, bo, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.0, samples[0].Value)
	assert.True(t, samples[0].Status.InAlarm)
}

func TestArchivePrune(t *testing.T) {
	store := openStore(t)
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.ArchiveSample(100, obj, bacnet.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Value:     bacnet.Real(float32(i)),
		}))
	}

	removed, err := store.Prune(base.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := store.Count(100, obj)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
