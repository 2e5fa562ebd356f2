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

// Package archive persists trend samples to SQLite, giving trend data a
// life beyond the in-memory ring buffers.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KB-perByte/gobacnet/bacnet"
)

const schema = `
CREATE TABLE IF NOT EXISTS trend_samples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id   INTEGER NOT NULL,
	object_type INTEGER NOT NULL,
	instance    INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	value       REAL NOT NULL,
	status      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trend_samples_point
	ON trend_samples(device_id, object_type, instance, recorded_at);
`

// Sample is one archived trend record.
type Sample struct {
	DeviceID   uint32
	Object     bacnet.ObjectIdentifier
	RecordedAt time.Time
	Value      float64
	Status     bacnet.StatusFlags
}

// Store writes trend samples to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// modernc.org/sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveSample stores one trend record. It satisfies the simulator's
// Archiver interface.
func (s *Store) ArchiveSample(deviceID uint32, object bacnet.ObjectIdentifier, rec bacnet.LogRecord) error {
	value, ok := rec.Value.Float()
	if !ok {
		if u, uok := rec.Value.AsUnsigned(); uok {
			value = float64(u)
		} else if e, eok := rec.Value.AsEnumerated(); eok {
			value = float64(e)
		} else {
			return fmt.Errorf("archive: unsupported sample kind %s", rec.Value.Kind())
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO trend_samples (device_id, object_type, instance, recorded_at, value, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID, uint32(object.Type), object.Instance,
		rec.Timestamp.UnixMilli(), value, rec.Status.Byte(),
	)
	if err != nil {
		return fmt.Errorf("archive sample: %w", err)
	}
	return nil
}

// Query returns archived samples for one point in [start, end], oldest
// first. Zero times leave that bound open.
func (s *Store) Query(deviceID uint32, object bacnet.ObjectIdentifier, start, end time.Time) ([]Sample, error) {
	startMs := int64(0)
	endMs := int64(1<<62 - 1)
	if !start.IsZero() {
		startMs = start.UnixMilli()
	}
	if !end.IsZero() {
		endMs = end.UnixMilli()
	}

	rows, err := s.db.Query(
		`SELECT recorded_at, value, status FROM trend_samples
		 WHERE device_id = ? AND object_type = ? AND instance = ?
		   AND recorded_at BETWEEN ? AND ?
		 ORDER BY recorded_at ASC`,
		deviceID, uint32(object.Type), object.Instance, startMs, endMs,
	)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			ms     int64
			value  float64
			status uint8
		)
		if err := rows.Scan(&ms, &value, &status); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		samples = append(samples, Sample{
			DeviceID:   deviceID,
			Object:     object,
			RecordedAt: time.UnixMilli(ms),
			Value:      value,
			Status:     bacnet.StatusFlagsFromByte(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return samples, nil
}

// Count returns the number of archived samples for one point.
func (s *Store) Count(deviceID uint32, object bacnet.ObjectIdentifier) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM trend_samples
		 WHERE device_id = ? AND object_type = ? AND instance = ?`,
		deviceID, uint32(object.Type), object.Instance,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archive rows: %w", err)
	}
	return n, nil
}

// Prune deletes samples recorded before cutoff, returning how many rows
// were removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM trend_samples WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	return res.RowsAffected()
}
