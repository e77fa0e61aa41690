/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForSnapshot(t *testing.T, m *Manager, n int, timeout time.Duration) []Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if snap := m.Snapshot(); len(snap) >= n {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot never reached %d records", n)
	return nil
}

func TestRecordAppliedReachesSnapshot(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	m.RecordApplied(1, 1, "write", time.Now())
	snap := waitForSnapshot(t, m, 1, time.Second)
	require.Len(t, snap, 1)
	require.Equal(t, KindApplied, snap[0].Kind)
	require.Equal(t, int64(1), snap[0].Index)
	require.Equal(t, "write", snap[0].OpType)
}

func TestRecordTransitionReachesSnapshot(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	m.RecordTransition("n1", "leader", 3, time.Now())
	snap := waitForSnapshot(t, m, 1, time.Second)
	require.Equal(t, KindTransition, snap[0].Kind)
	require.Equal(t, "n1", snap[0].NodeID)
	require.Equal(t, "leader", snap[0].Role)
	require.Equal(t, int64(3), snap[0].Term)
}

func TestSnapshotOrderingWithinUnfilledRing(t *testing.T) {
	cfg := Config{RingSize: 8, BufferSize: 8}
	m, err := New(cfg)
	require.NoError(t, err)
	defer m.Close()

	for i := int64(1); i <= 5; i++ {
		m.RecordApplied(i, 1, "write", time.Now())
	}
	snap := waitForSnapshot(t, m, 5, time.Second)
	for i, rec := range snap {
		require.Equal(t, int64(i+1), rec.Index)
	}
}

func TestSnapshotWrapsAroundFullRing(t *testing.T) {
	cfg := Config{RingSize: 4, BufferSize: 16}
	m, err := New(cfg)
	require.NoError(t, err)
	defer m.Close()

	for i := int64(1); i <= 6; i++ {
		m.RecordApplied(i, 1, "write", time.Now())
	}
	snap := waitForSnapshot(t, m, 4, time.Second)
	require.Len(t, snap, 4)
	// The ring holds only the 4 most recent of 6 records: indices 3..6.
	require.Equal(t, int64(3), snap[0].Index)
	require.Equal(t, int64(6), snap[len(snap)-1].Index)
}

func TestExportImportRoundTrip(t *testing.T) {
	records := []Record{
		{Kind: KindApplied, Index: 1, Term: 1, OpType: "write", Timestamp: time.Now()},
		{Kind: KindTransition, NodeID: "n2", Role: "leader", Term: 2, Timestamp: time.Now()},
	}

	var bundle bytes.Buffer
	digest, err := Export(&bundle, records)
	require.NoError(t, err)
	require.NotEmpty(t, digest)

	got, err := Import(&bundle, digest)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, records[0].Index, got[0].Index)
	require.Equal(t, records[1].NodeID, got[1].NodeID)
}

func TestImportRejectsTamperedBundle(t *testing.T) {
	records := []Record{{Kind: KindApplied, Index: 1, Term: 1, OpType: "write", Timestamp: time.Now()}}

	var bundle bytes.Buffer
	_, err := Export(&bundle, records)
	require.NoError(t, err)

	_, err = Import(&bundle, "not-the-real-digest")
	require.Error(t, err)
}

func TestWritesAppendOnlyLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	m, err := New(Config{RingSize: 8, BufferSize: 8, LogPath: path})
	require.NoError(t, err)

	m.RecordApplied(1, 1, "read", time.Now())
	waitForSnapshot(t, m, 1, time.Second)
	require.NoError(t, m.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"op_type":"read"`)
}

func TestRunIDIsStablePerManager(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	require.NotEmpty(t, m.RunID())
	require.Equal(t, m.RunID(), m.RunID())
}
