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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raftkv/internal/audit"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected string
	}{
		{"bytes", 500, "500 bytes"},
		{"kilobytes", 1024, "1.00 KB"},
		{"megabytes", 1024 * 1024, "1.00 MB"},
		{"gigabytes", 1024 * 1024 * 1024, "1.00 GB"},
		{"mixed KB", 2560, "2.50 KB"},
		{"mixed MB", 5 * 1024 * 1024, "5.00 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, formatFileSize(tt.size))
		})
	}
}

func TestFilterRecordsByKind(t *testing.T) {
	records := []audit.Record{
		{Kind: audit.KindApplied, Index: 1, Term: 1, OpType: "write"},
		{Kind: audit.KindTransition, NodeID: "n1", Role: "leader", Term: 1},
	}

	applied := filterRecords(records, "applied", "")
	require.Len(t, applied, 1)
	require.Equal(t, audit.KindApplied, applied[0].Kind)

	transitions := filterRecords(records, "transition", "")
	require.Len(t, transitions, 1)
	require.Equal(t, audit.KindTransition, transitions[0].Kind)
}

func TestFilterRecordsByNode(t *testing.T) {
	records := []audit.Record{
		{Kind: audit.KindTransition, NodeID: "n1", Role: "candidate", Term: 1},
		{Kind: audit.KindTransition, NodeID: "n2", Role: "leader", Term: 1},
	}

	filtered := filterRecords(records, "", "n2")
	require.Len(t, filtered, 1)
	require.Equal(t, "n2", filtered[0].NodeID)
}

func TestFilterRecordsNoFilterReturnsAll(t *testing.T) {
	records := []audit.Record{
		{Kind: audit.KindApplied, Index: 1, Term: 1},
		{Kind: audit.KindApplied, Index: 2, Term: 1},
	}
	require.Len(t, filterRecords(records, "", ""), 2)
}

func TestReadDigestSidecarTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "bundle.zst")
	require.NoError(t, os.WriteFile(bundlePath+".digest", []byte("  deadbeef\n"), 0o644))

	digest, err := readDigestSidecar(bundlePath)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", digest)
}

func TestReadDigestSidecarMissingFile(t *testing.T) {
	_, err := readDigestSidecar(filepath.Join(t.TempDir(), "missing.zst"))
	require.Error(t, err)
}

func TestWriteJSONLinesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.jsonl")

	records := []audit.Record{
		{Kind: audit.KindApplied, Index: 1, Term: 2, OpType: "read", Timestamp: time.Unix(0, 0).UTC()},
	}
	require.NoError(t, writeJSONLines(out, records))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), `"op_type":"read"`)
}
