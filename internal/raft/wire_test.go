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

package raft

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"raftkv/internal/compression"
)

func newWireTestRaft() *Raft {
	return &Raft{compressor: compression.NewCompressor(compression.DefaultConfig())}
}

func TestEncodeEntriesForWireSmallBatchStaysPlain(t *testing.T) {
	r := newWireTestRaft()
	wireEntries := []map[string]any{{"term": int64(1), "op": map[string]any{"type": "write"}, "src": "c1"}}

	fields, err := r.encodeEntriesForWire(wireEntries)
	require.NoError(t, err)
	require.Contains(t, fields, "entries")
	require.NotContains(t, fields, "entries_compressed")
}

func TestEncodeEntriesForWireLargeBatchCompresses(t *testing.T) {
	r := newWireTestRaft()

	big := strings.Repeat("x", 1024)
	wireEntries := make([]map[string]any, 50)
	for i := range wireEntries {
		wireEntries[i] = map[string]any{"term": int64(1), "op": map[string]any{"type": "write", "value": big}, "src": "c1"}
	}

	fields, err := r.encodeEntriesForWire(wireEntries)
	require.NoError(t, err)
	require.Contains(t, fields, "entries_compressed")
	require.Equal(t, "snappy", fields["entries_algo"])
}

func TestDecodeEntriesFromWireRoundTrip(t *testing.T) {
	r := newWireTestRaft()

	big := strings.Repeat("y", 1024)
	wireEntries := make([]map[string]any, 50)
	for i := range wireEntries {
		wireEntries[i] = map[string]any{"term": int64(2), "op": map[string]any{"type": "write", "key": "k", "value": big}, "src": "c1"}
	}

	fields, err := r.encodeEntriesForWire(wireEntries)
	require.NoError(t, err)
	require.Contains(t, fields, "entries_compressed")

	decoded, err := r.decodeEntriesFromWire(fields)
	require.NoError(t, err)
	require.Len(t, decoded, len(wireEntries))

	first, ok := decoded[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(2), first["term"])
}

func TestDecodeEntriesFromWirePlainPassthrough(t *testing.T) {
	r := newWireTestRaft()
	body := map[string]any{"entries": []any{map[string]any{"term": float64(1)}}}

	decoded, err := r.decodeEntriesFromWire(body)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
}

func TestDecodeEntriesFromWireRejectsUnknownAlgorithm(t *testing.T) {
	r := newWireTestRaft()
	body := map[string]any{"entries_compressed": "AAAA", "entries_algo": "bogus"}

	_, err := r.decodeEntriesFromWire(body)
	require.Error(t, err)
}
