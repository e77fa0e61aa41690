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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogStartsWithSentinel(t *testing.T) {
	l := NewLog()
	require.Equal(t, int64(0), l.Size())
	require.Equal(t, int64(0), l.Last().Term)
}

func TestLogAppendAndGet(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1}, LogEntry{Term: 1}, LogEntry{Term: 2})

	require.Equal(t, int64(3), l.Size())
	require.Equal(t, int64(1), l.Get(1).Term)
	require.Equal(t, int64(2), l.Get(3).Term)
	require.Equal(t, int64(2), l.Last().Term)
}

func TestLogTruncate(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1}, LogEntry{Term: 2}, LogEntry{Term: 3})

	l.Truncate(1)
	require.Equal(t, int64(1), l.Size())
	require.Equal(t, int64(1), l.Last().Term)
}

func TestLogFromIndex(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1}, LogEntry{Term: 2}, LogEntry{Term: 3})

	entries := l.FromIndex(2)
	require.Len(t, entries, 2)
	require.Equal(t, int64(2), entries[0].Term)
	require.Equal(t, int64(3), entries[1].Term)

	require.Empty(t, l.FromIndex(10))
}
