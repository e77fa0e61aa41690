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

import "raftkv/internal/node"

// LogEntry is one slot in the replicated log. Req holds the original
// client request message, not just its body, so that whichever node
// happens to be leader when the entry commits can reply directly to
// Req.Src — mirroring original_source/lib/raft.py, which stores the
// whole request in the log entry's "op" field for exactly this reason.
// Req is nil for the sentinel entry at index 0.
type LogEntry struct {
	Term int64
	Req  *node.Message
}

// Log is the replicated log, 1-indexed like original_source/lib/raft.py:
// entries[0] is a sentinel with Term 0 that never replicates or applies,
// so Size() always equals the number of real entries and an empty log's
// "last entry" is well-defined.
type Log struct {
	entries []LogEntry
}

// NewLog returns a log containing only the sentinel entry.
func NewLog() *Log {
	return &Log{entries: []LogEntry{{Term: 0}}}
}

// Size returns the number of real (non-sentinel) entries.
func (l *Log) Size() int64 {
	return int64(len(l.entries) - 1)
}

// Get returns the entry at the given 1-indexed position, or the
// sentinel for index 0.
func (l *Log) Get(index int64) LogEntry {
	return l.entries[index]
}

// Last returns the most recently appended entry, or the sentinel if the
// log is empty.
func (l *Log) Last() LogEntry {
	return l.entries[len(l.entries)-1]
}

// Append adds entries to the end of the log.
func (l *Log) Append(entries ...LogEntry) {
	l.entries = append(l.entries, entries...)
}

// Truncate discards every entry after the given 1-indexed position,
// keeping entries 1..index.
func (l *Log) Truncate(index int64) {
	l.entries = l.entries[:index+1]
}

// FromIndex returns every real entry starting at the given 1-indexed
// position, for use as an AppendEntries payload.
func (l *Log) FromIndex(index int64) []LogEntry {
	if index < 1 {
		index = 1
	}
	if index > int64(len(l.entries)) {
		return nil
	}
	out := make([]LogEntry, len(l.entries)-int(index))
	copy(out, l.entries[index:])
	return out
}
