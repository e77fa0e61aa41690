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

/*
Package kv is the replicated state machine applied to committed Raft log
entries: a key/value map supporting read, write, and compare-and-swap,
exactly mirroring original_source/lib/raft.py's Map class. Linearizable
consistency for all three operations comes entirely from being applied
in Raft log order on every replica, never from a lock held across
network calls.
*/
package kv

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	raftkverrors "raftkv/internal/errors"
)

// Op is a parsed client operation ready to apply to the Map.
type Op struct {
	Type  string // "read", "write", or "cas"
	Key   any
	Value any // write's new value
	From  any // cas's expected current value
	To    any // cas's new value
}

// OpFromBody parses a Maelstrom request body into an Op, rejecting a
// request missing its key or, for write/cas, its value fields.
func OpFromBody(b map[string]any) (Op, error) {
	opType, _ := b["type"].(string)
	key, hasKey := b["key"]
	if !hasKey {
		return Op{}, raftkverrors.MalformedRequest(fmt.Sprintf("%s request missing key", opType))
	}

	switch opType {
	case "read":
		return Op{Type: "read", Key: key}, nil
	case "write":
		value, ok := b["value"]
		if !ok {
			return Op{}, raftkverrors.MalformedRequest("write request missing value")
		}
		return Op{Type: "write", Key: key, Value: value}, nil
	case "cas":
		from, hasFrom := b["from"]
		to, hasTo := b["to"]
		if !hasFrom || !hasTo {
			return Op{}, raftkverrors.MalformedRequest("cas request missing from/to")
		}
		return Op{Type: "cas", Key: key, From: from, To: to}, nil
	default:
		return Op{}, raftkverrors.NotSupported(opType)
	}
}

// Map is the key/value state machine. Its zero value is not usable; use
// NewMap.
type Map struct {
	mu   sync.Mutex
	data map[any]any
}

// NewMap returns an empty state machine.
func NewMap() *Map {
	return &Map{data: make(map[any]any)}
}

// Apply executes op against the map and returns the value a read/cas
// reply should carry (nil for write). Callers applying committed Raft
// log entries are expected to serialize calls to Apply themselves (the
// Raft mutex already does this); Map's own mutex exists so the state
// machine is also safe to exercise directly in tests.
func (m *Map) Apply(op Op) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op.Type {
	case "read":
		v, ok := m.data[op.Key]
		if !ok {
			return nil, raftkverrors.KeyDoesNotExist(fmt.Sprint(op.Key))
		}
		return v, nil

	case "write":
		m.data[op.Key] = op.Value
		return nil, nil

	case "cas":
		v, ok := m.data[op.Key]
		if !ok {
			return nil, raftkverrors.KeyDoesNotExist(fmt.Sprint(op.Key))
		}
		if !valuesEqual(v, op.From) {
			return nil, raftkverrors.PreconditionFailed(fmt.Sprint(op.Key), op.From, v)
		}
		m.data[op.Key] = op.To
		return nil, nil

	default:
		return nil, raftkverrors.NotSupported(op.Type)
	}
}

// valuesEqual compares two JSON-decoded values for cas's "from" check,
// treating every numeric shape (float64, int, int64) as equal by value
// since a JSON round trip through encoding/json or goccy/go-json always
// produces float64 while a test or cli may hand in a plain int.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Entry is one key/value pair returned by Dump.
type Entry struct {
	Key   any
	Value any
}

// Dump returns every key/value pair in deterministic, locale-aware
// ascending key order, independent of Go's randomized map iteration
// order; `raftkvctl replay` uses it to print the final state.
func (m *Map) Dump() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.data))
	for k, v := range m.data {
		entries = append(entries, Entry{Key: k, Value: v})
	}

	col := collate.New(language.Und)
	sort.Slice(entries, func(i, j int) bool {
		return col.CompareString(fmt.Sprint(entries[i].Key), fmt.Sprint(entries[j].Key)) < 0
	})
	return entries
}

// Len returns the number of keys currently stored.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
