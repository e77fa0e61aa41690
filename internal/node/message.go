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
Package node implements the Maelstrom JSON-over-stdio message runtime
shared by every exercise in this repository: a line-delimited message
dispatcher, a handler registry keyed by body "type", an async callback
mechanism for outbound RPCs, a sync_rpc convenience wrapper, and a
periodic-task runner started once the init handshake completes.

Wire Format:
============

Every line on stdin and stdout is exactly one JSON object:

	{"src": "n1", "dest": "n2", "body": {"type": "read", "msg_id": 3, "key": "x"}}

body is free-form beyond "type"; request/reply correlation is done with
"msg_id" (set by the sender) and "in_reply_to" (echoed by the replier).
The first message a node ever receives is always:

	{"src": "c1", "dest": "n1", "body": {"type": "init", "msg_id": 1,
	 "node_id": "n1", "node_ids": ["n1", "n2", "n3"]}}

which the runtime answers with "init_ok" and uses to learn its own id
and the full cluster membership before starting any periodic task.
*/
package node

// Message is one line of the Maelstrom wire protocol.
type Message struct {
	Src  string         `json:"src"`
	Dest string         `json:"dest"`
	Body map[string]any `json:"body"`
}

// Type returns body["type"], or "" if absent or not a string.
func (m Message) Type() string {
	t, _ := m.Body["type"].(string)
	return t
}

// MsgID returns body["msg_id"] as an int64, or 0 if absent.
func (m Message) MsgID() int64 {
	return asInt64(m.Body["msg_id"])
}

// InReplyTo returns body["in_reply_to"] as an int64, or 0 if this
// message is not a reply to anything.
func (m Message) InReplyTo() int64 {
	return asInt64(m.Body["in_reply_to"])
}

// asInt64 tolerates the several numeric shapes a JSON decoder can hand
// back (float64 from encoding/json, or an already-typed int or int64)
// for fields that started life as Go ints before a round trip.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// body builds a body map from alternating key/value pairs, e.g.
// body("type", "read_ok", "value", 7).
func body(kv ...any) map[string]any {
	b := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		b[key] = kv[i+1]
	}
	return b
}
