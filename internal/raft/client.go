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
	raftkverrors "raftkv/internal/errors"
	"raftkv/internal/node"
)

// handleClientRequest serves read, write, and cas: the three client
// operations that all funnel through the log, per spec.md §4.5 and the
// Open Question resolution in SPEC_FULL.md §13.2 (no read-index fast
// path — every operation, including read, commits before it replies).
//
// A non-leader with a known leader forwards the request and relays the
// leader's eventual reply back to the original client, preserving its
// msg_id. A non-leader with no known leader fails fast rather than
// leaving the client hanging. A leader appends the request to its own
// log and defers the reply until the entry commits and applies
// (handled by advanceStateMachineLocked), exactly as
// original_source/lib/raft.py's client_req does.
func (r *Raft) handleClientRequest(n *node.Node, msg node.Message) error {
	r.mu.Lock()
	if r.role == Leader {
		r.raftLog.Append(LogEntry{Term: r.term, Req: &msg})
		r.mu.Unlock()
		r.replicateLog(true)
		return nil
	}
	leader := r.leader
	r.mu.Unlock()

	if leader == "" {
		return raftkverrors.TemporarilyUnavailable("not currently a leader, and no leader known")
	}

	clientSrc := msg.Src
	clientMsgID := msg.MsgID()

	forwardBody := make(map[string]any, len(msg.Body))
	for k, v := range msg.Body {
		forwardBody[k] = v
	}
	delete(forwardBody, "msg_id")

	n.RPC(leader, forwardBody, func(reply node.Message) {
		relayed := make(map[string]any, len(reply.Body))
		for k, v := range reply.Body {
			relayed[k] = v
		}
		delete(relayed, "msg_id")

		origReq := node.Message{Src: clientSrc, Body: map[string]any{"msg_id": clientMsgID}}
		n.Reply(origReq, relayed)
	})
	return nil
}
