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
	"sort"
	"time"

	"raftkv/internal/kv"
	"raftkv/internal/node"
)

// majority returns the smallest number of nodes that constitutes a
// strict majority of a cluster of size n.
func majority(n int) int {
	return n/2 + 1
}

// advanceCommitIndexLocked recomputes commitIndex from the leader's
// view of match indices. Only entries from the current term are ever
// committed directly — an entry from an earlier term becomes committed
// only as a side effect of a later current-term entry committing over
// it — which is the one subtlety in an otherwise plain "majority of
// match indices" computation.
func (r *Raft) advanceCommitIndexLocked() {
	if r.role != Leader {
		return
	}

	values := make([]int64, 0, len(r.matchIndex)+1)
	values = append(values, r.raftLog.Size())
	for _, v := range r.matchIndex {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	n := len(values)
	candidate := values[n-majority(n)]

	if candidate > r.commitIndex && r.raftLog.Get(candidate).Term == r.term {
		r.commitIndex = candidate
		r.advanceStateMachineLocked()
	}
}

// advanceStateMachineLocked applies every committed-but-not-yet-applied
// entry to the key/value map, in order, and — only if this node is
// still the leader when an entry applies — replies to the client that
// originally made the request.
func (r *Raft) advanceStateMachineLocked() {
	for r.lastApplied < r.commitIndex {
		r.lastApplied++
		entry := r.raftLog.Get(r.lastApplied)

		if entry.Req == nil {
			continue
		}

		op, opErr := kv.OpFromBody(entry.Req.Body)
		var result any
		var applyErr error
		if opErr != nil {
			applyErr = opErr
		} else {
			result, applyErr = r.sm.Apply(op)
		}

		if r.audit != nil {
			r.audit.RecordApplied(r.lastApplied, entry.Term, entry.Req.Type(), time.Now())
		}

		if r.role == Leader {
			r.replyToAppliedEntry(*entry.Req, op.Type, result, applyErr)
		}
	}
}

func (r *Raft) replyToAppliedEntry(req node.Message, opType string, result any, applyErr error) {
	if applyErr != nil {
		r.n.ReplyError(req, applyErr)
		return
	}

	switch opType {
	case "read":
		r.n.Reply(req, msgBody("type", "read_ok", "value", result))
	case "write":
		r.n.Reply(req, msgBody("type", "write_ok"))
	case "cas":
		r.n.Reply(req, msgBody("type", "cas_ok"))
	}
}
