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
	"encoding/base64"
	"fmt"
	"time"

	jsoncodec "github.com/goccy/go-json"

	"raftkv/internal/compression"
	raftkverrors "raftkv/internal/errors"
	"raftkv/internal/node"
)

// wireEntry is the wire shape of one LogEntry inside an append_entries
// body: the client request's body is carried verbatim together with its
// src, so whichever node applies the entry as leader can reply to the
// client, alongside the term the entry was appended in.
type wireEntry struct {
	Term int64          `json:"term"`
	Op   map[string]any `json:"op,omitempty"`
	Src  string         `json:"src,omitempty"`
}

func toWire(e LogEntry) wireEntry {
	w := wireEntry{Term: e.Term}
	if e.Req != nil {
		w.Op = e.Req.Body
		w.Src = e.Req.Src
	}
	return w
}

func fromWire(w wireEntry) LogEntry {
	e := LogEntry{Term: w.Term}
	if w.Op != nil {
		e.Req = &node.Message{Src: w.Src, Body: w.Op}
	}
	return e
}

// encodeEntriesForWire returns the append_entries body fields carrying
// wireEntries: "entries" verbatim for a small batch, or
// "entries_compressed" (base64) plus "entries_algo" once the batch
// crosses the compressor's size threshold, shrinking what crosses the
// stdio boundary during log catch-up after a partition heals.
func (r *Raft) encodeEntriesForWire(wireEntries []map[string]any) (map[string]any, error) {
	if len(wireEntries) == 0 {
		return map[string]any{"entries": wireEntries}, nil
	}

	raw, err := jsoncodec.Marshal(wireEntries)
	if err != nil {
		return nil, fmt.Errorf("marshaling entries: %w", err)
	}
	if !r.compressor.ShouldCompress(len(raw)) {
		return map[string]any{"entries": wireEntries}, nil
	}

	compressed, err := r.compressor.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compressing entries: %w", err)
	}
	return map[string]any{
		"entries_compressed": base64.StdEncoding.EncodeToString(compressed),
		"entries_algo":       r.compressor.Algorithm().String(),
	}, nil
}

// decodeEntriesFromWire reverses encodeEntriesForWire.
func (r *Raft) decodeEntriesFromWire(body map[string]any) ([]any, error) {
	encoded, ok := body["entries_compressed"].(string)
	if !ok {
		rawEntries, _ := body["entries"].([]any)
		return rawEntries, nil
	}

	algoName, _ := body["entries_algo"].(string)
	algo, err := compression.ParseAlgorithm(algoName)
	if err != nil {
		return nil, err
	}

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 entries: %w", err)
	}
	raw, err := r.compressor.Decompress(compressed, algo)
	if err != nil {
		return nil, fmt.Errorf("decompressing entries: %w", err)
	}

	var entries []any
	if err := jsoncodec.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshaling decompressed entries: %w", err)
	}
	return entries, nil
}

// handleAppendEntries answers an append_entries RPC from the current
// (or a new) leader. Mirrors
// original_source/lib/raft.py's handle_append_entries exactly: step
// down if the sender's term is current-or-higher, reject stale terms,
// reject a negative prev_log_index (index 0 is the sentinel, which every
// log holds) as an internal invariant
// violation (abort, not a normal rejection), reject on a prev-entry
// term mismatch, otherwise truncate any conflicting suffix, append, and
// advance the commit index.
func (r *Raft) handleAppendEntries(n *node.Node, msg node.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	term := asInt64(msg.Body["term"])
	leaderID, _ := msg.Body["leader_id"].(string)
	prevLogIndex := asInt64(msg.Body["prev_log_index"])
	prevLogTerm := asInt64(msg.Body["prev_log_term"])
	leaderCommit := asInt64(msg.Body["leader_commit"])

	if term > r.term {
		r.advanceTermLocked(term)
	}
	if term >= r.term {
		r.becomeFollowerLocked()
		r.leader = leaderID
	}

	if term < r.term {
		n.Reply(msg, msgBody("type", "append_entries_res", "term", r.term, "success", false))
		return nil
	}

	if prevLogIndex < 0 {
		return raftkverrors.Abort(fmt.Sprintf("invalid prev_log_index %d", prevLogIndex))
	}

	if prevLogIndex > r.raftLog.Size() || r.raftLog.Get(prevLogIndex).Term != prevLogTerm {
		n.Reply(msg, msgBody("type", "append_entries_res", "term", r.term, "success", false))
		return nil
	}

	rawEntries, err := r.decodeEntriesFromWire(msg.Body)
	if err != nil {
		return raftkverrors.Abort(fmt.Sprintf("corrupt append_entries payload: %v", err))
	}
	entries := make([]LogEntry, 0, len(rawEntries))
	for _, raw := range rawEntries {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		w := wireEntry{Term: asInt64(m["term"])}
		if op, ok := m["op"].(map[string]any); ok {
			w.Op = op
		}
		if src, ok := m["src"].(string); ok {
			w.Src = src
		}
		entries = append(entries, fromWire(w))
	}

	r.raftLog.Truncate(prevLogIndex)
	r.raftLog.Append(entries...)

	if leaderCommit > r.commitIndex {
		r.commitIndex = minInt64(leaderCommit, r.raftLog.Size())
		r.advanceStateMachineLocked()
	}

	n.Reply(msg, msgBody("type", "append_entries_res", "term", r.term, "success", true))
	return nil
}

// replicateLog is the replicationTicker body. When this node is not
// leader it is a no-op; force bypasses the min_replication_interval
// rate limit so a client entry the leader just appended goes out at once.
func (r *Raft) replicateLog(force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role != Leader {
		return
	}
	if !force && time.Since(r.lastReplication) < r.minReplicationInterval {
		return
	}
	r.lastReplication = time.Now()

	term := r.term
	leaderID := r.n.NodeID()
	commitIndex := r.commitIndex

	for follower, nextIdx := range r.nextIndex {
		follower := follower
		ni := nextIdx
		entries := r.raftLog.FromIndex(ni)
		count := int64(len(entries))

		wireEntries := make([]map[string]any, len(entries))
		for i, e := range entries {
			w := toWire(e)
			wireEntries[i] = map[string]any{"term": w.Term}
			if w.Op != nil {
				wireEntries[i]["op"] = w.Op
				wireEntries[i]["src"] = w.Src
			}
		}

		body := msgBody(
			"type", "append_entries",
			"term", term,
			"leader_id", leaderID,
			"prev_log_index", ni-1,
			"prev_log_term", r.raftLog.Get(ni-1).Term,
			"leader_commit", commitIndex,
		)
		entriesFields, err := r.encodeEntriesForWire(wireEntries)
		if err != nil {
			r.log.Error("failed to encode append_entries batch", "follower", follower, "error", err.Error())
			continue
		}
		for k, v := range entriesFields {
			body[k] = v
		}

		r.n.RPC(follower, body, func(reply node.Message) {
			r.handleAppendEntriesReply(reply, term, follower, ni, count)
		})
	}
}

func (r *Raft) handleAppendEntriesReply(reply node.Message, term int64, follower string, sentFrom, sentCount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replyTerm := asInt64(reply.Body["term"])
	if replyTerm > r.term {
		r.advanceTermLocked(replyTerm)
		r.becomeFollowerLocked()
		return
	}
	if r.role != Leader || r.term != term {
		return
	}

	r.resetStepdownDeadlineLocked()

	success, _ := reply.Body["success"].(bool)
	if success {
		newMatch := sentFrom + sentCount - 1
		if newMatch > r.matchIndex[follower] {
			r.matchIndex[follower] = newMatch
		}
		r.nextIndex[follower] = newMatch + 1
		r.advanceCommitIndexLocked()
	} else if r.nextIndex[follower] > 1 {
		r.nextIndex[follower]--
	}
}
