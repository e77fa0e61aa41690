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
	"sync"

	"raftkv/internal/node"
)

// handleRequestVote answers a request_vote RPC. The vote-granting rule
// is the Open Question spec.md flags: StrictVoteRule true (the
// default) uses canonical Raft's "at least as up-to-date" comparison;
// false reproduces original_source/lib/raft.py's weaker check, kept
// only for test comparison, never as a shipped default.
func (r *Raft) handleRequestVote(n *node.Node, msg node.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	term := asInt64(msg.Body["term"])
	candidateID, _ := msg.Body["candidate_id"].(string)
	candidateLastLogIndex := asInt64(msg.Body["last_log_index"])
	candidateLastLogTerm := asInt64(msg.Body["last_log_term"])

	if term > r.term {
		r.advanceTermLocked(term)
		r.becomeFollowerLocked()
	}

	grant := r.shouldGrantVoteLocked(term, candidateID, candidateLastLogIndex, candidateLastLogTerm)
	if grant {
		r.votedFor = candidateID
		r.resetElectionDeadlineLocked()
	}

	n.Reply(msg, msgBody("type", "request_vote_res", "term", r.term, "vote_granted", grant))
	return nil
}

func (r *Raft) shouldGrantVoteLocked(term int64, candidateID string, candidateLastLogIndex, candidateLastLogTerm int64) bool {
	if term < r.term {
		return false
	}
	if r.votedFor != "" && r.votedFor != candidateID {
		return false
	}

	ours := r.raftLog.Last()
	if r.cfg.StrictVoteRule {
		if candidateLastLogTerm != ours.Term {
			return candidateLastLogTerm > ours.Term
		}
		return candidateLastLogIndex >= r.raftLog.Size()
	}

	// The weaker original_source/lib/raft.py rule: reject only when the
	// candidate's last log term matches ours exactly and its log is
	// shorter than ours. Any term mismatch, even a lower one, grants.
	rejected := candidateLastLogTerm == ours.Term && candidateLastLogIndex < r.raftLog.Size()
	return !rejected
}

// requestVotes broadcasts a request_vote RPC to every other node for
// the given term and becomes leader once a majority (including this
// node's own implicit vote) has granted.
func (r *Raft) requestVotes(term int64) {
	r.mu.Lock()
	lastLogIndex := r.raftLog.Size()
	lastLogTerm := r.raftLog.Last().Term
	nodeID := r.n.NodeID()
	clusterSize := len(r.n.NodeIDs())
	r.mu.Unlock()

	var votesMu sync.Mutex
	votes := map[string]bool{nodeID: true}

	r.n.BRPC(msgBody(
		"type", "request_vote",
		"term", term,
		"candidate_id", nodeID,
		"last_log_index", lastLogIndex,
		"last_log_term", lastLogTerm,
	), func(reply node.Message) {
		votesMu.Lock()
		defer votesMu.Unlock()

		replyTerm := asInt64(reply.Body["term"])
		granted, _ := reply.Body["vote_granted"].(bool)

		r.mu.Lock()
		defer r.mu.Unlock()

		if replyTerm > r.term {
			r.advanceTermLocked(replyTerm)
			r.becomeFollowerLocked()
			return
		}
		if r.role != Candidate || r.term != term {
			return
		}
		if !granted {
			return
		}

		votes[reply.Src] = true
		if len(votes)*2 > clusterSize {
			r.becomeLeaderLocked()
		}
	})
}
