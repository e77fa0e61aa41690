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
Package raft implements the role machine, replicated log, and commit
pipeline behind the raftkv key/value store, grounded directly on
original_source/lib/raft.py and the Jepsen Maelstrom Go Raft demo
(_examples/other_examples). A Raft instance registers its handlers and
periodic tasks on a *node.Node and otherwise speaks only the Maelstrom
message protocol: nothing here knows about stdio directly.

Three periodic tasks drive every role transition:

  - electionTicker (every 100ms): if not Leader and the election
    deadline has passed, become a Candidate and request votes.
  - stepdownTicker (every heartbeat interval): if Leader and the
    stepdown deadline has passed (no majority of followers acked
    recently), step down to Follower.
  - replicationTicker (every min_replication_interval): if Leader,
    send AppendEntries to every follower carrying whatever new entries
    it hasn't yet seen.

A single mutex (mu) guards all Raft state. Handlers and ticker callbacks
take it once at the top and call the unexported *Locked helpers, which
assume it is already held; nothing in this package re-enters it.
*/
package raft

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"raftkv/internal/compression"
	"raftkv/internal/config"
	"raftkv/internal/kv"
	"raftkv/internal/logging"
	"raftkv/internal/node"
)

// Role is a node's position in the Raft role machine.
type Role int32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// AuditRecorder receives one notification per committed entry applied
// to the state machine, plus one per role transition (candidacy,
// election win, step-down). internal/audit implements this; Raft works fine with it
// left nil.
type AuditRecorder interface {
	RecordApplied(index, term int64, opType string, appliedAt time.Time)
	RecordTransition(nodeID string, role string, term int64, at time.Time)
}

// Raft is one node's Raft participant: role, term, log, and the
// replicated key/value state machine it drives.
type Raft struct {
	n          *node.Node
	cfg        *config.Config
	sm         *kv.Map
	log        *logging.Logger
	audit      AuditRecorder
	compressor *compression.Compressor

	mu sync.Mutex

	role     Role
	term     int64
	votedFor string
	leader   string

	raftLog *Log

	electionDeadline time.Time
	stepdownDeadline time.Time
	lastReplication  time.Time

	commitIndex int64
	lastApplied int64
	nextIndex   map[string]int64
	matchIndex  map[string]int64

	electionTimeout        time.Duration
	heartbeatInterval      time.Duration
	minReplicationInterval time.Duration

	rng *rand.Rand
}

// New returns a Raft participant wired to n, using cfg's tunables and
// sm as the key/value state machine. New only registers handlers and
// periodic tasks; the tasks start on their own once the node processes
// init, per node.Node's contract.
func New(n *node.Node, cfg *config.Config, sm *kv.Map) *Raft {
	r := &Raft{
		n:                      n,
		cfg:                    cfg,
		sm:                     sm,
		log:                    logging.NewLogger("raft"),
		raftLog:                NewLog(),
		compressor:             compression.NewCompressor(compression.DefaultConfig()),
		electionTimeout:        time.Duration(cfg.ElectionTimeoutMS) * time.Millisecond,
		heartbeatInterval:      time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		minReplicationInterval: time.Duration(cfg.MinReplicationIntervalMS) * time.Millisecond,
		rng:                    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	n.OnInit(func(nodeID string, nodeIDs []string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.nextIndex = make(map[string]int64, len(nodeIDs))
		r.matchIndex = make(map[string]int64, len(nodeIDs))
		for _, id := range nodeIDs {
			if id == nodeID {
				continue
			}
			r.nextIndex[id] = r.raftLog.Size() + 1
			r.matchIndex[id] = 0
		}
		r.resetElectionDeadlineLocked()
		r.resetStepdownDeadlineLocked()
	})

	n.Handle("read", r.handleClientRequest)
	n.Handle("write", r.handleClientRequest)
	n.Handle("cas", r.handleClientRequest)
	n.Handle("request_vote", r.handleRequestVote)
	n.Handle("append_entries", r.handleAppendEntries)

	n.Every(100*time.Millisecond, r.checkElectionTimeout)
	n.Every(r.heartbeatInterval, r.checkStepdown)
	n.Every(r.minReplicationInterval, func() { r.replicateLog(false) })

	return r
}

// SetAuditRecorder attaches an AuditRecorder notified every time a
// committed entry is applied. Must be called before init, i.e. before
// node.Run starts reading input.
func (r *Raft) SetAuditRecorder(ar AuditRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = ar
}

// Role returns the node's current role.
func (r *Raft) Role() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// Term returns the node's current term.
func (r *Raft) Term() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.term
}

// advanceTermLocked sets the current term, clearing votedFor. It is
// an error to call this with a term lower than the current one (an
// equal term is accepted), exactly as original_source/lib/raft.py's
// advance_term asserts.
func (r *Raft) advanceTermLocked(term int64) {
	if term < r.term {
		panic("raft: advanceTerm called with a term that does not advance")
	}
	r.term = term
	r.votedFor = ""
}

func (r *Raft) resetElectionDeadlineLocked() {
	jitter := time.Duration(r.rng.Int63n(int64(r.electionTimeout)))
	r.electionDeadline = time.Now().Add(r.electionTimeout + jitter)
}

func (r *Raft) resetStepdownDeadlineLocked() {
	r.stepdownDeadline = time.Now().Add(r.electionTimeout)
}

func (r *Raft) becomeFollowerLocked() {
	if r.role != Follower {
		r.log.Info("stepping down", "term", r.term)
		r.recordTransitionLocked("follower")
	}
	r.role = Follower
	r.leader = ""
	r.resetElectionDeadlineLocked()
}

func (r *Raft) becomeCandidateLocked() {
	r.role = Candidate
	r.advanceTermLocked(r.term + 1)
	r.votedFor = r.n.NodeID()
	r.resetElectionDeadlineLocked()
	r.log.Info("became candidate", "term", r.term)
	r.recordTransitionLocked("candidate")

	go r.requestVotes(r.term)
}

func (r *Raft) becomeLeaderLocked() {
	if r.role != Candidate {
		panic("raft: becomeLeader called outside the candidate role")
	}
	r.role = Leader
	r.leader = r.n.NodeID()
	for id := range r.nextIndex {
		r.nextIndex[id] = r.raftLog.Size() + 1
		r.matchIndex[id] = 0
	}
	r.resetStepdownDeadlineLocked()
	r.log.Info(fmt.Sprintf("Became leader for term %d", r.term), "term", r.term)
	r.recordTransitionLocked("leader")
}

func (r *Raft) recordTransitionLocked(role string) {
	if r.audit != nil {
		r.audit.RecordTransition(r.n.NodeID(), role, r.term, time.Now())
	}
}

// checkElectionTimeout is the electionTicker body: followers and
// candidates whose election deadline has passed start a new election.
func (r *Raft) checkElectionTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role != Leader && time.Now().After(r.electionDeadline) {
		r.becomeCandidateLocked()
	}
}

// checkStepdown is the stepdownTicker body: a leader that hasn't heard
// a majority of followers ack recently steps down, since it may no
// longer be connected to a majority of the cluster.
func (r *Raft) checkStepdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role == Leader && time.Now().After(r.stepdownDeadline) {
		r.log.Info("stepping down: stepdown deadline passed", "term", r.term)
		r.becomeFollowerLocked()
	}
}
