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

	"raftkv/internal/kv"
	"raftkv/internal/logging"
)

func TestMajority(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4}
	for n, want := range cases {
		require.Equal(t, want, majority(n), "majority(%d)", n)
	}
}

// newTestRaft builds a Raft with just enough state to exercise the
// commit pipeline directly, without a real node.Node or io.
func newTestRaft(term int64, leaderLogSize int64, matchIndex map[string]int64) *Raft {
	l := NewLog()
	for i := int64(0); i < leaderLogSize; i++ {
		l.Append(LogEntry{Term: term})
	}
	return &Raft{
		log:        logging.NewLogger("raft-test"),
		sm:         kv.NewMap(),
		raftLog:    l,
		role:       Leader,
		term:       term,
		matchIndex: matchIndex,
	}
}

func TestAdvanceCommitIndexThreeNodes(t *testing.T) {
	r := newTestRaft(1, 3, map[string]int64{"n2": 3, "n3": 1})
	r.advanceCommitIndexLocked()
	// sorted [1(n3), 3(leader), 3(n2)] -> majority(3)=2 -> index n-2=1 -> value 3
	require.Equal(t, int64(3), r.commitIndex)
}

func TestAdvanceCommitIndexFourNodes(t *testing.T) {
	r := newTestRaft(1, 5, map[string]int64{"n2": 5, "n3": 2, "n4": 2})
	r.advanceCommitIndexLocked()
	// sorted [2,2,5(leader),5] -> majority(4)=3 -> index 4-3=1 -> value 2
	require.Equal(t, int64(2), r.commitIndex)
}

func TestAdvanceCommitIndexFiveNodes(t *testing.T) {
	r := newTestRaft(1, 7, map[string]int64{"n2": 7, "n3": 7, "n4": 3, "n5": 1})
	r.advanceCommitIndexLocked()
	// sorted [1,3,7(leader),7,7] -> majority(5)=3 -> index 5-3=2 -> value 7
	require.Equal(t, int64(7), r.commitIndex)
}

func TestAdvanceCommitIndexRefusesEntryFromEarlierTerm(t *testing.T) {
	l := NewLog()
	l.Append(LogEntry{Term: 1}) // index 1, term 1
	l.Append(LogEntry{Term: 2}) // index 2, term 2 (current term)

	r := &Raft{
		log:        logging.NewLogger("raft-test"),
		sm:         kv.NewMap(),
		raftLog:    l,
		role:       Leader,
		term:       2,
		matchIndex: map[string]int64{"n2": 1, "n3": 1},
	}
	r.advanceCommitIndexLocked()
	// majority(3)=2, sorted [1(n2),1(n3),2(leader)] -> index 1 -> value 1,
	// but log[1].Term == 1 != currentTerm 2, so it must NOT commit.
	require.Equal(t, int64(0), r.commitIndex)
}

func TestAdvanceStateMachineAdvancesLastAppliedToCommitIndex(t *testing.T) {
	l := NewLog()
	writeReq := LogEntry{Term: 1, Req: nil}
	l.Append(writeReq)

	r := &Raft{
		log:         logging.NewLogger("raft-test"),
		sm:          kv.NewMap(),
		raftLog:     l,
		role:        Follower,
		term:        1,
		commitIndex: 1,
		lastApplied: 0,
		matchIndex:  map[string]int64{},
	}
	r.advanceStateMachineLocked()
	require.Equal(t, int64(1), r.lastApplied)
}
