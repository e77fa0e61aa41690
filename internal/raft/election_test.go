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

	"raftkv/internal/config"
)

func newVoteTestRaft(strict bool, ourTerm int64, logEntries ...LogEntry) *Raft {
	l := NewLog()
	l.Append(logEntries...)
	return &Raft{
		cfg:     &config.Config{StrictVoteRule: strict},
		raftLog: l,
		term:    ourTerm,
	}
}

func TestShouldGrantVoteRejectsStaleTerm(t *testing.T) {
	r := newVoteTestRaft(true, 5)
	require.False(t, r.shouldGrantVoteLocked(4, "n2", 0, 0))
}

func TestShouldGrantVoteRejectsAlreadyVotedForSomeoneElse(t *testing.T) {
	r := newVoteTestRaft(true, 1)
	r.votedFor = "n3"
	require.False(t, r.shouldGrantVoteLocked(1, "n2", 0, 0))
}

func TestShouldGrantVoteAllowsRevotingSameCandidate(t *testing.T) {
	r := newVoteTestRaft(true, 1)
	r.votedFor = "n2"
	require.True(t, r.shouldGrantVoteLocked(1, "n2", 0, 0))
}

func TestShouldGrantVoteStrictRejectsShorterLogSameTerm(t *testing.T) {
	r := newVoteTestRaft(true, 1, LogEntry{Term: 1}, LogEntry{Term: 1})
	require.False(t, r.shouldGrantVoteLocked(1, "n2", 1, 1))
}

func TestShouldGrantVoteStrictGrantsOnHigherCandidateLogTerm(t *testing.T) {
	r := newVoteTestRaft(true, 1, LogEntry{Term: 1})
	require.True(t, r.shouldGrantVoteLocked(1, "n2", 1, 2))
}

func TestShouldGrantVoteStrictRejectsLowerCandidateLogTerm(t *testing.T) {
	r := newVoteTestRaft(true, 1, LogEntry{Term: 2})
	require.False(t, r.shouldGrantVoteLocked(1, "n2", 1, 1))
}

func TestShouldGrantVoteStrictGrantsOnLongerLogSameTerm(t *testing.T) {
	r := newVoteTestRaft(true, 1, LogEntry{Term: 1})
	require.True(t, r.shouldGrantVoteLocked(1, "n2", 5, 1))
}

func TestShouldGrantVoteWeakRejectsOnlyOnSameTermShorterLog(t *testing.T) {
	r := newVoteTestRaft(false, 1, LogEntry{Term: 1}, LogEntry{Term: 1})
	require.False(t, r.shouldGrantVoteLocked(1, "n2", 1, 1))
}

func TestShouldGrantVoteWeakGrantsOnTermMismatchEvenIfShorter(t *testing.T) {
	r := newVoteTestRaft(false, 1, LogEntry{Term: 1}, LogEntry{Term: 1})
	// Candidate's last log term (2) differs from ours (1): the weak rule
	// grants regardless of the candidate's shorter log, unlike the
	// strict rule which would reject this as less up-to-date.
	require.True(t, r.shouldGrantVoteLocked(1, "n2", 1, 2))
}
