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
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	jsoncodec "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"raftkv/internal/config"
	"raftkv/internal/kv"
	"raftkv/internal/node"
)

// cluster wires together a handful of node.Node/Raft pairs without any
// real stdio: every node's outbound writes are parsed back into
// Messages and handed to bus.route, which either delivers to another
// node's input queue or, if the destination isn't a cluster member, to
// the fake client's inbox. This is the same wiring the Maelstrom
// harness does over stdin/stdout, just in-process, so every test in
// this file exercises the real dispatch/RPC/Raft code paths.
type cluster struct {
	mu     sync.Mutex
	inputs map[string]chan []byte
	rafts  map[string]*Raft
	nodes  map[string]*node.Node
	client chan node.Message
}

func newCluster(t *testing.T, ids []string, cfg *config.Config) *cluster {
	c := &cluster{
		inputs: make(map[string]chan []byte, len(ids)),
		rafts:  make(map[string]*Raft, len(ids)),
		nodes:  make(map[string]*node.Node, len(ids)),
		client: make(chan node.Message, 256),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for _, id := range ids {
		id := id
		c.inputs[id] = make(chan []byte, 256)
		n := node.New(&chanReader{ch: c.inputs[id]}, &busWriter{cluster: c, from: id}, time.Second)
		r := New(n, cfg, kv.NewMap())
		c.nodes[id] = n
		c.rafts[id] = r

		go func() {
			_ = n.Run(ctx)
		}()
	}

	for _, id := range ids {
		c.deliverInit(id, ids)
	}

	return c
}

// deliverInit hand-delivers the init handshake a real Maelstrom harness
// would send first, without going through the bus (its source, "c0",
// is not a cluster member, so route would otherwise misfile it as a
// client reply).
func (c *cluster) deliverInit(nodeID string, allIDs []string) {
	idsAny := make([]any, len(allIDs))
	for i, id := range allIDs {
		idsAny[i] = id
	}
	msg := node.Message{
		Src:  "c0",
		Dest: nodeID,
		Body: map[string]any{
			"type":     "init",
			"msg_id":   1,
			"node_id":  nodeID,
			"node_ids": idsAny,
		},
	}
	c.deliver(nodeID, msg)
}

func (c *cluster) deliver(nodeID string, msg node.Message) {
	encoded, err := jsoncodec.Marshal(msg)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	ch := c.inputs[nodeID]
	c.mu.Unlock()
	if ch == nil {
		return
	}
	ch <- append(encoded, '\n')
}

// route is called with one fully-framed outbound line from some node;
// it decides whether the destination is another cluster member or the
// outside world (the fake client).
func (c *cluster) route(line []byte) {
	var msg node.Message
	if err := jsoncodec.Unmarshal(line, &msg); err != nil {
		return
	}
	c.mu.Lock()
	_, isClusterMember := c.inputs[msg.Dest]
	c.mu.Unlock()

	if isClusterMember {
		c.deliver(msg.Dest, msg)
		return
	}
	select {
	case c.client <- msg:
	default:
	}
}

// clientCall sends body from the fake client "c1" to dest and waits for
// a reply correlated by msg_id, exactly as a real Maelstrom client
// would over stdin/stdout.
func (c *cluster) clientCall(t *testing.T, dest string, body map[string]any, msgID int64, timeout time.Duration) node.Message {
	t.Helper()
	body["msg_id"] = msgID
	c.deliver(dest, node.Message{Src: "c1", Dest: dest, Body: body})

	deadline := time.After(timeout)
	for {
		select {
		case reply := <-c.client:
			if reply.InReplyTo() == msgID {
				return reply
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reply to msg_id %d from %s", msgID, dest)
		}
	}
}

func (c *cluster) leader() *Raft {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rafts {
		if r.Role() == Leader {
			return r
		}
	}
	return nil
}

func (c *cluster) anyNodeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.inputs {
		return id
	}
	return ""
}

// chanReader adapts a channel of framed lines to an io.Reader so
// node.Node.Run's bufio.Scanner can read from it exactly as it would
// from a real stdin pipe.
type chanReader struct {
	ch  chan []byte
	buf []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		b, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.buf = b
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// busWriter adapts a node's raw stdout writes, which may arrive split
// across several Write calls, back into whole newline-delimited
// messages for cluster.route.
type busWriter struct {
	cluster *cluster
	from    string
	buf     []byte
}

func (w *busWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := append([]byte(nil), w.buf[:idx]...)
		w.buf = w.buf[idx+1:]
		w.cluster.route(line)
	}
	return len(p), nil
}

func fastTestConfig() *config.Config {
	return &config.Config{
		ElectionTimeoutMS:        100,
		HeartbeatIntervalMS:      30,
		MinReplicationIntervalMS: 10,
		SyncRPCTimeoutMS:         2000,
		LogLevel:                 "error",
		StrictVoteRule:           true,
	}
}

func waitForLeader(t *testing.T, c *cluster, timeout time.Duration) *Raft {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r := c.leader(); r != nil {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no leader elected before timeout")
	return nil
}

func TestClusterElectsExactlyOneLeaderFromColdStart(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	c := newCluster(t, ids, fastTestConfig())

	r := waitForLeader(t, c, 2*time.Second)
	require.NotNil(t, r)

	time.Sleep(50 * time.Millisecond)
	leaders := 0
	for _, id := range ids {
		if c.rafts[id].Role() == Leader {
			leaders++
		}
	}
	require.Equal(t, 1, leaders)
}

func TestClusterReplicatesWriteAndReadsItBack(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	c := newCluster(t, ids, fastTestConfig())
	waitForLeader(t, c, 2*time.Second)

	target := c.anyNodeID()
	writeReply := c.clientCall(t, target, map[string]any{"type": "write", "key": "x", "value": float64(7)}, 1, time.Second)
	require.Equal(t, "write_ok", writeReply.Type())

	readReply := c.clientCall(t, target, map[string]any{"type": "read", "key": "x"}, 2, time.Second)
	require.Equal(t, "read_ok", readReply.Type())
	require.Equal(t, float64(7), readReply.Body["value"])
}

func TestClusterNonLeaderForwardsClientRequest(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	c := newCluster(t, ids, fastTestConfig())
	waitForLeader(t, c, 2*time.Second)

	var follower string
	for _, id := range ids {
		if c.rafts[id].Role() != Leader {
			follower = id
			break
		}
	}
	require.NotEmpty(t, follower)

	reply := c.clientCall(t, follower, map[string]any{"type": "write", "key": "y", "value": float64(1)}, 1, time.Second)
	require.Equal(t, "write_ok", reply.Type())
}

func TestClusterCasRoundTrip(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	c := newCluster(t, ids, fastTestConfig())
	waitForLeader(t, c, 2*time.Second)

	target := c.anyNodeID()
	_ = c.clientCall(t, target, map[string]any{"type": "write", "key": "z", "value": float64(1)}, 1, time.Second)

	ok := c.clientCall(t, target, map[string]any{"type": "cas", "key": "z", "from": float64(1), "to": float64(2)}, 2, time.Second)
	require.Equal(t, "cas_ok", ok.Type())

	failed := c.clientCall(t, target, map[string]any{"type": "cas", "key": "z", "from": float64(99), "to": float64(3)}, 3, time.Second)
	require.Equal(t, "error", failed.Type())
	require.Equal(t, float64(22), failed.Body["code"])
}

func TestClusterOfFiveElectsAndReplicates(t *testing.T) {
	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	c := newCluster(t, ids, fastTestConfig())

	r1 := waitForLeader(t, c, 2*time.Second)
	require.Greater(t, r1.Term(), int64(0))

	target := c.anyNodeID()
	reply := c.clientCall(t, target, map[string]any{"type": "write", "key": "a", "value": float64(42)}, 1, time.Second)
	require.Equal(t, "write_ok", reply.Type())

	readReply := c.clientCall(t, target, map[string]any{"type": "read", "key": "a"}, 2, time.Second)
	require.Equal(t, float64(42), readReply.Body["value"])
}
