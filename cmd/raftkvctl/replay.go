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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"raftkv/internal/config"
	"raftkv/internal/kv"
	"raftkv/internal/node"
	"raftkv/internal/raft"
)

func newReplayCmd() *cobra.Command {
	var interactive bool
	var nodeID string

	cmd := &cobra.Command{
		Use:   "replay <transcript-file>",
		Short: "Reconstruct a single node's state from a captured Maelstrom message transcript",
		Long: `replay feeds a file of newline-delimited Maelstrom messages (starting
with an init line) into a fresh, single-node raft core and prints the
key/value state it reaches. It uses a fast local election timeout
profile since a debug replay shouldn't wait out the production
election timeout to become leader.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args[0], interactive, nodeID)
		},
	}

	cmd.Flags().BoolVar(&interactive, "interactive", false, "after replay, open a REPL to issue further read/write/cas requests")
	cmd.Flags().StringVar(&nodeID, "node-id", "n1", "node id REPL requests are addressed to")

	return cmd
}

// replayConfig uses a short election timeout: a replay session
// reconstructs a single node's state and shouldn't wait out the
// production election timeout to do it.
func replayConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ElectionTimeoutMS = 50
	cfg.HeartbeatIntervalMS = 15
	cfg.MinReplicationIntervalMS = 5
	return cfg
}

func runReplay(path string, interactive bool, nodeID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	sm := kv.NewMap()
	pr, pw := io.Pipe()

	var out io.Writer = io.Discard
	if interactive {
		out = os.Stdout
	}

	n := node.New(pr, out, 0)
	raft.New(n, replayConfig(), sm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- n.Run(ctx) }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lines := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if _, err := pw.Write(append(append([]byte(nil), line...), '\n')); err != nil {
			return fmt.Errorf("feeding transcript: %w", err)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	fmt.Printf("replayed %d message(s) from %s\n", lines, path)

	// Give the single-node election a moment to complete under the
	// fast replay timeout profile before reporting or accepting
	// further commands.
	time.Sleep(150 * time.Millisecond)

	if interactive {
		if err := runInteractive(pw, nodeID); err != nil {
			return err
		}
	}

	pw.Close()
	<-runDone

	printDump(sm)
	return nil
}

func runInteractive(pw io.Writer, nodeID string) error {
	rl, err := readline.New("raftkvctl> ")
	if err != nil {
		return fmt.Errorf("starting REPL: %w", err)
	}
	defer rl.Close()

	var msgID int64
	fmt.Println("entering interactive mode - try: read <key>, write <key> <value>, cas <key> <from> <to>")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		b, err := parseReplCommand(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		b["msg_id"] = atomic.AddInt64(&msgID, 1)
		msg := node.Message{Src: "ctl", Dest: nodeID, Body: b}
		encoded, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if _, err := pw.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
	}
}

func printDump(sm *kv.Map) {
	entries := sm.Dump()
	fmt.Printf("\nfinal state (%d key(s)):\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %v = %v\n", e.Key, e.Value)
	}
}
