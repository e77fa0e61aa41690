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

// Command raftkvctl is a debugging and replay tool for the raftkv Raft
// core: it can reconstruct the state a single node would have reached
// from a captured Maelstrom message transcript, drop into an
// interactive REPL against the reconstructed node, and pack/unpack
// tamper-evident audit bundles.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:     "raftkvctl",
		Short:   "Debug and replay tool for raftkv",
		Version: version,
	}

	root.AddCommand(newReplayCmd())
	root.AddCommand(newAuditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
