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

// Command raftkv-node is the Maelstrom binary: it speaks newline-delimited
// JSON on stdin/stdout, replicates client reads/writes/cas through Raft,
// and applies committed entries to an in-memory key/value map. It takes
// no network flags of its own - topology comes entirely from the init
// message a Maelstrom harness sends on startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raftkv/internal/audit"
	"raftkv/internal/config"
	"raftkv/internal/kv"
	"raftkv/internal/logging"
	"raftkv/internal/node"
	"raftkv/internal/raft"
)

var (
	configFile = flag.String("config", "", "path to a TOML config file (optional, env RAFTKV_* overrides take precedence)")
	auditLog   = flag.String("audit-log", "", "path to an append-only JSON-lines audit trail (optional, disabled by default)")
	version    = flag.Bool("version", false, "print version and exit")
)

const buildVersion = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("raftkv-node version %s\n", buildVersion)
		return
	}

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "raftkv-node: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "raftkv-node: invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	log := logging.NewLogger("main")
	log.Info("starting raftkv-node", "config", cfg.String())

	sm := kv.NewMap()
	n := node.New(os.Stdin, os.Stdout, time.Duration(cfg.SyncRPCTimeoutMS)*time.Millisecond)
	r := raft.New(n, cfg, sm)

	if *auditLog != "" {
		am, err := audit.New(audit.Config{LogPath: *auditLog, RingSize: 1024, BufferSize: 256})
		if err != nil {
			log.Error("failed to start audit sidecar", "error", err.Error())
			os.Exit(1)
		}
		defer am.Close()
		r.SetAuditRecorder(am)
		log.Info("audit sidecar enabled", "run_id", am.RunID(), "log_path", *auditLog)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := n.Run(ctx); err != nil {
		log.Error("node exited with error", "error", err.Error())
		os.Exit(1)
	}
}
