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
Package audit is an observability sidecar for the Raft core: it keeps no
authoritative state of its own and affects no Raft invariant. Every time
internal/raft applies a committed log entry, it reports a Record of
KindApplied (Index, Term, OpType, Timestamp) here; every role transition
(becoming candidate, winning an election, stepping down) reports a
Record of KindTransition. Both land in a fixed-size in-memory ring buffer and,
if a log path was configured, an append-only JSON-lines file.

Restarting a node starts this trail from empty — there is no recovery
path from the audit log back into Raft state, by design.
*/
package audit

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	jsoncodec "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"raftkv/internal/logging"
)

// Kind distinguishes the two events this package records.
type Kind string

const (
	KindApplied    Kind = "applied"
	KindTransition Kind = "transition"
)

// Record is one entry in the audit trail. Only the fields relevant to
// its Kind are populated: Index/Term/OpType/Timestamp for KindApplied,
// NodeID/Role/Term/Timestamp for KindTransition.
type Record struct {
	Kind      Kind      `json:"kind"`
	Index     int64     `json:"index,omitempty"`
	Term      int64     `json:"term"`
	OpType    string    `json:"op_type,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config controls the audit sidecar's buffering and on-disk trail.
type Config struct {
	// RingSize bounds how many of the most recent records Snapshot and
	// Export see; older records are overwritten in place.
	RingSize int
	// BufferSize bounds the async channel between RecordApplied/
	// RecordTransition and the background writer goroutine.
	BufferSize int
	// LogPath, if non-empty, is an append-only JSON-lines file every
	// record is also written to. Empty disables on-disk logging; the
	// ring buffer still works.
	LogPath string
}

// DefaultConfig returns a modest ring and buffer with on-disk logging
// disabled; callers that want a log file set LogPath explicitly.
func DefaultConfig() Config {
	return Config{RingSize: 1024, BufferSize: 256}
}

// Manager is the audit sidecar. Its zero value is not usable; use New.
type Manager struct {
	runID  string
	config Config
	logger *logging.Logger

	mu     sync.Mutex
	ring   []Record
	next   int
	filled bool

	buffer chan Record
	file   *os.File
	writer *bufio.Writer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager and, if cfg.LogPath is set, opens it for
// append. The background writer goroutine starts immediately.
func New(cfg Config) (*Manager, error) {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 1024
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	m := &Manager{
		runID:  uuid.NewString(),
		config: cfg,
		logger: logging.NewLogger("audit"),
		ring:   make([]Record, cfg.RingSize),
		buffer: make(chan Record, cfg.BufferSize),
		stopCh: make(chan struct{}),
	}

	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening audit log %s: %w", cfg.LogPath, err)
		}
		m.file = f
		m.writer = bufio.NewWriter(f)
	}

	m.wg.Add(1)
	go m.worker()

	return m, nil
}

// RunID identifies this process's audit trail, stamped into the export
// manifest so two exports from the same run can be correlated.
func (m *Manager) RunID() string {
	return m.runID
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case rec := <-m.buffer:
			m.store(rec)
		case <-m.stopCh:
			for {
				select {
				case rec := <-m.buffer:
					m.store(rec)
				default:
					if m.writer != nil {
						m.writer.Flush()
					}
					return
				}
			}
		}
	}
}

func (m *Manager) store(rec Record) {
	m.mu.Lock()
	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.filled = true
	}
	m.mu.Unlock()

	if m.writer == nil {
		return
	}
	encoded, err := jsoncodec.Marshal(rec)
	if err != nil {
		m.logger.Error("failed to marshal audit record", "error", err.Error())
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writer.Write(encoded)
	m.writer.WriteByte('\n')
}

func (m *Manager) enqueue(rec Record) {
	select {
	case m.buffer <- rec:
	default:
		m.logger.Warn("audit buffer full, dropping record", "kind", string(rec.Kind))
	}
}

// RecordApplied implements raft.AuditRecorder: one call per committed
// log entry applied to the key/value state machine.
func (m *Manager) RecordApplied(index, term int64, opType string, appliedAt time.Time) {
	m.enqueue(Record{
		Kind:      KindApplied,
		Index:     index,
		Term:      term,
		OpType:    opType,
		Timestamp: appliedAt,
	})
}

// RecordTransition implements raft.AuditRecorder: one call per role
// transition (candidate, leader, follower).
func (m *Manager) RecordTransition(nodeID string, role string, term int64, at time.Time) {
	m.enqueue(Record{
		Kind:      KindTransition,
		NodeID:    nodeID,
		Role:      role,
		Term:      term,
		Timestamp: at,
	})
}

// Snapshot returns every record currently held in the ring buffer,
// oldest first.
func (m *Manager) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.filled {
		out := make([]Record, m.next)
		copy(out, m.ring[:m.next])
		return out
	}

	out := make([]Record, len(m.ring))
	copy(out, m.ring[m.next:])
	copy(out[len(m.ring)-m.next:], m.ring[:m.next])
	return out
}

// Close stops the background writer, flushing any buffered records,
// and closes the log file if one was opened.
func (m *Manager) Close() error {
	close(m.stopCh)
	m.wg.Wait()
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

// Export compresses a JSON-lines rendering of records (ordinarily the
// caller's own Snapshot) with zstd and writes the bundle to out,
// returning the hex-encoded blake2b-256 digest of the uncompressed
// payload for tamper-evidence of the exported file — not of the live
// Raft log, which this package never touches.
func Export(out io.Writer, records []Record) (digest string, err error) {
	var payload bytes.Buffer
	enc := jsoncodec.NewEncoder(&payload)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encoding audit record: %w", err)
		}
	}

	sum := blake2b.Sum256(payload.Bytes())

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := zw.Write(payload.Bytes()); err != nil {
		zw.Close()
		return "", fmt.Errorf("compressing audit export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("closing zstd writer: %w", err)
	}

	return hex.EncodeToString(sum[:]), nil
}

// Import decompresses a bundle written by Export and verifies it
// against the expected digest, returning the decoded records.
func Import(in io.Reader, expectedDigest string) ([]Record, error) {
	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing audit export: %w", err)
	}

	sum := blake2b.Sum256(payload)
	if hex.EncodeToString(sum[:]) != expectedDigest {
		return nil, fmt.Errorf("audit export digest mismatch: tampered or truncated file")
	}

	var records []Record
	dec := jsoncodec.NewDecoder(bytes.NewReader(payload))
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
