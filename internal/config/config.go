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
Package config holds the tunables the Raft core otherwise hard-codes as
constants: election timeout, heartbeat interval, minimum replication
interval, the sync_rpc deadline, log level/format, and the vote-granting
rule. The Maelstrom harness still drives cluster topology purely through
the init message; nothing here is required for a node to run, and every
field has a default matching the reference values. Loading is backed by
github.com/spf13/viper so an operator can override a default from an
environment variable or a TOML file without a recompile.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Environment variable names consulted by LoadFromEnv.
const (
	EnvElectionTimeoutMS        = "RAFTKV_ELECTION_TIMEOUT_MS"
	EnvHeartbeatIntervalMS      = "RAFTKV_HEARTBEAT_INTERVAL_MS"
	EnvMinReplicationIntervalMS = "RAFTKV_MIN_REPLICATION_INTERVAL_MS"
	EnvSyncRPCTimeoutMS         = "RAFTKV_SYNC_RPC_TIMEOUT_MS"
	EnvLogLevel                 = "RAFTKV_LOG_LEVEL"
	EnvLogJSON                  = "RAFTKV_LOG_JSON"
	EnvStrictVoteRule           = "RAFTKV_STRICT_VOTE_RULE"
)

// Config is the full set of overridable runtime tunables.
type Config struct {
	ElectionTimeoutMS        int
	HeartbeatIntervalMS      int
	MinReplicationIntervalMS int
	SyncRPCTimeoutMS         int
	LogLevel                 string
	LogJSON                  bool
	StrictVoteRule           bool
	ConfigFile               string
}

// DefaultConfig returns the reference tunables: a 2s election timeout, a
// 1s heartbeat, a 50ms replication floor, and a 10s sync_rpc deadline.
func DefaultConfig() *Config {
	return &Config{
		ElectionTimeoutMS:        2000,
		HeartbeatIntervalMS:      1000,
		MinReplicationIntervalMS: 50,
		SyncRPCTimeoutMS:         10000,
		LogLevel:                 "info",
		LogJSON:                  false,
		StrictVoteRule:           true,
	}
}

// Validate rejects a configuration that would make the Raft core
// misbehave: non-positive durations, a heartbeat that isn't comfortably
// shorter than the election timeout, or an unrecognized log level.
func (c *Config) Validate() error {
	if c.ElectionTimeoutMS <= 0 {
		return fmt.Errorf("election_timeout_ms must be positive, got %d", c.ElectionTimeoutMS)
	}
	if c.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("heartbeat_interval_ms must be positive, got %d", c.HeartbeatIntervalMS)
	}
	if c.MinReplicationIntervalMS <= 0 {
		return fmt.Errorf("min_replication_interval_ms must be positive, got %d", c.MinReplicationIntervalMS)
	}
	if c.SyncRPCTimeoutMS <= 0 {
		return fmt.Errorf("sync_rpc_timeout_ms must be positive, got %d", c.SyncRPCTimeoutMS)
	}
	if c.HeartbeatIntervalMS >= c.ElectionTimeoutMS {
		return fmt.Errorf("heartbeat_interval_ms (%d) must be less than election_timeout_ms (%d), or followers will call spurious elections", c.HeartbeatIntervalMS, c.ElectionTimeoutMS)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// ToTOML renders the config in the flat TOML dialect LoadFromFile reads.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "election_timeout_ms = %d\n", c.ElectionTimeoutMS)
	fmt.Fprintf(&sb, "heartbeat_interval_ms = %d\n", c.HeartbeatIntervalMS)
	fmt.Fprintf(&sb, "min_replication_interval_ms = %d\n", c.MinReplicationIntervalMS)
	fmt.Fprintf(&sb, "sync_rpc_timeout_ms = %d\n", c.SyncRPCTimeoutMS)
	fmt.Fprintf(&sb, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&sb, "log_json = %t\n", c.LogJSON)
	fmt.Fprintf(&sb, "strict_vote_rule = %t\n", c.StrictVoteRule)
	return sb.String()
}

// SaveToFile writes the config as TOML, creating any missing parent
// directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

// String renders a human-readable summary, used in node startup logs.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{LogLevel: %s, LogJSON: %t, ElectionTimeoutMS: %d, HeartbeatIntervalMS: %d, MinReplicationIntervalMS: %d, SyncRPCTimeoutMS: %d, StrictVoteRule: %t}",
		c.LogLevel, c.LogJSON, c.ElectionTimeoutMS, c.HeartbeatIntervalMS, c.MinReplicationIntervalMS, c.SyncRPCTimeoutMS, c.StrictVoteRule,
	)
}

// Manager owns a loaded Config plus the viper instance that produced it,
// and notifies registered callbacks on Reload.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	v        *viper.Viper
	path     string
	onReload []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig(), v: viper.New()}
}

// Get returns a copy of the current config, safe to read without
// racing a concurrent Reload.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.cfg
	return &cp
}

// LoadFromFile reads a TOML config file on top of DefaultConfig,
// replacing the manager's current config entirely.
func (m *Manager) LoadFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	applyFromViper(cfg, v)
	cfg.ConfigFile = path

	m.mu.Lock()
	m.cfg = cfg
	m.v = v
	m.path = path
	m.mu.Unlock()
	return nil
}

func applyFromViper(cfg *Config, v *viper.Viper) {
	if v.IsSet("election_timeout_ms") {
		cfg.ElectionTimeoutMS = v.GetInt("election_timeout_ms")
	}
	if v.IsSet("heartbeat_interval_ms") {
		cfg.HeartbeatIntervalMS = v.GetInt("heartbeat_interval_ms")
	}
	if v.IsSet("min_replication_interval_ms") {
		cfg.MinReplicationIntervalMS = v.GetInt("min_replication_interval_ms")
	}
	if v.IsSet("sync_rpc_timeout_ms") {
		cfg.SyncRPCTimeoutMS = v.GetInt("sync_rpc_timeout_ms")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_json") {
		cfg.LogJSON = v.GetBool("log_json")
	}
	if v.IsSet("strict_vote_rule") {
		cfg.StrictVoteRule = v.GetBool("strict_vote_rule")
	}
}

// LoadFromEnv overlays any set RAFTKV_* environment variables onto the
// manager's current config. Call after LoadFromFile so the environment
// takes precedence over the file, matching the rest of the corpus's
// file-then-env layering.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := os.Getenv(EnvElectionTimeoutMS); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			m.cfg.ElectionTimeoutMS = n
		}
	}
	if s := os.Getenv(EnvHeartbeatIntervalMS); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			m.cfg.HeartbeatIntervalMS = n
		}
	}
	if s := os.Getenv(EnvMinReplicationIntervalMS); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			m.cfg.MinReplicationIntervalMS = n
		}
	}
	if s := os.Getenv(EnvSyncRPCTimeoutMS); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			m.cfg.SyncRPCTimeoutMS = n
		}
	}
	if s := os.Getenv(EnvLogLevel); s != "" {
		m.cfg.LogLevel = s
	}
	if s := os.Getenv(EnvLogJSON); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			m.cfg.LogJSON = b
		}
	}
	if s := os.Getenv(EnvStrictVoteRule); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			m.cfg.StrictVoteRule = b
		}
	}
}

// OnReload registers a callback invoked with the new config every time
// Reload succeeds.
func (m *Manager) OnReload(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, cb)
}

// Reload re-reads the previously loaded config file and notifies every
// registered OnReload callback.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config file has been loaded")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}

	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.RUnlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager singleton, lazily constructed
// with DefaultConfig on first use.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
