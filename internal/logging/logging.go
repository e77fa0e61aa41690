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
Package logging provides the structured logging facade for raftkv.

Every message the node/RPC runtime and the Raft core emit goes to
stderr, never stdout, so it never collides with the newline-delimited
JSON the harness reads from the process's stdout. The facade writes its
own text or JSON lines to os.Stderr; internal/node and internal/raft log
only through it. Init additionally points zerolog's process-global
logger (github.com/rs/zerolog/log) at stderr with the same level.
*/
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the severity of a log line, ordered DEBUG < INFO < WARN < ERROR.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel parses a case-insensitive level name, defaulting to INFO for
// anything unrecognized ("WARNING" is accepted as an alias for WARN).
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

var (
	mu           sync.Mutex
	globalOutput io.Writer = os.Stderr
	globalLevel  Level     = INFO
	jsonMode     bool
)

// SetGlobalOutput redirects where every Logger writes. Tests use this to
// capture output into a buffer.
func SetGlobalOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	globalOutput = w
}

// SetGlobalLevel sets the minimum level that is actually written.
func SetGlobalLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = l
}

// SetJSONMode toggles between one-JSON-object-per-line output (true) and
// a terse bracketed text format (false).
func SetJSONMode(b bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonMode = b
}

// Entry is the JSON shape of a single log line when SetJSONMode(true).
type Entry struct {
	Timestamp string         `json:"timestamp,omitempty"`
	Level     string         `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger is a component-scoped handle onto the global facade.
type Logger struct {
	component string
	fields    map[string]any
}

// NewLogger returns a Logger tagged with the given component name, e.g.
// "node" or "raft".
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// With returns a child Logger carrying additional key/value fields that
// are attached to every subsequent log line.
func (l *Logger) With(kvs ...any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(kvs)/2)
	for k, v := range l.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		key, _ := kvs[i].(string)
		merged[key] = kvs[i+1]
	}
	return &Logger{component: l.component, fields: merged}
}

func (l *Logger) log(level Level, msg string, kvs ...any) {
	mu.Lock()
	lvl, out, useJSON := globalLevel, globalOutput, jsonMode
	mu.Unlock()

	if level < lvl {
		return
	}

	fields := make(map[string]any, len(l.fields)+len(kvs)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		key, _ := kvs[i].(string)
		fields[key] = kvs[i+1]
	}

	if useJSON {
		e := Entry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     level.String(),
			Component: l.component,
			Message:   msg,
		}
		if len(fields) > 0 {
			e.Fields = fields
		}
		b, err := json.Marshal(e)
		if err != nil {
			return
		}
		out.Write(append(b, '\n'))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%-5s] [%s] %s", level.String(), l.component, msg)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	sb.WriteByte('\n')
	out.Write([]byte(sb.String()))
}

// Debug logs at DEBUG.
func (l *Logger) Debug(msg string, kvs ...any) { l.log(DEBUG, msg, kvs...) }

// Info logs at INFO.
func (l *Logger) Info(msg string, kvs ...any) { l.log(INFO, msg, kvs...) }

// Warn logs at WARN.
func (l *Logger) Warn(msg string, kvs ...any) { l.log(WARN, msg, kvs...) }

// Error logs at ERROR.
func (l *Logger) Error(msg string, kvs ...any) { l.log(ERROR, msg, kvs...) }

func toZerologLevel(l Level) zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures both this package's facade and zerolog's process-global
// logger to write to
// stderr at the given level. Call once, from main, after parsing config.
func Init(level Level, jsonOutput bool) {
	SetGlobalLevel(level)
	SetJSONMode(jsonOutput)

	zerolog.SetGlobalLevel(toZerologLevel(level))
	var w io.Writer = os.Stderr
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: true}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
