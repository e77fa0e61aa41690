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
Package errors provides the structured error taxonomy for raftkv.

The node/RPC runtime and the Raft core raise a small, fixed set of
numeric error codes that travel verbatim over the wire as
{"type":"error","code":N,"text":"..."} reply bodies. A RaftKVError is
the only error type either layer constructs; anything else a handler
returns or panics with is converted to a Crash error at the dispatch
boundary.

Error Categories:
  - Protocol: malformed or unsupported requests, RPC timeouts
  - Consensus: no leader known, internal Raft invariant violations
  - StateMachine: key/value map operation failures
*/
package errors

import "fmt"

// Code is the numeric error code wired into the Maelstrom protocol.
type Code int

const (
	CodeTimeout                Code = 0
	CodeNotSupported           Code = 10
	CodeTemporarilyUnavailable Code = 11
	CodeMalformedRequest       Code = 12
	CodeCrash                  Code = 13
	CodeAbort                  Code = 14
	CodeKeyDoesNotExist        Code = 20
	CodePreconditionFailed     Code = 22
	CodeTxnConflict            Code = 30
)

// Category groups codes by the layer that raises them.
type Category string

const (
	CategoryProtocol     Category = "PROTOCOL"
	CategoryConsensus    Category = "CONSENSUS"
	CategoryStateMachine Category = "STATE_MACHINE"
)

func (c Code) category() Category {
	switch c {
	case CodeTimeout, CodeNotSupported, CodeMalformedRequest, CodeCrash:
		return CategoryProtocol
	case CodeTemporarilyUnavailable, CodeAbort:
		return CategoryConsensus
	case CodeKeyDoesNotExist, CodePreconditionFailed, CodeTxnConflict:
		return CategoryStateMachine
	default:
		return CategoryProtocol
	}
}

// RaftKVError is the structured error type raised by the node and Raft
// layers.
type RaftKVError struct {
	Code    Code
	Message string
	Detail  string
	Cause   error
}

// Error implements the error interface.
func (e *RaftKVError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("error %d (%s): %s - %s", e.Code, e.Code.category(), e.Message, e.Detail)
	}
	return fmt.Sprintf("error %d (%s): %s", e.Code, e.Code.category(), e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RaftKVError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches additional diagnostic text, returned to the caller
// alongside Message in the reply body's "text" field.
func (e *RaftKVError) WithDetail(detail string) *RaftKVError {
	e.Detail = detail
	return e
}

// WithCause attaches an underlying cause for local logging; it is never
// serialized into the wire reply.
func (e *RaftKVError) WithCause(cause error) *RaftKVError {
	e.Cause = cause
	return e
}

// Text is the combined message+detail string that goes into the reply
// body's "text" field.
func (e *RaftKVError) Text() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Reply renders the error as the {"type":"error","code":N,"text":"..."}
// body required for every error response.
func (e *RaftKVError) Reply() map[string]any {
	return map[string]any{
		"type": "error",
		"code": int(e.Code),
		"text": e.Text(),
	}
}

// Timeout is raised when an RPC reply is not received within sync_rpc's
// configured deadline.
func Timeout(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeTimeout, Message: msg}
}

// NotSupported is raised for an unknown or unhandled request type.
func NotSupported(msgType string) *RaftKVError {
	return &RaftKVError{Code: CodeNotSupported, Message: fmt.Sprintf("unsupported request type %q", msgType)}
}

// TemporarilyUnavailable is raised when no leader is known and an
// election is in flight.
func TemporarilyUnavailable(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeTemporarilyUnavailable, Message: msg}
}

// MalformedRequest is raised when a request is missing required fields.
func MalformedRequest(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeMalformedRequest, Message: msg}
}

// Crash wraps an otherwise-unhandled error from inside a handler.
func Crash(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeCrash, Message: msg}
}

// Abort signals an unrecoverable internal invariant violation, such as a
// malformed prev_log_index in an AppendEntries request.
func Abort(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeAbort, Message: msg}
}

// KeyDoesNotExist is raised by read/cas against a missing key.
func KeyDoesNotExist(key string) *RaftKVError {
	return &RaftKVError{Code: CodeKeyDoesNotExist, Message: "not found", Detail: fmt.Sprintf("key %q", key)}
}

// PreconditionFailed is raised by a cas whose "from" value does not match
// the stored value. The observed value is embedded in the text, per the
// user-visible diagnostic contract.
func PreconditionFailed(key string, from, got any) *RaftKVError {
	return &RaftKVError{
		Code:    CodePreconditionFailed,
		Message: fmt.Sprintf("key %q", key),
		Detail:  fmt.Sprintf("expected %v but got %v", from, got),
	}
}

// TxnConflict is raised when a concurrent transaction loses a race.
func TxnConflict(msg string) *RaftKVError {
	return &RaftKVError{Code: CodeTxnConflict, Message: msg}
}

// AsRaftKVError unwraps err into a *RaftKVError, converting anything else
// into a Crash error, so every reply is well-formed even if a handler
// returns a plain error.
func AsRaftKVError(err error) *RaftKVError {
	if err == nil {
		return nil
	}
	if rk, ok := err.(*RaftKVError); ok {
		return rk
	}
	return Crash(err.Error())
}

// CodeOf returns the numeric code if err is a *RaftKVError, or CodeCrash
// otherwise.
func CodeOf(err error) Code {
	if rk, ok := err.(*RaftKVError); ok {
		return rk.Code
	}
	return CodeCrash
}
