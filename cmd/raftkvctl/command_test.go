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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReplCommandRead(t *testing.T) {
	b, err := parseReplCommand("read foo")
	require.NoError(t, err)
	require.Equal(t, "read", b["type"])
	require.Equal(t, "foo", b["key"])
}

func TestParseReplCommandWrite(t *testing.T) {
	b, err := parseReplCommand("write foo bar")
	require.NoError(t, err)
	require.Equal(t, "write", b["type"])
	require.Equal(t, "foo", b["key"])
	require.Equal(t, "bar", b["value"])
}

func TestParseReplCommandCas(t *testing.T) {
	b, err := parseReplCommand("cas foo bar baz")
	require.NoError(t, err)
	require.Equal(t, "cas", b["type"])
	require.Equal(t, "bar", b["from"])
	require.Equal(t, "baz", b["to"])
}

func TestParseReplCommandRejectsWrongArgCount(t *testing.T) {
	_, err := parseReplCommand("write foo")
	require.Error(t, err)
}

func TestParseReplCommandRejectsUnknownVerb(t *testing.T) {
	_, err := parseReplCommand("delete foo")
	require.Error(t, err)
}

func TestParseReplCommandRejectsEmpty(t *testing.T) {
	_, err := parseReplCommand("   ")
	require.Error(t, err)
}

func TestTrimNewline(t *testing.T) {
	require.Equal(t, "abc123", trimNewline("abc123\n"))
	require.Equal(t, "abc123", trimNewline("abc123\r\n"))
	require.Equal(t, "abc123", trimNewline("abc123"))
}

func TestTrimSuffix(t *testing.T) {
	require.Equal(t, "bundle", trimSuffix("bundle.zst", ".zst"))
	require.Equal(t, "bundle.jsonl", trimSuffix("bundle", ".zst"))
}
