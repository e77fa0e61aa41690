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

package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTXTSplitsKeyValuePairs(t *testing.T) {
	meta := parseTXT([]string{"node_id=n1", "cluster=raftkv-demo"})
	require.Equal(t, "n1", meta["node_id"])
	require.Equal(t, "raftkv-demo", meta["cluster"])
}

func TestParseTXTIgnoresMalformedFields(t *testing.T) {
	meta := parseTXT([]string{"no-equals-sign", "key=value"})
	require.Len(t, meta, 1)
	require.Equal(t, "value", meta["key"])
}

func TestParseTXTEmptyInput(t *testing.T) {
	meta := parseTXT(nil)
	require.Empty(t, meta)
}
