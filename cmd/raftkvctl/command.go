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
	"fmt"
	"strings"
)

// parseReplCommand turns one line of REPL input into a Maelstrom
// request body. Supported forms:
//
//	read <key>
//	write <key> <value>
//	cas <key> <from> <to>
func parseReplCommand(line string) (map[string]any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "read":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: read <key>")
		}
		return map[string]any{"type": "read", "key": args[0]}, nil

	case "write":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: write <key> <value>")
		}
		return map[string]any{"type": "write", "key": args[0], "value": args[1]}, nil

	case "cas":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: cas <key> <from> <to>")
		}
		return map[string]any{"type": "cas", "key": args[0], "from": args[1], "to": args[2]}, nil

	default:
		return nil, fmt.Errorf("unknown command %q (try read, write, or cas)", verb)
	}
}
