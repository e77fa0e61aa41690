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

// Command raftkv-dump inspects an audit bundle written by a
// raftkv-node's audit sidecar (internal/audit.Export): it verifies the
// bundle's blake2b digest, decompresses it, and prints the decoded
// applied/transition records as a table, JSON, or re-exported plain
// JSON-lines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"raftkv/internal/audit"
	"raftkv/pkg/cli"
)

var (
	digestFlag = flag.String("digest", "", "expected blake2b-256 digest of the bundle (hex); defaults to reading <file>.digest")
	kindFlag   = flag.String("kind", "", "only print records of this kind (applied, transition)")
	nodeFlag   = flag.String("node", "", "only print transition records for this node id")
	outFlag    = flag.String("out", "", "write decoded records as plain JSON-lines to this path instead of printing a table")
	jsonFlag   = flag.Bool("json", false, "print records as a JSON array instead of a table")
	versionFlg = flag.Bool("version", false, "print version and exit")
)

const version = "1.0.0"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *versionFlg {
		fmt.Printf("raftkv-dump version %s\n", version)
		return
	}

	if flag.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	digest := *digestFlag
	if digest == "" {
		d, err := readDigestSidecar(path)
		if err != nil {
			cli.ErrMissingArgument("-digest", "raftkv-dump -digest <hex> <bundle> (no "+path+".digest sidecar found)").Exit()
		}
		digest = d
	}

	f, err := os.Open(path)
	if err != nil {
		cli.NewCLIError("Failed to open bundle").WithDetail(err.Error()).Exit()
	}
	defer f.Close()

	info, err := f.Stat()
	if err == nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, formatFileSize(info.Size()))
	}

	records, err := audit.Import(f, digest)
	if err != nil {
		cli.ErrAuditBundleTampered(path).WithDetail(err.Error()).Exit()
	}

	records = filterRecords(records, *kindFlag, *nodeFlag)

	if *outFlag != "" {
		if err := writeJSONLines(*outFlag, records); err != nil {
			cli.NewCLIError("Failed to write output").WithDetail(err.Error()).Exit()
		}
		fmt.Printf("wrote %d records to %s\n", len(records), *outFlag)
		return
	}

	if *jsonFlag {
		printJSON(records)
		return
	}
	printTable(records)
}

// readDigestSidecar reads the expected digest from path+".digest", the
// convention `raftkvctl audit pack` writes alongside every bundle it exports.
func readDigestSidecar(path string) (string, error) {
	data, err := os.ReadFile(path + ".digest")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func filterRecords(records []audit.Record, kind, node string) []audit.Record {
	if kind == "" && node == "" {
		return records
	}
	out := make([]audit.Record, 0, len(records))
	for _, r := range records {
		if kind != "" && string(r.Kind) != kind {
			continue
		}
		if node != "" && r.NodeID != node {
			continue
		}
		out = append(out, r)
	}
	return out
}

func writeJSONLines(path string, records []audit.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(records []audit.Record) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		cli.NewCLIError("Failed to format JSON").WithDetail(err.Error()).Exit()
	}
	fmt.Println(string(data))
}

func printTable(records []audit.Record) {
	t := cli.NewTable("KIND", "INDEX", "TERM", "OP/ROLE", "NODE", "TIMESTAMP")
	for _, r := range records {
		opOrRole := r.OpType
		if opOrRole == "" {
			opOrRole = r.Role
		}
		index := ""
		if r.Kind == audit.KindApplied {
			index = strconv.FormatInt(r.Index, 10)
		}
		t.AddRow(
			string(r.Kind),
			index,
			strconv.FormatInt(r.Term, 10),
			opOrRole,
			r.NodeID,
			r.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		)
	}
	t.Print()
}

// formatFileSize renders size using the binary (1024-based) units an
// operator eyeballing a bundle on disk expects.
func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d bytes", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), units[exp])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "raftkv-dump - inspect a raftkv-node audit bundle")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage: raftkv-dump [flags] <bundle-file>")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}
