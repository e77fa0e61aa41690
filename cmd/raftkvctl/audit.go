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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	jsoncodec "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"raftkv/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Pack or unpack a raftkv-node audit trail",
	}
	cmd.AddCommand(newAuditPackCmd())
	cmd.AddCommand(newAuditUnpackCmd())
	return cmd
}

func newAuditPackCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pack <audit-log.jsonl>",
		Short: "Compress a plain JSON-lines audit log into a tamper-evident bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditPack(args[0], out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "bundle output path (default: <input>.zst)")
	return cmd
}

func runAuditPack(path, out string) error {
	if out == "" {
		out = path + ".zst"
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer in.Close()

	var records []audit.Record
	dec := jsoncodec.NewDecoder(bufio.NewReader(in))
	for {
		var rec audit.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decoding audit record: %w", err)
		}
		records = append(records, rec)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating bundle: %w", err)
	}
	defer f.Close()

	digest, err := audit.Export(f, records)
	if err != nil {
		return fmt.Errorf("exporting bundle: %w", err)
	}

	digestPath := out + ".digest"
	if err := os.WriteFile(digestPath, []byte(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing digest sidecar: %w", err)
	}

	runID := uuid.NewString()
	fmt.Printf("packed %d record(s) into %s\n", len(records), out)
	fmt.Printf("digest: %s (written to %s)\n", digest, digestPath)
	fmt.Printf("pack id: %s\n", runID)
	return nil
}

func newAuditUnpackCmd() *cobra.Command {
	var digest string
	var out string
	cmd := &cobra.Command{
		Use:   "unpack <bundle>",
		Short: "Verify and decompress a bundle back into plain JSON-lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditUnpack(args[0], digest, out)
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "expected digest (default: read <bundle>.digest)")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: <bundle> with .zst stripped)")
	return cmd
}

func runAuditUnpack(path, digest, out string) error {
	if digest == "" {
		data, err := os.ReadFile(path + ".digest")
		if err != nil {
			return fmt.Errorf("no --digest given and no %s.digest sidecar found: %w", path, err)
		}
		digest = trimNewline(string(data))
	}
	if out == "" {
		out = trimSuffix(path, ".zst")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()

	records, err := audit.Import(f, digest)
	if err != nil {
		return fmt.Errorf("unpacking bundle: %w", err)
	}

	w, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer w.Close()

	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}

	fmt.Printf("unpacked %d record(s) into %s\n", len(records), out)
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s + ".jsonl"
}
