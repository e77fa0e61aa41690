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
Package compression provides optional compression for bytes that cross
the stdio boundary or land in an audit export bundle.

internal/raft uses a Snappy Compressor to shrink AppendEntries.Entries
batches once they grow past Config.MinSize, trading a few microseconds
of CPU for less stdio traffic during log catch-up after a partition
heals. AlgorithmZstd is available to callers that favour ratio over
latency; internal/audit's export bundles call klauspost zstd directly
rather than going through this package.
*/
package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm selects which codec a Compressor uses.
type Algorithm int

const (
	AlgorithmNone Algorithm = iota
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses an algorithm name, e.g. from a config file.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "none", "":
		return AlgorithmNone, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Config holds compression tunables.
type Config struct {
	Algorithm Algorithm
	// MinSize is the smallest payload Compress will actually run through
	// the configured algorithm; anything smaller is passed through
	// unchanged, since the codec's own framing overhead would make small
	// payloads bigger, not smaller.
	MinSize int
}

// DefaultConfig compresses anything 256 bytes or larger with Snappy, the
// fast low-latency codec appropriate for the replication hot path.
func DefaultConfig() Config {
	return Config{Algorithm: AlgorithmSnappy, MinSize: 256}
}

// Compressor compresses and decompresses byte slices with one fixed
// algorithm and threshold.
type Compressor struct {
	config Config
}

// NewCompressor returns a Compressor for the given config.
func NewCompressor(config Config) *Compressor {
	return &Compressor{config: config}
}

// Algorithm returns the algorithm this Compressor was configured with,
// for a caller that needs to tag compressed output on the wire.
func (c *Compressor) Algorithm() Algorithm {
	return c.config.Algorithm
}

// ShouldCompress reports whether a payload of this size would actually
// be run through the configured codec by Compress, rather than passed
// through unchanged below config.MinSize.
func (c *Compressor) ShouldCompress(size int) bool {
	return size >= c.config.MinSize
}

// Compress returns data unchanged if it is smaller than config.MinSize,
// otherwise the result of running it through config.Algorithm.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) < c.config.MinSize {
		return data, nil
	}
	return compressWith(c.config.Algorithm, data)
}

func compressWith(algo Algorithm, data []byte) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		return snappy.Encode(nil, data), nil
	case AlgorithmZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

// Decompress reverses Compress. The caller must know which algorithm
// produced data (internal/raft carries it alongside the compressed
// entries in the AppendEntries body).
func (c *Compressor) Decompress(data []byte, algo Algorithm) ([]byte, error) {
	switch algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		return snappy.Decode(nil, data)
	case AlgorithmZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

// BatchCompressor accumulates several entries and compresses them as one
// length-prefixed blob, which compresses better than each entry on its
// own.
type BatchCompressor struct {
	mu      sync.Mutex
	config  Config
	entries [][]byte
}

// NewBatchCompressor returns an empty BatchCompressor.
func NewBatchCompressor(config Config) *BatchCompressor {
	return &BatchCompressor{config: config}
}

// Add appends entry to the pending batch.
func (b *BatchCompressor) Add(entry []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, append([]byte(nil), entry...))
}

// Flush frames every pending entry as [4-byte length][bytes], concatenates
// them, compresses the result, and clears the batch.
func (b *BatchCompressor) Flush() ([]byte, error) {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	var buf bytes.Buffer
	for _, e := range entries {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e)))
		buf.Write(lenBuf[:])
		buf.Write(e)
	}

	return NewCompressor(b.config).Compress(buf.Bytes())
}

// DecompressBatch reverses Flush.
func (b *BatchCompressor) DecompressBatch(data []byte, algo Algorithm) ([][]byte, error) {
	raw, err := NewCompressor(b.config).Decompress(data, algo)
	if err != nil {
		return nil, err
	}

	var entries [][]byte
	for len(raw) > 0 {
		if len(raw) < 4 {
			return nil, fmt.Errorf("corrupt batch framing: %d trailing bytes", len(raw))
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, fmt.Errorf("corrupt batch framing: entry length %d exceeds remaining %d bytes", n, len(raw))
		}
		entries = append(entries, raw[:n])
		raw = raw[n:]
	}
	return entries, nil
}
