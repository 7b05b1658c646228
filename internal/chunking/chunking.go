/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package chunking splits files into fixed size chunks bound together by a manifest of SHA-256 hashes
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/google/uuid"
)

const (
	DefaultChunkSize = 256 * 1024

	// WebFileSizeLimit bounds uploads from browser hosts, which keep the whole file in memory
	WebFileSizeLimit   = int64(2) << 30
	WebFileSizeWarning = int64(3) << 29

	// MaxChunkSize and MaxTotalChunks bound manifests received from peers
	MaxChunkSize   = 16 << 20
	MaxTotalChunks = 1 << 16
)

type ChunkRef struct {
	ChunkId    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Size       int    `json:"size"`
	Hash       string `json:"hash"`
}

type Manifest struct {
	FileId      string     `json:"file_id"`
	Filename    string     `json:"filename"`
	TotalSize   int64      `json:"total_size"`
	ChunkSize   int        `json:"chunk_size"`
	TotalChunks int        `json:"total_chunks"`
	Chunks      []ChunkRef `json:"chunks"`
	FileHash    string     `json:"file_hash"`
}

type Chunk struct {
	ChunkId     string
	FileId      string
	ChunkIndex  int
	TotalChunks int
	Data        []byte
}

// ChunksJSON is the ordered reference list stored alongside file rows
func (m *Manifest) ChunksJSON() (string, error) {
	raw, err := json.Marshal(m.Chunks)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Validate checks that the manifest describes a file that can be held and reassembled:
// sizes are non-negative, the chunk count agrees with TotalSize / ChunkSize and every
// reference has a distinct in-range index whose sizes add up to TotalSize
func (m *Manifest) Validate() error {
	if m.TotalSize < 0 {
		return apperr.New(apperr.CorruptChunk, "Negative file size %d", m.TotalSize)
	}
	if m.ChunkSize <= 0 || m.ChunkSize > MaxChunkSize {
		return apperr.New(apperr.CorruptChunk, "Chunk size %d out of range (1..%d)", m.ChunkSize, MaxChunkSize)
	}
	if m.TotalChunks < 0 || m.TotalChunks > MaxTotalChunks {
		return apperr.New(apperr.CorruptChunk, "Chunk count %d out of range (0..%d)", m.TotalChunks, MaxTotalChunks)
	}
	chunkSize := int64(m.ChunkSize)
	if expected := (m.TotalSize + chunkSize - 1) / chunkSize; expected != int64(m.TotalChunks) {
		return apperr.New(apperr.CorruptChunk, "%d bytes in %d byte chunks is %d chunks, manifest says %d", m.TotalSize, m.ChunkSize, expected, m.TotalChunks)
	}
	if len(m.Chunks) != m.TotalChunks {
		return apperr.New(apperr.CorruptChunk, "Manifest lists %d chunks, expected %d", len(m.Chunks), m.TotalChunks)
	}

	seen := make([]bool, m.TotalChunks)
	var sum int64
	for _, ref := range m.Chunks {
		if ref.ChunkIndex < 0 || ref.ChunkIndex >= m.TotalChunks || seen[ref.ChunkIndex] {
			return apperr.New(apperr.CorruptChunk, "Invalid or duplicate chunk index %d", ref.ChunkIndex)
		}
		if ref.Size < 0 || ref.Size > m.ChunkSize {
			return apperr.New(apperr.CorruptChunk, "Chunk %d has size %d", ref.ChunkIndex, ref.Size)
		}
		seen[ref.ChunkIndex] = true
		sum += int64(ref.Size)
	}
	if sum != m.TotalSize {
		return apperr.New(apperr.CorruptChunk, "Chunk sizes add up to %d, manifest says %d", sum, m.TotalSize)
	}
	return nil
}

func ParseChunksJSON(raw string) ([]ChunkRef, error) {
	var refs []ChunkRef
	if raw == "" {
		return refs, nil
	}
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, apperr.Wrap(apperr.CorruptChunk, err, "Invalid chunk list")
	}
	return refs, nil
}

func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func VerifyChunkHash(data []byte, expected string) bool {
	return Hash(data) == expected
}

func CheckWebSizeLimit(size int64) error {
	if size > WebFileSizeLimit {
		return apperr.New(apperr.InvalidInput, "File size %d bytes exceeds the web limit of %d bytes", size, WebFileSizeLimit)
	}
	return nil
}

func NearWebSizeLimit(size int64) bool {
	return size >= WebFileSizeWarning
}

// Split cuts data into chunkSize pieces. A chunkSize of 0 selects DefaultChunkSize
func Split(fileId, filename string, data []byte, chunkSize int) (*Manifest, []Chunk, error) {
	if chunkSize < 0 {
		return nil, nil, apperr.New(apperr.InvalidInput, "Chunk size must be > 0")
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	total := (len(data) + chunkSize - 1) / chunkSize
	manifest := &Manifest{
		FileId:      fileId,
		Filename:    filename,
		TotalSize:   int64(len(data)),
		ChunkSize:   chunkSize,
		TotalChunks: total,
		Chunks:      make([]ChunkRef, 0, total),
		FileHash:    Hash(data),
	}
	chunks := make([]Chunk, 0, total)

	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		piece := append([]byte(nil), data[start:end]...)
		id := uuid.NewString()

		manifest.Chunks = append(manifest.Chunks, ChunkRef{
			ChunkId:    id,
			ChunkIndex: i,
			Size:       len(piece),
			Hash:       Hash(piece),
		})
		chunks = append(chunks, Chunk{
			ChunkId:     id,
			FileId:      fileId,
			ChunkIndex:  i,
			TotalChunks: total,
			Data:        piece,
		})
	}
	return manifest, chunks, nil
}

// Reassemble checks every chunk against the manifest and concatenates them.
// Missing or foreign chunks are CorruptChunk, any hash disagreement is HashMismatch
func Reassemble(manifest *Manifest, chunks []Chunk) ([]byte, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if len(chunks) != manifest.TotalChunks || len(manifest.Chunks) != manifest.TotalChunks {
		return nil, apperr.New(apperr.CorruptChunk, "Expected %d chunks, got %d", manifest.TotalChunks, len(chunks))
	}

	sorted := append([]Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})
	refs := append([]ChunkRef(nil), manifest.Chunks...)
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ChunkIndex < refs[j].ChunkIndex
	})

	out := make([]byte, 0, manifest.TotalSize)
	for i, c := range sorted {
		if c.ChunkIndex != i || refs[i].ChunkIndex != i {
			return nil, apperr.New(apperr.CorruptChunk, "Missing chunk at index %d, found index %d", i, c.ChunkIndex)
		}
		if c.FileId != "" && c.FileId != manifest.FileId {
			return nil, apperr.New(apperr.CorruptChunk, "Chunk %d belongs to file %s", i, c.FileId)
		}
		if !VerifyChunkHash(c.Data, refs[i].Hash) {
			return nil, apperr.New(apperr.HashMismatch, "Chunk %d hash mismatch: expected %s, got %s", i, refs[i].Hash, Hash(c.Data))
		}
		out = append(out, c.Data...)
	}

	if got := Hash(out); got != manifest.FileHash {
		return nil, apperr.New(apperr.HashMismatch, "File hash mismatch: expected %s, got %s", manifest.FileHash, got)
	}
	return out, nil
}
