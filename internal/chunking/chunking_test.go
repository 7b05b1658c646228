/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package chunking

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestSplitDefaultSize(t *testing.T) {
	data := randomBytes(t, 700_000)
	manifest, chunks, err := Split("file-1", "a.bin", data, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, manifest.TotalChunks)
	assert.Equal(t, DefaultChunkSize, manifest.ChunkSize)
	require.Len(t, chunks, 3)
	assert.Equal(t, 262144, len(chunks[0].Data))
	assert.Equal(t, 262144, len(chunks[1].Data))
	assert.Equal(t, 175712, len(chunks[2].Data))
	assert.Equal(t, Hash(data), manifest.FileHash)
	assert.Equal(t, manifest.Chunks[1].ChunkId, chunks[1].ChunkId)
	assert.NotEqual(t, chunks[0].ChunkId, chunks[1].ChunkId)

	out, err := Reassemble(manifest, chunks)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, out))
}

func TestReassembleAnyOrder(t *testing.T) {
	data := randomBytes(t, 1000)
	manifest, chunks, err := Split("f", "f", data, 100)
	require.NoError(t, err)
	chunks[0], chunks[9] = chunks[9], chunks[0]

	out, err := Reassemble(manifest, chunks)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestTamperedChunk(t *testing.T) {
	data := randomBytes(t, 700_000)
	manifest, chunks, err := Split("file-1", "a.bin", data, DefaultChunkSize)
	require.NoError(t, err)

	chunks[1].Data[42] ^= 0xff
	_, err = Reassemble(manifest, chunks)
	assert.True(t, apperr.Is(err, apperr.HashMismatch))
}

func TestMissingChunk(t *testing.T) {
	manifest, chunks, err := Split("f", "f", randomBytes(t, 300), 100)
	require.NoError(t, err)

	_, err = Reassemble(manifest, chunks[:2])
	assert.True(t, apperr.Is(err, apperr.CorruptChunk))

	chunks[2].ChunkIndex = 5
	_, err = Reassemble(manifest, chunks)
	assert.True(t, apperr.Is(err, apperr.CorruptChunk))
}

func TestEmptyFile(t *testing.T) {
	manifest, chunks, err := Split("f", "empty", nil, 0)
	require.NoError(t, err)
	assert.Zero(t, manifest.TotalChunks)
	assert.Empty(t, chunks)

	out, err := Reassemble(manifest, chunks)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChunksJSON(t *testing.T) {
	manifest, _, err := Split("f", "f", []byte("hello world"), 4)
	require.NoError(t, err)

	raw, err := manifest.ChunksJSON()
	require.NoError(t, err)
	refs, err := ParseChunksJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, manifest.Chunks, refs)

	_, err = ParseChunksJSON("{")
	assert.True(t, apperr.Is(err, apperr.CorruptChunk))
}

func TestWebLimits(t *testing.T) {
	assert.NoError(t, CheckWebSizeLimit(WebFileSizeLimit))
	assert.Error(t, CheckWebSizeLimit(WebFileSizeLimit+1))
	assert.True(t, NearWebSizeLimit(WebFileSizeWarning))
	assert.False(t, NearWebSizeLimit(1024))
}

func TestManifestValidate(t *testing.T) {
	manifest, chunks, err := Split("f", "f", randomBytes(t, 250), 100)
	require.NoError(t, err)
	require.NoError(t, manifest.Validate())

	broken := []func(m *Manifest){
		func(m *Manifest) { m.TotalSize = -1 },
		func(m *Manifest) { m.TotalChunks = -1 },
		func(m *Manifest) { m.TotalChunks = MaxTotalChunks + 1 },
		func(m *Manifest) { m.ChunkSize = 0 },
		func(m *Manifest) { m.ChunkSize = 50 },
		func(m *Manifest) { m.Chunks = m.Chunks[:2]; m.TotalChunks = 2 },
		func(m *Manifest) { m.Chunks[1].ChunkIndex = 0 },
		func(m *Manifest) { m.Chunks[2].Size = 60 },
	}
	for i, breakIt := range broken {
		m := *manifest
		m.Chunks = append([]ChunkRef(nil), manifest.Chunks...)
		breakIt(&m)
		assert.True(t, apperr.Is(m.Validate(), apperr.CorruptChunk), "case %d", i)
	}

	negative := *manifest
	negative.TotalSize = -1
	require.NotPanics(t, func() {
		_, err = Reassemble(&negative, chunks)
	})
	assert.True(t, apperr.Is(err, apperr.CorruptChunk))
}
