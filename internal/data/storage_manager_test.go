/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package data

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenClientStorage_Migrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "umbra.db")
	s, err := OpenClientStorage(DriverPureSQLite, path, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, len(repository.ClientMigrations()), s.SchemaVersion())

	require.NoError(t, s.GetLocalRepository().PluginSet("plugin", "k", "v"))
	require.NoError(t, s.Close())

	// Reopening keeps the data and applies nothing new
	s, err = OpenClientStorage(DriverPureSQLite, path, nil, 2)
	require.NoError(t, err)
	defer s.Close()

	kv, err := s.GetLocalRepository().PluginGet("plugin", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", kv.Value)

	applied, err := s.Migrate(repository.ClientMigrations(), 3)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestOpenRelayStorage_InMemory(t *testing.T) {
	s, err := OpenRelayStorage(DriverPureSQLite, MemoryPath, 1)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, len(repository.RelayMigrations()), s.SchemaVersion())
	username, err := s.GetDiscoveryRepository().RegisterUsername("did:key:z1", "Neo", 1)
	require.NoError(t, err)
	assert.Equal(t, "Neo#00001", username.Full())
}

func TestOpenDatabase_UnknownDriver(t *testing.T) {
	_, err := OpenDatabase("postgres", MemoryPath)
	assert.Error(t, err)
}

func TestDatabaseBlobStore(t *testing.T) {
	store := NewDatabaseBlobStore()
	chunk := &entity.FileChunk{ChunkId: "c", FileId: "f"}

	_, err := store.Get(context.Background(), chunk)
	assert.ErrorIs(t, err, ErrBlobMissing)

	require.NoError(t, store.Put(context.Background(), chunk, []byte("payload")))
	assert.Equal(t, 7, chunk.Size)

	data, err := store.Get(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMinioBlobStore_Compression(t *testing.T) {
	store, err := newMinioBlobStore(nil, "chunks")
	require.NoError(t, err)

	data := bytes.Repeat([]byte("umbra "), 4096)
	compressed := store.compress(data)
	assert.Less(t, len(compressed), len(data))

	restored, err := store.decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, restored)

	assert.Equal(t, "chunks/file-1/000003", ObjectKey(&entity.FileChunk{FileId: "file-1", ChunkIndex: 3}))
}
