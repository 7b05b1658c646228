/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"context"
	"errors"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/chunking"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"gorm.io/gorm"
)

// File events
const (
	EventFileStored  = "fileStored"
	EventFileDeleted = "fileDeleted"
)

// ChunkTransform rewrites the payload of one chunk, used to seal chunks before storage and open them after
type ChunkTransform func(chunkIndex int, payload []byte) ([]byte, error)

// FileSeal describes how the chunks of a stored file are protected
type FileSeal struct {
	Seal       ChunkTransform
	KeyVersion *int
}

// SealChunks encrypts every chunk under key, binding each ciphertext to its file and position.
// The stored payload is nonce || ciphertext
func SealChunks(key []byte, fileId string) ChunkTransform {
	return func(index int, payload []byte) ([]byte, error) {
		nonce, ciphertext, err := crypto.EncryptChunk(key, payload, fileId, uint32(index))
		if err != nil {
			return nil, err
		}
		return append(nonce, ciphertext...), nil
	}
}

func OpenChunks(key []byte, fileId string) ChunkTransform {
	return func(index int, payload []byte) ([]byte, error) {
		if len(payload) < crypto.NonceSize {
			return nil, apperr.New(apperr.CorruptChunk, "chunk %d of %s is too short to be sealed", index, fileId)
		}
		return crypto.DecryptChunk(key, payload[:crypto.NonceSize], payload[crypto.NonceSize:], fileId, uint32(index))
	}
}

// FileService stores chunked files. Manifest hashes always cover the plaintext chunks,
// so a reassembled file is checked end to end whatever transform protected it at rest
type FileService interface {
	Store(ctx context.Context, fileId, filename string, content []byte, chunkSize int, seal *FileSeal) (*chunking.Manifest, error)
	Load(ctx context.Context, fileId string, open ChunkTransform) ([]byte, error)         // Reassembles and verifies a stored file
	Manifest(fileId string) (*chunking.Manifest, *entity.FileManifest, error)             // The manifest as exchanged and as stored
	Reseal(ctx context.Context, fileId string, open ChunkTransform, seal *FileSeal) error // Rewrites every chunk in place, keeping chunk ids
	Delete(ctx context.Context, fileId string) error

	AddManifest(manifest *chunking.Manifest) error                                // Registers a file whose chunks will arrive later
	PutChunk(ctx context.Context, fileId string, index int, payload []byte) error // Stores a received plaintext chunk after checking it
	Chunk(ctx context.Context, fileId string, index int) ([]byte, error)          // Stored payload of one chunk
	Held(fileId string) ([]int, error)                                            // Indexes stored locally
}

type fileService struct {
	ctx *RuntimeContext
}

func NewFileService(ctx *RuntimeContext) FileService {
	return &fileService{ctx}
}

func manifestRow(m *chunking.Manifest, now int64) (*entity.FileManifest, error) {
	refs, err := m.ChunksJSON()
	if err != nil {
		return nil, apperr.Wrap(apperr.CorruptChunk, err, "encoding chunk list")
	}
	return &entity.FileManifest{
		FileId:      m.FileId,
		Filename:    m.Filename,
		TotalSize:   m.TotalSize,
		ChunkSize:   m.ChunkSize,
		TotalChunks: m.TotalChunks,
		ChunksJson:  refs,
		FileHash:    m.FileHash,
		CreatedAt:   now,
	}, nil
}

func (s *fileService) Store(ctx context.Context, fileId, filename string, content []byte, chunkSize int, seal *FileSeal) (*chunking.Manifest, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	manifest, chunks, err := chunking.Split(fileId, filename, content, chunkSize)
	if err != nil {
		return nil, err
	}
	now := s.ctx.NowMillis()
	row, err := manifestRow(manifest, now)
	if err != nil {
		return nil, err
	}

	blobs := storage.GetBlobStore()
	rows := make([]*entity.FileChunk, 0, len(chunks))
	for _, c := range chunks {
		payload := c.Data
		if seal != nil && seal.Seal != nil {
			if payload, err = seal.Seal(c.ChunkIndex, c.Data); err != nil {
				return nil, err
			}
		}
		chunk := &entity.FileChunk{ChunkId: c.ChunkId, FileId: fileId, ChunkIndex: c.ChunkIndex, Size: len(payload), CreatedAt: now}
		if err := blobs.Put(ctx, chunk, payload); err != nil {
			_ = blobs.Delete(ctx, rows)
			return nil, apperr.Wrap(apperr.DatabaseError, err, "storing chunk %d of %s", c.ChunkIndex, fileId)
		}
		rows = append(rows, chunk)
	}
	if seal != nil {
		row.Encrypted = seal.Seal != nil
		row.KeyVersion = seal.KeyVersion
	}
	if err := storage.GetFileRepository().SaveManifest(row, rows); err != nil {
		_ = blobs.Delete(ctx, rows)
		return nil, dbError(err)
	}

	s.ctx.Publish(DomainFile, EventFileStored, manifest)
	return manifest, nil
}

func (s *fileService) Manifest(fileId string) (*chunking.Manifest, *entity.FileManifest, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	row, err := storage.GetFileRepository().GetManifest(fileId)
	if err != nil {
		return nil, nil, notFound(err, apperr.EntityNotFound, "file %s not found", fileId)
	}
	refs, err := chunking.ParseChunksJSON(row.ChunksJson)
	if err != nil {
		return nil, nil, err
	}
	return &chunking.Manifest{
		FileId:      row.FileId,
		Filename:    row.Filename,
		TotalSize:   row.TotalSize,
		ChunkSize:   row.ChunkSize,
		TotalChunks: row.TotalChunks,
		Chunks:      refs,
		FileHash:    row.FileHash,
	}, row, nil
}

func (s *fileService) Load(ctx context.Context, fileId string, open ChunkTransform) ([]byte, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	manifest, _, err := s.Manifest(fileId)
	if err != nil {
		return nil, err
	}
	rows, err := storage.GetFileRepository().Chunks(fileId)
	if err != nil {
		return nil, dbError(err)
	}

	chunks := make([]chunking.Chunk, 0, len(rows))
	for _, row := range rows {
		payload, err := s.payload(ctx, storage, row)
		if err != nil {
			return nil, err
		}
		if open != nil {
			if payload, err = open(row.ChunkIndex, payload); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, chunking.Chunk{
			ChunkId:     row.ChunkId,
			FileId:      row.FileId,
			ChunkIndex:  row.ChunkIndex,
			TotalChunks: manifest.TotalChunks,
			Data:        payload,
		})
	}
	return chunking.Reassemble(manifest, chunks)
}

func (s *fileService) payload(ctx context.Context, storage *data.StorageManager, row *entity.FileChunk) ([]byte, error) {
	payload, err := storage.GetBlobStore().Get(ctx, row)
	if errors.Is(err, data.ErrBlobMissing) {
		return nil, apperr.Wrap(apperr.CorruptChunk, err, "chunk %d of %s", row.ChunkIndex, row.FileId)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "loading chunk %d of %s", row.ChunkIndex, row.FileId)
	}
	return payload, nil
}

func (s *fileService) Reseal(ctx context.Context, fileId string, open ChunkTransform, seal *FileSeal) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	repo := storage.GetFileRepository()
	row, err := repo.GetManifest(fileId)
	if err != nil {
		return notFound(err, apperr.EntityNotFound, "file %s not found", fileId)
	}
	chunks, err := repo.Chunks(fileId)
	if err != nil {
		return dbError(err)
	}

	// Every chunk is opened before anything is written, a bad chunk leaves the file untouched
	plain := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		payload, err := s.payload(ctx, storage, chunk)
		if err != nil {
			return err
		}
		if open != nil {
			if payload, err = open(chunk.ChunkIndex, payload); err != nil {
				return err
			}
		}
		plain[i] = payload
	}
	for i, chunk := range chunks {
		payload := plain[i]
		if seal != nil && seal.Seal != nil {
			if payload, err = seal.Seal(chunk.ChunkIndex, payload); err != nil {
				return err
			}
		}
		chunk.Size = len(payload)
		if err := storage.GetBlobStore().Put(ctx, chunk, payload); err != nil {
			return apperr.Wrap(apperr.DatabaseError, err, "storing chunk %d of %s", chunk.ChunkIndex, fileId)
		}
	}

	row.Encrypted = seal != nil && seal.Seal != nil
	row.KeyVersion = nil
	if seal != nil {
		row.KeyVersion = seal.KeyVersion
	}
	return dbError(repo.SaveManifest(row, chunks))
}

func (s *fileService) Delete(ctx context.Context, fileId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	repo := storage.GetFileRepository()
	chunks, err := repo.Chunks(fileId)
	if err != nil {
		return dbError(err)
	}
	if err := storage.GetBlobStore().Delete(ctx, chunks); err != nil {
		s.ctx.Logf("Could not drop the blobs of %s: %v", fileId, err)
	}
	if err := repo.DeleteFile(fileId); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainFile, EventFileDeleted, fileId)
	return nil
}

func (s *fileService) AddManifest(manifest *chunking.Manifest) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if manifest == nil || manifest.FileId == "" || len(manifest.Chunks) != manifest.TotalChunks {
		return apperr.New(apperr.CorruptChunk, "incomplete manifest")
	}
	repo := storage.GetFileRepository()
	if _, err := repo.GetManifest(manifest.FileId); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dbError(err)
	}
	row, err := manifestRow(manifest, s.ctx.NowMillis())
	if err != nil {
		return err
	}
	return dbError(repo.SaveManifest(row, nil))
}

func (s *fileService) PutChunk(ctx context.Context, fileId string, index int, payload []byte) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	manifest, _, err := s.Manifest(fileId)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(manifest.Chunks) {
		return apperr.New(apperr.CorruptChunk, "chunk %d is outside file %s", index, fileId)
	}
	ref := manifest.Chunks[index]
	if !chunking.VerifyChunkHash(payload, ref.Hash) {
		return apperr.New(apperr.HashMismatch, "chunk %d of %s does not match its manifest hash", index, fileId)
	}

	chunk := &entity.FileChunk{ChunkId: ref.ChunkId, FileId: fileId, ChunkIndex: index, Size: len(payload), CreatedAt: s.ctx.NowMillis()}
	if err := storage.GetBlobStore().Put(ctx, chunk, payload); err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "storing chunk %d of %s", index, fileId)
	}
	return dbError(storage.GetFileRepository().SaveChunk(chunk))
}

func (s *fileService) Chunk(ctx context.Context, fileId string, index int) ([]byte, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	chunk, err := storage.GetFileRepository().GetChunk(fileId, index)
	if err != nil {
		return nil, notFound(err, apperr.CorruptChunk, "chunk %d of %s is missing", index, fileId)
	}
	return s.payload(ctx, storage, chunk)
}

func (s *fileService) Held(fileId string) ([]int, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	indexes, err := storage.GetFileRepository().ChunkIndexes(fileId)
	return indexes, dbError(err)
}
