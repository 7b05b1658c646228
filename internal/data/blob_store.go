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
	"errors"
	"fmt"
	"io"

	"github.com/InfamousVague/umbra/internal/entity"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrBlobMissing = errors.New("Chunk blob is missing")

// Where chunk bytes live. The chunk row always stays in the database, only its payload moves
type BlobStore interface {
	Put(ctx context.Context, chunk *entity.FileChunk, data []byte) error // Stores data for chunk, filling chunk.Data when kept inline
	Get(ctx context.Context, chunk *entity.FileChunk) ([]byte, error)    // Loads the payload of chunk
	Delete(ctx context.Context, chunks []*entity.FileChunk) error        // Drops the payloads of chunks
}

// Keeps the bytes inside the chunk row itself
type DatabaseBlobStore struct{}

func NewDatabaseBlobStore() *DatabaseBlobStore {
	return &DatabaseBlobStore{}
}

func (DatabaseBlobStore) Put(_ context.Context, chunk *entity.FileChunk, data []byte) error {
	chunk.Data = data
	chunk.Size = len(data)
	return nil
}

func (DatabaseBlobStore) Get(_ context.Context, chunk *entity.FileChunk) ([]byte, error) {
	if chunk.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrBlobMissing, chunk.ChunkId)
	}
	return chunk.Data, nil
}

func (DatabaseBlobStore) Delete(context.Context, []*entity.FileChunk) error {
	return nil
}

type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3 compatible store. Chunks are zstd compressed and keyed by file id and chunk index
type MinioBlobStore struct {
	client *minio.Client
	bucket string

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewMinioBlobStore(ctx context.Context, cfg MinioConfig) (*MinioBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return newMinioBlobStore(client, cfg.Bucket)
}

func newMinioBlobStore(client *minio.Client, bucket string) (*MinioBlobStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &MinioBlobStore{client: client, bucket: bucket, encoder: encoder, decoder: decoder}, nil
}

func ObjectKey(chunk *entity.FileChunk) string {
	return fmt.Sprintf("chunks/%s/%06d", chunk.FileId, chunk.ChunkIndex)
}

func (m *MinioBlobStore) compress(data []byte) []byte {
	return m.encoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func (m *MinioBlobStore) decompress(compressed []byte) ([]byte, error) {
	return m.decoder.DecodeAll(compressed, nil)
}

func (m *MinioBlobStore) Put(ctx context.Context, chunk *entity.FileChunk, data []byte) error {
	compressed := m.compress(data)
	_, err := m.client.PutObject(ctx, m.bucket, ObjectKey(chunk), bytes.NewReader(compressed), int64(len(compressed)), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return err
	}
	chunk.Data = nil
	chunk.Size = len(data)
	return nil
}

func (m *MinioBlobStore) Get(ctx context.Context, chunk *entity.FileChunk) ([]byte, error) {
	object, err := m.client.GetObject(ctx, m.bucket, ObjectKey(chunk), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	compressed, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrBlobMissing, chunk.ChunkId)
		}
		return nil, err
	}
	return m.decompress(compressed)
}

func (m *MinioBlobStore) Delete(ctx context.Context, chunks []*entity.FileChunk) error {
	for _, chunk := range chunks {
		if err := m.client.RemoveObject(ctx, m.bucket, ObjectKey(chunk), minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
