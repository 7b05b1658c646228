/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// This repository stores chunked files, the community file listing and the persisted transfer sessions
type FileRepository interface {
	SaveManifest(manifest *entity.FileManifest, chunks []*entity.FileChunk) error // Stores a manifest with its chunks atomically
	GetManifest(fileId string) (*entity.FileManifest, error)
	SaveChunk(chunk *entity.FileChunk) error // Upserts one chunk, used while receiving a transfer
	GetChunk(fileId string, index int) (*entity.FileChunk, error)
	Chunks(fileId string) ([]*entity.FileChunk, error) // Ordered by chunk index
	ChunkIndexes(fileId string) ([]int, error)         // Indexes held locally, used to resume
	DeleteFile(fileId string) error                    // Deletes a manifest and its chunks

	CreateCommunityFile(file *entity.CommunityFile) error
	GetCommunityFile(id string) (*entity.CommunityFile, error)
	ListCommunityFiles(channelId string, limit, offset int) ([]*entity.CommunityFile, error)
	DeleteCommunityFile(id string) (bool, error)
	CountDownload(id string) error
	NeedingReencryption(channelId string, limit int) ([]*entity.CommunityFile, error)
	MarkReencrypted(id string, keyVersion int) error

	SaveTransfer(record *entity.TransferRecord) error
	GetTransfer(id string) (*entity.TransferRecord, error)
	ListTransfers(states ...string) ([]*entity.TransferRecord, error)
	DeleteTransfer(id string) (bool, error)
}

type SQLiteFileRepository struct {
	db *gorm.DB
}

func NewSQLiteFileRepository(db *gorm.DB) FileRepository {
	return &SQLiteFileRepository{db}
}

var chunkConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "file_id"}, {Name: "chunk_index"}},
	DoUpdates: clause.AssignmentColumns([]string{"chunk_id", "data", "size"}),
}

func (repo *SQLiteFileRepository) SaveManifest(manifest *entity.FileManifest, chunks []*entity.FileChunk) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(manifest).Error; err != nil {
			return err
		}
		for _, chunk := range chunks {
			if err := tx.Clauses(chunkConflict).Create(chunk).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (repo *SQLiteFileRepository) GetManifest(fileId string) (*entity.FileManifest, error) {
	var manifest entity.FileManifest
	err := repo.db.Where("file_id = ?", fileId).First(&manifest).Error
	return &manifest, err
}

func (repo *SQLiteFileRepository) SaveChunk(chunk *entity.FileChunk) error {
	return repo.db.Clauses(chunkConflict).Create(chunk).Error
}

func (repo *SQLiteFileRepository) GetChunk(fileId string, index int) (*entity.FileChunk, error) {
	var chunk entity.FileChunk
	err := repo.db.Where("file_id = ? AND chunk_index = ?", fileId, index).First(&chunk).Error
	return &chunk, err
}

func (repo *SQLiteFileRepository) Chunks(fileId string) ([]*entity.FileChunk, error) {
	var chunks []*entity.FileChunk
	err := repo.db.Where("file_id = ?", fileId).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

func (repo *SQLiteFileRepository) ChunkIndexes(fileId string) ([]int, error) {
	indexes := []int{}
	err := repo.db.Model(&entity.FileChunk{}).Where("file_id = ?", fileId).Order("chunk_index ASC").Pluck("chunk_index", &indexes).Error
	return indexes, err
}

func (repo *SQLiteFileRepository) DeleteFile(fileId string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileId).Delete(&entity.FileChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("file_id = ?", fileId).Delete(&entity.FileManifest{}).Error
	})
}

func (repo *SQLiteFileRepository) CreateCommunityFile(file *entity.CommunityFile) error {
	return repo.db.Create(file).Error
}

func (repo *SQLiteFileRepository) GetCommunityFile(id string) (*entity.CommunityFile, error) {
	var file entity.CommunityFile
	err := repo.db.Where("id = ?", id).First(&file).Error
	return &file, err
}

func (repo *SQLiteFileRepository) ListCommunityFiles(channelId string, limit, offset int) ([]*entity.CommunityFile, error) {
	var files []*entity.CommunityFile
	err := repo.db.Where("channel_id = ?", channelId).Order("created_at DESC").Limit(limit).Offset(offset).Find(&files).Error
	return files, err
}

func (repo *SQLiteFileRepository) DeleteCommunityFile(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.CommunityFile{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteFileRepository) CountDownload(id string) error {
	res := repo.db.Model(&entity.CommunityFile{}).Where("id = ?", id).Update("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteFileRepository) NeedingReencryption(channelId string, limit int) ([]*entity.CommunityFile, error) {
	var files []*entity.CommunityFile
	err := repo.db.Where("channel_id = ? AND needs_reencryption = ?", channelId, true).Order("created_at ASC").Limit(limit).Find(&files).Error
	return files, err
}

func (repo *SQLiteFileRepository) MarkReencrypted(id string, keyVersion int) error {
	res := repo.db.Model(&entity.CommunityFile{}).
		Where("id = ?", id).
		Updates(map[string]any{"needs_reencryption": false, "key_version": keyVersion})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteFileRepository) SaveTransfer(record *entity.TransferRecord) error {
	return repo.db.Save(record).Error
}

func (repo *SQLiteFileRepository) GetTransfer(id string) (*entity.TransferRecord, error) {
	var record entity.TransferRecord
	err := repo.db.Where("transfer_id = ?", id).First(&record).Error
	return &record, err
}

func (repo *SQLiteFileRepository) ListTransfers(states ...string) ([]*entity.TransferRecord, error) {
	query := repo.db.Model(&entity.TransferRecord{})
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	var records []*entity.TransferRecord
	err := query.Order("started_at ASC").Find(&records).Error
	return records, err
}

func (repo *SQLiteFileRepository) DeleteTransfer(id string) (bool, error) {
	res := repo.db.Where("transfer_id = ?", id).Delete(&entity.TransferRecord{})
	return res.RowsAffected > 0, res.Error
}
