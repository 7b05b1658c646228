/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"errors"

	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Versioned symmetric keys of groups and encrypted channels. Versions start at 1 and only grow
type KeyRepository interface {
	Store(key *entity.GroupKey) error                // Inserts a key version, failing when it already exists
	Latest(scopeId string) (*entity.GroupKey, error) // Retrieves the highest version
	Get(scopeId string, version int) (*entity.GroupKey, error)
	Versions(scopeId string) ([]*entity.GroupKey, error)        // Oldest first
	Rotate(key *entity.GroupKey, markFiles bool) (int64, error) // Stores the next version and, for channels, flags files encrypted under older ones
	DeleteScope(scopeId string) error
}

type SQLiteKeyRepository struct {
	db *gorm.DB
}

func NewSQLiteKeyRepository(db *gorm.DB) KeyRepository {
	return &SQLiteKeyRepository{db}
}

func (repo *SQLiteKeyRepository) Store(key *entity.GroupKey) error {
	return repo.db.Create(key).Error
}

func (repo *SQLiteKeyRepository) Latest(scopeId string) (*entity.GroupKey, error) {
	var key entity.GroupKey
	err := repo.db.Where("scope_id = ?", scopeId).Order("key_version DESC").First(&key).Error
	return &key, err
}

func (repo *SQLiteKeyRepository) Get(scopeId string, version int) (*entity.GroupKey, error) {
	var key entity.GroupKey
	err := repo.db.Where("scope_id = ? AND key_version = ?", scopeId, version).First(&key).Error
	return &key, err
}

func (repo *SQLiteKeyRepository) Versions(scopeId string) ([]*entity.GroupKey, error) {
	var keys []*entity.GroupKey
	err := repo.db.Where("scope_id = ?", scopeId).Order("key_version ASC").Find(&keys).Error
	return keys, err
}

func (repo *SQLiteKeyRepository) Rotate(key *entity.GroupKey, markFiles bool) (int64, error) {
	var marked int64
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		var latest entity.GroupKey
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("scope_id = ?", key.ScopeId).Order("key_version DESC").First(&latest).Error
		switch {
		case err == nil:
			key.KeyVersion = latest.KeyVersion + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
			key.KeyVersion = 1
		default:
			return err
		}
		if err := tx.Create(key).Error; err != nil {
			return err
		}
		if !markFiles {
			return nil
		}
		res := tx.Model(&entity.CommunityFile{}).
			Where("channel_id = ? AND key_version IS NOT NULL AND key_version < ?", key.ScopeId, key.KeyVersion).
			Update("needs_reencryption", true)
		marked = res.RowsAffected
		return res.Error
	})
	return marked, err
}

func (repo *SQLiteKeyRepository) DeleteScope(scopeId string) error {
	return repo.db.Where("scope_id = ?", scopeId).Delete(&entity.GroupKey{}).Error
}
