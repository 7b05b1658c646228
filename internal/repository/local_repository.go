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

// This repository is the per plugin key/value store, plus the call history shown next to conversations.
type LocalRepository interface {
	PluginGet(pluginId, key string) (*entity.PluginKV, error)       // Retrieves one value
	PluginSet(pluginId, key, value string) error                    // Inserts or replaces one value
	PluginDelete(pluginId, key string) (bool, error)                // Removes one value
	PluginList(pluginId, prefix string) ([]*entity.PluginKV, error) // Retrieves the values whose key starts with prefix

	StoreCall(call *entity.CallRecord) error                                    // Inserts or replaces a call record
	EndCall(id, status string, endedAt int64) error                             // Closes a call, computing its duration
	CallHistory(conversationId string, limit int) ([]*entity.CallRecord, error) // Retrieves calls, newest first. An empty conversation id means all
}

// Implementation of the repository using a SQLite DB
type SQLiteLocalRepository struct {
	db *gorm.DB
}

func NewSQLiteLocalRepository(db *gorm.DB) LocalRepository {
	return &SQLiteLocalRepository{db}
}

func (repo *SQLiteLocalRepository) PluginGet(pluginId, key string) (*entity.PluginKV, error) {
	var kv entity.PluginKV
	err := repo.db.Where("plugin_id = ? AND key = ?", pluginId, key).First(&kv).Error
	return &kv, err
}

func (repo *SQLiteLocalRepository) PluginSet(pluginId, key, value string) error {
	kv := &entity.PluginKV{PluginId: pluginId, Key: key, Value: value}
	return repo.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plugin_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(kv).Error
}

func (repo *SQLiteLocalRepository) PluginDelete(pluginId, key string) (bool, error) {
	res := repo.db.Where("plugin_id = ? AND key = ?", pluginId, key).Delete(&entity.PluginKV{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteLocalRepository) PluginList(pluginId, prefix string) ([]*entity.PluginKV, error) {
	var kvs []*entity.PluginKV
	query := repo.db.Where("plugin_id = ?", pluginId)
	if prefix != "" {
		query = query.Where("substr(key, 1, ?) = ?", len(prefix), prefix)
	}
	err := query.Order("key ASC").Find(&kvs).Error
	return kvs, err
}

func (repo *SQLiteLocalRepository) StoreCall(call *entity.CallRecord) error {
	return repo.db.Save(call).Error
}

func (repo *SQLiteLocalRepository) EndCall(id, status string, endedAt int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		var call entity.CallRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&call).Error; err != nil {
			return err
		}
		call.Status = status
		call.EndedAt = &endedAt
		call.DurationMs = max(endedAt-call.StartedAt, 0)
		return tx.Save(&call).Error
	})
}

func (repo *SQLiteLocalRepository) CallHistory(conversationId string, limit int) ([]*entity.CallRecord, error) {
	var calls []*entity.CallRecord
	query := repo.db.Order("started_at DESC")
	if conversationId != "" {
		query = query.Where("conversation_id = ?", conversationId)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&calls).Error
	return calls, err
}
