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
)

// Custom emoji, stickers and webhooks of a community
type CustomizationRepository interface {
	CreateEmoji(emoji *entity.Emoji) error
	ListEmoji(communityId string) ([]*entity.Emoji, error)
	RenameEmoji(id, name string) error
	DeleteEmoji(id string) (bool, error)

	CreateSticker(sticker *entity.Sticker) error
	ListStickers(communityId string) ([]*entity.Sticker, error)
	DeleteSticker(id string) (bool, error)

	CreateWebhook(webhook *entity.Webhook) error
	GetWebhook(id string) (*entity.Webhook, error)
	ListWebhooks(communityId string) ([]*entity.Webhook, error)
	UpdateWebhook(webhook *entity.Webhook) error
	DeleteWebhook(id string) (bool, error)
}

type SQLiteCustomizationRepository struct {
	db *gorm.DB
}

func NewSQLiteCustomizationRepository(db *gorm.DB) CustomizationRepository {
	return &SQLiteCustomizationRepository{db}
}

func (repo *SQLiteCustomizationRepository) CreateEmoji(emoji *entity.Emoji) error {
	return repo.db.Create(emoji).Error
}

func (repo *SQLiteCustomizationRepository) ListEmoji(communityId string) ([]*entity.Emoji, error) {
	var emoji []*entity.Emoji
	err := repo.db.Where("community_id = ?", communityId).Order("name ASC").Find(&emoji).Error
	return emoji, err
}

func (repo *SQLiteCustomizationRepository) RenameEmoji(id, name string) error {
	res := repo.db.Model(&entity.Emoji{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteCustomizationRepository) DeleteEmoji(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.Emoji{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteCustomizationRepository) CreateSticker(sticker *entity.Sticker) error {
	return repo.db.Create(sticker).Error
}

func (repo *SQLiteCustomizationRepository) ListStickers(communityId string) ([]*entity.Sticker, error) {
	var stickers []*entity.Sticker
	err := repo.db.Where("community_id = ?", communityId).Order("created_at ASC").Find(&stickers).Error
	return stickers, err
}

func (repo *SQLiteCustomizationRepository) DeleteSticker(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.Sticker{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteCustomizationRepository) CreateWebhook(webhook *entity.Webhook) error {
	return repo.db.Create(webhook).Error
}

func (repo *SQLiteCustomizationRepository) GetWebhook(id string) (*entity.Webhook, error) {
	var webhook entity.Webhook
	err := repo.db.Where("id = ?", id).First(&webhook).Error
	return &webhook, err
}

func (repo *SQLiteCustomizationRepository) ListWebhooks(communityId string) ([]*entity.Webhook, error) {
	var webhooks []*entity.Webhook
	err := repo.db.Where("community_id = ?", communityId).Order("created_at ASC").Find(&webhooks).Error
	return webhooks, err
}

func (repo *SQLiteCustomizationRepository) UpdateWebhook(webhook *entity.Webhook) error {
	return repo.db.Save(webhook).Error
}

func (repo *SQLiteCustomizationRepository) DeleteWebhook(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.Webhook{})
	return res.RowsAffected > 0, res.Error
}
