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

// Criteria of an advanced message search. Zero values disable a filter
type MessageSearch struct {
	ChannelIds    []string
	Query         string
	SenderDid     string
	From          int64
	To            int64
	HasAttachment bool
	HasReaction   bool
	MessageIds    []string // restricts the search to these ids, used for pinned-only searches
	Limit         int
}

type ChannelMessageRepository interface {
	Create(message *entity.ChannelMessage) error // Inserts a message and bumps its thread counters
	Get(id string) (*entity.ChannelMessage, error)
	List(channelId string, before int64, limit int) ([]*entity.ChannelMessage, error) // Newest first, before 0 starts from the latest
	ThreadMessages(threadId string, limit int) ([]*entity.ChannelMessage, error)      // Oldest first
	LastBySender(channelId, senderDid string) (*entity.ChannelMessage, error)         // Used to enforce slow mode
	Edit(id, content string, nonce *string, keyVersion *int, at int64) error
	SoftDelete(id string, at int64) error
	Search(search MessageSearch) ([]*entity.ChannelMessage, error)

	AddReaction(reaction *entity.ChannelReaction) (bool, error)
	RemoveReaction(messageId, did, emoji string) (bool, error)
	Reactions(messageId string) ([]*entity.ChannelReaction, error)

	Pin(pin *entity.ChannelPin, limit int) (int64, error) // Pins a message unless the channel is at its limit, returns the pinned count
	Unpin(channelId, messageId string) (bool, error)
	Pins(channelId string) ([]*entity.ChannelPin, error)
	PinnedIds(channelIds []string) ([]string, error)

	CreateThread(thread *entity.CommunityThread) error
	GetThread(id string) (*entity.CommunityThread, error)
	ThreadForMessage(messageId string) (*entity.CommunityThread, error)
	ListThreads(channelId string) ([]*entity.CommunityThread, error)

	MarkRead(receipt *entity.ReadReceipt) error
	ReadReceipts(channelId string) ([]*entity.ReadReceipt, error)
}

type SQLiteChannelMessageRepository struct {
	db *gorm.DB
}

func NewSQLiteChannelMessageRepository(db *gorm.DB) ChannelMessageRepository {
	return &SQLiteChannelMessageRepository{db}
}

func (repo *SQLiteChannelMessageRepository) Create(message *entity.ChannelMessage) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		if message.ThreadId == nil {
			return nil
		}
		return tx.Model(&entity.CommunityThread{}).
			Where("id = ?", *message.ThreadId).
			Updates(map[string]any{
				"message_count":   gorm.Expr("message_count + 1"),
				"last_message_at": message.CreatedAt,
			}).Error
	})
}

func (repo *SQLiteChannelMessageRepository) Get(id string) (*entity.ChannelMessage, error) {
	var message entity.ChannelMessage
	err := repo.db.Where("id = ?", id).First(&message).Error
	return &message, err
}

func (repo *SQLiteChannelMessageRepository) List(channelId string, before int64, limit int) ([]*entity.ChannelMessage, error) {
	query := repo.db.Where("channel_id = ? AND thread_id IS NULL", channelId)
	if before > 0 {
		query = query.Where("created_at < ?", before)
	}
	var messages []*entity.ChannelMessage
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (repo *SQLiteChannelMessageRepository) ThreadMessages(threadId string, limit int) ([]*entity.ChannelMessage, error) {
	var messages []*entity.ChannelMessage
	err := repo.db.Where("thread_id = ?", threadId).Order("created_at ASC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (repo *SQLiteChannelMessageRepository) LastBySender(channelId, senderDid string) (*entity.ChannelMessage, error) {
	var message entity.ChannelMessage
	err := repo.db.Where("channel_id = ? AND sender_did = ?", channelId, senderDid).Order("created_at DESC").First(&message).Error
	return &message, err
}

func (repo *SQLiteChannelMessageRepository) Edit(id, content string, nonce *string, keyVersion *int, at int64) error {
	res := repo.db.Model(&entity.ChannelMessage{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{"content": content, "nonce": nonce, "key_version": keyVersion, "edited": true, "edited_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteChannelMessageRepository) SoftDelete(id string, at int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.ChannelMessage{}).
			Where("id = ?", id).
			Updates(map[string]any{"content": "", "nonce": nil, "deleted": true, "deleted_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.ChannelReaction{}).Error; err != nil {
			return err
		}
		return tx.Where("message_id = ?", id).Delete(&entity.ChannelPin{}).Error
	})
}

func (repo *SQLiteChannelMessageRepository) Search(search MessageSearch) ([]*entity.ChannelMessage, error) {
	query := repo.db.Model(&entity.ChannelMessage{}).Where("deleted = ?", false)
	if len(search.ChannelIds) > 0 {
		query = query.Where("channel_id IN ?", search.ChannelIds)
	}
	if search.Query != "" {
		query = query.Where("key_version IS NULL AND content LIKE ?", "%"+search.Query+"%")
	}
	if search.SenderDid != "" {
		query = query.Where("sender_did = ?", search.SenderDid)
	}
	if search.From > 0 {
		query = query.Where("created_at >= ?", search.From)
	}
	if search.To > 0 {
		query = query.Where("created_at <= ?", search.To)
	}
	if search.HasAttachment {
		query = query.Where("has_attachment = ?", true)
	}
	if search.HasReaction {
		query = query.Where("id IN (?)", repo.db.Model(&entity.ChannelReaction{}).Select("message_id"))
	}
	if search.MessageIds != nil {
		if len(search.MessageIds) == 0 {
			return []*entity.ChannelMessage{}, nil
		}
		query = query.Where("id IN ?", search.MessageIds)
	}
	limit := search.Limit
	if limit <= 0 {
		limit = 50
	}

	var messages []*entity.ChannelMessage
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (repo *SQLiteChannelMessageRepository) AddReaction(reaction *entity.ChannelReaction) (bool, error) {
	res := repo.db.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction)
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteChannelMessageRepository) RemoveReaction(messageId, did, emoji string) (bool, error) {
	res := repo.db.Where("message_id = ? AND member_did = ? AND emoji = ?", messageId, did, emoji).Delete(&entity.ChannelReaction{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteChannelMessageRepository) Reactions(messageId string) ([]*entity.ChannelReaction, error) {
	var reactions []*entity.ChannelReaction
	err := repo.db.Where("message_id = ?", messageId).Order("created_at ASC").Find(&reactions).Error
	return reactions, err
}

func (repo *SQLiteChannelMessageRepository) Pin(pin *entity.ChannelPin, limit int) (int64, error) {
	var count int64
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ChannelPin{}).Where("channel_id = ?", pin.ChannelId).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return ErrPinLimit
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(pin)
		if res.Error != nil {
			return res.Error
		}
		count += res.RowsAffected
		return nil
	})
	return count, err
}

func (repo *SQLiteChannelMessageRepository) Unpin(channelId, messageId string) (bool, error) {
	res := repo.db.Where("channel_id = ? AND message_id = ?", channelId, messageId).Delete(&entity.ChannelPin{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteChannelMessageRepository) Pins(channelId string) ([]*entity.ChannelPin, error) {
	var pins []*entity.ChannelPin
	err := repo.db.Where("channel_id = ?", channelId).Order("pinned_at DESC").Find(&pins).Error
	return pins, err
}

func (repo *SQLiteChannelMessageRepository) PinnedIds(channelIds []string) ([]string, error) {
	ids := []string{}
	query := repo.db.Model(&entity.ChannelPin{})
	if len(channelIds) > 0 {
		query = query.Where("channel_id IN ?", channelIds)
	}
	err := query.Pluck("message_id", &ids).Error
	return ids, err
}

func (repo *SQLiteChannelMessageRepository) CreateThread(thread *entity.CommunityThread) error {
	return repo.db.Create(thread).Error
}

func (repo *SQLiteChannelMessageRepository) GetThread(id string) (*entity.CommunityThread, error) {
	var thread entity.CommunityThread
	err := repo.db.Where("id = ?", id).First(&thread).Error
	return &thread, err
}

func (repo *SQLiteChannelMessageRepository) ThreadForMessage(messageId string) (*entity.CommunityThread, error) {
	var thread entity.CommunityThread
	err := repo.db.Where("parent_message_id = ?", messageId).First(&thread).Error
	return &thread, err
}

func (repo *SQLiteChannelMessageRepository) ListThreads(channelId string) ([]*entity.CommunityThread, error) {
	var threads []*entity.CommunityThread
	err := repo.db.Where("channel_id = ?", channelId).Order("created_at DESC").Find(&threads).Error
	return threads, err
}

func (repo *SQLiteChannelMessageRepository) MarkRead(receipt *entity.ReadReceipt) error {
	return repo.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "member_did"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "read_at"}),
	}).Create(receipt).Error
}

func (repo *SQLiteChannelMessageRepository) ReadReceipts(channelId string) ([]*entity.ReadReceipt, error) {
	var receipts []*entity.ReadReceipt
	err := repo.db.Where("channel_id = ?", channelId).Order("read_at DESC").Find(&receipts).Error
	return receipts, err
}
