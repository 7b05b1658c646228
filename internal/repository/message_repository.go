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

// This repository holds conversations, their direct messages and the reactions on them.
// Message bodies are stored encrypted; the repository never looks inside them.
type MessageRepository interface {
	EnsureConversation(conv *entity.Conversation) error              // Creates the conversation unless it exists
	GetConversation(id string) (*entity.Conversation, error)         // Retrieves a conversation
	ListConversations() ([]*entity.Conversation, error)              // Retrieves every conversation, most recent activity first
	ConversationWith(friendDid string) (*entity.Conversation, error) // Retrieves the DM conversation with a friend

	Store(message *entity.Message, incoming bool) error                       // Inserts a message and bumps its conversation, counting it as unread when incoming
	Get(id string) (*entity.Message, error)                                   // Retrieves a message
	List(conversationId string, limit, offset int) ([]*entity.Message, error) // Retrieves a page of messages, oldest first
	Replies(parentId string) ([]*entity.Message, error)                       // Retrieves the thread under a message
	Pinned(conversationId string) ([]*entity.Message, error)                  // Retrieves the pinned messages
	Edit(id, contentEncrypted, nonce string, editedAt int64) error            // Replaces the ciphertext of a message
	SoftDelete(id string, deletedAt int64) error                              // Marks a message deleted and erases its content
	SetPinned(id string, pinned bool, by string, at int64) error              // Pins or unpins a message
	MarkDelivered(id string) error                                            // Marks a message delivered
	MarkRead(id string) error                                                 // Marks a message read
	MarkConversationRead(conversationId string) (int64, error)                // Marks every message read and resets the unread counter

	AddReaction(reaction *entity.Reaction) (bool, error)           // Adds a reaction, false when it already existed
	RemoveReaction(messageId, userDid, emoji string) (bool, error) // Removes a reaction, false when it did not exist
	Reactions(messageId string) ([]*entity.Reaction, error)        // Retrieves the reactions of a message
}

// Implementation of the repository using a SQLite DB
type SQLiteMessageRepository struct {
	db *gorm.DB
}

func NewSQLiteMessageRepository(db *gorm.DB) MessageRepository {
	return &SQLiteMessageRepository{db}
}

func (repo *SQLiteMessageRepository) EnsureConversation(conv *entity.Conversation) error {
	return repo.db.Clauses(clause.OnConflict{DoNothing: true}).Create(conv).Error
}

func (repo *SQLiteMessageRepository) GetConversation(id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := repo.db.Where("id = ?", id).First(&conv).Error
	return &conv, err
}

func (repo *SQLiteMessageRepository) ListConversations() ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := repo.db.Order("last_message_at IS NULL, last_message_at DESC, created_at DESC").Find(&convs).Error
	return convs, err
}

func (repo *SQLiteMessageRepository) ConversationWith(friendDid string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := repo.db.Where("type = ? AND friend_did = ?", entity.ConversationDM, friendDid).First(&conv).Error
	return &conv, err
}

func (repo *SQLiteMessageRepository) Store(message *entity.Message, incoming bool) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		updates := map[string]any{"last_message_at": message.Timestamp}
		if incoming {
			updates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		res := tx.Model(&entity.Conversation{}).Where("id = ?", message.ConversationId).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (repo *SQLiteMessageRepository) Get(id string) (*entity.Message, error) {
	var message entity.Message
	err := repo.db.Where("id = ?", id).First(&message).Error
	return &message, err
}

func (repo *SQLiteMessageRepository) List(conversationId string, limit, offset int) ([]*entity.Message, error) {
	var messages []*entity.Message
	query := repo.db.Where("conversation_id = ?", conversationId).Order("timestamp ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (repo *SQLiteMessageRepository) Replies(parentId string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := repo.db.Where("reply_to_id = ?", parentId).Order("timestamp ASC").Find(&messages).Error
	return messages, err
}

func (repo *SQLiteMessageRepository) Pinned(conversationId string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := repo.db.Where("conversation_id = ? AND pinned = ?", conversationId, true).Order("pinned_at DESC").Find(&messages).Error
	return messages, err
}

func (repo *SQLiteMessageRepository) update(id string, updates map[string]any) error {
	res := repo.db.Model(&entity.Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteMessageRepository) Edit(id, contentEncrypted, nonce string, editedAt int64) error {
	return repo.update(id, map[string]any{
		"content_encrypted": contentEncrypted,
		"nonce":             nonce,
		"edited":            true,
		"edited_at":         editedAt,
	})
}

func (repo *SQLiteMessageRepository) SoftDelete(id string, deletedAt int64) error {
	return repo.update(id, map[string]any{
		"content_encrypted": "",
		"nonce":             "",
		"deleted":           true,
		"deleted_at":        deletedAt,
	})
}

func (repo *SQLiteMessageRepository) SetPinned(id string, pinned bool, by string, at int64) error {
	if !pinned {
		return repo.update(id, map[string]any{"pinned": false, "pinned_by": nil, "pinned_at": nil})
	}
	return repo.update(id, map[string]any{"pinned": true, "pinned_by": by, "pinned_at": at})
}

func (repo *SQLiteMessageRepository) MarkDelivered(id string) error {
	return repo.update(id, map[string]any{"delivered": true})
}

func (repo *SQLiteMessageRepository) MarkRead(id string) error {
	return repo.update(id, map[string]any{"delivered": true, "read": true})
}

func (repo *SQLiteMessageRepository) MarkConversationRead(conversationId string) (int64, error) {
	var marked int64
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.Message{}).
			Where("conversation_id = ? AND read = ?", conversationId, false).
			Updates(map[string]any{"read": true, "delivered": true})
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected
		return tx.Model(&entity.Conversation{}).Where("id = ?", conversationId).Update("unread_count", 0).Error
	})
	return marked, err
}

func (repo *SQLiteMessageRepository) AddReaction(reaction *entity.Reaction) (bool, error) {
	res := repo.db.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction)
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMessageRepository) RemoveReaction(messageId, userDid, emoji string) (bool, error) {
	res := repo.db.Where("message_id = ? AND user_did = ? AND emoji = ?", messageId, userDid, emoji).Delete(&entity.Reaction{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMessageRepository) Reactions(messageId string) ([]*entity.Reaction, error) {
	var reactions []*entity.Reaction
	err := repo.db.Where("message_id = ?", messageId).Order("created_at ASC").Find(&reactions).Error
	return reactions, err
}
