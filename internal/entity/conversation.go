/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

const (
	ConversationDM    = "dm"
	ConversationGroup = "group"
)

type Conversation struct {
	Id            string  `gorm:"primaryKey" json:"id"`
	Type          string  `gorm:"not null" json:"type"`
	FriendDid     *string `gorm:"index" json:"friend_did,omitempty"`
	GroupId       *string `gorm:"index" json:"group_id,omitempty"`
	UnreadCount   int     `gorm:"not null;default:0" json:"unread_count"`
	LastMessageAt *int64  `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     int64   `gorm:"not null" json:"created_at"`
}

// Direct message. Content is the hex ciphertext, the relay never sees the plaintext
type Message struct {
	Id               string  `gorm:"primaryKey" json:"id"`
	ConversationId   string  `gorm:"not null;index:idx_messages_conversation_time" json:"conversation_id"`
	SenderDid        string  `gorm:"not null;index" json:"sender_did"`
	ContentEncrypted string  `gorm:"not null" json:"content_encrypted"` // hex
	Nonce            string  `gorm:"not null" json:"nonce"`             // hex, 12 bytes
	Timestamp        int64   `gorm:"not null;index:idx_messages_conversation_time" json:"timestamp"`
	Delivered        bool    `gorm:"not null;default:false" json:"delivered"`
	Read             bool    `gorm:"not null;default:false" json:"read"`
	ReplyToId        *string `gorm:"index" json:"reply_to_id,omitempty"` // thread parent
	Pinned           bool    `gorm:"not null;default:false" json:"pinned"`
	PinnedBy         *string `json:"pinned_by,omitempty"`
	PinnedAt         *int64  `json:"pinned_at,omitempty"`
	Edited           bool    `gorm:"not null;default:false" json:"edited"`
	EditedAt         *int64  `json:"edited_at,omitempty"`
	Deleted          bool    `gorm:"not null;default:false" json:"deleted"`
	DeletedAt        *int64  `json:"deleted_at,omitempty"`
}

type Reaction struct {
	Id        string `gorm:"primaryKey" json:"id"`
	MessageId string `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"message_id"`
	UserDid   string `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"user_did"`
	Emoji     string `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"emoji"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}
