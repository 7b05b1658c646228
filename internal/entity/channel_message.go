/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

// Message posted in a community channel. Content is plaintext, or hex ciphertext when KeyVersion is set
type ChannelMessage struct {
	Id            string  `gorm:"primaryKey" json:"id"`
	ChannelId     string  `gorm:"not null;index:idx_channel_messages_time" json:"channel_id"`
	SenderDid     string  `gorm:"not null;index" json:"sender_did"`
	Content       string  `gorm:"not null" json:"content"`
	Nonce         *string `json:"nonce,omitempty"`
	KeyVersion    *int    `json:"key_version,omitempty"`
	ReplyToId     *string `gorm:"index" json:"reply_to_id,omitempty"`
	ThreadId      *string `gorm:"index" json:"thread_id,omitempty"`
	HasAttachment bool    `gorm:"not null;default:false" json:"has_attachment"`
	Edited        bool    `gorm:"not null;default:false" json:"edited"`
	EditedAt      *int64  `json:"edited_at,omitempty"`
	Deleted       bool    `gorm:"not null;default:false" json:"deleted"`
	DeletedAt     *int64  `json:"deleted_at,omitempty"`
	CreatedAt     int64   `gorm:"not null;index:idx_channel_messages_time" json:"created_at"`
}

type ChannelReaction struct {
	MessageId string `gorm:"primaryKey" json:"message_id"`
	MemberDid string `gorm:"primaryKey" json:"member_did"`
	Emoji     string `gorm:"primaryKey" json:"emoji"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}

type ChannelPin struct {
	ChannelId string `gorm:"primaryKey" json:"channel_id"`
	MessageId string `gorm:"primaryKey" json:"message_id"`
	PinnedBy  string `gorm:"not null" json:"pinned_by"`
	PinnedAt  int64  `gorm:"not null" json:"pinned_at"`
}

type CommunityThread struct {
	Id              string  `gorm:"primaryKey" json:"id"`
	ChannelId       string  `gorm:"not null;index" json:"channel_id"`
	ParentMessageId string  `gorm:"not null;uniqueIndex" json:"parent_message_id"`
	Name            *string `json:"name,omitempty"`
	CreatedBy       string  `gorm:"not null" json:"created_by"`
	MessageCount    int     `gorm:"not null;default:0" json:"message_count"`
	LastMessageAt   *int64  `json:"last_message_at,omitempty"`
	CreatedAt       int64   `gorm:"not null" json:"created_at"`
}

type ReadReceipt struct {
	ChannelId         string `gorm:"primaryKey" json:"channel_id"`
	MemberDid         string `gorm:"primaryKey" json:"member_did"`
	LastReadMessageId string `gorm:"not null" json:"last_read_message_id"`
	ReadAt            int64  `gorm:"not null" json:"read_at"`
}
