/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

type Emoji struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;uniqueIndex:idx_emoji_name" json:"community_id"`
	Name        string `gorm:"not null;uniqueIndex:idx_emoji_name" json:"name"`
	ImageUrl    string `gorm:"not null" json:"image_url"`
	Animated    bool   `gorm:"not null;default:false" json:"animated"`
	UploadedBy  string `gorm:"not null" json:"uploaded_by"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

func (Emoji) TableName() string {
	return "community_emoji"
}

type Sticker struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	Name        string `gorm:"not null" json:"name"`
	ImageUrl    string `gorm:"not null" json:"image_url"`
	Animated    bool   `gorm:"not null;default:false" json:"animated"`
	UploadedBy  string `gorm:"not null" json:"uploaded_by"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

func (Sticker) TableName() string {
	return "community_stickers"
}

// The token is shown once at creation, only its bcrypt hash is kept
type Webhook struct {
	Id          string  `gorm:"primaryKey" json:"id"`
	CommunityId string  `gorm:"not null;index" json:"community_id"`
	ChannelId   string  `gorm:"not null;index" json:"channel_id"`
	Name        string  `gorm:"not null" json:"name"`
	AvatarUrl   *string `json:"avatar_url,omitempty"`
	TokenHash   string  `gorm:"not null" json:"-"`
	CreatorDid  string  `gorm:"not null" json:"creator_did"`
	CreatedAt   int64   `gorm:"not null" json:"created_at"`
}

func (Webhook) TableName() string {
	return "community_webhooks"
}
