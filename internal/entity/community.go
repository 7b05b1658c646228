/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

type Community struct {
	Id          string  `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"not null" json:"name"`
	Description *string `json:"description,omitempty"`
	OwnerDid    string  `gorm:"not null;index" json:"owner_did"`
	IconUrl     *string `json:"icon_url,omitempty"`
	BannerUrl   *string `json:"banner_url,omitempty"`
	SplashUrl   *string `json:"splash_url,omitempty"`
	AccentColor *string `json:"accent_color,omitempty"`
	CustomCss   *string `json:"custom_css,omitempty"`
	VanityUrl   *string `gorm:"uniqueIndex" json:"vanity_url,omitempty"`
	CreatedAt   int64   `gorm:"not null" json:"created_at"`
	UpdatedAt   int64   `gorm:"not null" json:"updated_at"`
}

type Space struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	Name        string `gorm:"not null" json:"name"`
	Position    int    `gorm:"not null" json:"position"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
	UpdatedAt   int64  `gorm:"not null" json:"updated_at"`
}

type Category struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	SpaceId     string `gorm:"not null;index" json:"space_id"`
	Name        string `gorm:"not null" json:"name"`
	Position    int    `gorm:"not null" json:"position"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
	UpdatedAt   int64  `gorm:"not null" json:"updated_at"`
}

const (
	ChannelText         = "text"
	ChannelVoice        = "voice"
	ChannelFiles        = "files"
	ChannelAnnouncement = "announcement"
	ChannelBulletin     = "bulletin"
	ChannelWelcome      = "welcome"

	DefaultPinLimit = 50
)

type Channel struct {
	Id              string  `gorm:"primaryKey" json:"id"`
	CommunityId     string  `gorm:"not null;index" json:"community_id"`
	SpaceId         string  `gorm:"not null;index" json:"space_id"`
	CategoryId      *string `gorm:"index" json:"category_id,omitempty"`
	Name            string  `gorm:"not null" json:"name"`
	ChannelType     string  `gorm:"not null" json:"channel_type"`
	Topic           *string `json:"topic,omitempty"`
	Position        int     `gorm:"not null" json:"position"`
	SlowModeSeconds int     `gorm:"not null;default:0" json:"slow_mode_seconds"`
	E2eeEnabled     bool    `gorm:"not null;default:false" json:"e2ee_enabled"`
	PinLimit        int     `gorm:"not null;default:50" json:"pin_limit"`
	CreatedAt       int64   `gorm:"not null" json:"created_at"`
	UpdatedAt       int64   `gorm:"not null" json:"updated_at"`
}

type Role struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	Name        string `gorm:"not null" json:"name"`
	Color       string `json:"color"`
	Position    int    `gorm:"not null" json:"position"`
	Hoisted     bool   `gorm:"not null;default:false" json:"hoisted"`
	Mentionable bool   `gorm:"not null;default:false" json:"mentionable"`
	IsPreset    bool   `gorm:"not null;default:false" json:"is_preset"`
	Permissions string `gorm:"not null;default:'0'" json:"permissions"` // u64 bitfield as decimal string
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
	UpdatedAt   int64  `gorm:"not null" json:"updated_at"`
}

type CommunityMember struct {
	CommunityId string  `gorm:"primaryKey" json:"community_id"`
	MemberDid   string  `gorm:"primaryKey" json:"member_did"`
	Nickname    *string `json:"nickname,omitempty"`
	AvatarUrl   *string `json:"avatar_url,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	JoinedAt    int64   `gorm:"not null" json:"joined_at"`
}

type MemberRole struct {
	CommunityId string  `gorm:"primaryKey" json:"community_id"`
	MemberDid   string  `gorm:"primaryKey" json:"member_did"`
	RoleId      string  `gorm:"primaryKey;index" json:"role_id"`
	AssignedAt  int64   `gorm:"not null" json:"assigned_at"`
	AssignedBy  *string `json:"assigned_by,omitempty"`
}

const (
	OverrideRole   = "role"
	OverrideMember = "member"
)

// Allow/deny pair of a role or of a single member on one channel
type ChannelOverride struct {
	Id         string `gorm:"primaryKey" json:"id"`
	ChannelId  string `gorm:"not null;uniqueIndex:idx_override_target" json:"channel_id"`
	TargetType string `gorm:"not null;uniqueIndex:idx_override_target" json:"target_type"`
	TargetId   string `gorm:"not null;uniqueIndex:idx_override_target" json:"target_id"`
	Allow      string `gorm:"not null;default:'0'" json:"allow"`
	Deny       string `gorm:"not null;default:'0'" json:"deny"`
}

type Invite struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	Code        string `gorm:"not null;uniqueIndex" json:"code"`
	Vanity      bool   `gorm:"not null;default:false" json:"vanity"`
	CreatorDid  string `gorm:"not null" json:"creator_did"`
	MaxUses     *int   `json:"max_uses,omitempty"`
	UseCount    int    `gorm:"not null;default:0" json:"use_count"`
	ExpiresAt   *int64 `json:"expires_at,omitempty"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}
