/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

type Ban struct {
	CommunityId       string  `gorm:"primaryKey" json:"community_id"`
	BannedDid         string  `gorm:"primaryKey" json:"banned_did"`
	Reason            *string `json:"reason,omitempty"`
	BannedBy          string  `gorm:"not null" json:"banned_by"`
	DeviceFingerprint *string `gorm:"index" json:"device_fingerprint,omitempty"`
	ExpiresAt         *int64  `json:"expires_at,omitempty"` // nil is permanent
	CreatedAt         int64   `gorm:"not null" json:"created_at"`
}

type Warning struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index:idx_warnings_member" json:"community_id"`
	MemberDid   string `gorm:"not null;index:idx_warnings_member" json:"member_did"`
	Reason      string `gorm:"not null" json:"reason"`
	WarnedBy    string `gorm:"not null" json:"warned_by"`
	ExpiresAt   *int64 `json:"expires_at,omitempty"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

const (
	TimeoutMute     = "mute"
	TimeoutRestrict = "restrict"
)

type MemberTimeout struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index:idx_timeouts_member" json:"community_id"`
	MemberDid   string `gorm:"not null;index:idx_timeouts_member" json:"member_did"`
	Reason      string `json:"reason"`
	TimeoutType string `gorm:"not null" json:"timeout_type"`
	IssuedBy    string `gorm:"not null" json:"issued_by"`
	ExpiresAt   int64  `gorm:"not null" json:"expires_at"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

type AuditLogEntry struct {
	Id           string  `gorm:"primaryKey" json:"id"`
	CommunityId  string  `gorm:"not null;index:idx_audit_community_time" json:"community_id"`
	ActorDid     string  `gorm:"not null;index" json:"actor_did"`
	ActionType   string  `gorm:"not null;index" json:"action_type"`
	TargetType   *string `json:"target_type,omitempty"`
	TargetId     *string `json:"target_id,omitempty"`
	MetadataJson *string `json:"metadata_json,omitempty"`
	CreatedAt    int64   `gorm:"not null;index:idx_audit_community_time" json:"created_at"`
}

func (AuditLogEntry) TableName() string {
	return "community_audit_log"
}

type KeywordFilter struct {
	Id          string `gorm:"primaryKey" json:"id"`
	CommunityId string `gorm:"not null;index" json:"community_id"`
	Pattern     string `gorm:"not null" json:"pattern"` // may contain * wildcards
	Action      string `gorm:"not null" json:"action"`  // delete, warn or timeout
	CreatedBy   string `gorm:"not null" json:"created_by"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}
