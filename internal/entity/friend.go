/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

const (
	RequestIncoming = "incoming"
	RequestOutgoing = "outgoing"

	RequestPending   = "pending"
	RequestAccepted  = "accepted"
	RequestRejected  = "rejected"
	RequestCancelled = "cancelled"
	RequestExpired   = "expired"
)

type Friend struct {
	Did           string  `gorm:"primaryKey" json:"did"`
	DisplayName   string  `gorm:"not null" json:"display_name"`
	SigningKey    string  `gorm:"not null" json:"signing_key"`    // hex, 32 bytes
	EncryptionKey string  `gorm:"not null" json:"encryption_key"` // hex, 32 bytes
	Avatar        *string `json:"avatar,omitempty"`
	Status        *string `json:"status,omitempty"`
	AddedAt       int64   `gorm:"not null" json:"added_at"`
	UpdatedAt     int64   `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

type FriendRequest struct {
	Id                string  `gorm:"primaryKey" json:"id"`
	Direction         string  `gorm:"not null;index" json:"direction"` // incoming or outgoing
	FromDid           string  `gorm:"not null;index" json:"from_did"`
	ToDid             string  `gorm:"not null;index" json:"to_did"`
	FromDisplayName   string  `gorm:"not null" json:"from_display_name"`
	FromAvatar        *string `json:"from_avatar,omitempty"`
	FromSigningKey    string  `gorm:"not null" json:"from_signing_key"`
	FromEncryptionKey string  `gorm:"not null" json:"from_encryption_key"`
	Message           string  `json:"message"`
	Signature         string  `json:"signature"` // hex ed25519 signature of the canonical request bytes
	Status            string  `gorm:"not null;index" json:"status"`
	CreatedAt         int64   `gorm:"not null" json:"created_at"`
	RespondedAt       *int64  `json:"responded_at,omitempty"`
}

type BlockedUser struct {
	Did       string `gorm:"primaryKey" json:"did"`
	Reason    string `json:"reason"`
	BlockedAt int64  `gorm:"not null" json:"blocked_at"`
}
