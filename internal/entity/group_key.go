/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

const (
	KeyScopeGroup   = "group"
	KeyScopeChannel = "channel"
)

// Symmetric key of a group or an encrypted channel, wrapped under the local wrapping key
type GroupKey struct {
	ScopeId      string `gorm:"primaryKey" json:"scope_id"`
	KeyVersion   int    `gorm:"primaryKey" json:"key_version"`
	Scope        string `gorm:"not null" json:"scope"`
	EncryptedKey string `gorm:"not null" json:"encrypted_key"` // hex nonce || ciphertext
	CreatedAt    int64  `gorm:"not null" json:"created_at"`
}
