/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

// Relay side directory entry of a user
type DiscoveryUser struct {
	Did          string `gorm:"primaryKey" json:"did"`
	Discoverable bool   `gorm:"not null;default:false" json:"discoverable"`
	UpdatedAt    int64  `gorm:"not null" json:"updated_at"`
}

// Platform account linked to a DID. Only the salted hash of the platform id is stored
type LinkedAccount struct {
	Platform string `gorm:"primaryKey" json:"platform"`
	IdHash   string `gorm:"primaryKey" json:"id_hash"`
	Did      string `gorm:"not null;index" json:"did"`
	Username string `json:"platform_username"`
	LinkedAt int64  `gorm:"not null" json:"linked_at"`
}

type Username struct {
	Did       string `gorm:"primaryKey" json:"did"`
	Name      string `gorm:"not null" json:"name"`
	NameLower string `gorm:"not null;uniqueIndex:idx_username_slot" json:"-"`
	Tag       string `gorm:"not null;uniqueIndex:idx_username_slot" json:"tag"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}

func (u *Username) Full() string {
	return u.Name + "#" + u.Tag
}
