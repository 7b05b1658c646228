/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package identity

import (
	"unicode/utf8"

	"github.com/InfamousVague/umbra/internal/apperr"
)

const (
	MaxDisplayNameLength = 128
	MaxStatusLength      = 280
	MaxAvatarSize        = 256 * 1024
)

type Profile struct {
	DisplayName string  `json:"display_name"`
	Status      *string `json:"status,omitempty"`
	Avatar      *string `json:"avatar,omitempty"` // URL or data URI
}

// ProfileUpdate carries only the fields being changed
type ProfileUpdate struct {
	DisplayName *string
	Status      *string
	Avatar      *string
	ClearStatus bool
	ClearAvatar bool
}

func ValidateDisplayName(name string) error {
	if name == "" {
		return apperr.New(apperr.ProfileValidation, "display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return apperr.New(apperr.ProfileValidation, "display name cannot exceed %d characters", MaxDisplayNameLength)
	}
	return nil
}

func (p *Profile) Validate() error {
	if err := ValidateDisplayName(p.DisplayName); err != nil {
		return err
	}
	if p.Status != nil && utf8.RuneCountInString(*p.Status) > MaxStatusLength {
		return apperr.New(apperr.ProfileValidation, "status cannot exceed %d characters", MaxStatusLength)
	}
	if p.Avatar != nil && len(*p.Avatar) > MaxAvatarSize {
		return apperr.New(apperr.ProfileValidation, "avatar cannot exceed %d bytes", MaxAvatarSize)
	}
	return nil
}

// Apply validates the result before touching p, so a rejected update leaves the profile unchanged
func (p *Profile) Apply(update ProfileUpdate) error {
	next := *p
	if update.DisplayName != nil {
		next.DisplayName = *update.DisplayName
	}
	if update.ClearStatus {
		next.Status = nil
	} else if update.Status != nil {
		next.Status = update.Status
	}
	if update.ClearAvatar {
		next.Avatar = nil
	} else if update.Avatar != nil {
		next.Avatar = update.Avatar
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}
