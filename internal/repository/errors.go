/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import "errors"

// Sentinel errors of the repositories, alongside gorm.ErrRecordNotFound
var (
	ErrAlreadyMember   = errors.New("Already a member of this community")
	ErrInviteExpired   = errors.New("Invite has expired")
	ErrInviteExhausted = errors.New("Invite has reached its maximum uses")
	ErrPinLimit        = errors.New("Pin limit reached for this channel")
	ErrUsernameFull    = errors.New("No tags left for this username")
	ErrUsernameTaken   = errors.New("Username and tag already taken")
)
