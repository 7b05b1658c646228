/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "[402] not found", New(NotFound, "").Error())
	assert.Equal(t, "[801] missing permission MANAGE_CHANNELS", Denied("MANAGE_CHANNELS").Error())

	wrapped := Wrap(DatabaseError, errors.New("disk full"), "saving message")
	assert.Equal(t, "[400] saving message: disk full", wrapped.Error())
}

func TestCodeOfSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(RequestExpired, "request %s", "r1"))

	assert.Equal(t, RequestExpired, CodeOf(err))
	assert.True(t, Is(err, RequestExpired))
	assert.True(t, errors.Is(err, New(RequestExpired, "")))
	assert.False(t, errors.Is(err, New(RequestNotFound, "")))
	assert.Equal(t, Code(0), CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, NotFound))
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("io")
	assert.ErrorIs(t, Wrap(PeerUnreachable, cause, "dial"), cause)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsRecoverable(New(PeerUnreachable, "")))
	assert.True(t, IsRecoverable(New(DatabaseError, "")))
	assert.False(t, IsRecoverable(New(InvalidSignature, "")))

	assert.True(t, RequiresUserAction(New(NoIdentity, "")))
	assert.True(t, RequiresUserAction(New(UserBlocked, "")))
	assert.True(t, RequiresUserAction(New(SelfRequest, "")))
	assert.True(t, RequiresUserAction(Denied("KICK_MEMBERS")))
	assert.False(t, RequiresUserAction(New(AeadFailure, "")))
	assert.False(t, RequiresUserAction(New(NotImplemented, "")))
}

func TestNotImplementedDoesNotCollide(t *testing.T) {
	assert.NotEqual(t, UserBlocked, NotImplemented)
	assert.Equal(t, "not implemented", NotImplemented.String())
	assert.Equal(t, "code 9999", Code(9999).String())
}
