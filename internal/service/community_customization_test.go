/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"strings"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmoji_NamesAreUniqueIgnoringCase(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)
	spec := EmojiSpec{Name: "party_parrot", ImageUrl: "https://cdn.example/parrot.gif", Animated: true}

	_, err := f.customization.CreateEmoji(created.CommunityId, bob, spec)
	requireCode(t, err, apperr.PermissionDenied)

	emoji, err := f.customization.CreateEmoji(created.CommunityId, f.me, spec)
	require.NoError(t, err)

	_, err = f.customization.CreateEmoji(created.CommunityId, f.me, EmojiSpec{Name: "PARTY_PARROT", ImageUrl: spec.ImageUrl})
	requireCode(t, err, apperr.Conflict)
	_, err = f.customization.CreateEmoji(created.CommunityId, f.me, EmojiSpec{Name: "no spaces", ImageUrl: spec.ImageUrl})
	requireCode(t, err, apperr.InvalidInput)

	require.NoError(t, f.customization.RenameEmoji(created.CommunityId, f.me, emoji.Id, "parrot"))
	listed, err := f.customization.Emoji(created.CommunityId)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "parrot", listed[0].Name)

	require.NoError(t, f.customization.DeleteEmoji(created.CommunityId, f.me, emoji.Id))
	listed, err = f.customization.Emoji(created.CommunityId)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestWebhook_TokenIsCheckedOnExecute(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)

	hook, err := f.customization.CreateWebhook(created.GeneralChannelId, f.me, "ci-bot", nil)
	require.NoError(t, err)
	assert.Len(t, hook.Token, 64)
	assert.NotContains(t, hook.Webhook.TokenHash, hook.Token)

	_, err = f.customization.ExecuteWebhook(hook.Webhook.Id, strings.Repeat("0", 64), "build passed")
	requireCode(t, err, apperr.PermissionDenied)

	message, err := f.customization.ExecuteWebhook(hook.Webhook.Id, hook.Token, "build passed")
	require.NoError(t, err)
	assert.Equal(t, "webhook:"+hook.Webhook.Id, message.SenderDid)

	page, err := f.messages.Messages(created.GeneralChannelId, f.me, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "build passed", page[0].Text)

	require.NoError(t, f.customization.DeleteWebhook(hook.Webhook.Id, f.me))
	_, err = f.customization.ExecuteWebhook(hook.Webhook.Id, hook.Token, "again")
	requireCode(t, err, apperr.EntityNotFound)
}

func TestBranding_SetAndClear(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)

	community, err := f.customization.UpdateBranding(created.CommunityId, f.me, Branding{AccentColor: ptr("#ff8800"), IconUrl: ptr("https://cdn.example/icon.png")})
	require.NoError(t, err)
	require.NotNil(t, community.AccentColor)
	assert.Equal(t, "#ff8800", *community.AccentColor)

	community, err = f.customization.UpdateBranding(created.CommunityId, f.me, Branding{IconUrl: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, community.IconUrl)
	assert.NotNil(t, community.AccentColor)

	_, err = f.customization.UpdateBranding(created.CommunityId, f.me, Branding{AccentColor: ptr("orange")})
	requireCode(t, err, apperr.InvalidInput)
	_, err = f.customization.UpdateBranding(created.CommunityId, f.me, Branding{CustomCss: ptr(strings.Repeat("a", MaxCustomCssLength+1))})
	requireCode(t, err, apperr.InvalidInput)
}
