/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"testing"
	"time"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	mentions := ParseMentions("hey @everyone, ping @user:did:key:abc and @role:mods! also @Here")
	assert.Equal(t, []Mention{
		{Kind: MentionEveryone},
		{Kind: MentionUser, Target: "did:key:abc"},
		{Kind: MentionRole, Target: "mods"},
		{Kind: MentionHere},
	}, mentions)
	assert.Empty(t, ParseMentions("email me at someone@example.com"))
}

func TestSend_PlainChannel(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	result, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "  hello there  "})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Message.Text)
	assert.Nil(t, result.Message.KeyVersion)

	f.clock.Advance(time.Second)
	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "welcome bob"})
	require.NoError(t, err)

	page, err := f.messages.Messages(created.GeneralChannelId, bob, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "welcome bob", page[0].Text)
	assert.Equal(t, "hello there", page[1].Text)

	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "   "})
	requireCode(t, err, apperr.InvalidInput)

	_, err = f.messages.Send(created.GeneralChannelId, carol, SendOptions{Content: "let me in"})
	requireCode(t, err, apperr.PermissionDenied)
}

func TestSend_ChannelTypes(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	voice, err := f.communities.CreateChannel(created.CommunityId, f.me, ChannelSpec{SpaceId: created.SpaceId, Name: "lounge", ChannelType: entity.ChannelVoice})
	require.NoError(t, err)
	_, err = f.messages.Send(voice.Id, f.me, SendOptions{Content: "hi"})
	requireCode(t, err, apperr.InvalidInput)

	news, err := f.communities.CreateChannel(created.CommunityId, f.me, ChannelSpec{SpaceId: created.SpaceId, Name: "news", ChannelType: entity.ChannelAnnouncement})
	require.NoError(t, err)
	_, err = f.messages.Send(news.Id, bob, SendOptions{Content: "breaking"})
	requireCode(t, err, apperr.PermissionDenied)
	_, err = f.messages.Send(news.Id, f.me, SendOptions{Content: "release day"})
	require.NoError(t, err)
}

func TestSend_EncryptedChannel(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	secret, err := f.communities.CreateChannel(created.CommunityId, f.me, ChannelSpec{SpaceId: created.SpaceId, Name: "vault", E2eeEnabled: true})
	require.NoError(t, err)

	result, err := f.messages.Send(secret.Id, f.me, SendOptions{Content: "the eagle has landed"})
	require.NoError(t, err)
	require.NotNil(t, result.Message.KeyVersion)
	assert.Equal(t, 1, *result.Message.KeyVersion)

	storage, err := f.ctx.Storage()
	require.NoError(t, err)
	stored, err := storage.GetChannelMessageRepository().Get(result.Message.Id)
	require.NoError(t, err)
	assert.NotContains(t, stored.Content, "eagle")
	require.NotNil(t, stored.Nonce)

	// Older messages stay readable after a rotation
	_, err = f.keys.Rotate(secret.Id, f.me)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.messages.Send(secret.Id, f.me, SendOptions{Content: "second key"})
	require.NoError(t, err)

	page, err := f.messages.Messages(secret.Id, f.me, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "second key", page[0].Text)
	assert.Equal(t, 2, *page[0].KeyVersion)
	assert.Equal(t, "the eagle has landed", page[1].Text)

	f.clock.Advance(time.Second)
	edited, err := f.messages.Edit(result.Message.Id, f.me, "the eagle took off")
	require.NoError(t, err)
	assert.Equal(t, 2, *edited.KeyVersion)

	page, err = f.messages.Messages(secret.Id, f.me, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "the eagle took off", page[1].Text)
	assert.True(t, page[1].Edited)
}

func TestSend_SlowMode(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)
	require.NoError(t, f.communities.SetSlowMode(created.GeneralChannelId, f.me, 10))

	_, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "one"})
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)
	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "two"})
	requireCode(t, err, apperr.Conflict)

	f.clock.Advance(6 * time.Second)
	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "two"})
	require.NoError(t, err)

	// Message managers are not slowed down
	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "a"})
	require.NoError(t, err)
	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "b"})
	require.NoError(t, err)
}

func TestSend_KeywordFilters(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob, carol)

	_, err := f.moderation.AddKeywordFilter(created.CommunityId, f.me, "spam*", FilterDelete)
	require.NoError(t, err)
	_, err = f.moderation.AddKeywordFilter(created.CommunityId, f.me, "heck", FilterWarn)
	require.NoError(t, err)
	_, err = f.moderation.AddKeywordFilter(created.CommunityId, f.me, "scam", FilterTimeout)
	require.NoError(t, err)

	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "buy SPAMMY stuff"})
	requireCode(t, err, apperr.InvalidInput)

	result, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "what the heck"})
	require.NoError(t, err)
	require.NotNil(t, result.Flagged)
	assert.Equal(t, FilterWarn, result.Flagged.Action)
	warnings, err := f.moderation.Warnings(created.CommunityId, bob)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	_, err = f.messages.Send(created.GeneralChannelId, carol, SendOptions{Content: "free crypto scam"})
	requireCode(t, err, apperr.InvalidInput)
	muted, err := f.moderation.IsMuted(created.CommunityId, carol)
	require.NoError(t, err)
	assert.True(t, muted)

	// The owner is not filtered
	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "spam is bad"})
	require.NoError(t, err)
}

func TestSend_MentionEveryoneNeedsPermission(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	result, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "@everyone look @user:" + f.me})
	require.NoError(t, err)
	assert.Equal(t, []Mention{{Kind: MentionUser, Target: f.me}}, result.Mentions)

	result, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "@everyone meeting"})
	require.NoError(t, err)
	assert.Equal(t, []Mention{{Kind: MentionEveryone}}, result.Mentions)
}

func TestDelete_OwnOrModerated(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob, carol)

	sent, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "oops"})
	require.NoError(t, err)

	requireCode(t, f.messages.Delete(sent.Message.Id, carol), apperr.PermissionDenied)
	require.NoError(t, f.messages.Delete(sent.Message.Id, f.me))

	page, err := f.messages.Messages(created.GeneralChannelId, bob, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].Deleted)

	_, err = f.messages.Edit(sent.Message.Id, bob, "fixed")
	requireCode(t, err, apperr.EntityNotFound)
}

func TestReactionsPinsAndThreads(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	sent, err := f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "ship it"})
	require.NoError(t, err)
	id := sent.Message.Id

	added, err := f.messages.ToggleReaction(id, f.me, "🚀")
	require.NoError(t, err)
	assert.True(t, added)
	reactions, err := f.messages.Reactions(id)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
	added, err = f.messages.ToggleReaction(id, f.me, "🚀")
	require.NoError(t, err)
	assert.False(t, added)

	requireCode(t, f.messages.Pin(id, bob), apperr.PermissionDenied)
	require.NoError(t, f.messages.Pin(id, f.me))
	pins, err := f.messages.Pins(created.GeneralChannelId)
	require.NoError(t, err)
	require.Len(t, pins, 1)

	pinned, err := f.messages.Search(f.me, SearchRequest{ChannelIds: []string{created.GeneralChannelId}, PinnedOnly: true})
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, id, pinned[0].Id)

	thread, err := f.messages.CreateThread(id, bob, ptr("details"))
	require.NoError(t, err)
	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "in thread", ThreadId: &thread.Id})
	require.NoError(t, err)
	replies, err := f.messages.ThreadMessages(thread.Id, bob, 0)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "in thread", replies[0].Text)

	// Thread replies stay out of the channel timeline
	page, err := f.messages.Messages(created.GeneralChannelId, bob, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSearch_SkipsUnreadableChannels(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	staff, err := f.communities.CreateChannel(created.CommunityId, f.me, ChannelSpec{SpaceId: created.SpaceId, Name: "staff"})
	require.NoError(t, err)
	_, err = f.roles.SetOverride(staff.Id, f.me, entity.OverrideRole, created.MemberRoleId,
		"0", permission.Of(permission.ViewChannels, permission.ReadMessageHistory).String())
	require.NoError(t, err)

	_, err = f.messages.Send(created.GeneralChannelId, f.me, SendOptions{Content: "release notes"})
	require.NoError(t, err)
	_, err = f.messages.Send(staff.Id, f.me, SendOptions{Content: "release secrets"})
	require.NoError(t, err)

	request := SearchRequest{ChannelIds: []string{created.GeneralChannelId, staff.Id}, Query: "release"}
	all, err := f.messages.Search(f.me, request)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visible, err := f.messages.Search(bob, request)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "release notes", visible[0].Text)

	_, err = f.messages.Search(bob, SearchRequest{})
	requireCode(t, err, apperr.InvalidInput)
}
