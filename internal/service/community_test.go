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
	"github.com/InfamousVague/umbra/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bob   = "did:key:z6MkBob"
	carol = "did:key:z6MkCarol"
	dave  = "did:key:z6MkDave"
)

func TestCreateCommunity_Bootstrap(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)

	channels, err := f.communities.ListChannels(created.CommunityId)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	types := map[string]string{}
	for _, c := range channels {
		types[c.Id] = c.ChannelType
	}
	assert.Equal(t, entity.ChannelWelcome, types[created.WelcomeChannelId])
	assert.Equal(t, entity.ChannelText, types[created.GeneralChannelId])

	roles, err := f.roles.MemberRoles(created.CommunityId, f.me)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, created.OwnerRoleId, roles[0].Id)

	perms, err := f.roles.EffectivePermissions(created.CommunityId, f.me, "")
	require.NoError(t, err)
	assert.Equal(t, permission.All, perms)

	assert.Len(t, f.events(EventCommunityCreated), 1)
}

func TestCreateCommunity_RejectsEmptyName(t *testing.T) {
	f := newFixture(t, "Owner")
	_, err := f.communities.Create(CreateCommunityRequest{Name: "   ", OwnerDid: f.me})
	requireCode(t, err, apperr.InvalidInput)
}

func TestJoin_GrantsMemberRoleAndGreets(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	roles, err := f.roles.MemberRoles(created.CommunityId, bob)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, created.MemberRoleId, roles[0].Id)

	welcome, err := f.messages.Messages(created.WelcomeChannelId, bob, 0, 10)
	require.NoError(t, err)
	require.Len(t, welcome, 1)
	assert.Contains(t, welcome[0].Text, bob)

	_, err = f.members.Join(created.CommunityId, bob, nil, nil)
	requireCode(t, err, apperr.Conflict)
}

func TestCreateChannel_NeedsManageChannels(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	spec := ChannelSpec{SpaceId: created.SpaceId, Name: "random"}
	_, err := f.communities.CreateChannel(created.CommunityId, bob, spec)
	requireCode(t, err, apperr.PermissionDenied)

	channel, err := f.communities.CreateChannel(created.CommunityId, f.me, spec)
	require.NoError(t, err)
	assert.Equal(t, entity.ChannelText, channel.ChannelType)
	assert.Equal(t, 2, channel.Position)

	_, err = f.communities.CreateChannel(created.CommunityId, f.me, ChannelSpec{SpaceId: created.SpaceId, Name: "x", ChannelType: "forum"})
	requireCode(t, err, apperr.InvalidInput)
}

func TestDeleteChannel_DeniedLeavesChannel(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	err := f.communities.DeleteChannel(created.GeneralChannelId, bob)
	requireCode(t, err, apperr.PermissionDenied)
	assert.Equal(t, apperr.Code(801), apperr.CodeOf(err))

	channels, err := f.communities.ListChannels(created.CommunityId)
	require.NoError(t, err)
	ids := make([]string, 0, len(channels))
	for _, c := range channels {
		ids = append(ids, c.Id)
	}
	assert.Contains(t, ids, created.GeneralChannelId)
	assert.Empty(t, f.events(EventChannelDeleted))

	require.NoError(t, f.communities.DeleteChannel(created.GeneralChannelId, f.me))
	channels, err = f.communities.ListChannels(created.CommunityId)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestEffectivePermissions_RoleOverride(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	perms, err := f.roles.EffectivePermissions(created.CommunityId, bob, created.GeneralChannelId)
	require.NoError(t, err)
	assert.True(t, perms.Has(permission.SendMessages))
	assert.False(t, perms.Has(permission.ManageChannels))

	_, err = f.roles.SetOverride(created.GeneralChannelId, f.me, entity.OverrideRole, created.MemberRoleId,
		"0", permission.Of(permission.SendMessages).String())
	require.NoError(t, err)

	perms, err = f.roles.EffectivePermissions(created.CommunityId, bob, created.GeneralChannelId)
	require.NoError(t, err)
	assert.False(t, perms.Has(permission.SendMessages))
	assert.True(t, perms.Has(permission.ViewChannels))

	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "hello"})
	requireCode(t, err, apperr.PermissionDenied)
}

func TestInvite_UsesAreCounted(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)

	invite, err := f.invites.Create(created.CommunityId, f.me, ptr(1), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, invite.Code)

	member, err := f.invites.Use(invite.Code, carol, ptr("carol"), nil)
	require.NoError(t, err)
	assert.Equal(t, carol, member.MemberDid)

	_, err = f.invites.Use(invite.Code, dave, nil, nil)
	requireCode(t, err, apperr.Conflict)

	_, err = f.invites.Use("nope", dave, nil, nil)
	requireCode(t, err, apperr.EntityNotFound)
}

func TestInvite_Expired(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)

	invite, err := f.invites.Create(created.CommunityId, f.me, nil, ptr(f.clock.NowMillis()+int64(time.Hour/time.Millisecond)))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	_, err = f.invites.Use(invite.Code, carol, nil, nil)
	requireCode(t, err, apperr.InvalidInput)
}

func TestBan_BlocksRejoin(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob, carol)

	require.NoError(t, f.members.Ban(created.CommunityId, f.me, bob, BanOptions{Reason: ptr("spam"), DeviceFingerprint: ptr("fp-1")}))
	_, err := f.members.Member(created.CommunityId, bob)
	requireCode(t, err, apperr.EntityNotFound)

	_, err = f.members.Join(created.CommunityId, bob, nil, nil)
	requireCode(t, err, apperr.PermissionDenied)

	// Same device, new identity
	_, err = f.members.Join(created.CommunityId, dave, nil, ptr("fp-1"))
	requireCode(t, err, apperr.PermissionDenied)

	require.NoError(t, f.members.Unban(created.CommunityId, f.me, bob))
	f.join(t, created.CommunityId, bob)
}

func TestModeration_Hierarchy(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob, carol)

	err := f.members.Kick(created.CommunityId, bob, carol, nil)
	requireCode(t, err, apperr.PermissionDenied)

	err = f.members.Kick(created.CommunityId, f.me, f.me, nil)
	requireCode(t, err, apperr.PermissionDenied)

	err = f.members.Kick(created.CommunityId, f.me, dave, nil)
	requireCode(t, err, apperr.EntityNotFound)

	require.NoError(t, f.roles.Assign(created.CommunityId, f.me, bob, created.ModeratorRoleId))
	require.NoError(t, f.members.Kick(created.CommunityId, bob, carol, ptr("rude")))

	members, err := f.members.Members(created.CommunityId)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestLeave_OwnerMustTransfer(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	requireCode(t, f.members.Leave(created.CommunityId, f.me), apperr.Conflict)
	require.NoError(t, f.communities.TransferOwnership(created.CommunityId, f.me, bob))
	require.NoError(t, f.members.Leave(created.CommunityId, f.me))

	community, err := f.communities.Get(created.CommunityId)
	require.NoError(t, err)
	assert.Equal(t, bob, community.OwnerDid)
}

func TestTimeout_Lifecycle(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	_, err := f.moderation.Timeout(created.CommunityId, f.me, bob, entity.TimeoutMute, 60_000, "cool off")
	require.NoError(t, err)
	muted, err := f.moderation.IsMuted(created.CommunityId, bob)
	require.NoError(t, err)
	assert.True(t, muted)

	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "let me talk"})
	requireCode(t, err, apperr.PermissionDenied)

	f.clock.Advance(61 * time.Second)
	_, err = f.messages.Send(created.GeneralChannelId, bob, SendOptions{Content: "thanks"})
	require.NoError(t, err)

	_, err = f.moderation.Timeout(created.CommunityId, f.me, bob, "silence", 1000, "")
	requireCode(t, err, apperr.InvalidInput)
}

func TestWarn_Escalates(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)

	var last *WarningResult
	for i := 0; i < DefaultTimeoutThreshold; i++ {
		result, err := f.moderation.Warn(created.CommunityId, f.me, bob, "off topic", nil)
		require.NoError(t, err)
		last = result
	}
	assert.Equal(t, int64(DefaultTimeoutThreshold), last.ActiveCount)
	assert.Equal(t, EscalationTimeout, last.Escalation)

	warnings, err := f.moderation.Warnings(created.CommunityId, bob)
	require.NoError(t, err)
	assert.Len(t, warnings, DefaultTimeoutThreshold)
}

func TestAuditLog_RecordsActions(t *testing.T) {
	f := newFixture(t, "Owner")
	created := f.community(t)
	f.join(t, created.CommunityId, bob)
	require.NoError(t, f.members.Kick(created.CommunityId, f.me, bob, nil))

	entries, err := f.moderation.AuditLog(created.CommunityId, f.me, repository.AuditFilter{ActionType: AuditMemberKicked})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, f.me, entries[0].ActorDid)

	f.join(t, created.CommunityId, carol)
	_, err = f.moderation.AuditLog(created.CommunityId, carol, repository.AuditFilter{})
	requireCode(t, err, apperr.PermissionDenied)
}
