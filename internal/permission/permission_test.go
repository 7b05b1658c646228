/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitPositions(t *testing.T) {
	assert.Equal(t, Permission(1), ViewChannels)
	assert.Equal(t, Permission(1<<11), SendMessages)
	assert.Equal(t, Permission(1<<33), ManageFiles)
	assert.Equal(t, "SEND_MESSAGES", SendMessages.String())
}

func TestAdministratorBypass(t *testing.T) {
	p := Of(Administrator)
	assert.True(t, p.Has(BanMembers))
	assert.True(t, p.Has(ManageFiles))
	assert.False(t, None.Has(ViewChannels))
}

func TestParseRoundTrip(t *testing.T) {
	p := Of(Administrator, SendMessages)
	require.Equal(t, "9223372036854777856", p.String())
	assert.Equal(t, p, Parse(p.String()))
	assert.Equal(t, None, Parse("not a number"))
	assert.Equal(t, None, Parse(""))
}

func TestPresetsAreNested(t *testing.T) {
	everyone := DefaultEveryone()
	mod := Moderator()
	admin := Admin()

	assert.Equal(t, everyone, mod&everyone)
	assert.Equal(t, mod, admin&mod)
	assert.False(t, everyone.Has(KickMembers))
	assert.True(t, mod.Has(KickMembers))
	assert.False(t, mod.Has(BanMembers))
	assert.True(t, admin.Has(BanMembers))
	assert.False(t, admin&Permissions(Administrator) != 0)
}

func TestComputeChannelAdministrator(t *testing.T) {
	deny := Override{Deny: All}
	assert.Equal(t, All, ComputeChannel(Of(Administrator), []Override{deny}, &deny))
}

func TestComputeChannelRoleDeny(t *testing.T) {
	base := DefaultEveryone()
	got := ComputeChannel(base, []Override{{Position: 0, Deny: Of(SendMessages)}}, nil)
	assert.False(t, got.Has(SendMessages))
	assert.True(t, got.Has(ViewChannels))
}

func TestComputeChannelHigherRoleWins(t *testing.T) {
	base := DefaultEveryone()
	overrides := []Override{
		{Position: 50, Allow: Of(SendMessages)},
		{Position: 0, Deny: Of(SendMessages)},
	}
	got := ComputeChannel(base, overrides, nil)
	assert.True(t, got.Has(SendMessages))

	overrides = []Override{
		{Position: 0, Allow: Of(SendMessages)},
		{Position: 50, Deny: Of(SendMessages)},
	}
	got = ComputeChannel(base, overrides, nil)
	assert.False(t, got.Has(SendMessages))
}

func TestComputeChannelMemberOverrideLast(t *testing.T) {
	base := DefaultEveryone()
	roles := []Override{{Position: 100, Deny: Of(SendMessages)}}
	got := ComputeChannel(base, roles, &Override{Allow: Of(SendMessages)})
	assert.True(t, got.Has(SendMessages))

	got = ComputeChannel(base, nil, &Override{Deny: Of(ViewChannels)})
	assert.False(t, got.Has(ViewChannels))
}

func TestComputeChannelDoesNotReorderCallerSlice(t *testing.T) {
	overrides := []Override{{Position: 10}, {Position: 1}}
	ComputeChannel(None, overrides, nil)
	assert.Equal(t, 10, overrides[0].Position)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"VIEW_CHANNELS", "SEND_MESSAGES"}, Of(SendMessages, ViewChannels).Names())
}

func TestPresetRoles(t *testing.T) {
	presets := Presets()
	require.Len(t, presets, 4)
	assert.Equal(t, OwnerRoleName, presets[0].Name)
	assert.Equal(t, All, presets[0].Permissions)
	assert.Equal(t, 100, presets[1].Position)
	assert.Equal(t, MemberPosition, presets[3].Position)
	assert.False(t, presets[3].Hoisted)
}

func TestCanManagePosition(t *testing.T) {
	assert.True(t, CanManagePosition(false, 100, 50))
	assert.False(t, CanManagePosition(false, 50, 50))
	assert.False(t, CanManagePosition(false, 50, 100))
	assert.True(t, CanManagePosition(true, 0, 1000))
}
