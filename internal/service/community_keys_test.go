/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/hex"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrappedShare builds the key share envelope from would send to to for channelId
func wrappedShare(t *testing.T, from, to *peer, communityId, channelId string, version int) string {
	t.Helper()
	id, err := from.ctx.Identity()
	require.NoError(t, err)
	storage, err := from.ctx.Storage()
	require.NoError(t, err)
	recipientKey, err := friendKey(storage, to.me)
	require.NoError(t, err)

	raw, err := crypto.RandomBytes(crypto.KeySize)
	require.NoError(t, err)
	wrapped, err := crypto.WrapKeyForMember(id.Keys().Encryption, recipientKey, channelId, version, raw)
	require.NoError(t, err)
	payload, err := communityEnvelope(communityId, from.me, &communityEvent{
		Type:       CommunityEventKeyShare,
		ChannelId:  channelId,
		KeyVersion: version,
		WrappedKey: hex.EncodeToString(wrapped),
	}, from.clock.NowMillis())
	require.NoError(t, err)
	return payload
}

func TestKeyShare_OnlyFromChannelManagers(t *testing.T) {
	alice, bob := newPeer(t, "Alice"), newPeer(t, "Bob")
	befriend(t, alice, bob)

	created := bob.community(t)
	bob.join(t, created.CommunityId, alice.me)
	channelId := created.GeneralChannelId
	current, err := bob.keys.Current(channelId)
	require.NoError(t, err)
	next := current.Version + 1

	share := wrappedShare(t, alice, bob, created.CommunityId, channelId, next)
	requireCode(t, bob.dispatcher.Dispatch(alice.me, share), apperr.PermissionDenied)
	_, err = bob.keys.Version(channelId, next)
	requireCode(t, err, apperr.InvalidKey)

	require.NoError(t, bob.roles.Assign(created.CommunityId, bob.me, alice.me, created.AdminRoleId))
	require.NoError(t, bob.dispatcher.Dispatch(alice.me, share))
	stored, err := bob.keys.Current(channelId)
	require.NoError(t, err)
	assert.Equal(t, next, stored.Version)
	assert.Len(t, bob.events(EventChannelKeyReceived), 1)

	// a redelivered share is ignored
	require.NoError(t, bob.dispatcher.Dispatch(alice.me, share))
}

func TestKeyShare_ChannelAndVersionChecks(t *testing.T) {
	alice, bob := newPeer(t, "Alice"), newPeer(t, "Bob")
	befriend(t, alice, bob)

	created := bob.community(t)
	bob.join(t, created.CommunityId, alice.me)
	require.NoError(t, bob.roles.Assign(created.CommunityId, bob.me, alice.me, created.AdminRoleId))
	channelId := created.GeneralChannelId
	current, err := bob.keys.Current(channelId)
	require.NoError(t, err)

	foreign := wrappedShare(t, alice, bob, "another-community", channelId, current.Version+1)
	requireCode(t, bob.dispatcher.Dispatch(alice.me, foreign), apperr.InvalidInput)

	missing := wrappedShare(t, alice, bob, created.CommunityId, "no-such-channel", 1)
	requireCode(t, bob.dispatcher.Dispatch(alice.me, missing), apperr.EntityNotFound)

	require.NoError(t, bob.dispatcher.Dispatch(alice.me, wrappedShare(t, alice, bob, created.CommunityId, channelId, current.Version+3)))
	stale := wrappedShare(t, alice, bob, created.CommunityId, channelId, current.Version+2)
	requireCode(t, bob.dispatcher.Dispatch(alice.me, stale), apperr.Conflict)

	latest, err := bob.keys.Current(channelId)
	require.NoError(t, err)
	assert.Equal(t, current.Version+3, latest.Version)
}
