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
	"time"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outgoingRequest sends a request from a to b and returns the payload b would receive
func outgoingRequest(t *testing.T, a, b *peer) envelope.FriendRequestPayload {
	t.Helper()
	_, out, err := a.friends.SendRequest(b.me, ptr("hi, it's me"))
	require.NoError(t, err)
	env, err := envelope.Parse([]byte(out.Payload))
	require.NoError(t, err)
	var payload envelope.FriendRequestPayload
	require.NoError(t, env.Decode(&payload))
	return payload
}

func TestHandleRequest_RejectsForgedOrStale(t *testing.T) {
	alice, bob, carol := newPeer(t, "Alice"), newPeer(t, "Bob"), newPeer(t, "Carol")
	original := outgoingRequest(t, alice, bob)

	signature, err := hex.DecodeString(original.Signature)
	require.NoError(t, err)
	signature[0] ^= 0x01

	cases := []struct {
		name   string
		tamper func(p *envelope.FriendRequestPayload)
		code   apperr.Code
	}{
		{"flipped signature", func(p *envelope.FriendRequestPayload) { p.Signature = hex.EncodeToString(signature) }, apperr.InvalidSignature},
		{"edited message", func(p *envelope.FriendRequestPayload) { p.Message = ptr("send me money") }, apperr.InvalidSignature},
		{"unsigned", func(p *envelope.FriendRequestPayload) { p.Signature = "" }, apperr.InvalidSignature},
		{"did of someone else", func(p *envelope.FriendRequestPayload) { p.FromDid = carol.me }, apperr.DidMismatch},
	}
	for _, c := range cases {
		payload := original
		c.tamper(&payload)
		_, err := bob.friends.HandleRequest(&payload)
		requireCode(t, err, c.code)
	}

	bob.clock.Advance(FriendRequestTTL + time.Minute)
	_, err = bob.friends.HandleRequest(&original)
	requireCode(t, err, apperr.RequestExpired)

	pending, err := bob.friends.ListRequests(entity.RequestIncoming)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleRequest_AcceptsGenuine(t *testing.T) {
	alice, bob := newPeer(t, "Alice"), newPeer(t, "Bob")
	payload := outgoingRequest(t, alice, bob)

	req, err := bob.friends.HandleRequest(&payload)
	require.NoError(t, err)
	assert.Equal(t, alice.me, req.FromDid)
	assert.Equal(t, "hi, it's me", req.Message)
	assert.Len(t, bob.events(EventFriendRequestReceived), 1)
}

func TestAccept_RejectsExpiredRequest(t *testing.T) {
	alice, bob := newPeer(t, "Alice"), newPeer(t, "Bob")
	payload := outgoingRequest(t, alice, bob)
	req, err := bob.friends.HandleRequest(&payload)
	require.NoError(t, err)

	bob.clock.Advance(FriendRequestTTL + time.Minute)
	_, _, err = bob.friends.Accept(req.Id)
	requireCode(t, err, apperr.RequestExpired)

	friends, err := bob.friends.ListFriends()
	require.NoError(t, err)
	assert.Empty(t, friends)

	storage, err := bob.ctx.Storage()
	require.NoError(t, err)
	stored, err := storage.GetFriendRepository().GetRequest(req.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestExpired, stored.Status)
	assert.Empty(t, bob.relay.take(alice.me))
}
