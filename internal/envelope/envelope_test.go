/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package envelope

import (
	"encoding/json"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChatMessage(t *testing.T) {
	raw, err := Build(ChatMessage, ChatMessagePayload{
		MessageId:        "m1",
		ConversationId:   "c1",
		SenderDid:        "did:key:zA",
		ContentEncrypted: "AAAA",
		Nonce:            "00112233445566778899aabb",
		Timestamp:        1700000000000,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"envelope":"chat_message","version":1,"payload":{
		"messageId":"m1","conversationId":"c1","senderDid":"did:key:zA",
		"contentEncrypted":"AAAA","nonce":"00112233445566778899aabb","timestamp":1700000000000}}`, raw)
}

func TestParseRejectsUnknownEnvelopes(t *testing.T) {
	_, err := Parse([]byte(`{"envelope":"teleport","version":1,"payload":{}}`))
	assert.True(t, apperr.Is(err, apperr.ProtocolError))

	_, err = Parse([]byte(`{"envelope":"chat_message","version":2,"payload":{}}`))
	assert.True(t, apperr.Is(err, apperr.ProtocolError))

	_, err = Parse([]byte(`nope`))
	assert.Error(t, err)
}

func TestDecodeAcceptsSnakeCase(t *testing.T) {
	env, err := Parse([]byte(`{"envelope":"chat_message","version":1,"payload":{
		"message_id":"m1","conversation_id":"c1","sender_did":"did:key:zA",
		"content_encrypted":"AAAA","nonce":"00","timestamp":5,"thread_id":"t1"}}`))
	require.NoError(t, err)

	var payload ChatMessagePayload
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "m1", payload.MessageId)
	assert.Equal(t, "c1", payload.ConversationId)
	assert.Equal(t, "t1", payload.ThreadId)
	assert.Equal(t, int64(5), payload.Timestamp)
}

func TestFirstListedNameWins(t *testing.T) {
	var payload FriendAcceptPayload
	err := DecodeLenient([]byte(`{"friend_did":"did:key:zB","from_did":"did:key:zA","display_name":"Ann"}`), &payload)
	require.NoError(t, err)
	assert.Equal(t, "did:key:zA", payload.FromDid)
	assert.Equal(t, "Ann", payload.FromDisplayName)

	payload = FriendAcceptPayload{}
	require.NoError(t, DecodeLenient([]byte(`{"friend_did":"did:key:zB"}`), &payload))
	assert.Equal(t, "did:key:zB", payload.FromDid)

	var both ChatMessagePayload
	require.NoError(t, DecodeLenient([]byte(`{"messageId":"camel","message_id":"snake"}`), &both))
	assert.Equal(t, "camel", both.MessageId)
}

func TestCommunityEventKeepsEventOpaque(t *testing.T) {
	raw, err := Build(CommunityEvent, CommunityEventPayload{
		CommunityId: "c1",
		Event:       json.RawMessage(`{"type":"memberJoined","did":"x"}`),
		SenderDid:   "did:key:zA",
		Timestamp:   9,
	})
	require.NoError(t, err)

	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	var payload CommunityEventPayload
	require.NoError(t, env.Decode(&payload))
	assert.JSONEq(t, `{"type":"memberJoined","did":"x"}`, string(payload.Event))
}
