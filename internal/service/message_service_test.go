/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/envelope"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationId_SymmetricHex(t *testing.T) {
	ab := ConversationId("did:key:z6MkAlice", "did:key:z6MkBob")
	assert.Equal(t, ab, ConversationId("did:key:z6MkBob", "did:key:z6MkAlice"))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), ab)
	assert.NotEqual(t, ab, ConversationId("did:key:z6MkAlice", "did:key:z6MkCarol"))
}

func TestMessageAAD_TamperingBreaksDecryption(t *testing.T) {
	alice, err := crypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	alicePub, bobPub := alice.PublicBytes(), bob.PublicBytes()

	const sender, recipient, at = "did:key:z6MkAlice", "did:key:z6MkBob", int64(1_760_000_000_000)
	conversation := []byte(ConversationId(sender, recipient))
	nonce, ciphertext, err := crypto.EncryptForRecipient(alice, bobPub[:], conversation, []byte("meet at noon"), messageAAD(sender, recipient, at))
	require.NoError(t, err)

	plaintext, err := crypto.DecryptFromSender(bob, alicePub[:], conversation, nonce, ciphertext, messageAAD(sender, recipient, at))
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", string(plaintext))

	flip := func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0x01
		return out
	}
	cases := map[string]struct {
		nonce, ciphertext, aad []byte
	}{
		"sender":     {nonce, ciphertext, messageAAD("did:key:z6MkMallory", recipient, at)},
		"recipient":  {nonce, ciphertext, messageAAD(sender, "did:key:z6MkCarol", at)},
		"timestamp":  {nonce, ciphertext, messageAAD(sender, recipient, at+1)},
		"nonce":      {flip(nonce), ciphertext, messageAAD(sender, recipient, at)},
		"ciphertext": {nonce, flip(ciphertext), messageAAD(sender, recipient, at)},
	}
	for name, c := range cases {
		_, err := crypto.DecryptFromSender(bob, alicePub[:], conversation, c.nonce, c.ciphertext, c.aad)
		assert.True(t, apperr.Is(err, apperr.AeadFailure), "%s: %v", name, err)
	}
}

func TestReceive_RejectsTamperedMessages(t *testing.T) {
	alice, bob := newPeer(t, "Alice"), newPeer(t, "Bob")
	befriend(t, alice, bob)

	_, out, err := alice.dms.Send(ConversationId(alice.me, bob.me), "meet at noon", nil)
	require.NoError(t, err)
	env, err := envelope.Parse([]byte(out.Payload))
	require.NoError(t, err)
	var original envelope.ChatMessagePayload
	require.NoError(t, env.Decode(&original))

	ciphertext, err := base64.StdEncoding.DecodeString(original.ContentEncrypted)
	require.NoError(t, err)
	ciphertext[0] ^= 0x01
	nonce, err := hex.DecodeString(original.Nonce)
	require.NoError(t, err)
	nonce[0] ^= 0x01

	tampered := map[string]func(p *envelope.ChatMessagePayload){
		"timestamp": func(p *envelope.ChatMessagePayload) { p.Timestamp++ },
		"nonce":     func(p *envelope.ChatMessagePayload) { p.Nonce = hex.EncodeToString(nonce) },
		"ciphertext": func(p *envelope.ChatMessagePayload) {
			p.ContentEncrypted = base64.StdEncoding.EncodeToString(ciphertext)
		},
	}
	for name, tamper := range tampered {
		payload := original
		tamper(&payload)
		_, err := bob.dms.Receive(alice.me, &payload)
		assert.True(t, apperr.Is(err, apperr.DecryptionFailed), "%s: %v", name, err)
	}

	received, err := bob.dms.Receive(alice.me, &original)
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", received.Text)
}
