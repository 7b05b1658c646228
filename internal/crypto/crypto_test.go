/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package crypto

import (
	"bytes"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestEncryptDecrypt(t *testing.T) {
	key := fixedKey(42)

	nonce, ciphertext, err := Encrypt(key, []byte("Hello, World!"), []byte("context"))
	require.NoError(t, err)
	assert.Len(t, nonce, NonceSize)

	plaintext, err := Decrypt(key, nonce, ciphertext, []byte("context"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(plaintext))

	_, err = Decrypt(key, nonce, ciphertext, []byte("wrong context"))
	assert.True(t, apperr.Is(err, apperr.AeadFailure))

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xff
	_, err = Decrypt(key, nonce, tampered, []byte("context"))
	assert.Error(t, err)
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	key := fixedKey(42)
	n1, c1, err := Encrypt(key, []byte("same"), nil)
	require.NoError(t, err)
	n2, c2, err := Encrypt(key, []byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
	assert.NotEqual(t, c1, c2)
}

func TestEncryptRejectsShortKey(t *testing.T) {
	_, _, err := Encrypt([]byte("short"), []byte("x"), nil)
	assert.True(t, apperr.Is(err, apperr.InvalidKeyLength))
}

func TestEncryptForRecipientRoundTrip(t *testing.T) {
	alice, err := GenerateEncryptionKeyPair()
	require.NoError(t, err)
	bob, err := GenerateEncryptionKeyPair()
	require.NoError(t, err)

	alicePub, bobPub := alice.PublicBytes(), bob.PublicBytes()
	context := []byte("conv-123")
	aad := []byte("alice-did|bob-did|timestamp")

	nonce, ciphertext, err := EncryptForRecipient(alice, bobPub[:], context, []byte("Secret message for Bob"), aad)
	require.NoError(t, err)

	plaintext, err := DecryptFromSender(bob, alicePub[:], context, nonce, ciphertext, aad)
	require.NoError(t, err)
	assert.Equal(t, "Secret message for Bob", string(plaintext))

	_, err = DecryptFromSender(bob, alicePub[:], []byte("conv-999"), nonce, ciphertext, aad)
	assert.Error(t, err)
}

func TestChunkEncryptionBindsPosition(t *testing.T) {
	key := fixedKey(42)
	nonce, ciphertext, err := EncryptChunk(key, []byte("chunk"), "file-abc", 0)
	require.NoError(t, err)

	plaintext, err := DecryptChunk(key, nonce, ciphertext, "file-abc", 0)
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(plaintext))

	_, err = DecryptChunk(key, nonce, ciphertext, "file-abc", 1)
	assert.Error(t, err)
	_, err = DecryptChunk(key, nonce, ciphertext, "file-wrong", 0)
	assert.Error(t, err)
	_, err = DecryptChunk(fixedKey(99), nonce, ciphertext, "file-abc", 0)
	assert.Error(t, err)
}

func TestDeriveKeysFromSeed(t *testing.T) {
	first, err := DeriveKeysFromSeed(fixedKey(42))
	require.NoError(t, err)
	second, err := DeriveKeysFromSeed(fixedKey(42))
	require.NoError(t, err)
	other, err := DeriveKeysFromSeed(fixedKey(1))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first.SigningKey, first.EncryptionKey)
	assert.NotEqual(t, first.SigningKey, other.SigningKey)

	_, err = DeriveKeysFromSeed([]byte("short"))
	assert.True(t, apperr.Is(err, apperr.InvalidKeyLength))
}

func TestFileKeysAreScoped(t *testing.T) {
	material := fixedKey(42)

	dm1, err := DeriveFileKey(material, []byte("file-1"))
	require.NoError(t, err)
	dm2, err := DeriveFileKey(material, []byte("file-2"))
	require.NoError(t, err)
	assert.NotEqual(t, dm1, dm2)

	v1, err := DeriveChannelFileKey(material, []byte("file-1"), 1)
	require.NoError(t, err)
	v2, err := DeriveChannelFileKey(material, []byte("file-1"), 2)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, dm1, v1)
}

func TestKeyFingerprint(t *testing.T) {
	fingerprint, err := ComputeKeyFingerprint(fixedKey(42))
	require.NoError(t, err)
	assert.Len(t, fingerprint, 16)

	again, err := ComputeKeyFingerprint(fixedKey(42))
	require.NoError(t, err)
	assert.Equal(t, fingerprint, again)

	ok, err := VerifyKeyFingerprint(fixedKey(42), fingerprint)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyKeyFingerprint(fixedKey(42), "0000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignVerify(t *testing.T) {
	pair, err := NewSigningKeyPair(fixedKey(7))
	require.NoError(t, err)
	public := pair.PublicBytes()

	signature := pair.Sign([]byte("payload"))
	assert.NoError(t, Verify(public[:], []byte("payload"), signature))
	assert.True(t, apperr.Is(Verify(public[:], []byte("other"), signature), apperr.InvalidSignature))
	assert.True(t, apperr.Is(Verify(public[:3], []byte("payload"), signature), apperr.InvalidKeyLength))
}

func TestKeyPairFromSeedIsDeterministic(t *testing.T) {
	first, err := KeyPairFromSeed(fixedKey(3))
	require.NoError(t, err)
	second, err := KeyPairFromSeed(fixedKey(3))
	require.NoError(t, err)

	assert.Equal(t, first.Signing.PublicBytes(), second.Signing.PublicBytes())
	assert.Equal(t, first.Encryption.PublicBytes(), second.Encryption.PublicBytes())
}

func TestWrapKeyForStorage(t *testing.T) {
	owner, err := GenerateEncryptionKeyPair()
	require.NoError(t, err)
	wrapping, err := DeriveWrappingKey(owner.SecretBytes())
	require.NoError(t, err)

	raw := fixedKey(9)
	blob, err := WrapKey(wrapping[:], raw, StorageAAD("channel-1", 2))
	require.NoError(t, err)

	unwrapped, err := UnwrapKey(wrapping[:], blob, StorageAAD("channel-1", 2))
	require.NoError(t, err)
	assert.Equal(t, raw, unwrapped)

	_, err = UnwrapKey(wrapping[:], blob, StorageAAD("channel-1", 3))
	assert.Error(t, err)
}

func TestWrapKeyForMember(t *testing.T) {
	admin, err := GenerateEncryptionKeyPair()
	require.NoError(t, err)
	member, err := GenerateEncryptionKeyPair()
	require.NoError(t, err)
	adminPub, memberPub := admin.PublicBytes(), member.PublicBytes()

	raw := fixedKey(11)
	blob, err := WrapKeyForMember(admin, memberPub[:], "channel-1", 4, raw)
	require.NoError(t, err)

	opened, err := UnwrapKeyFromMember(member, adminPub[:], "channel-1", 4, blob)
	require.NoError(t, err)
	assert.Equal(t, raw, opened)
}
