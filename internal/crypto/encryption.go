/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/InfamousVague/umbra/internal/apperr"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "AES key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.AeadFailure, err, "creating AES cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.AeadFailure, err, "creating GCM")
	}
	return aead, nil
}

// Encrypt seals plaintext under key with a fresh random nonce
func Encrypt(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.EncryptionFailed, err, "generating nonce")
	}
	return nonce, aead.Seal(nil, nonce, plaintext, aad), nil
}

func Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, apperr.New(apperr.InvalidKeyLength, "nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, apperr.New(apperr.AeadFailure, "authentication tag mismatch")
	}
	return plaintext, nil
}

func conversationKey(ours *EncryptionKeyPair, theirPublic, context []byte) ([KeySize]byte, error) {
	dh, err := ours.DiffieHellman(theirPublic)
	if err != nil {
		return [KeySize]byte{}, err
	}
	defer clear(dh)
	return DeriveSharedKey(dh, context)
}

// EncryptForRecipient agrees on a key with theirPublic, scoped by context, and seals plaintext under it
func EncryptForRecipient(ours *EncryptionKeyPair, theirPublic, context, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	key, err := conversationKey(ours, theirPublic, context)
	if err != nil {
		return nil, nil, err
	}
	return Encrypt(key[:], plaintext, aad)
}

func DecryptFromSender(ours *EncryptionKeyPair, theirPublic, context, nonce, ciphertext, aad []byte) ([]byte, error) {
	key, err := conversationKey(ours, theirPublic, context)
	if err != nil {
		return nil, err
	}
	return Decrypt(key[:], nonce, ciphertext, aad)
}

func chunkAAD(fileId string, chunkIndex uint32) []byte {
	aad := make([]byte, 0, len(fileId)+4)
	aad = append(aad, fileId...)
	return binary.LittleEndian.AppendUint32(aad, chunkIndex)
}

// EncryptChunk binds the ciphertext to its file and position, so chunks cannot be swapped
func EncryptChunk(key, data []byte, fileId string, chunkIndex uint32) (nonce, ciphertext []byte, err error) {
	return Encrypt(key, data, chunkAAD(fileId, chunkIndex))
}

func DecryptChunk(key, nonce, ciphertext []byte, fileId string, chunkIndex uint32) ([]byte, error) {
	return Decrypt(key, nonce, ciphertext, chunkAAD(fileId, chunkIndex))
}
