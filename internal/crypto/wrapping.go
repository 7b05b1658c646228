/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package crypto

import (
	"fmt"

	"github.com/InfamousVague/umbra/internal/apperr"
)

// StorageAAD is the additional data of a group or channel key sealed for local storage
func StorageAAD(scopeId string, keyVersion int) []byte {
	return []byte(fmt.Sprintf("group-key:%s:%d", scopeId, keyVersion))
}

// TransferAAD is the additional data of a group or channel key sealed for a single member
func TransferAAD(scopeId string, keyVersion int) []byte {
	return []byte(fmt.Sprintf("group-key-transfer:%s:%d", scopeId, keyVersion))
}

// WrapKey seals a raw 32 byte key with the wrapping key, returning nonce || ciphertext
func WrapKey(wrappingKey, rawKey, aad []byte) ([]byte, error) {
	if len(rawKey) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "wrapped key must be %d bytes, got %d", KeySize, len(rawKey))
	}
	nonce, ciphertext, err := Encrypt(wrappingKey, rawKey, aad)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

func UnwrapKey(wrappingKey, blob, aad []byte) ([]byte, error) {
	if len(blob) <= NonceSize {
		return nil, apperr.New(apperr.InvalidKey, "wrapped key blob is too short")
	}
	return Decrypt(wrappingKey, blob[:NonceSize], blob[NonceSize:], aad)
}

// WrapKeyForMember seals a raw key for one member through ECDH, so only that member can open it
func WrapKeyForMember(ours *EncryptionKeyPair, memberPublic []byte, scopeId string, keyVersion int, rawKey []byte) ([]byte, error) {
	nonce, ciphertext, err := EncryptForRecipient(ours, memberPublic, []byte(scopeId), rawKey, TransferAAD(scopeId, keyVersion))
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

func UnwrapKeyFromMember(ours *EncryptionKeyPair, senderPublic []byte, scopeId string, keyVersion int, blob []byte) ([]byte, error) {
	if len(blob) <= NonceSize {
		return nil, apperr.New(apperr.InvalidKey, "wrapped key blob is too short")
	}
	return DecryptFromSender(ours, senderPublic, []byte(scopeId), blob[:NonceSize], blob[NonceSize:], TransferAAD(scopeId, keyVersion))
}
