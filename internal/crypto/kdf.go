/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/InfamousVague/umbra/internal/apperr"
	"golang.org/x/crypto/hkdf"
)

// HKDF info strings. Changing any of them invalidates everything derived under it
var (
	infoSigningKey        = []byte("umbra-signing-key-v1")
	infoEncryptionKey     = []byte("umbra-encryption-key-v1")
	infoMessageEncryption = []byte("umbra-message-encryption-v1")
	infoStorageEncryption = []byte("umbra-storage-encryption-v1")
	infoFileEncryption    = []byte("umbra-file-encryption-v1")
	infoChannelFileKey    = []byte("umbra-channel-file-encryption-v1")
	infoKeyFingerprint    = []byte("umbra-key-fingerprint-v1")
	infoGroupKeyWrapping  = []byte("umbra-group-key-wrapping-v1")
)

const fingerprintSize = 8

type DerivedKeys struct {
	SigningKey    [KeySize]byte
	EncryptionKey [KeySize]byte
}

func expand(secret, salt, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "HKDF expansion for %s", info)
	}
	return out, nil
}

func expandKey(secret, salt, info []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	out, err := expand(secret, salt, info, KeySize)
	if err != nil {
		return key, err
	}
	copy(key[:], out)
	return key, nil
}

// DeriveKeysFromSeed splits a master seed into two independent 32 byte secrets
func DeriveKeysFromSeed(seed []byte) (*DerivedKeys, error) {
	if len(seed) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "seed must be %d bytes, got %d", KeySize, len(seed))
	}
	signing, err := expandKey(seed, nil, infoSigningKey)
	if err != nil {
		return nil, err
	}
	encryption, err := expandKey(seed, nil, infoEncryptionKey)
	if err != nil {
		return nil, err
	}
	return &DerivedKeys{signing, encryption}, nil
}

// DeriveSharedKey turns an X25519 output into the AES key of one conversation. context is the conversation id
func DeriveSharedKey(dhOutput, context []byte) ([KeySize]byte, error) {
	return expandKey(dhOutput, context, infoMessageEncryption)
}

// DeriveStorageKey derives the local at-rest key from both identity secrets
func DeriveStorageKey(signingSecret, encryptionSecret []byte) ([KeySize]byte, error) {
	combined := make([]byte, 0, len(signingSecret)+len(encryptionSecret))
	combined = append(combined, signingSecret...)
	combined = append(combined, encryptionSecret...)
	defer clear(combined)

	return expandKey(combined, nil, infoStorageEncryption)
}

func DeriveFileKey(sharedSecret, fileId []byte) ([KeySize]byte, error) {
	return expandKey(sharedSecret, fileId, infoFileEncryption)
}

// DeriveChannelFileKey binds the file key to the channel key version, so a rotation yields a new file key
func DeriveChannelFileKey(channelKey, fileId []byte, keyVersion uint32) ([KeySize]byte, error) {
	salt := make([]byte, 0, len(fileId)+4)
	salt = append(salt, fileId...)
	salt = binary.LittleEndian.AppendUint32(salt, keyVersion)
	return expandKey(channelKey, salt, infoChannelFileKey)
}

// DeriveWrappingKey derives the key that seals group and channel keys at rest
func DeriveWrappingKey(encryptionSecret []byte) ([KeySize]byte, error) {
	return expandKey(encryptionSecret, nil, infoGroupKeyWrapping)
}

// ComputeKeyFingerprint returns 16 hex chars users compare out of band
func ComputeKeyFingerprint(key []byte) (string, error) {
	if len(key) != KeySize {
		return "", apperr.New(apperr.InvalidKeyLength, "key must be %d bytes, got %d", KeySize, len(key))
	}
	out, err := expand(key, nil, infoKeyFingerprint, fingerprintSize)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

func VerifyKeyFingerprint(key []byte, fingerprint string) (bool, error) {
	local, err := ComputeKeyFingerprint(key)
	if err != nil {
		return false, err
	}
	return local == fingerprint, nil
}
