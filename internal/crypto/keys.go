/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package crypto holds the primitives of the client core: Ed25519 signatures, X25519 agreement,
// AES-256-GCM sealing and the HKDF-SHA256 derivations that tie them together.
// Every derivation carries its own info string, so a key derived for one purpose never equals a key derived for another.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/InfamousVague/umbra/internal/apperr"
	"golang.org/x/crypto/curve25519"
)

const (
	KeySize       = 32
	NonceSize     = 12
	SignatureSize = ed25519.SignatureSize
)

// SigningKeyPair is the Ed25519 identity key. The DID is derived from its public half
type SigningKeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// EncryptionKeyPair is the X25519 static key used for every ECDH agreement of the identity
type EncryptionKeyPair struct {
	secret [KeySize]byte
	public [KeySize]byte
}

// KeyPair groups the two independent keys of an identity
type KeyPair struct {
	Signing    *SigningKeyPair
	Encryption *EncryptionKeyPair
}

func NewSigningKeyPair(seed []byte) (*SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, apperr.New(apperr.InvalidKeyLength, "signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &SigningKeyPair{private, private.Public().(ed25519.PublicKey)}, nil
}

func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "generating Ed25519 keypair")
	}
	return &SigningKeyPair{private, public}, nil
}

func (s *SigningKeyPair) PublicBytes() [KeySize]byte {
	var out [KeySize]byte
	copy(out[:], s.public)
	return out
}

// SeedBytes returns the 32 byte secret the keypair was built from
func (s *SigningKeyPair) SeedBytes() []byte {
	return s.private.Seed()
}

func (s *SigningKeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(s.private, message)
}

func NewEncryptionKeyPair(secret []byte) (*EncryptionKeyPair, error) {
	if len(secret) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "encryption secret must be %d bytes, got %d", KeySize, len(secret))
	}
	pair := &EncryptionKeyPair{}
	copy(pair.secret[:], secret)

	public, err := curve25519.X25519(pair.secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "computing X25519 public key")
	}
	copy(pair.public[:], public)
	return pair, nil
}

func GenerateEncryptionKeyPair() (*EncryptionKeyPair, error) {
	secret, err := RandomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	return NewEncryptionKeyPair(secret)
}

func (e *EncryptionKeyPair) PublicBytes() [KeySize]byte {
	return e.public
}

func (e *EncryptionKeyPair) SecretBytes() []byte {
	out := make([]byte, KeySize)
	copy(out, e.secret[:])
	return out
}

// DiffieHellman returns the raw X25519 shared point with theirPublic
func (e *EncryptionKeyPair) DiffieHellman(theirPublic []byte) ([]byte, error) {
	if len(theirPublic) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "public key must be %d bytes, got %d", KeySize, len(theirPublic))
	}
	shared, err := curve25519.X25519(e.secret[:], theirPublic)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "X25519 agreement")
	}
	return shared, nil
}

// KeyPairFromSeed expands a 32 byte master seed into the signing and encryption keys
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	derived, err := DeriveKeysFromSeed(seed)
	if err != nil {
		return nil, err
	}
	signing, err := NewSigningKeyPair(derived.SigningKey[:])
	if err != nil {
		return nil, err
	}
	encryption, err := NewEncryptionKeyPair(derived.EncryptionKey[:])
	if err != nil {
		return nil, err
	}
	return &KeyPair{signing, encryption}, nil
}

// RandomBytes reads n bytes from the system CSPRNG
func RandomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("Could not read random bytes: %v", err)
	}
	return out, nil
}

// DecodeKey parses a 32 byte key from hex
func DecodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidKey, err, "key is not valid hex")
	}
	if len(key) != KeySize {
		return nil, apperr.New(apperr.InvalidKeyLength, "key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
