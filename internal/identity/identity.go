/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package identity derives a user's keys and DID from a recovery phrase and keeps the mutable profile next to them
package identity

import (
	"encoding/hex"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
)

type Identity struct {
	did     string
	keys    *crypto.KeyPair
	profile Profile
}

// PublicIdentity is what other users learn about an identity
type PublicIdentity struct {
	Did           string  `json:"did"`
	DisplayName   string  `json:"display_name"`
	Avatar        *string `json:"avatar,omitempty"`
	Status        *string `json:"status,omitempty"`
	SigningPub    string  `json:"signing_pub"`
	EncryptionPub string  `json:"encryption_pub"`
}

// Create generates a fresh identity together with the phrase that recovers it
func Create(displayName string) (*Identity, *RecoveryPhrase, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, nil, err
	}
	phrase, err := GenerateRecoveryPhrase()
	if err != nil {
		return nil, nil, err
	}
	id, err := FromRecoveryPhrase(phrase, displayName)
	if err != nil {
		return nil, nil, err
	}
	return id, phrase, nil
}

// FromRecoveryPhrase rebuilds the exact keys and DID of the identity phrase was created with
func FromRecoveryPhrase(phrase *RecoveryPhrase, displayName string) (*Identity, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	seed, err := phrase.Seed()
	if err != nil {
		return nil, err
	}
	return FromSeed(seed, displayName)
}

func FromSeed(seed []byte, displayName string) (*Identity, error) {
	keys, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	public := keys.Signing.PublicBytes()
	return &Identity{
		did:     DidFromPublicKey(public[:]),
		keys:    keys,
		profile: Profile{DisplayName: displayName},
	}, nil
}

func (i *Identity) Did() string {
	return i.did
}

func (i *Identity) Keys() *crypto.KeyPair {
	return i.keys
}

func (i *Identity) Profile() Profile {
	return i.profile
}

func (i *Identity) UpdateProfile(update ProfileUpdate) error {
	return i.profile.Apply(update)
}

func (i *Identity) Public() PublicIdentity {
	signing := i.keys.Signing.PublicBytes()
	encryption := i.keys.Encryption.PublicBytes()
	return PublicIdentity{
		Did:           i.did,
		DisplayName:   i.profile.DisplayName,
		Avatar:        i.profile.Avatar,
		Status:        i.profile.Status,
		SigningPub:    hex.EncodeToString(signing[:]),
		EncryptionPub: hex.EncodeToString(encryption[:]),
	}
}

// WrappingKey derives the key sealing group and channel keys at rest
func (i *Identity) WrappingKey() ([crypto.KeySize]byte, error) {
	return crypto.DeriveWrappingKey(i.keys.Encryption.SecretBytes())
}

// Keys decodes both public keys, checking their length
func (p PublicIdentity) Keys() (signing, encryption []byte, err error) {
	signing, err = crypto.DecodeKey(p.SigningPub)
	if err != nil {
		return nil, nil, err
	}
	encryption, err = crypto.DecodeKey(p.EncryptionPub)
	if err != nil {
		return nil, nil, err
	}
	return signing, encryption, nil
}

// ValidateDid recomputes the DID from the signing key
func (p PublicIdentity) ValidateDid() error {
	signing, err := crypto.DecodeKey(p.SigningPub)
	if err != nil {
		return apperr.Wrap(apperr.DidMismatch, err, "signing key of %s", p.Did)
	}
	return ValidateDid(p.Did, signing)
}
