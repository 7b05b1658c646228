/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package identity

import (
	"strings"
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRecover(t *testing.T) {
	original, phrase, err := Create("Alice")
	require.NoError(t, err)
	assert.Len(t, phrase.Words(), WordCount)
	assert.True(t, strings.HasPrefix(original.Did(), "did:key:z"))

	parsed, err := ParseRecoveryPhrase(strings.ToUpper("  " + phrase.Phrase() + " "))
	require.NoError(t, err)

	recovered, err := FromRecoveryPhrase(parsed, "Alice again")
	require.NoError(t, err)
	assert.Equal(t, original.Did(), recovered.Did())
	assert.Equal(t, original.Keys().Signing.PublicBytes(), recovered.Keys().Signing.PublicBytes())
	assert.Equal(t, original.Keys().Encryption.PublicBytes(), recovered.Keys().Encryption.PublicBytes())
}

func TestParseRecoveryPhraseRejectsBadInput(t *testing.T) {
	_, err := ParseRecoveryPhrase("abandon abandon abandon")
	assert.True(t, apperr.Is(err, apperr.InvalidRecoveryPhrase))

	badChecksum := strings.TrimSpace(strings.Repeat("abandon ", WordCount))
	_, err = ParseRecoveryPhrase(badChecksum)
	assert.True(t, apperr.Is(err, apperr.InvalidRecoveryPhrase))

	valid := strings.TrimSpace(strings.Repeat("abandon ", WordCount-1)) + " art"
	_, err = ParseRecoveryPhrase(valid)
	assert.NoError(t, err)

	phrase, err := GenerateRecoveryPhrase()
	require.NoError(t, err)
	assert.Equal(t, "RecoveryPhrase([REDACTED])", phrase.String())
}

func TestWordHelpers(t *testing.T) {
	assert.True(t, IsValidWord("Abandon"))
	assert.False(t, IsValidWord("umbra"))

	suggestions := SuggestWords("ab")
	assert.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 10)
	for _, word := range suggestions {
		assert.True(t, strings.HasPrefix(word, "ab"))
	}
	assert.Nil(t, SuggestWords(""))
}

func TestDidRoundTrip(t *testing.T) {
	id, _, err := Create("Bob")
	require.NoError(t, err)
	public := id.Keys().Signing.PublicBytes()

	decoded, err := PublicKeyFromDid(id.Did())
	require.NoError(t, err)
	assert.Equal(t, public[:], decoded)

	assert.NoError(t, ValidateDid(id.Did(), public[:]))
	other, _, err := Create("Carol")
	require.NoError(t, err)
	assert.True(t, apperr.Is(ValidateDid(other.Did(), public[:]), apperr.DidMismatch))

	_, err = PublicKeyFromDid("did:web:example.com")
	assert.Error(t, err)
	_, err = PublicKeyFromDid("did:key:f00")
	assert.Error(t, err)
}

func TestPublicIdentityValidation(t *testing.T) {
	id, _, err := Create("Dana")
	require.NoError(t, err)

	public := id.Public()
	assert.NoError(t, public.ValidateDid())
	signing, encryption, err := public.Keys()
	require.NoError(t, err)
	assert.Len(t, signing, 32)
	assert.Len(t, encryption, 32)

	other, _, err := Create("Eve")
	require.NoError(t, err)
	public.SigningPub = other.Public().SigningPub
	assert.Error(t, public.ValidateDid())
}

func TestProfileUpdates(t *testing.T) {
	id, _, err := Create("Frank")
	require.NoError(t, err)

	status := "busy"
	require.NoError(t, id.UpdateProfile(ProfileUpdate{Status: &status}))
	assert.Equal(t, "busy", *id.Profile().Status)

	empty := ""
	err = id.UpdateProfile(ProfileUpdate{DisplayName: &empty, ClearStatus: true})
	assert.True(t, apperr.Is(err, apperr.ProfileValidation))
	assert.Equal(t, "Frank", id.Profile().DisplayName)
	assert.NotNil(t, id.Profile().Status)

	long := strings.Repeat("s", MaxStatusLength+1)
	assert.Error(t, id.UpdateProfile(ProfileUpdate{Status: &long}))

	require.NoError(t, id.UpdateProfile(ProfileUpdate{ClearStatus: true}))
	assert.Nil(t, id.Profile().Status)

	_, _, err = Create(strings.Repeat("n", MaxDisplayNameLength+1))
	assert.Error(t, err)
}
