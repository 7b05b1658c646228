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

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/tyler-smith/go-bip39"
)

const (
	WordCount     = 24
	entropyBits   = 256
	maxSuggestion = 10
)

// RecoveryPhrase is a 24 word BIP39 mnemonic. It is the only backup of an identity
type RecoveryPhrase struct {
	mnemonic string
}

func GenerateRecoveryPhrase() (*RecoveryPhrase, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailed, err, "generating entropy")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailed, err, "generating mnemonic")
	}
	return &RecoveryPhrase{mnemonic}, nil
}

// ParseRecoveryPhrase normalizes whitespace and case, then checks word count and checksum
func ParseRecoveryPhrase(phrase string) (*RecoveryPhrase, error) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) != WordCount {
		return nil, apperr.New(apperr.InvalidRecoveryPhrase, "expected %d words, got %d", WordCount, len(words))
	}
	normalized := strings.Join(words, " ")
	if !bip39.IsMnemonicValid(normalized) {
		return nil, apperr.New(apperr.InvalidRecoveryPhrase, "checksum or word list mismatch")
	}
	return &RecoveryPhrase{normalized}, nil
}

func (r *RecoveryPhrase) Phrase() string {
	return r.mnemonic
}

func (r *RecoveryPhrase) Words() []string {
	return strings.Fields(r.mnemonic)
}

// Seed returns the 32 byte master seed: the first half of the BIP39 seed with an empty passphrase
func (r *RecoveryPhrase) Seed() ([]byte, error) {
	return r.SeedWithPassphrase("")
}

func (r *RecoveryPhrase) SeedWithPassphrase(passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(r.mnemonic, passphrase)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidRecoveryPhrase, err, "expanding seed")
	}
	return seed[:32], nil
}

func (r *RecoveryPhrase) String() string {
	return "RecoveryPhrase([REDACTED])"
}

func IsValidWord(word string) bool {
	_, ok := bip39.GetWordIndex(strings.ToLower(word))
	return ok
}

// SuggestWords returns up to ten words of the English list starting with prefix
func SuggestWords(prefix string) []string {
	if prefix == "" {
		return nil
	}
	prefix = strings.ToLower(prefix)

	var out []string
	for _, word := range bip39.GetWordList() {
		if strings.HasPrefix(word, prefix) {
			out = append(out, word)
			if len(out) == maxSuggestion {
				break
			}
		}
	}
	return out
}
