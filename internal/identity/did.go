/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package identity

import (
	"bytes"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/mr-tron/base58"
)

const (
	didKeyPrefix = "did:key:"
	multibaseBTC = 'z'
)

// ed25519-pub multicodec, varint encoded
var ed25519Multicodec = []byte{0xed, 0x01}

// DidFromPublicKey encodes an Ed25519 public key as did:key:z<base58btc(multicodec || key)>
func DidFromPublicKey(public []byte) string {
	buf := make([]byte, 0, len(ed25519Multicodec)+len(public))
	buf = append(buf, ed25519Multicodec...)
	buf = append(buf, public...)
	return didKeyPrefix + string(multibaseBTC) + base58.Encode(buf)
}

// PublicKeyFromDid is the inverse of DidFromPublicKey
func PublicKeyFromDid(did string) ([]byte, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, apperr.New(apperr.DidMismatch, "DID %q does not use the key method", did)
	}
	encoded := strings.TrimPrefix(did, didKeyPrefix)
	if len(encoded) < 2 || encoded[0] != multibaseBTC {
		return nil, apperr.New(apperr.DidMismatch, "DID %q is not base58btc multibase", did)
	}

	raw, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, apperr.Wrap(apperr.DidMismatch, err, "DID %q is not valid base58", did)
	}
	if !bytes.HasPrefix(raw, ed25519Multicodec) || len(raw) != len(ed25519Multicodec)+32 {
		return nil, apperr.New(apperr.DidMismatch, "DID %q does not carry an Ed25519 key", did)
	}
	return raw[len(ed25519Multicodec):], nil
}

// ValidateDid recomputes the DID from public and rejects mismatches
func ValidateDid(did string, public []byte) error {
	if DidFromPublicKey(public) != did {
		return apperr.New(apperr.DidMismatch, "DID %s does not match its signing key", did)
	}
	return nil
}
