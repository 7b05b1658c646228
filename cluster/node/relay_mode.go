/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package node

import (
	"encoding/json"
	"strings"
)

// The Mode of a relay is an enum, it tells clients and operators whether the relay is part of a federation mesh
type RelayMode uint

const (
	Standalone RelayMode = iota // No peer URLs configured: clients can only reach DIDs connected to this relay, undeliverable messages wait in the local queue.
	Federated                   // At least one peer configured: presence is gossiped, messages for remote DIDs are forwarded, offline messages are replicated.
)

// Maps each RelayMode enum variant to a string with it's name as content. Makes JSON marshalling easier, thanks to O(1) lookup.
var modeToName = map[RelayMode]string{
	Standalone: "standalone",
	Federated:  "federated",
}

// Reverse map of the previous one. Makes JSON un-marshalling easier, thanks to O(1) lookup
var nameToMode = map[string]RelayMode{
	"standalone": Standalone,
	"federated":  Federated,
}

// ModeFor returns the mode a relay runs in given its configured peers
func ModeFor(peerURLs []string) RelayMode {
	if len(peerURLs) == 0 {
		return Standalone
	}
	return Federated
}

func (mode RelayMode) String() string {
	return modeToName[mode]
}

// Encodes the RelayMode variant, mode, into a JSON field
func (mode RelayMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(modeToName[mode])
}

// Decodes the JSON field (in the byte array) into a RelayMode
func (mode *RelayMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	*mode = nameToMode[strings.ToLower(s)]
	return nil
}
