/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package node

import (
	"fmt"
	"net/url"
	"strings"
)

// RelayId is the stable identifier of a relay inside the federation mesh
type RelayId string

var MinimumValidPort int = 1024
var MaximumValidPort int = 65535

// Checks if the given port is valid with respect with the minimum and maximum numbers allowed
func IsPortValid(port int) error {
	if port < MinimumValidPort || port > MaximumValidPort {
		return fmt.Errorf("The port %d is outside valid range: [%d, %d]", port, MinimumValidPort, MaximumValidPort)
	}
	return nil
}

// IsPeerURLValid checks that a peer URL is an absolute websocket URL
func IsPeerURLValid(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("The peer URL %q cannot be parsed: %v", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("The peer URL %q must use the ws or wss scheme", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("The peer URL %q has no host", raw)
	}
	return nil
}

// FederationURL maps the public client URL of a relay onto its federation endpoint.
// `wss://relay.example/ws` becomes `wss://relay.example/federation`, a bare host gets the path appended
func FederationURL(publicURL string) string {
	trimmed := strings.TrimRight(publicURL, "/")
	if strings.HasSuffix(trimmed, "/federation") {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/ws") {
		return strings.TrimSuffix(trimmed, "/ws") + "/federation"
	}
	return trimmed + "/federation"
}
