/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package node

import "fmt"

// RelayInfo contains the minimum required information for a relay to enter the federation mesh
type RelayInfo struct {
	id       RelayId // Announced in Hello, keys the peer table on the other side
	url      string  // Public client websocket URL
	region   string  // Free-form region label
	location string  // Free-form location label
	port     uint16  // Port the HTTP server listens on
}

// NewRelayInfo creates a new relay info struct, ensuring the id is set and the port is inside the allowed range
func NewRelayInfo(id RelayId, url, region, location string, port int) (*RelayInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("The relay id cannot be empty")
	}
	if err := IsPortValid(port); err != nil {
		return nil, err
	}
	if url == "" {
		url = fmt.Sprintf("ws://localhost:%d/ws", port)
	}
	return &RelayInfo{id, url, region, location, uint16(port)}, nil
}

// GetId retrieves the relay's id
func (r *RelayInfo) GetId() RelayId {
	return r.id
}

// GetURL retrieves the relay's public client URL
func (r *RelayInfo) GetURL() string {
	return r.url
}

// GetRegion retrieves the relay's region
func (r *RelayInfo) GetRegion() string {
	return r.region
}

// GetLocation retrieves the relay's location
func (r *RelayInfo) GetLocation() string {
	return r.location
}

// GetPort retrieves the port used by the HTTP server
func (r *RelayInfo) GetPort() uint16 {
	return r.port
}
