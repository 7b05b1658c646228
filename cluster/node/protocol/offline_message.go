/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package protocol

// OfflineMessage is a payload queued by the relay for a DID that was unreachable at send time
type OfflineMessage struct {
	Id        string `json:"id"`        // UUID assigned when queued
	FromDid   string `json:"from_did"`  // Sender
	Payload   string `json:"payload"`   // Opaque to the relay
	Timestamp int64  `json:"timestamp"` // Sender timestamp, unix millis
	QueuedAt  int64  `json:"queued_at"` // Relay timestamp, unix millis
}

// PublishedInvite is a community invite a client asked the mesh to resolve on its behalf.
// The invite payload is opaque, the remaining fields are preview metadata
type PublishedInvite struct {
	Code                 string `json:"code"`
	CommunityId          string `json:"community_id"`
	CommunityName        string `json:"community_name"`
	CommunityDescription string `json:"community_description,omitempty"`
	CommunityIcon        string `json:"community_icon,omitempty"`
	MemberCount          int    `json:"member_count"`
	MaxUses              *int   `json:"max_uses,omitempty"`
	ExpiresAt            *int64 `json:"expires_at,omitempty"`
	InvitePayload        string `json:"invite_payload"`
	PublisherDid         string `json:"publisher_did"`
	PublishedAt          int64  `json:"published_at"`
}
