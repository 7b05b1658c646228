/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package data

import (
	"context"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
)

// Forwarder is what the data plane needs from the federation. A relay without peers simply has no Forwarder.
// Every Forward* call reports whether some peer accepted the message, so the caller can fall back to the offline queue
type Forwarder interface {
	ForwardSignal(fromDid, toDid, payload string) bool
	ForwardMessage(fromDid, toDid, payload string, timestamp int64) bool
	ForwardSessionJoin(creatorDid, sessionId, joinerDid, answer string) bool
	SendToPeer(peer node.RelayId, msg *protocol.PeerMessage) bool

	ReplicateSession(sessionId, creatorDid, offer string, createdAt int64)
	BroadcastPresenceOnline(did string)
	BroadcastPresenceOffline(did string)
	BroadcastInvite(invite protocol.PublishedInvite)
	BroadcastInviteRevoke(code string)
	AskInvite(code, requesterDid string)

	RemoteOnlineCount() int
	PeerCount() int

	// NextInbound waits for the next forwarded message, in arrival order
	NextInbound(ctx context.Context) (node.RelayId, *protocol.PeerMessage, bool)
}
