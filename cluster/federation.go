/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package cluster

import (
	"context"
	"sync"

	"github.com/InfamousVague/umbra/cluster/control"
	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/InfamousVague/umbra/cluster/topology"
)

// LocalPresence reports the DIDs registered on this relay, sent to every peer in a PresenceSync
type LocalPresence interface {
	OnlineDids() []string
}

// InboundPeerMessage is a forwarded message waiting for the data plane processor
type InboundPeerMessage struct {
	From    node.RelayId
	Message *protocol.PeerMessage
}

// Federation is a relay's membership in the mesh.
// It owns the presence index (did_to_peer), the peer table (peer_info) and the links, and funnels every forwarded
// message into a single inbound queue so the data plane processes them in arrival order
type Federation struct {
	info *node.RelayInfo

	routing  *network.RoutingTable
	topology *topology.TopologyManager
	control  *control.ControlPlaneManager

	linkPeers sync.Map // *network.Link => node.RelayId, learned from the Hello received on the link
	inbound   *network.Outbox[InboundPeerMessage]

	local  LocalPresence
	logger nlog.Logger
}

// NewFederation creates the federation of the relay described by info
func NewFederation(info *node.RelayInfo, controlMan *control.ControlPlaneManager) *Federation {
	f := &Federation{
		info:     info,
		routing:  network.NewRoutingTable(),
		topology: topology.NewTopologyManager(),
		control:  controlMan,
		inbound:  network.NewOutbox[InboundPeerMessage](),
	}
	controlMan.SetPeerHandler(f)
	return f
}

// SetLogger injects the federation logger
func (f *Federation) SetLogger(l nlog.Logger) { f.logger = l }

// SetLocalPresence injects the source of local online DIDs
func (f *Federation) SetLocalPresence(l LocalPresence) { f.local = l }

// Start opens the persistent links towards peerURLs
func (f *Federation) Start(ctx context.Context, peerURLs []string) {
	f.control.Run(ctx, peerURLs)
}

// AddPeer opens a persistent link towards a peer learned at runtime
func (f *Federation) AddPeer(ctx context.Context, peerURL string) {
	if f.control.AddPeer(ctx, peerURL) {
		f.logf("Supervising new peer %s", peerURL)
	}
}

// Accept serves an inbound link opened by a peer on /federation.
// N.B. This is blocking, it returns when the link drops
func (f *Federation) Accept(ctx context.Context, link *network.Link) {
	f.control.ServeLink(ctx, link)
}

// NextInbound waits for the next forwarded message. ok is false once ctx is done
func (f *Federation) NextInbound(ctx context.Context) (node.RelayId, *protocol.PeerMessage, bool) {
	in, ok := f.inbound.Pop(ctx)
	return in.From, in.Message, ok
}

//============================================================================//
//  control.PeerHandler                                                       //
//============================================================================//

// OnLinkUp introduces this relay on a freshly established link
func (f *Federation) OnLinkUp(link *network.Link) {
	hello := protocol.NewHello(string(f.info.GetId()), f.info.GetURL(), f.info.GetRegion(), f.info.GetLocation())
	if err := link.SendJSON(hello); err != nil {
		f.logf("Could not send Hello to %s: %v", link.RemoteAddr(), err)
	}
}

// HandlePeerFrame decodes and processes one frame received from a peer
func (f *Federation) HandlePeerFrame(link *network.Link, frame []byte) {
	msg, err := protocol.DecodePeerMessage(frame)
	if err != nil {
		f.logf("Dropping malformed peer frame from %s: %v", link.RemoteAddr(), err)
		return
	}
	f.HandlePeerMessage(link, msg)
}

// OnLinkDown purges everything learned through link
func (f *Federation) OnLinkDown(link *network.Link) {
	value, ok := f.linkPeers.LoadAndDelete(link)
	if !ok {
		return
	}
	f.RemovePeerPresence(value.(node.RelayId), link)
}

// HandlePeerMessage applies a peer message. Presence and keepalives are handled here, forwards are queued for the data plane
func (f *Federation) HandlePeerMessage(link *network.Link, msg *protocol.PeerMessage) {
	peer := f.peerOf(link, msg.RelayId)

	switch msg.Type {
	case protocol.PeerHello:
		peer = node.RelayId(msg.RelayId)
		f.linkPeers.Store(link, peer)
		if prev, err := f.topology.Get(peer); err == nil {
			f.logf("Peer %s said Hello again, replacing the link registered at %d", peer, prev.ConnectedAt)
		}
		info := topology.PeerInfo{
			RelayId:  peer,
			RelayURL: msg.RelayURL,
			Region:   msg.Region,
			Location: msg.Location,
		}
		if err := f.topology.Register(info, link); err != nil {
			f.logf("Rejecting Hello: %v", err)
			return
		}
		f.logf("Peer relay identified: %s (%s, %s)", msg.RelayId, msg.Region, msg.Location)
		link.SendJSON(protocol.NewPresenceSync(string(f.info.GetId()), f.localDids()))

	case protocol.PeerPresenceSync:
		f.logf("Received presence sync from %s: %d DIDs", peer, len(msg.OnlineDids))
		f.routing.ReplacePeerPresence(peer, msg.OnlineDids)

	case protocol.PeerPresenceOnline:
		f.routing.SetOnline(peer, msg.Did)

	case protocol.PeerPresenceOffline:
		f.routing.SetOffline(peer, msg.Did)

	case protocol.PeerPing:
		link.SendJSON(protocol.NewPeerPong())

	case protocol.PeerPong:

	default:
		f.inbound.Push(InboundPeerMessage{From: peer, Message: msg})
	}
}

// RemovePeerPresence purges every DID of peer from the index and forgets the peer, unless it reconnected through another link
func (f *Federation) RemovePeerPresence(peer node.RelayId, link *network.Link) {
	if !f.topology.RemoveIfSender(peer, link) {
		return
	}
	removed := f.routing.RemovePeer(peer)
	f.logf("Peer %s disconnected, purged %d DIDs", peer, len(removed))
}

//============================================================================//
//  Forwarding API used by the data plane                                     //
//============================================================================//

// FindPeerForDid returns the peer relay did is connected to
func (f *Federation) FindPeerForDid(did string) (node.RelayId, bool) {
	return f.routing.FindPeerForDid(did)
}

// ForwardSignal forwards a signal towards the relay hosting toDid. It reports whether a peer accepted it
func (f *Federation) ForwardSignal(fromDid, toDid, payload string) bool {
	return f.sendToDidPeer(toDid, protocol.NewForwardSignal(fromDid, toDid, payload))
}

// ForwardMessage forwards a message towards the relay hosting toDid. It reports whether a peer accepted it
func (f *Federation) ForwardMessage(fromDid, toDid, payload string, timestamp int64) bool {
	return f.sendToDidPeer(toDid, protocol.NewForwardMessage(fromDid, toDid, payload, timestamp))
}

// ForwardSessionJoin routes the answer of joinerDid to the relay hosting creatorDid
func (f *Federation) ForwardSessionJoin(creatorDid, sessionId, joinerDid, answer string) bool {
	return f.sendToDidPeer(creatorDid, protocol.NewForwardSessionJoin(creatorDid, sessionId, joinerDid, answer))
}

// ReplicateSession sends a freshly created signaling session to every peer
func (f *Federation) ReplicateSession(sessionId, creatorDid, offer string, createdAt int64) {
	f.broadcast(protocol.NewSessionSync(sessionId, creatorDid, offer, createdAt))
}

// BroadcastPresenceOnline announces a local registration
func (f *Federation) BroadcastPresenceOnline(did string) {
	f.broadcast(protocol.NewPresenceOnline(string(f.info.GetId()), did))
}

// BroadcastPresenceOffline announces a local disconnection
func (f *Federation) BroadcastPresenceOffline(did string) {
	f.broadcast(protocol.NewPresenceOffline(string(f.info.GetId()), did))
}

// BroadcastInvite replicates a published invite
func (f *Federation) BroadcastInvite(invite protocol.PublishedInvite) {
	f.broadcast(protocol.NewInviteSync(invite))
}

// BroadcastInviteRevoke replicates an invite revocation
func (f *Federation) BroadcastInviteRevoke(code string) {
	f.broadcast(protocol.NewInviteRevoke(code))
}

// AskInvite asks every peer to resolve code on behalf of requesterDid
func (f *Federation) AskInvite(code, requesterDid string) {
	f.broadcast(protocol.NewForwardResolveInvite(code, requesterDid, string(f.info.GetId())))
}

// SendToPeer sends msg to a single peer
func (f *Federation) SendToPeer(peer node.RelayId, msg *protocol.PeerMessage) bool {
	frame, err := msg.Encode()
	if err != nil {
		return false
	}
	return f.topology.SendTo(peer, frame) == nil
}

// IsOnlineAnywhere reports whether did is indexed under some peer
func (f *Federation) IsOnlineAnywhere(did string) bool {
	_, ok := f.routing.FindPeerForDid(did)
	return ok
}

// RemoteOnlineCount returns how many DIDs are online on other relays
func (f *Federation) RemoteOnlineCount() int {
	return f.routing.OnlineCount()
}

// PeerCount returns how many peers completed the Hello exchange
func (f *Federation) PeerCount() int {
	return f.topology.Count()
}

// ConnectedPeers returns a snapshot of the peer table
func (f *Federation) ConnectedPeers() []topology.PeerInfo {
	return f.topology.Peers()
}

// ActiveLinks returns the number of links being served
func (f *Federation) ActiveLinks() int64 {
	return f.control.ActiveLinks()
}

func (f *Federation) sendToDidPeer(did string, msg *protocol.PeerMessage) bool {
	peer, ok := f.routing.FindPeerForDid(did)
	if !ok {
		return false
	}
	if !f.SendToPeer(peer, msg) {
		f.logf("Could not forward %s to %s", msg.Type, peer)
		return false
	}
	return true
}

func (f *Federation) broadcast(msg *protocol.PeerMessage) {
	frame, err := msg.Encode()
	if err != nil {
		f.logf("Could not encode %s: %v", msg.Type, err)
		return
	}
	f.topology.Broadcast(frame)
}

// peerOf resolves the relay behind link, falling back to the relay id carried by the message
func (f *Federation) peerOf(link *network.Link, claimed string) node.RelayId {
	if link != nil {
		if value, ok := f.linkPeers.Load(link); ok {
			return value.(node.RelayId)
		}
	}
	return node.RelayId(claimed)
}

func (f *Federation) localDids() []string {
	if f.local == nil {
		return nil
	}
	return f.local.OnlineDids()
}

func (f *Federation) logf(format string, v ...any) {
	if f.logger != nil {
		f.logger.Logf(format, v...)
	}
}
