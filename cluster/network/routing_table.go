/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package network

import (
	"sort"
	"sync"

	"github.com/InfamousVague/umbra/cluster/node"
)

// RoutingTable is the federation presence index.
// It maps every DID that a peer relay reported as online to that peer, so the data plane can forward
// a signal or message for a non local DID in one lookup
type RoutingTable struct {
	mutex sync.RWMutex

	didToPeer map[string]node.RelayId              // DID => relay the DID is connected to
	peerDids  map[node.RelayId]map[string]struct{} // relay => DIDs it reported as online
}

// NewRoutingTable creates and returns a new, empty, routing table
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		didToPeer: make(map[string]node.RelayId),
		peerDids:  make(map[node.RelayId]map[string]struct{}),
	}
}

// ReplacePeerPresence replaces the whole online set of peer with dids, as carried by a PresenceSync
func (r *RoutingTable) ReplacePeerPresence(peer node.RelayId, dids []string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.removePeerLocked(peer)
	set := make(map[string]struct{}, len(dids))
	for _, did := range dids {
		r.moveLocked(did, peer)
		set[did] = struct{}{}
	}
	r.peerDids[peer] = set
}

// SetOnline records did as connected to peer. A DID reported by two relays belongs to the latest one
func (r *RoutingTable) SetOnline(peer node.RelayId, did string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.moveLocked(did, peer)
	set, ok := r.peerDids[peer]
	if !ok {
		set = make(map[string]struct{})
		r.peerDids[peer] = set
	}
	set[did] = struct{}{}
}

// SetOffline removes did from peer. The index entry is kept if did already moved to another relay
func (r *RoutingTable) SetOffline(peer node.RelayId, did string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if set, ok := r.peerDids[peer]; ok {
		delete(set, did)
	}
	if owner, ok := r.didToPeer[did]; ok && owner == peer {
		delete(r.didToPeer, did)
	}
}

// RemovePeer purges every DID of peer from the index, returning the purged DIDs
func (r *RoutingTable) RemovePeer(peer node.RelayId) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.removePeerLocked(peer)
}

// FindPeerForDid returns the relay, peer, that did is connected to.
// ok is true if the DID is indexed
func (r *RoutingTable) FindPeerForDid(did string) (peer node.RelayId, ok bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	peer, ok = r.didToPeer[did]
	return peer, ok
}

// GetPeerDids returns the DIDs peer reported as online, sorted
func (r *RoutingTable) GetPeerDids(peer node.RelayId) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dids := make([]string, 0, len(r.peerDids[peer]))
	for did := range r.peerDids[peer] {
		dids = append(dids, did)
	}
	sort.Strings(dids)
	return dids
}

// OnlineCount returns how many remote DIDs are indexed
func (r *RoutingTable) OnlineCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.didToPeer)
}

// Clone creates a deep copy of the routing table r
func (r *RoutingTable) Clone() *RoutingTable {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	didToPeer := make(map[string]node.RelayId, len(r.didToPeer))
	for k, v := range r.didToPeer {
		didToPeer[k] = v
	}

	peerDids := make(map[node.RelayId]map[string]struct{}, len(r.peerDids))
	for peer, set := range r.peerDids {
		copied := make(map[string]struct{}, len(set))
		for did := range set {
			copied[did] = struct{}{}
		}
		peerDids[peer] = copied
	}

	return &RoutingTable{
		didToPeer: didToPeer,
		peerDids:  peerDids,
	}
}

// moveLocked points did at peer, taking it out of the set of the relay it was previously indexed under
func (r *RoutingTable) moveLocked(did string, peer node.RelayId) {
	if previous, ok := r.didToPeer[did]; ok && previous != peer {
		if set, ok := r.peerDids[previous]; ok {
			delete(set, did)
		}
	}
	r.didToPeer[did] = peer
}

func (r *RoutingTable) removePeerLocked(peer node.RelayId) []string {
	set, ok := r.peerDids[peer]
	if !ok {
		return nil
	}

	removed := make([]string, 0, len(set))
	for did := range set {
		if owner, ok := r.didToPeer[did]; ok && owner == peer {
			delete(r.didToPeer, did)
		}
		removed = append(removed, did)
	}
	delete(r.peerDids, peer)
	sort.Strings(removed)
	return removed
}
