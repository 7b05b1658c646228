/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package topology

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
)

// Status is reported as "online" in the peer listing. Peers are dropped when their link goes down
type Status bool

const On Status = true

// Sender is the write half of a peer link. network.Link implements it
type Sender interface {
	Send(frame []byte) bool
}

// PeerInfo is what a relay knows about one federation peer
type PeerInfo struct {
	RelayId     node.RelayId `json:"relay_id"`
	RelayURL    string       `json:"relay_url"`
	Region      string       `json:"region"`
	Location    string       `json:"location"`
	ConnectedAt int64        `json:"connected_at"` // unix millis of the Hello that registered the peer
	Status      Status       `json:"online"`
}

type peerEntry struct {
	info   PeerInfo
	sender Sender
}

// A TopologyManager is the component of a relay that handles its local view of the federation mesh.
// It keeps one entry per peer that completed the Hello exchange, together with the sender used to reach it
type TopologyManager struct {
	mutex sync.RWMutex
	peers map[node.RelayId]*peerEntry
}

// Creates a topology manager with an empty map.
func NewTopologyManager() *TopologyManager {
	return &TopologyManager{
		peers: make(map[node.RelayId]*peerEntry),
	}
}

// Register adds or replaces the peer described by info, reachable through sender.
// The latest Hello wins, the previous sender is simply forgotten. A zero ConnectedAt is stamped with the current time
func (t *TopologyManager) Register(info PeerInfo, sender Sender) error {
	if info.RelayId == "" {
		return fmt.Errorf("Cannot register a peer without relay id")
	}
	if sender == nil {
		return fmt.Errorf("Cannot register peer %s without a sender", info.RelayId)
	}

	if info.ConnectedAt == 0 {
		info.ConnectedAt = time.Now().UnixMilli()
	}
	info.Status = On

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.peers[info.RelayId] = &peerEntry{info, sender}
	return nil
}

// RemoveIfSender removes peer only if it is still reached through sender.
// A peer that reconnected in the meantime is left untouched. It reports whether the entry was removed
func (t *TopologyManager) RemoveIfSender(peer node.RelayId, sender Sender) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	entry, ok := t.peers[peer]
	if !ok || entry.sender != sender {
		return false
	}
	delete(t.peers, peer)
	return true
}

// Returns the info of the peer with given id.
// It return (info, nil) if the peer is present, and (empty, error) otherwise.
func (t *TopologyManager) Get(peer node.RelayId) (PeerInfo, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	entry, ok := t.peers[peer]
	if !ok {
		return PeerInfo{}, fmt.Errorf("The ID %s does not correspond to any peer", peer)
	}
	return entry.info, nil
}

// SendTo queues frame on the link of peer
func (t *TopologyManager) SendTo(peer node.RelayId, frame []byte) error {
	t.mutex.RLock()
	entry, ok := t.peers[peer]
	t.mutex.RUnlock()

	if !ok {
		return fmt.Errorf("The ID %s does not correspond to any peer", peer)
	}
	if !entry.sender.Send(frame) {
		return fmt.Errorf("The link towards %s is closed", peer)
	}
	return nil
}

// Broadcast queues frame on every registered link, returning how many accepted it
func (t *TopologyManager) Broadcast(frame []byte) int {
	t.mutex.RLock()
	senders := make([]Sender, 0, len(t.peers))
	for _, entry := range t.peers {
		senders = append(senders, entry.sender)
	}
	t.mutex.RUnlock()

	sent := 0
	for _, s := range senders {
		if s.Send(frame) {
			sent++
		}
	}
	return sent
}

// Peers returns a snapshot of every registered peer, sorted by relay id
func (t *TopologyManager) Peers() []PeerInfo {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	infos := make([]PeerInfo, 0, len(t.peers))
	for _, entry := range t.peers {
		infos = append(infos, entry.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RelayId < infos[j].RelayId })
	return infos
}

// Count returns the number of registered peers
func (t *TopologyManager) Count() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.peers)
}
