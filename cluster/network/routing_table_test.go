/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package network

import (
	"testing"

	"github.com/InfamousVague/umbra/cluster/node"
)

func TestUnknownDidUsage(t *testing.T) {
	r1 := NewRoutingTable()
	_, ok := r1.FindPeerForDid("did:key:zNobody")
	if ok {
		t.Errorf("An unknown DID should not be indexed, this should be false")
	}
}

func TestPresenceOnlineUsage(t *testing.T) {
	r1 := NewRoutingTable()
	peer := node.RelayId("relay-2")

	r1.SetOnline(peer, "did:key:zB")

	got, ok := r1.FindPeerForDid("did:key:zB")
	if !ok {
		t.Errorf("DID should be indexed, this should be true")
	}
	if got != peer {
		t.Errorf("DID should be routed to %s, not %s", peer, got)
	}
}

func TestPresenceOfflineUsage(t *testing.T) {
	r1 := NewRoutingTable()
	peer := node.RelayId("relay-2")

	r1.SetOnline(peer, "did:key:zB")
	r1.SetOffline(peer, "did:key:zB")

	if _, ok := r1.FindPeerForDid("did:key:zB"); ok {
		t.Errorf("DID went offline, this should be false")
	}
	if len(r1.GetPeerDids(peer)) != 0 {
		t.Errorf("Peer should have no online DIDs, got %v", r1.GetPeerDids(peer))
	}
}

func TestStaleOfflineDoesNotEvictMovedDid(t *testing.T) {
	r1 := NewRoutingTable()
	old, current := node.RelayId("relay-2"), node.RelayId("relay-3")

	r1.SetOnline(old, "did:key:zB")
	r1.SetOnline(current, "did:key:zB")
	r1.SetOffline(old, "did:key:zB")

	got, ok := r1.FindPeerForDid("did:key:zB")
	if !ok || got != current {
		t.Errorf("DID should still be routed to %s, got %s (%v)", current, got, ok)
	}
	if len(r1.GetPeerDids(old)) != 0 {
		t.Errorf("Old peer should not list the moved DID, got %v", r1.GetPeerDids(old))
	}
}

func TestPresenceSyncReplaces(t *testing.T) {
	r1 := NewRoutingTable()
	peer := node.RelayId("relay-2")

	r1.SetOnline(peer, "did:key:zGone")
	r1.ReplacePeerPresence(peer, []string{"did:key:zA", "did:key:zB"})

	if _, ok := r1.FindPeerForDid("did:key:zGone"); ok {
		t.Errorf("Sync should have dropped did:key:zGone")
	}
	if r1.OnlineCount() != 2 {
		t.Errorf("Expected 2 indexed DIDs, got %d", r1.OnlineCount())
	}
}

func TestRemovePeerPurges(t *testing.T) {
	r1 := NewRoutingTable()
	r1.ReplacePeerPresence("relay-2", []string{"did:key:zA", "did:key:zB"})
	r1.SetOnline("relay-3", "did:key:zC")

	removed := r1.RemovePeer("relay-2")
	if len(removed) != 2 || removed[0] != "did:key:zA" || removed[1] != "did:key:zB" {
		t.Errorf("Unexpected purged set %v", removed)
	}
	if _, ok := r1.FindPeerForDid("did:key:zA"); ok {
		t.Errorf("did:key:zA should be gone")
	}
	if peer, ok := r1.FindPeerForDid("did:key:zC"); !ok || peer != "relay-3" {
		t.Errorf("did:key:zC should still be routed to relay-3")
	}
}

func TestDeepClone(t *testing.T) {
	r1 := NewRoutingTable()
	r1.SetOnline("relay-2", "did:key:zA")
	r1.SetOnline("relay-3", "did:key:zB")

	r2 := r1.Clone()
	r1.RemovePeer("relay-2")

	if _, ok := r2.FindPeerForDid("did:key:zA"); !ok {
		t.Errorf("Clone was altered by a change on the original")
	}
	if r2.OnlineCount() != 2 {
		t.Errorf("Clone should index 2 DIDs, got %d", r2.OnlineCount())
	}
}
