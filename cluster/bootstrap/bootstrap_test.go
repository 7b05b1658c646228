/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package bootstrap

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
)

func newTestBootstrap(t *testing.T) *BootstrapNode {
	dir := t.TempDir()
	b, err := NewBootstrapNode(filepath.Join(dir, "bootstrap.log"), filepath.Join(dir, "bootstrap.cfg"))
	if err != nil {
		t.Fatalf("NewBootstrapNode: %v", err)
	}
	return b
}

func relay(id string) Participant {
	return Participant{Id: node.RelayId(id), URL: "ws://" + id + ".example:8080/ws", Region: "eu", Location: "Turin"}
}

func TestFirstRelayIsAlone(t *testing.T) {
	b := newTestBootstrap(t)

	if peers := b.Register(relay("a")); len(peers) != 0 {
		t.Errorf("Expected no peers for the first relay, got %v", peers)
	}
	peers := b.Register(relay("b"))
	if len(peers) != 1 || peers[0].Id != "a" {
		t.Errorf("Expected the second relay to get the first, got %v", peers)
	}
}

func TestTopologyIsSymmetric(t *testing.T) {
	b := newTestBootstrap(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		b.Register(relay(id))
	}

	for _, id := range []node.RelayId{"a", "b", "c", "d", "e", "f"} {
		for _, neighbor := range b.Neighbors(id) {
			if !containsId(b.Neighbors(neighbor), id) {
				t.Errorf("%s lists %s as neighbor, but not the other way round", id, neighbor)
			}
			if neighbor == id {
				t.Errorf("%s is its own neighbor", id)
			}
		}
		if id != "a" && len(b.Neighbors(id)) == 0 {
			t.Errorf("%s has no neighbor", id)
		}
	}
}

func TestReregistrationKeepsNeighbors(t *testing.T) {
	b := newTestBootstrap(t)
	b.Register(relay("a"))
	b.Register(relay("b"))
	first := b.Register(relay("c"))

	moved := relay("c")
	moved.URL = "ws://elsewhere:9000/ws"
	again := b.Register(moved)
	if len(first) != len(again) {
		t.Fatalf("Expected the same peers after re-registration, got %v and %v", first, again)
	}

	peers := b.Register(relay("d"))
	for _, p := range peers {
		if p.Id == "c" && p.URL != "ws://elsewhere:9000/ws" {
			t.Errorf("Expected the refreshed URL, got %s", p.URL)
		}
	}
}

func TestRemoveRelay(t *testing.T) {
	b := newTestBootstrap(t)
	b.Register(relay("a"))
	b.Register(relay("b"))
	b.RemoveRelay("a")

	if len(b.Neighbors("b")) != 0 {
		t.Errorf("Expected b to lose its neighbor, got %v", b.Neighbors("b"))
	}
	if peers := b.Register(relay("c")); len(peers) != 1 || peers[0].Id != "b" {
		t.Errorf("Expected c to be attached to b, got %v", peers)
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "bootstrap.cfg")
	b, err := NewBootstrapNode(filepath.Join(dir, "bootstrap.log"), cfg)
	if err != nil {
		t.Fatalf("NewBootstrapNode: %v", err)
	}
	b.Register(relay("a"))
	b.Register(relay("b"))
	if err := b.StoreConfig(); err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}

	restored, err := NewBootstrapNode(filepath.Join(dir, "other.log"), cfg)
	if err != nil {
		t.Fatalf("NewBootstrapNode: %v", err)
	}
	if err := restored.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if n := restored.Neighbors("b"); len(n) != 1 || n[0] != "a" {
		t.Errorf("Expected b to keep a as neighbor, got %v", n)
	}
}

func TestLoadConfigOnEmptyFile(t *testing.T) {
	b := newTestBootstrap(t)
	if err := b.LoadConfig(); err != nil {
		t.Errorf("Expected an empty state file to be accepted, got %v", err)
	}
}

func TestRegisterOverGRPC(t *testing.T) {
	b := newTestBootstrap(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, lis)

	ctx, stop := context.WithTimeout(ctx, 5*time.Second)
	defer stop()

	peers, err := RegisterWithBootstrap(ctx, lis.Addr().String(), relay("a"))
	if err != nil {
		t.Fatalf("RegisterWithBootstrap: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("Expected no peers, got %v", peers)
	}

	peers, err = RegisterWithBootstrap(ctx, lis.Addr().String(), relay("b"))
	if err != nil {
		t.Fatalf("RegisterWithBootstrap: %v", err)
	}
	if len(peers) != 1 || peers[0].URL != relay("a").URL || peers[0].Region != "eu" {
		t.Errorf("Expected a as peer, got %v", peers)
	}

	bad := relay("c")
	bad.URL = "http://nope"
	if _, err := RegisterWithBootstrap(ctx, lis.Addr().String(), bad); err == nil {
		t.Errorf("Expected a non websocket URL to be refused")
	}
}
