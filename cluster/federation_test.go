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
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/control"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/InfamousVague/umbra/cluster/topology"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/handler"
	"github.com/InfamousVague/umbra/internal/input"
	"github.com/gorilla/websocket"
)

type MockLogger struct{}

func (m *MockLogger) Logf(format string, v ...any) {
	fmt.Printf(format+"\n", v...)
}

type meshRelay struct {
	server     *httptest.Server
	dataPlane  *data.DataPlaneManager
	federation *Federation
}

func (r *meshRelay) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + path
}

// newMeshRelay starts a federated relay behind an httptest server. It links to peers, given as federation URLs
func newMeshRelay(t *testing.T, ctx context.Context, id string, peers ...string) *meshRelay {
	t.Helper()

	info, err := node.NewRelayInfo(node.RelayId(id), "", "eu", "Turin", 9443)
	if err != nil {
		t.Fatalf("NewRelayInfo: %v", err)
	}

	controlMan := control.NewControlPlaneManager()
	controlMan.SetMainLogger(&MockLogger{})
	controlMan.SetBackoff(50*time.Millisecond, 200*time.Millisecond)

	federation := NewFederation(info, controlMan)
	federation.SetLogger(&MockLogger{})

	dp := data.NewDataPlaneManager(node.SystemClock{})
	dp.SetLogger(&MockLogger{})
	dp.SetForwarder(federation)
	federation.SetLocalPresence(dp)

	i := input.NewInputManager()
	i.SetLogger(&MockLogger{})
	i.SetDataPlane(dp)
	i.SetFederation(federation)
	i.SetDescription(handler.DescribeRelay(info, node.Federated))

	srv := httptest.NewServer(i.Router(ctx))
	t.Cleanup(srv.Close)

	dp.Run(ctx, time.Minute)
	federation.Start(ctx, peers)
	return &meshRelay{srv, dp, federation}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func connectClient(t *testing.T, r *meshRelay, did string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL("/ws"), nil)
	if err != nil {
		t.Fatalf("Could not dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(&protocol.ClientMessage{Type: protocol.ClientRegister, Did: did}); err != nil {
		t.Fatalf("Could not register: %v", err)
	}
	if _, ok := nextFrame(t, conn).(*protocol.Registered); !ok {
		t.Fatalf("Expected Registered for %s", did)
	}
	return conn
}

func nextFrame(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Could not read a frame: %v", err)
	}
	msg, err := protocol.DecodeServerMessage(frame)
	if err != nil {
		t.Fatalf("Could not decode %s: %v", frame, err)
	}
	return msg
}

func linkedPair(t *testing.T) (*meshRelay, *meshRelay) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a := newMeshRelay(t, ctx, "relay-a")
	b := newMeshRelay(t, ctx, "relay-b", a.wsURL("/federation"))

	waitFor(t, "the link between a and b", func() bool {
		return a.federation.PeerCount() == 1 && b.federation.PeerCount() == 1
	})
	return a, b
}

func TestPeersExchangeHello(t *testing.T) {
	a, b := linkedPair(t)

	peers := a.federation.ConnectedPeers()
	if len(peers) != 1 || peers[0].RelayId != "relay-b" || peers[0].Region != "eu" {
		t.Fatalf("Expected relay-b in the peer table of a, got %v", peers)
	}
	if peers[0].Status != topology.On || peers[0].ConnectedAt == 0 {
		t.Errorf("Expected relay-b online with a connection time, got %+v", peers[0])
	}
	if a.federation.ActiveLinks() != 1 || b.federation.ActiveLinks() != 1 {
		t.Errorf("Expected one active link per relay")
	}
}

func TestMessageCrossesTheMesh(t *testing.T) {
	a, b := linkedPair(t)

	bob := connectClient(t, b, "did:key:z6MkBob")
	waitFor(t, "bob's presence on a", func() bool {
		return a.federation.IsOnlineAnywhere("did:key:z6MkBob")
	})
	if a.dataPlane.Stats().MeshOnline != 1 {
		t.Errorf("Expected bob to be counted in the mesh from a")
	}

	alice := connectClient(t, a, "did:key:z6MkAlice")
	if err := alice.WriteJSON(&protocol.ClientMessage{Type: protocol.ClientSend, ToDid: "did:key:z6MkBob", Payload: "hello"}); err != nil {
		t.Fatalf("Could not send: %v", err)
	}
	if _, ok := nextFrame(t, alice).(*protocol.Ack); !ok {
		t.Errorf("Expected the sender to get an Ack")
	}

	msg, ok := nextFrame(t, bob).(*protocol.Message)
	if !ok {
		t.Fatalf("Expected bob to receive the message")
	}
	if msg.FromDid != "did:key:z6MkAlice" || msg.Payload != "hello" {
		t.Errorf("Unexpected message %+v", msg)
	}
	if a.dataPlane.Stats().OfflineQueueSize != 0 {
		t.Errorf("A delivered message must not be queued")
	}
}

func TestOfflineMessageIsDeliveredOnce(t *testing.T) {
	a, b := linkedPair(t)

	alice := connectClient(t, a, "did:key:z6MkAlice")
	if err := alice.WriteJSON(&protocol.ClientMessage{Type: protocol.ClientSend, ToDid: "did:key:z6MkCarol", Payload: "later"}); err != nil {
		t.Fatalf("Could not send: %v", err)
	}
	nextFrame(t, alice)

	if n := a.dataPlane.OfflineCount("did:key:z6MkCarol"); n != 1 {
		t.Fatalf("Expected one queued message on a, got %d", n)
	}
	if n := b.dataPlane.OfflineCount("did:key:z6MkCarol"); n != 0 {
		t.Fatalf("Expected no copy on b, got %d", n)
	}

	carol := connectClient(t, a, "did:key:z6MkCarol")
	for i, expected := range []int{1, 0} {
		if err := carol.WriteJSON(&protocol.ClientMessage{Type: protocol.ClientFetchOffline}); err != nil {
			t.Fatalf("Could not fetch: %v", err)
		}
		offline, ok := nextFrame(t, carol).(*protocol.OfflineMessages)
		if !ok || len(offline.Messages) != expected {
			t.Fatalf("Fetch %d: expected %d messages, got %+v", i, expected, offline)
		}
	}
	if queue := b.dataPlane.DrainOffline("did:key:z6MkCarol"); len(queue) != 0 {
		t.Errorf("Expected nothing left on b, got %d", len(queue))
	}
}

func TestPresenceIsPurgedWhenClientLeaves(t *testing.T) {
	a, b := linkedPair(t)

	bob := connectClient(t, b, "did:key:z6MkBob")
	waitFor(t, "bob's presence on a", func() bool {
		return a.federation.IsOnlineAnywhere("did:key:z6MkBob")
	})

	bob.Close()
	waitFor(t, "bob's departure on a", func() bool {
		return !a.federation.IsOnlineAnywhere("did:key:z6MkBob")
	})
}
