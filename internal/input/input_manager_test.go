/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/handler"
	"github.com/InfamousVague/umbra/internal/service"
	"github.com/InfamousVague/umbra/internal/view"
	"github.com/gorilla/websocket"
)

const (
	alice = "did:key:z6MkAlice"
	bob   = "did:key:z6MkBob"
)

type MockLogger struct{}

func (m *MockLogger) Logf(format string, v ...any) {
	fmt.Printf(format+"\n", v...)
}

func TestPauseMiddlewareOn(t *testing.T) {
	i := NewInputManager()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Called despite being paused!")
	})

	toTest := i.PauseMiddleware(nextHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	i.SetPause(true)

	toTest.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}

func TestPauseMiddlewareOff(t *testing.T) {
	i := NewInputManager()

	var x int = 10
	y := &x

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*y = 4
	})

	toTest := i.PauseMiddleware(nextHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	toTest.ServeHTTP(rr, req)

	if rr.Code == http.StatusServiceUnavailable {
		t.Errorf("Got 503, expected 200")
	}

	switch x {
	case 10:
		t.Errorf("Pause middleware was executed despite not being paused")
	case 4:
		// Ok
	default:
		t.Errorf("This case should not even be possible")
	}
}

//============================================================================//
//  Relay server                                                              //
//============================================================================//

type testRelay struct {
	server    *httptest.Server
	dataPlane *data.DataPlaneManager
}

func newTestRelay(t *testing.T, withDiscovery bool) *testRelay {
	t.Helper()

	info, err := node.NewRelayInfo("relay-test", "", "eu", "Turin", 9443)
	if err != nil {
		t.Fatalf("Could not build relay info: %v", err)
	}
	renderer, err := view.NewDefaultPageRenderer()
	if err != nil {
		t.Fatalf("Could not build the renderer: %v", err)
	}

	dp := data.NewDataPlaneManager(node.SystemClock{})
	dp.SetLogger(&MockLogger{})

	i := NewInputManager()
	i.SetLogger(&MockLogger{})
	i.SetDataPlane(dp)
	i.SetDescription(handler.DescribeRelay(info, node.Standalone))
	i.SetRenderer(renderer)

	if withDiscovery {
		clock := node.SystemClock{}
		storage, err := data.OpenRelayStorage(data.DriverPureSQLite, filepath.Join(t.TempDir(), "relay.db"), clock.NowMillis())
		if err != nil {
			t.Fatalf("Could not open relay storage: %v", err)
		}
		t.Cleanup(func() { storage.Close() })
		i.SetDiscoveryService(service.NewDiscoveryService(service.NewRuntimeContext(storage, clock), "test-salt"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(i.Router(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testRelay{srv, dp}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Could not dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, msg *protocol.ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Could not send %s: %v", msg.Type, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
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

func expectError(t *testing.T, conn *websocket.Conn, contains string) {
	t.Helper()

	msg, ok := readFrame(t, conn).(*protocol.Error)
	if !ok {
		t.Fatalf("Expected an error frame")
	}
	if !strings.Contains(msg.Message, contains) {
		t.Errorf("Expected error containing %q, got %q", contains, msg.Message)
	}
}

func register(t *testing.T, conn *websocket.Conn, did string) {
	t.Helper()

	sendFrame(t, conn, &protocol.ClientMessage{Type: protocol.ClientRegister, Did: did})
	registered, ok := readFrame(t, conn).(*protocol.Registered)
	if !ok || registered.Did != did {
		t.Fatalf("Expected Registered{%s}", did)
	}
}

func TestSessionMustRegisterFirst(t *testing.T) {
	relay := newTestRelay(t, false)
	conn := relay.dial(t)

	sendFrame(t, conn, &protocol.ClientMessage{Type: protocol.ClientPing})
	expectError(t, conn, "Must register before sending other messages")

	sendFrame(t, conn, &protocol.ClientMessage{Type: protocol.ClientRegister, Did: "alice"})
	expectError(t, conn, "Invalid DID format")

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`))
	expectError(t, conn, "Invalid message format")

	register(t, conn, alice)
	if !relay.dataPlane.IsOnline(alice) {
		t.Errorf("%s should be online after registering", alice)
	}

	sendFrame(t, conn, &protocol.ClientMessage{Type: protocol.ClientPing})
	if _, ok := readFrame(t, conn).(*protocol.Pong); !ok {
		t.Errorf("Expected a Pong")
	}
}

func TestSessionDeliversAndAcks(t *testing.T) {
	relay := newTestRelay(t, false)
	a := relay.dial(t)
	b := relay.dial(t)
	register(t, a, alice)
	register(t, b, bob)

	sendFrame(t, a, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "hello"})

	delivered, ok := readFrame(t, b).(*protocol.Message)
	if !ok {
		t.Fatalf("Expected a Message on the recipient")
	}
	if delivered.FromDid != alice || delivered.Payload != "hello" {
		t.Errorf("Unexpected delivery: %+v", delivered)
	}

	ack, ok := readFrame(t, a).(*protocol.Ack)
	if !ok || !strings.HasPrefix(ack.Id, "msg_"+bob+"_") {
		t.Errorf("Expected an Ack for the send")
	}
}

func TestSessionCloseUnregisters(t *testing.T) {
	relay := newTestRelay(t, false)
	conn := relay.dial(t)
	register(t, conn, alice)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for relay.dataPlane.IsOnline(alice) {
		if time.Now().After(deadline) {
			t.Fatalf("%s still online after closing the session", alice)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOfflineQueueSurvivesReconnect(t *testing.T) {
	relay := newTestRelay(t, false)
	a := relay.dial(t)
	register(t, a, alice)

	sendFrame(t, a, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "later"})
	readFrame(t, a) // ack

	b := relay.dial(t)
	register(t, b, bob)
	sendFrame(t, b, &protocol.ClientMessage{Type: protocol.ClientFetchOffline})

	queued, ok := readFrame(t, b).(*protocol.OfflineMessages)
	if !ok {
		t.Fatalf("Expected OfflineMessages")
	}
	if len(queued.Messages) != 1 || queued.Messages[0].Payload != "later" || queued.Messages[0].FromDid != alice {
		t.Errorf("Unexpected offline queue: %+v", queued.Messages)
	}
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()

	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if into != nil {
		if err := json.NewDecoder(res.Body).Decode(into); err != nil {
			t.Fatalf("Could not decode the body of %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func postJSON(t *testing.T, url string, body any, into any) int {
	t.Helper()

	payload, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	if into != nil {
		if err := json.NewDecoder(res.Body).Decode(into); err != nil {
			t.Fatalf("Could not decode the body of %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func TestInfoRoutes(t *testing.T) {
	relay := newTestRelay(t, false)
	conn := relay.dial(t)
	register(t, conn, alice)

	var health map[string]any
	if code := getJSON(t, relay.server.URL+"/health", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("Unexpected health answer: %d %v", code, health)
	}

	var info handler.RelayDescription
	getJSON(t, relay.server.URL+"/info", &info)
	if info.RelayId != "relay-test" || info.Region != "eu" || info.Mode != node.Standalone {
		t.Errorf("Unexpected info: %+v", info)
	}
	if info.URL != "ws://localhost:9443/ws" {
		t.Errorf("Expected the default public URL, got %s", info.URL)
	}

	var stats data.RelayStats
	getJSON(t, relay.server.URL+"/stats", &stats)
	if stats.OnlineClients != 1 || stats.MeshOnline != 1 || stats.FederationEnabled {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	var peers []any
	getJSON(t, relay.server.URL+"/peers", &peers)
	if len(peers) != 0 {
		t.Errorf("A standalone relay has no peers, got %v", peers)
	}
}

func TestStatusPage(t *testing.T) {
	relay := newTestRelay(t, false)

	res, err := http.Get(relay.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", res.StatusCode, body)
	}
	if !strings.Contains(string(body), "relay-test") || !strings.Contains(string(body), "No peer relay connected") {
		t.Errorf("Status page is missing the relay details")
	}
}

func TestPreflightIsAnswered(t *testing.T) {
	relay := newTestRelay(t, true)

	req, _ := http.NewRequest(http.MethodOptions, relay.server.URL+"/discovery/lookup", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", res.StatusCode)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header")
	}
}

func TestFederationEndpointWithoutPeers(t *testing.T) {
	relay := newTestRelay(t, false)

	res, err := http.Get(relay.server.URL + "/federation")
	if err != nil {
		t.Fatalf("GET /federation: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on a standalone relay, got %d", res.StatusCode)
	}
}

func TestDiscoveryRoutes(t *testing.T) {
	relay := newTestRelay(t, true)
	base := relay.server.URL + "/discovery"

	var account map[string]any
	code := postJSON(t, base+"/link", map[string]string{
		"did": alice, "platform": "github", "platform_id": "1001", "platform_username": "alice-gh",
	}, &account)
	if code != http.StatusOK {
		t.Fatalf("Link answered %d", code)
	}

	lookup := map[string]any{"lookups": []map[string]string{{"platform": "github", "id": "1001"}}}
	var found struct {
		Results []service.LookupResult `json:"results"`
	}
	postJSON(t, base+"/lookup", lookup, &found)
	if len(found.Results) != 1 || found.Results[0].Did != nil {
		t.Errorf("A user that did not opt in must not be matched: %+v", found.Results)
	}

	req, _ := http.NewRequest(http.MethodPut, base+"/settings", strings.NewReader(`{"did":"`+alice+`","discoverable":true}`))
	res, err := http.DefaultClient.Do(req)
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("Settings failed: %v", err)
	}
	res.Body.Close()

	postJSON(t, base+"/lookup", lookup, &found)
	if len(found.Results) != 1 || found.Results[0].Did == nil || *found.Results[0].Did != alice {
		t.Errorf("Expected %s to be found, got %+v", alice, found.Results)
	}

	var status service.DiscoveryStatus
	getJSON(t, base+"/status/"+alice, &status)
	if !status.Discoverable || len(status.Accounts) != 1 {
		t.Errorf("Unexpected status: %+v", status)
	}

	if code := postJSON(t, base+"/lookup", map[string]any{"bogus": true}, nil); code != http.StatusBadRequest {
		t.Errorf("Unknown fields must be rejected, got %d", code)
	}
}

func TestUsernameRoutes(t *testing.T) {
	relay := newTestRelay(t, true)
	base := relay.server.URL + "/discovery/username"

	var first, second map[string]string
	postJSON(t, base+"/register", map[string]string{"did": alice, "name": "Matt"}, &first)
	postJSON(t, base+"/register", map[string]string{"did": bob, "name": "Matt"}, &second)
	if first["username"] != "Matt#00001" || second["username"] != "Matt#00002" {
		t.Errorf("Unexpected tags: %v %v", first, second)
	}

	var looked map[string]string
	if code := getJSON(t, base+"/lookup?username=Matt%2300002", &looked); code != http.StatusOK || looked["did"] != bob {
		t.Errorf("Lookup failed: %d %v", code, looked)
	}

	var mine map[string]string
	getJSON(t, base+"/"+alice, &mine)
	if mine["username"] != "Matt#00001" {
		t.Errorf("Unexpected username of %s: %v", alice, mine)
	}

	var search struct {
		Results []map[string]string `json:"results"`
	}
	getJSON(t, base+"/search?name=mat", &search)
	if len(search.Results) != 2 {
		t.Errorf("Expected two matches, got %v", search.Results)
	}

	postJSON(t, base+"/release", map[string]string{"did": alice}, nil)
	if code := getJSON(t, base+"/"+alice, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 after release, got %d", code)
	}

	if code := postJSON(t, base+"/register", map[string]string{"did": alice, "name": "no spaces"}, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid name, got %d", code)
	}
}

func TestOAuthProfileFlow(t *testing.T) {
	relay := newTestRelay(t, true)
	base := relay.server.URL + "/discovery"

	var state service.OAuthState
	if code := postJSON(t, base+"/oauth/state", map[string]any{"platform": "discord", "profile_import": true}, &state); code != http.StatusOK {
		t.Fatalf("Could not create a state: %d", code)
	}

	callback := map[string]any{"state": state.Nonce, "profile": map[string]string{"name": "Alice"}}
	if code := postJSON(t, base+"/oauth/callback", callback, nil); code != http.StatusOK {
		t.Fatalf("Callback answered %d", code)
	}
	if code := postJSON(t, base+"/oauth/callback", callback, nil); code != http.StatusNotFound {
		t.Errorf("A state must be consumed once, got %d", code)
	}

	var profile map[string]string
	if code := getJSON(t, base+"/profile/"+state.Nonce, &profile); code != http.StatusOK || profile["name"] != "Alice" {
		t.Errorf("Unexpected profile: %d %v", code, profile)
	}
	if code := getJSON(t, base+"/profile/"+state.Nonce, nil); code != http.StatusNotFound {
		t.Errorf("A profile result is taken once, got %d", code)
	}
}
