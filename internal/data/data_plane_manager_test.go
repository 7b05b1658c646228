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
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mutex  sync.Mutex
	frames [][]byte
}

func (r *recordingSender) Send(frame []byte) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.frames = append(r.frames, frame)
	return true
}

func (r *recordingSender) messages(t *testing.T) []protocol.ServerMessage {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]protocol.ServerMessage, 0, len(r.frames))
	for _, frame := range r.frames {
		msg, err := protocol.DecodeServerMessage(frame)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (r *recordingSender) reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.frames = nil
}

type fakeForwarder struct {
	mutex     sync.Mutex
	hosts     map[string]bool
	sent      []*protocol.PeerMessage
	broadcast []*protocol.PeerMessage
	peers     int
}

func newFakeForwarder(peers int) *fakeForwarder {
	return &fakeForwarder{hosts: make(map[string]bool), peers: peers}
}

func (f *fakeForwarder) record(list *[]*protocol.PeerMessage, msg *protocol.PeerMessage) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	*list = append(*list, msg)
}

func (f *fakeForwarder) forward(toDid string, msg *protocol.PeerMessage) bool {
	if !f.hosts[toDid] {
		return false
	}
	f.record(&f.sent, msg)
	return true
}

func (f *fakeForwarder) ForwardSignal(fromDid, toDid, payload string) bool {
	return f.forward(toDid, protocol.NewForwardSignal(fromDid, toDid, payload))
}
func (f *fakeForwarder) ForwardMessage(fromDid, toDid, payload string, ts int64) bool {
	return f.forward(toDid, protocol.NewForwardMessage(fromDid, toDid, payload, ts))
}
func (f *fakeForwarder) ForwardSessionJoin(creatorDid, sessionId, joinerDid, answer string) bool {
	return f.forward(creatorDid, protocol.NewForwardSessionJoin(creatorDid, sessionId, joinerDid, answer))
}
func (f *fakeForwarder) SendToPeer(peer node.RelayId, msg *protocol.PeerMessage) bool {
	f.record(&f.sent, msg)
	return true
}
func (f *fakeForwarder) ReplicateSession(id, creator, offer string, createdAt int64) {
	f.record(&f.broadcast, protocol.NewSessionSync(id, creator, offer, createdAt))
}
func (f *fakeForwarder) BroadcastPresenceOnline(did string) {
	f.record(&f.broadcast, protocol.NewPresenceOnline("local", did))
}
func (f *fakeForwarder) BroadcastPresenceOffline(did string) {
	f.record(&f.broadcast, protocol.NewPresenceOffline("local", did))
}
func (f *fakeForwarder) BroadcastInvite(invite protocol.PublishedInvite) {
	f.record(&f.broadcast, protocol.NewInviteSync(invite))
}
func (f *fakeForwarder) BroadcastInviteRevoke(code string) {
	f.record(&f.broadcast, protocol.NewInviteRevoke(code))
}
func (f *fakeForwarder) AskInvite(code, requesterDid string) {
	f.record(&f.broadcast, protocol.NewForwardResolveInvite(code, requesterDid, "local"))
}
func (f *fakeForwarder) RemoteOnlineCount() int { return len(f.hosts) }
func (f *fakeForwarder) PeerCount() int         { return f.peers }
func (f *fakeForwarder) NextInbound(ctx context.Context) (node.RelayId, *protocol.PeerMessage, bool) {
	<-ctx.Done()
	return "", nil, false
}

func (f *fakeForwarder) broadcastTypes() []protocol.PeerMessageType {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	types := make([]protocol.PeerMessageType, 0, len(f.broadcast))
	for _, msg := range f.broadcast {
		types = append(types, msg.Type)
	}
	return types
}

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestPlane(t *testing.T) (*DataPlaneManager, *node.FakeClock) {
	t.Helper()
	clock := node.NewFakeClock(start)
	return NewDataPlaneManager(clock), clock
}

const (
	alice = "did:key:zAlice"
	bob   = "did:key:zBob"
	carol = "did:key:zCarol"
)

func TestValidateDid(t *testing.T) {
	assert.NoError(t, ValidateDid(alice))
	assert.EqualError(t, ValidateDid("alice"), "Invalid DID format")
	assert.Error(t, ValidateDid(""))
}

func TestSendDeliversLocallyAndAcks(t *testing.T) {
	plane, clock := newTestPlane(t)
	a, b := &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "cipher"})

	delivered := b.messages(t)
	require.Len(t, delivered, 1)
	assert.Equal(t, &protocol.Message{Type: protocol.ServerMessageDelivery, FromDid: alice, Payload: "cipher", Timestamp: clock.NowMillis()}, delivered[0])

	acks := a.messages(t)
	require.Len(t, acks, 1)
	assert.Equal(t, fmt.Sprintf("msg_%s_%d", bob, clock.NowMillis()), acks[0].(*protocol.Ack).Id)
}

func TestSendToOfflineRecipientQueuesOnce(t *testing.T) {
	plane, _ := newTestPlane(t)
	a := &recordingSender{}
	plane.Register(alice, a)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "one"})
	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "two"})
	assert.Equal(t, 2, plane.OfflineCount(bob))

	b := &recordingSender{}
	plane.Register(bob, b)
	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientFetchOffline})
	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientFetchOffline})

	replies := b.messages(t)
	require.Len(t, replies, 2)
	first := replies[0].(*protocol.OfflineMessages)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "one", first.Messages[0].Payload)
	assert.Equal(t, "two", first.Messages[1].Payload)
	assert.NotEqual(t, first.Messages[0].Id, first.Messages[1].Id)

	second := replies[1].(*protocol.OfflineMessages)
	assert.Empty(t, second.Messages)
}

func TestOfflineQueueDropsOldest(t *testing.T) {
	plane, _ := newTestPlane(t)
	for i := 0; i < MaxOfflinePerDid+5; i++ {
		plane.QueueOffline(bob, alice, fmt.Sprintf("m%d", i), int64(i))
	}

	queue := plane.DrainOffline(bob)
	require.Len(t, queue, MaxOfflinePerDid)
	assert.Equal(t, "m5", queue[0].Payload)
}

func TestSignalToOfflineRecipientIsQueuedAndAcked(t *testing.T) {
	plane, _ := newTestPlane(t)
	a := &recordingSender{}
	plane.Register(alice, a)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSignal, ToDid: bob, Payload: "sdp"})

	acks := a.messages(t)
	require.Len(t, acks, 1)
	assert.Equal(t, "signal_queued_"+bob, acks[0].(*protocol.Ack).Id)
	assert.Equal(t, 1, plane.OfflineCount(bob))
}

func TestRemoteRecipientIsForwarded(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(1)
	forwarder.hosts[bob] = true
	plane.SetForwarder(forwarder)

	a := &recordingSender{}
	plane.Register(alice, a)
	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "x"})

	require.Len(t, forwarder.sent, 1)
	assert.Equal(t, protocol.PeerForwardMessage, forwarder.sent[0].Type)
	assert.Zero(t, plane.OfflineCount(bob))
}

func TestUnreachableRecipientIsQueuedOnlyLocally(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(2)
	plane.SetForwarder(forwarder)

	plane.Register(alice, &recordingSender{})
	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSend, ToDid: bob, Payload: "x"})
	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientSignal, ToDid: bob, Payload: "sdp"})

	assert.Equal(t, 2, plane.OfflineCount(bob))
	assert.NotContains(t, forwarder.broadcastTypes(), protocol.PeerForwardOffline)
	assert.Empty(t, forwarder.sent)
}

func TestForwardOfflineIsQueuedNotDelivered(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(1)
	plane.SetForwarder(forwarder)

	b := &recordingSender{}
	plane.Register(bob, b)
	plane.HandlePeerMessage("peer", protocol.NewForwardOffline(bob, alice, "sdp", 42))

	assert.Empty(t, b.messages(t))
	assert.NotContains(t, forwarder.broadcastTypes(), protocol.PeerForwardOffline)

	queue := plane.DrainOffline(bob)
	require.Len(t, queue, 1)
	assert.Equal(t, "sdp", queue[0].Payload)
	assert.Equal(t, alice, queue[0].FromDid)
	assert.Equal(t, int64(42), queue[0].Timestamp)
}

func TestUnregisterIgnoresStaleSession(t *testing.T) {
	plane, _ := newTestPlane(t)
	old, fresh := &recordingSender{}, &recordingSender{}

	plane.Register(alice, old)
	plane.Register(alice, fresh)

	assert.False(t, plane.Unregister(alice, old))
	assert.True(t, plane.IsOnline(alice))

	assert.True(t, plane.Unregister(alice, fresh))
	assert.False(t, plane.IsOnline(alice))
}

func TestSessionIsConsumedOnce(t *testing.T) {
	plane, _ := newTestPlane(t)
	a, b, c := &recordingSender{}, &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)
	plane.Register(carol, c)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientCreateSession, OfferPayload: "offer"})
	created := a.messages(t)
	require.Len(t, created, 1)
	sessionId := created[0].(*protocol.SessionCreated).SessionId
	a.reset()

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientJoinSession, SessionId: sessionId, AnswerPayload: "answer"})

	offer := b.messages(t)
	require.Len(t, offer, 1)
	assert.Equal(t, &protocol.SessionOffer{Type: protocol.ServerSessionOffer, SessionId: sessionId, FromDid: alice, OfferPayload: "offer"}, offer[0])

	joined := a.messages(t)
	require.Len(t, joined, 1)
	assert.Equal(t, &protocol.SessionJoined{Type: protocol.ServerSessionJoined, SessionId: sessionId, FromDid: bob, AnswerPayload: "answer"}, joined[0])

	plane.HandleClientMessage(carol, &protocol.ClientMessage{Type: protocol.ClientJoinSession, SessionId: sessionId, AnswerPayload: "late"})
	failed := c.messages(t)
	require.Len(t, failed, 1)
	assert.Equal(t, fmt.Sprintf("Session '%s' not found or expired", sessionId), failed[0].(*protocol.Error).Message)
}

func TestSessionExpires(t *testing.T) {
	plane, clock := newTestPlane(t)
	session := plane.CreateSession(alice, "offer")

	clock.Advance(SessionTTL + time.Second)
	_, ok := plane.TakeSession(session.Id)
	assert.False(t, ok)
}

func TestCallRoomJoinNotifiesEachPriorParticipantOnce(t *testing.T) {
	plane, _ := newTestPlane(t)
	a, b, c := &recordingSender{}, &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)
	plane.Register(carol, c)

	room := plane.CreateCallRoom("group", alice)

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientJoinCallRoom, RoomId: room.RoomId})
	plane.HandleClientMessage(carol, &protocol.ClientMessage{Type: protocol.ClientJoinCallRoom, RoomId: room.RoomId})
	plane.HandleClientMessage(carol, &protocol.ClientMessage{Type: protocol.ClientJoinCallRoom, RoomId: room.RoomId})

	toAlice := a.messages(t)
	require.Len(t, toAlice, 2)
	assert.Equal(t, bob, toAlice[0].(*protocol.CallParticipant).Did)
	assert.Equal(t, carol, toAlice[1].(*protocol.CallParticipant).Did)

	toBob := b.messages(t)
	require.Len(t, toBob, 3)
	assert.Equal(t, "call_room_joined_"+room.RoomId, toBob[0].(*protocol.Ack).Id)
	assert.Equal(t, alice, toBob[1].(*protocol.CallParticipant).Did)
	assert.Equal(t, carol, toBob[2].(*protocol.CallParticipant).Did)

	toCarol := c.messages(t)
	require.Len(t, toCarol, 6)
	for i := 0; i < 6; i += 3 {
		assert.Equal(t, "call_room_joined_"+room.RoomId, toCarol[i].(*protocol.Ack).Id)
		assert.Equal(t, protocol.ServerCallParticipantJoined, toCarol[i+1].(*protocol.CallParticipant).Type)
		assert.Equal(t, alice, toCarol[i+1].(*protocol.CallParticipant).Did)
		assert.Equal(t, bob, toCarol[i+2].(*protocol.CallParticipant).Did)
	}

	current, ok := plane.GetCallRoom(room.RoomId)
	require.True(t, ok)
	assert.Equal(t, []string{alice, bob, carol}, current.Participants)
}

func TestCallRoomFullOrMissing(t *testing.T) {
	plane, _ := newTestPlane(t)
	b := &recordingSender{}
	plane.Register(bob, b)

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientJoinCallRoom, RoomId: "nope"})
	replies := b.messages(t)
	require.Len(t, replies, 1)
	assert.Equal(t, "Call room 'nope' not found or full", replies[0].(*protocol.Error).Message)

	room := plane.CreateCallRoom("g", alice)
	for i := 1; i < MaxCallRoomParticipant; i++ {
		_, _, ok := plane.JoinCallRoom(room.RoomId, fmt.Sprintf("did:key:z%d", i))
		require.True(t, ok)
	}
	_, _, ok := plane.JoinCallRoom(room.RoomId, bob)
	assert.False(t, ok)
}

func TestLeavingLastParticipantDeletesRoom(t *testing.T) {
	plane, _ := newTestPlane(t)
	a := &recordingSender{}
	plane.Register(alice, a)

	room := plane.CreateCallRoom("g", alice)
	_, _, _ = plane.JoinCallRoom(room.RoomId, bob)

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientLeaveCallRoom, RoomId: room.RoomId})
	left := a.messages(t)
	require.Len(t, left, 1)
	assert.Equal(t, &protocol.CallParticipant{Type: protocol.ServerCallParticipantLeft, RoomId: room.RoomId, Did: bob}, left[0])

	plane.LeaveCallRoom(room.RoomId, alice)
	_, ok := plane.GetCallRoom(room.RoomId)
	assert.False(t, ok)
}

func TestCallSignalRequiresMembership(t *testing.T) {
	plane, _ := newTestPlane(t)
	a, b := &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)
	room := plane.CreateCallRoom("g", alice)

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientCallSignal, RoomId: room.RoomId, ToDid: alice, Payload: "ice"})
	assert.Equal(t, "You are not in this call room", b.messages(t)[0].(*protocol.Error).Message)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientCallSignal, RoomId: room.RoomId, ToDid: bob, Payload: "ice"})
	assert.Equal(t, fmt.Sprintf("Target '%s' is not in this call room", bob), a.messages(t)[0].(*protocol.Error).Message)

	b.reset()
	_, _, _ = plane.JoinCallRoom(room.RoomId, bob)
	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientCallSignal, RoomId: room.RoomId, ToDid: bob, Payload: "ice"})
	assert.Equal(t, &protocol.CallSignalForward{Type: protocol.ServerCallSignalForward, RoomId: room.RoomId, FromDid: alice, Payload: "ice"}, b.messages(t)[0])
}

func TestDisconnectLeavesRooms(t *testing.T) {
	plane, _ := newTestPlane(t)
	a, b := &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)
	room := plane.CreateCallRoom("g", alice)
	_, _, _ = plane.JoinCallRoom(room.RoomId, bob)

	plane.Disconnect(bob, b)

	assert.False(t, plane.IsOnline(bob))
	left := a.messages(t)
	require.Len(t, left, 1)
	assert.Equal(t, protocol.ServerCallParticipantLeft, left[0].ServerType())
}

func TestInviteLifecycle(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(0)
	plane.SetForwarder(forwarder)
	a, b := &recordingSender{}, &recordingSender{}
	plane.Register(alice, a)
	plane.Register(bob, b)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{
		Type:   protocol.ClientPublishInvite,
		Invite: &protocol.PublishedInvite{Code: "AbCd1234", CommunityId: "c1", CommunityName: "Umbra"},
	})
	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientResolveInvite, Code: "abcd1234"})

	resolved := b.messages(t)
	require.Len(t, resolved, 1)
	invite := resolved[0].(*protocol.InviteResolved)
	assert.Equal(t, "c1", invite.CommunityId)
	assert.Equal(t, alice, invite.PublisherDid)

	// only the publisher may revoke
	b.reset()
	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientRevokeInvite, Code: "AbCd1234"})
	assert.Equal(t, protocol.ServerInviteNotFound, b.messages(t)[0].ServerType())

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientRevokeInvite, Code: "AbCd1234"})
	b.reset()
	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientResolveInvite, Code: "AbCd1234"})
	assert.Equal(t, &protocol.InviteNotFound{Type: protocol.ServerInviteNotFound, Code: "AbCd1234"}, b.messages(t)[0])

	assert.Contains(t, forwarder.broadcastTypes(), protocol.PeerInviteSync)
	assert.Contains(t, forwarder.broadcastTypes(), protocol.PeerInviteRevoke)
}

func TestResolveInviteAsksPeersOnMiss(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(1)
	plane.SetForwarder(forwarder)
	b := &recordingSender{}
	plane.Register(bob, b)

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientResolveInvite, Code: "remote"})
	assert.Empty(t, b.messages(t))
	assert.Contains(t, forwarder.broadcastTypes(), protocol.PeerForwardResolveInvite)

	answer := protocol.NewInviteSync(protocol.PublishedInvite{Code: "remote", CommunityId: "c9"})
	answer.RequesterDid = bob
	plane.HandlePeerMessage("peer", answer)

	replies := b.messages(t)
	require.Len(t, replies, 1)
	assert.Equal(t, "c9", replies[0].(*protocol.InviteResolved).CommunityId)
}

func TestForwardResolveInviteAnswersOrigin(t *testing.T) {
	plane, _ := newTestPlane(t)
	forwarder := newFakeForwarder(1)
	plane.SetForwarder(forwarder)
	plane.StoreInvite(protocol.PublishedInvite{Code: "held", CommunityId: "c2"})

	plane.HandlePeerMessage("peer", protocol.NewForwardResolveInvite("held", bob, "origin"))

	require.Len(t, forwarder.sent, 1)
	assert.Equal(t, protocol.PeerInviteSync, forwarder.sent[0].Type)
	assert.Equal(t, bob, forwarder.sent[0].RequesterDid)
}

func TestForwardedSessionJoinReachesCreator(t *testing.T) {
	plane, _ := newTestPlane(t)
	a := &recordingSender{}
	plane.Register(alice, a)
	session := plane.CreateSession(alice, "offer")

	plane.HandlePeerMessage("peer", protocol.NewForwardSessionJoin(alice, session.Id, bob, "answer"))

	replies := a.messages(t)
	require.Len(t, replies, 1)
	assert.Equal(t, &protocol.SessionJoined{Type: protocol.ServerSessionJoined, SessionId: session.Id, FromDid: bob, AnswerPayload: "answer"}, replies[0])
	assert.Zero(t, plane.SessionCount())
}

func TestAnswerForOfflineCreatorIsQueued(t *testing.T) {
	plane, _ := newTestPlane(t)
	session := plane.CreateSession(alice, "offer")
	plane.Register(bob, &recordingSender{})

	plane.HandleClientMessage(bob, &protocol.ClientMessage{Type: protocol.ClientJoinSession, SessionId: session.Id, AnswerPayload: "answer"})

	queue := plane.DrainOffline(alice)
	require.Len(t, queue, 1)
	var joined protocol.SessionJoined
	require.NoError(t, json.Unmarshal([]byte(queue[0].Payload), &joined))
	assert.Equal(t, "answer", joined.AnswerPayload)
}

func TestCleanupExpired(t *testing.T) {
	plane, clock := newTestPlane(t)
	plane.QueueOffline(bob, alice, "x", 1)
	plane.CreateSession(alice, "offer")
	plane.CreateCallRoom("g", alice)
	plane.StoreInvite(protocol.PublishedInvite{Code: "old"})

	assert.Equal(t, CleanupReport{}, plane.CleanupExpired())

	clock.Advance(8 * 24 * time.Hour)
	report := plane.CleanupExpired()
	assert.Equal(t, CleanupReport{OfflineMessages: 1, Sessions: 1, CallRooms: 1, Invites: 1}, report)
}

func TestStats(t *testing.T) {
	plane, clock := newTestPlane(t)
	plane.Register(alice, &recordingSender{})
	plane.QueueOffline(bob, alice, "x", 1)
	plane.QueueOffline(bob, alice, "y", 2)
	plane.CreateCallRoom("g", alice)
	clock.Advance(90 * time.Second)

	stats := plane.Stats()
	assert.Equal(t, 1, stats.OnlineClients)
	assert.Equal(t, 2, stats.OfflineQueueSize)
	assert.Equal(t, 1, stats.OfflineRecipients)
	assert.Equal(t, 1, stats.ActiveCallRooms)
	assert.Equal(t, 1, stats.CallParticipants)
	assert.False(t, stats.FederationEnabled)
	assert.Equal(t, int64(90), stats.UptimeSeconds)
}

func TestRegisterTwiceIsRejected(t *testing.T) {
	plane, _ := newTestPlane(t)
	a := &recordingSender{}
	plane.Register(alice, a)

	plane.HandleClientMessage(alice, &protocol.ClientMessage{Type: protocol.ClientRegister, Did: alice})
	assert.Equal(t, "Already registered", a.messages(t)[0].(*protocol.Error).Message)
}
