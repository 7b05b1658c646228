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
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/google/uuid"
)

type ClientHandler func(fromDid string, msg *protocol.ClientMessage)
type PeerHandler func(from node.RelayId, msg *protocol.PeerMessage)

type DataPlaneManager struct {
	clients      map[string]*clientEntry
	clientsMutex sync.RWMutex

	offline      map[string][]protocol.OfflineMessage
	offlineMutex sync.Mutex

	sessions      map[string]*SignalingSession
	sessionsMutex sync.Mutex

	rooms      map[string]*CallRoom
	roomsMutex sync.Mutex

	invites      map[string]*publishedEntry
	invitesMutex sync.RWMutex

	forwarder Forwarder
	clock     node.Clock
	logger    nlog.Logger
	startedAt time.Time

	running atomic.Bool

	clientHandlers map[protocol.ClientMessageType]ClientHandler
	peerHandlers   map[protocol.PeerMessageType]PeerHandler
}

func NewDataPlaneManager(clock node.Clock) *DataPlaneManager {
	d := &DataPlaneManager{
		clients:   make(map[string]*clientEntry),
		offline:   make(map[string][]protocol.OfflineMessage),
		sessions:  make(map[string]*SignalingSession),
		rooms:     make(map[string]*CallRoom),
		invites:   make(map[string]*publishedEntry),
		clock:     clock,
		startedAt: clock.Now(),
	}

	d.clientHandlers = map[protocol.ClientMessageType]ClientHandler{
		protocol.ClientSignal:         d.handleSignal,
		protocol.ClientSend:           d.handleSend,
		protocol.ClientCreateSession:  d.handleCreateSession,
		protocol.ClientJoinSession:    d.handleJoinSession,
		protocol.ClientFetchOffline:   d.handleFetchOffline,
		protocol.ClientPing:           d.handlePing,
		protocol.ClientCreateCallRoom: d.handleCreateCallRoom,
		protocol.ClientJoinCallRoom:   d.handleJoinCallRoom,
		protocol.ClientLeaveCallRoom:  d.handleLeaveCallRoom,
		protocol.ClientCallSignal:     d.handleCallSignal,
		protocol.ClientPublishInvite:  d.handlePublishInvite,
		protocol.ClientRevokeInvite:   d.handleRevokeInvite,
		protocol.ClientResolveInvite:  d.handleResolveInvite,
		protocol.ClientRegister: func(fromDid string, _ *protocol.ClientMessage) {
			d.SendToClient(fromDid, protocol.NewError("Already registered"))
		},
	}

	d.peerHandlers = map[protocol.PeerMessageType]PeerHandler{
		protocol.PeerForwardSignal:        d.handleForwardSignal,
		protocol.PeerForwardMessage:       d.handleForwardMessage,
		protocol.PeerForwardSessionJoin:   d.handleForwardSessionJoin,
		protocol.PeerSessionSync:          d.handleSessionSync,
		protocol.PeerForwardOffline:       d.handleForwardOffline,
		protocol.PeerInviteSync:           d.handleInviteSync,
		protocol.PeerInviteRevoke:         d.handleInviteRevoke,
		protocol.PeerForwardResolveInvite: d.handleForwardResolveInvite,
	}
	return d
}

func (d *DataPlaneManager) IsReady() bool {
	return d.logger != nil && d.clock != nil
}

func (d *DataPlaneManager) Logf(format string, v ...any) {
	if d.logger != nil {
		d.logger.Logf(format, v...)
	}
}

func (d *DataPlaneManager) SetLogger(l nlog.Logger) {
	d.logger = l
}

func (d *DataPlaneManager) SetForwarder(f Forwarder) {
	d.forwarder = f
}

func (d *DataPlaneManager) FederationEnabled() bool {
	return d.forwarder != nil
}

// Run starts the federation processor and the periodic sweep. It returns immediately
func (d *DataPlaneManager) Run(ctx context.Context, sweepEvery time.Duration) {
	d.Logf("Started data plane manager")
	d.running.Store(true)

	if d.forwarder != nil {
		go d.RunFederationProcessor(ctx)
	}
	go d.RunCleanup(ctx, sweepEvery)
}

func (d *DataPlaneManager) RunFederationProcessor(ctx context.Context) {
	d.Logf("Started federation processor")
	for {
		from, msg, ok := d.forwarder.NextInbound(ctx)
		if !ok {
			d.Logf("Federation processor: Stop signal received")
			return
		}
		d.HandlePeerMessage(from, msg)
	}
}

func (d *DataPlaneManager) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Logf("Cleanup: Stop signal received")
			d.running.Store(false)
			return
		case <-ticker.C:
			report := d.CleanupExpired()
			if report != (CleanupReport{}) {
				d.Logf("Cleanup removed %d offline messages, %d sessions, %d rooms, %d invites",
					report.OfflineMessages, report.Sessions, report.CallRooms, report.Invites)
			}
		}
	}
}

//============================================================================//
//  Dispatch                                                                  //
//============================================================================//

func (d *DataPlaneManager) HandleClientMessage(fromDid string, msg *protocol.ClientMessage) {
	handler, ok := d.clientHandlers[msg.Type]
	if !ok {
		d.SendToClient(fromDid, protocol.NewError("Unsupported message type: %s", msg.Type))
		return
	}
	handler(fromDid, msg)
}

func (d *DataPlaneManager) HandlePeerMessage(from node.RelayId, msg *protocol.PeerMessage) {
	handler, ok := d.peerHandlers[msg.Type]
	if !ok {
		d.Logf("No handler for peer message %s from %s", msg.Type, from)
		return
	}
	handler(from, msg)
}

//============================================================================//
//  Clients                                                                   //
//============================================================================//

// ValidateDid checks the only constraint the relay puts on a DID
func ValidateDid(did string) error {
	if did == "" || !strings.HasPrefix(did, "did:") {
		return fmt.Errorf("Invalid DID format")
	}
	return nil
}

// Register installs sender for did. A previous sender for the same DID is dropped
func (d *DataPlaneManager) Register(did string, sender ClientSender) {
	d.clientsMutex.Lock()
	_, replaced := d.clients[did]
	d.clients[did] = &clientEntry{sender, d.clock.NowMillis()}
	d.clientsMutex.Unlock()

	if replaced {
		d.Logf("DID %s registered again, previous session dropped", did)
	} else {
		d.Logf("DID %s registered", did)
	}
	if d.forwarder != nil {
		d.forwarder.BroadcastPresenceOnline(did)
	}
}

// Unregister removes did only if sender is still its current session
func (d *DataPlaneManager) Unregister(did string, sender ClientSender) bool {
	d.clientsMutex.Lock()
	entry, ok := d.clients[did]
	if !ok || entry.sender != sender {
		d.clientsMutex.Unlock()
		return false
	}
	delete(d.clients, did)
	d.clientsMutex.Unlock()

	d.Logf("DID %s unregistered", did)
	if d.forwarder != nil {
		d.forwarder.BroadcastPresenceOffline(did)
	}
	return true
}

// Disconnect runs the cleanup sequence of a closed client session
func (d *DataPlaneManager) Disconnect(did string, sender ClientSender) {
	for roomId, remaining := range d.RemoveFromAllRooms(did) {
		for _, participant := range remaining {
			d.SendToClient(participant, protocol.NewCallParticipantLeft(roomId, did))
		}
	}
	d.Unregister(did, sender)
}

func (d *DataPlaneManager) IsOnline(did string) bool {
	d.clientsMutex.RLock()
	defer d.clientsMutex.RUnlock()

	_, ok := d.clients[did]
	return ok
}

// OnlineDids implements the federation's LocalPresence
func (d *DataPlaneManager) OnlineDids() []string {
	d.clientsMutex.RLock()
	defer d.clientsMutex.RUnlock()

	dids := make([]string, 0, len(d.clients))
	for did := range d.clients {
		dids = append(dids, did)
	}
	sort.Strings(dids)
	return dids
}

func (d *DataPlaneManager) OnlineCount() int {
	d.clientsMutex.RLock()
	defer d.clientsMutex.RUnlock()

	return len(d.clients)
}

func (d *DataPlaneManager) SendToClient(did string, msg protocol.ServerMessage) bool {
	d.clientsMutex.RLock()
	entry, ok := d.clients[did]
	d.clientsMutex.RUnlock()
	if !ok {
		return false
	}

	frame, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		d.Logf("Could not encode %s for %s: %v", msg.ServerType(), did, err)
		return false
	}
	return entry.sender.Send(frame)
}

//============================================================================//
//  Routing                                                                   //
//============================================================================//

// RouteSignal delivers locally, else forwards to the peer hosting toDid. It reports whether the signal left the relay or reached the client
func (d *DataPlaneManager) RouteSignal(fromDid, toDid, payload string) bool {
	if d.SendToClient(toDid, protocol.NewSignal(fromDid, payload)) {
		return true
	}
	return d.forwarder != nil && d.forwarder.ForwardSignal(fromDid, toDid, payload)
}

func (d *DataPlaneManager) RouteMessage(fromDid, toDid, payload string, timestamp int64) bool {
	if d.SendToClient(toDid, protocol.NewMessage(fromDid, payload, timestamp)) {
		return true
	}
	return d.forwarder != nil && d.forwarder.ForwardMessage(fromDid, toDid, payload, timestamp)
}

// QueueOffline appends a message to the queue of toDid, dropping the oldest one past MaxOfflinePerDid
func (d *DataPlaneManager) QueueOffline(toDid, fromDid, payload string, timestamp int64) {
	msg := protocol.OfflineMessage{
		Id:        uuid.NewString(),
		FromDid:   fromDid,
		Payload:   payload,
		Timestamp: timestamp,
		QueuedAt:  d.clock.NowMillis(),
	}

	d.offlineMutex.Lock()
	queue := append(d.offline[toDid], msg)
	if len(queue) > MaxOfflinePerDid {
		queue = queue[len(queue)-MaxOfflinePerDid:]
	}
	d.offline[toDid] = queue
	d.offlineMutex.Unlock()
}

// DrainOffline atomically removes and returns the whole queue of did
func (d *DataPlaneManager) DrainOffline(did string) []protocol.OfflineMessage {
	d.offlineMutex.Lock()
	defer d.offlineMutex.Unlock()

	queue := d.offline[did]
	delete(d.offline, did)
	return queue
}

func (d *DataPlaneManager) OfflineCount(did string) int {
	d.offlineMutex.Lock()
	defer d.offlineMutex.Unlock()

	return len(d.offline[did])
}

//============================================================================//
//  Signaling sessions                                                        //
//============================================================================//

func (d *DataPlaneManager) CreateSession(creatorDid, offer string) *SignalingSession {
	session := &SignalingSession{
		Id:           uuid.NewString(),
		CreatorDid:   creatorDid,
		OfferPayload: offer,
		CreatedAt:    d.clock.NowMillis(),
	}
	d.storeSession(session)

	if d.forwarder != nil {
		d.forwarder.ReplicateSession(session.Id, session.CreatorDid, session.OfferPayload, session.CreatedAt)
	}
	return session
}

func (d *DataPlaneManager) storeSession(session *SignalingSession) {
	d.sessionsMutex.Lock()
	defer d.sessionsMutex.Unlock()

	d.sessions[session.Id] = session
}

// TakeSession consumes the session with given id, unless it is missing or older than SessionTTL
func (d *DataPlaneManager) TakeSession(id string) (*SignalingSession, bool) {
	d.sessionsMutex.Lock()
	defer d.sessionsMutex.Unlock()

	session, ok := d.sessions[id]
	if !ok {
		return nil, false
	}
	delete(d.sessions, id)
	if d.expired(session.CreatedAt, SessionTTL) {
		return nil, false
	}
	return session, true
}

func (d *DataPlaneManager) SessionCount() int {
	d.sessionsMutex.Lock()
	defer d.sessionsMutex.Unlock()

	return len(d.sessions)
}

//============================================================================//
//  Call rooms                                                                //
//============================================================================//

func (d *DataPlaneManager) CreateCallRoom(groupId, creatorDid string) *CallRoom {
	room := &CallRoom{
		RoomId:          uuid.NewString(),
		GroupId:         groupId,
		CreatorDid:      creatorDid,
		Participants:    []string{creatorDid},
		MaxParticipants: MaxCallRoomParticipant,
		CreatedAt:       d.clock.NowMillis(),
	}

	d.roomsMutex.Lock()
	d.rooms[room.RoomId] = room
	d.roomsMutex.Unlock()
	return room
}

// JoinCallRoom adds did to the room and returns the participants that were already in it.
// A DID already in the room gets the other participants back with rejoined set, and nobody is notified again.
// ok is false when the room does not exist or is full
func (d *DataPlaneManager) JoinCallRoom(roomId, did string) (existing []string, rejoined bool, ok bool) {
	d.roomsMutex.Lock()
	defer d.roomsMutex.Unlock()

	room, found := d.rooms[roomId]
	if !found {
		return nil, false, false
	}
	if room.has(did) {
		return room.others(did), true, true
	}
	if len(room.Participants) >= room.MaxParticipants {
		return nil, false, false
	}

	existing = append([]string(nil), room.Participants...)
	room.Participants = append(room.Participants, did)
	return existing, false, true
}

// LeaveCallRoom removes did and returns the remaining participants. An empty room is deleted
func (d *DataPlaneManager) LeaveCallRoom(roomId, did string) []string {
	d.roomsMutex.Lock()
	defer d.roomsMutex.Unlock()

	room, ok := d.rooms[roomId]
	if !ok || !room.has(did) {
		return nil
	}
	room.Participants = room.others(did)
	if len(room.Participants) == 0 {
		delete(d.rooms, roomId)
	}
	return append([]string(nil), room.Participants...)
}

// RemoveFromAllRooms removes did from every room, returning room id => remaining participants
func (d *DataPlaneManager) RemoveFromAllRooms(did string) map[string][]string {
	d.roomsMutex.Lock()
	defer d.roomsMutex.Unlock()

	left := make(map[string][]string)
	for id, room := range d.rooms {
		if !room.has(did) {
			continue
		}
		room.Participants = room.others(did)
		left[id] = append([]string(nil), room.Participants...)
		if len(room.Participants) == 0 {
			delete(d.rooms, id)
		}
	}
	return left
}

func (d *DataPlaneManager) IsRoomMember(roomId, did string) bool {
	d.roomsMutex.Lock()
	defer d.roomsMutex.Unlock()

	room, ok := d.rooms[roomId]
	return ok && room.has(did)
}

func (d *DataPlaneManager) GetCallRoom(roomId string) (CallRoom, bool) {
	d.roomsMutex.Lock()
	defer d.roomsMutex.Unlock()

	room, ok := d.rooms[roomId]
	if !ok {
		return CallRoom{}, false
	}
	copied := *room
	copied.Participants = append([]string(nil), room.Participants...)
	return copied, true
}

//============================================================================//
//  Published invites                                                         //
//============================================================================//

func (d *DataPlaneManager) StoreInvite(invite protocol.PublishedInvite) {
	d.invitesMutex.Lock()
	defer d.invitesMutex.Unlock()

	d.invites[strings.ToLower(invite.Code)] = &publishedEntry{invite, d.clock.NowMillis()}
}

// RemoveInvite deletes code. A non empty publisherDid must match the original publisher
func (d *DataPlaneManager) RemoveInvite(code, publisherDid string) bool {
	d.invitesMutex.Lock()
	defer d.invitesMutex.Unlock()

	key := strings.ToLower(code)
	entry, ok := d.invites[key]
	if !ok {
		return false
	}
	if publisherDid != "" && entry.invite.PublisherDid != publisherDid {
		return false
	}
	delete(d.invites, key)
	return true
}

func (d *DataPlaneManager) LookupInvite(code string) (protocol.PublishedInvite, bool) {
	d.invitesMutex.RLock()
	defer d.invitesMutex.RUnlock()

	entry, ok := d.invites[strings.ToLower(code)]
	if !ok || d.inviteExpired(entry) {
		return protocol.PublishedInvite{}, false
	}
	return entry.invite, true
}

func (d *DataPlaneManager) inviteExpired(entry *publishedEntry) bool {
	if entry.invite.ExpiresAt != nil && *entry.invite.ExpiresAt <= d.clock.NowMillis() {
		return true
	}
	return d.expired(entry.storedAt, PublishedInviteTTL)
}

//============================================================================//
//  Maintenance                                                               //
//============================================================================//

// CleanupExpired removes stale offline messages, sessions, call rooms and invites
func (d *DataPlaneManager) CleanupExpired() CleanupReport {
	report := CleanupReport{}

	d.offlineMutex.Lock()
	for did, queue := range d.offline {
		kept := queue[:0]
		for _, msg := range queue {
			if d.expired(msg.QueuedAt, OfflineTTL) {
				report.OfflineMessages++
				continue
			}
			kept = append(kept, msg)
		}
		if len(kept) == 0 {
			delete(d.offline, did)
		} else {
			d.offline[did] = kept
		}
	}
	d.offlineMutex.Unlock()

	d.sessionsMutex.Lock()
	for id, session := range d.sessions {
		if d.expired(session.CreatedAt, SessionTTL) {
			delete(d.sessions, id)
			report.Sessions++
		}
	}
	d.sessionsMutex.Unlock()

	d.roomsMutex.Lock()
	for id, room := range d.rooms {
		if len(room.Participants) == 0 || d.expired(room.CreatedAt, CallRoomTTL) {
			delete(d.rooms, id)
			report.CallRooms++
		}
	}
	d.roomsMutex.Unlock()

	d.invitesMutex.Lock()
	for code, entry := range d.invites {
		if d.inviteExpired(entry) {
			delete(d.invites, code)
			report.Invites++
		}
	}
	d.invitesMutex.Unlock()

	return report
}

func (d *DataPlaneManager) Stats() RelayStats {
	stats := RelayStats{
		OnlineClients:     d.OnlineCount(),
		ActiveSessions:    d.SessionCount(),
		FederationEnabled: d.forwarder != nil,
		UptimeSeconds:     int64(d.clock.Now().Sub(d.startedAt).Seconds()),
	}

	d.offlineMutex.Lock()
	stats.OfflineRecipients = len(d.offline)
	for _, queue := range d.offline {
		stats.OfflineQueueSize += len(queue)
	}
	d.offlineMutex.Unlock()

	d.roomsMutex.Lock()
	stats.ActiveCallRooms = len(d.rooms)
	for _, room := range d.rooms {
		stats.CallParticipants += len(room.Participants)
	}
	d.roomsMutex.Unlock()

	d.invitesMutex.RLock()
	stats.PublishedInvites = len(d.invites)
	d.invitesMutex.RUnlock()

	if d.forwarder != nil {
		stats.ConnectedPeers = d.forwarder.PeerCount()
		stats.RemoteOnline = d.forwarder.RemoteOnlineCount()
	}
	stats.MeshOnline = stats.OnlineClients + stats.RemoteOnline
	return stats
}

func (d *DataPlaneManager) expired(createdAtMillis int64, ttl time.Duration) bool {
	return d.clock.NowMillis()-createdAtMillis > ttl.Milliseconds()
}

//============================================================================//
//  Client message handlers                                                   //
//============================================================================//

func (d *DataPlaneManager) handlePing(fromDid string, _ *protocol.ClientMessage) {
	d.SendToClient(fromDid, protocol.NewPong())
}

func (d *DataPlaneManager) handleSignal(fromDid string, msg *protocol.ClientMessage) {
	if d.RouteSignal(fromDid, msg.ToDid, msg.Payload) {
		return
	}
	d.QueueOffline(msg.ToDid, fromDid, msg.Payload, d.clock.NowMillis())
	d.SendToClient(fromDid, protocol.NewAck(fmt.Sprintf("signal_queued_%s", msg.ToDid)))
}

func (d *DataPlaneManager) handleSend(fromDid string, msg *protocol.ClientMessage) {
	timestamp := d.clock.NowMillis()
	if !d.RouteMessage(fromDid, msg.ToDid, msg.Payload, timestamp) {
		d.QueueOffline(msg.ToDid, fromDid, msg.Payload, timestamp)
		d.Logf("Message from %s to %s queued for later delivery", fromDid, msg.ToDid)
	}
	d.SendToClient(fromDid, protocol.NewAck(fmt.Sprintf("msg_%s_%d", msg.ToDid, timestamp)))
}

func (d *DataPlaneManager) handleCreateSession(fromDid string, msg *protocol.ClientMessage) {
	session := d.CreateSession(fromDid, msg.OfferPayload)
	d.SendToClient(fromDid, protocol.NewSessionCreated(session.Id))
}

func (d *DataPlaneManager) handleJoinSession(fromDid string, msg *protocol.ClientMessage) {
	session, ok := d.TakeSession(msg.SessionId)
	if !ok {
		d.SendToClient(fromDid, protocol.NewError("Session '%s' not found or expired", msg.SessionId))
		return
	}

	d.SendToClient(fromDid, protocol.NewSessionOffer(session.Id, session.CreatorDid, session.OfferPayload))
	d.deliverSessionAnswer(session, fromDid, msg.AnswerPayload)
}

// deliverSessionAnswer reaches the creator locally, else through the peer hosting it, else through its offline queue
func (d *DataPlaneManager) deliverSessionAnswer(session *SignalingSession, joinerDid, answer string) {
	if d.SendToClient(session.CreatorDid, protocol.NewSessionJoined(session.Id, joinerDid, answer)) {
		return
	}
	if d.forwarder != nil && d.forwarder.ForwardSessionJoin(session.CreatorDid, session.Id, joinerDid, answer) {
		return
	}

	payload, _ := json.Marshal(protocol.NewSessionJoined(session.Id, joinerDid, answer))
	d.QueueOffline(session.CreatorDid, joinerDid, string(payload), d.clock.NowMillis())
}

func (d *DataPlaneManager) handleFetchOffline(fromDid string, _ *protocol.ClientMessage) {
	d.SendToClient(fromDid, protocol.NewOfflineMessages(d.DrainOffline(fromDid)))
}

func (d *DataPlaneManager) handleCreateCallRoom(fromDid string, msg *protocol.ClientMessage) {
	room := d.CreateCallRoom(msg.GroupId, fromDid)
	d.SendToClient(fromDid, protocol.NewCallRoomCreated(room.RoomId, room.GroupId))
}

func (d *DataPlaneManager) handleJoinCallRoom(fromDid string, msg *protocol.ClientMessage) {
	existing, rejoined, ok := d.JoinCallRoom(msg.RoomId, fromDid)
	if !ok {
		d.SendToClient(fromDid, protocol.NewError("Call room '%s' not found or full", msg.RoomId))
		return
	}
	if !rejoined {
		for _, participant := range existing {
			d.SendToClient(participant, protocol.NewCallParticipantJoined(msg.RoomId, fromDid))
		}
	}
	d.SendToClient(fromDid, protocol.NewAck(fmt.Sprintf("call_room_joined_%s", msg.RoomId)))
	// the joiner learns who is already in the room
	for _, participant := range existing {
		d.SendToClient(fromDid, protocol.NewCallParticipantJoined(msg.RoomId, participant))
	}
}

func (d *DataPlaneManager) handleLeaveCallRoom(fromDid string, msg *protocol.ClientMessage) {
	for _, participant := range d.LeaveCallRoom(msg.RoomId, fromDid) {
		d.SendToClient(participant, protocol.NewCallParticipantLeft(msg.RoomId, fromDid))
	}
}

func (d *DataPlaneManager) handleCallSignal(fromDid string, msg *protocol.ClientMessage) {
	if !d.IsRoomMember(msg.RoomId, fromDid) {
		d.SendToClient(fromDid, protocol.NewError("You are not in this call room"))
		return
	}
	if !d.IsRoomMember(msg.RoomId, msg.ToDid) {
		d.SendToClient(fromDid, protocol.NewError("Target '%s' is not in this call room", msg.ToDid))
		return
	}
	d.SendToClient(msg.ToDid, protocol.NewCallSignalForward(msg.RoomId, fromDid, msg.Payload))
}

func (d *DataPlaneManager) handlePublishInvite(fromDid string, msg *protocol.ClientMessage) {
	if msg.Invite == nil || msg.Invite.Code == "" {
		d.SendToClient(fromDid, protocol.NewError("Invite code is required"))
		return
	}
	invite := *msg.Invite
	invite.PublisherDid = fromDid
	invite.PublishedAt = d.clock.NowMillis()

	d.StoreInvite(invite)
	if d.forwarder != nil {
		d.forwarder.BroadcastInvite(invite)
	}
	d.SendToClient(fromDid, protocol.NewAck(fmt.Sprintf("invite_published_%s", invite.Code)))
}

func (d *DataPlaneManager) handleRevokeInvite(fromDid string, msg *protocol.ClientMessage) {
	if !d.RemoveInvite(msg.Code, fromDid) {
		d.SendToClient(fromDid, protocol.NewInviteNotFound(msg.Code))
		return
	}
	if d.forwarder != nil {
		d.forwarder.BroadcastInviteRevoke(msg.Code)
	}
	d.SendToClient(fromDid, protocol.NewAck(fmt.Sprintf("invite_revoked_%s", msg.Code)))
}

func (d *DataPlaneManager) handleResolveInvite(fromDid string, msg *protocol.ClientMessage) {
	if invite, ok := d.LookupInvite(msg.Code); ok {
		d.SendToClient(fromDid, protocol.NewInviteResolved(invite))
		return
	}
	if d.forwarder != nil && d.forwarder.PeerCount() > 0 {
		d.forwarder.AskInvite(msg.Code, fromDid)
		return
	}
	d.SendToClient(fromDid, protocol.NewInviteNotFound(msg.Code))
}

//============================================================================//
//  Peer message handlers                                                     //
//============================================================================//

func (d *DataPlaneManager) handleForwardSignal(from node.RelayId, msg *protocol.PeerMessage) {
	if !d.SendToClient(msg.ToDid, protocol.NewSignal(msg.FromDid, msg.Payload)) {
		d.QueueOffline(msg.ToDid, msg.FromDid, msg.Payload, d.clock.NowMillis())
	}
}

func (d *DataPlaneManager) handleForwardMessage(from node.RelayId, msg *protocol.PeerMessage) {
	if !d.SendToClient(msg.ToDid, protocol.NewMessage(msg.FromDid, msg.Payload, msg.Timestamp)) {
		d.Logf("Forwarded message for %s from %s arrived after it left, queued", msg.ToDid, from)
		d.QueueOffline(msg.ToDid, msg.FromDid, msg.Payload, msg.Timestamp)
	}
}

func (d *DataPlaneManager) handleForwardSessionJoin(from node.RelayId, msg *protocol.PeerMessage) {
	d.sessionsMutex.Lock()
	session, ok := d.sessions[msg.SessionId]
	delete(d.sessions, msg.SessionId)
	d.sessionsMutex.Unlock()

	if !ok {
		session = &SignalingSession{Id: msg.SessionId, CreatorDid: msg.ToDid}
	}
	if session.CreatorDid == "" {
		d.Logf("Forwarded join for unknown session %s from %s", msg.SessionId, from)
		return
	}

	joined := protocol.NewSessionJoined(session.Id, msg.JoinerDid, msg.AnswerPayload)
	if !d.SendToClient(session.CreatorDid, joined) {
		payload, _ := json.Marshal(joined)
		d.QueueOffline(session.CreatorDid, msg.JoinerDid, string(payload), d.clock.NowMillis())
	}
}

func (d *DataPlaneManager) handleSessionSync(from node.RelayId, msg *protocol.PeerMessage) {
	d.storeSession(&SignalingSession{
		Id:           msg.SessionId,
		CreatorDid:   msg.CreatorDid,
		OfferPayload: msg.OfferPayload,
		CreatedAt:    msg.CreatedAt,
	})
}

// handleForwardOffline stores the payload untouched, the recipient learns its kind when it drains the queue
func (d *DataPlaneManager) handleForwardOffline(from node.RelayId, msg *protocol.PeerMessage) {
	d.QueueOffline(msg.ToDid, msg.FromDid, msg.Payload, msg.Timestamp)
}

func (d *DataPlaneManager) handleInviteSync(from node.RelayId, msg *protocol.PeerMessage) {
	if msg.Invite == nil {
		return
	}
	d.StoreInvite(*msg.Invite)
	if msg.RequesterDid != "" {
		d.SendToClient(msg.RequesterDid, protocol.NewInviteResolved(*msg.Invite))
	}
}

func (d *DataPlaneManager) handleInviteRevoke(from node.RelayId, msg *protocol.PeerMessage) {
	d.RemoveInvite(msg.Code, "")
}

func (d *DataPlaneManager) handleForwardResolveInvite(from node.RelayId, msg *protocol.PeerMessage) {
	invite, ok := d.LookupInvite(msg.Code)
	if !ok || d.forwarder == nil {
		return
	}
	answer := protocol.NewInviteSync(invite)
	answer.RequesterDid = msg.RequesterDid
	d.forwarder.SendToPeer(node.RelayId(msg.OriginRelay), answer)
}
