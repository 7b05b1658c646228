/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package protocol

import (
	"encoding/json"
	"fmt"
)

// PeerMessageType is the `type` discriminator of a message exchanged between two federated relays
type PeerMessageType string

const (
	PeerHello                PeerMessageType = "hello"
	PeerPresenceSync         PeerMessageType = "presence_sync"
	PeerPresenceOnline       PeerMessageType = "presence_online"
	PeerPresenceOffline      PeerMessageType = "presence_offline"
	PeerForwardSignal        PeerMessageType = "forward_signal"
	PeerForwardMessage       PeerMessageType = "forward_message"
	PeerForwardSessionJoin   PeerMessageType = "forward_session_join"
	PeerSessionSync          PeerMessageType = "session_sync"
	PeerForwardOffline       PeerMessageType = "forward_offline"
	PeerInviteSync           PeerMessageType = "invite_sync"
	PeerInviteRevoke         PeerMessageType = "invite_revoke"
	PeerForwardResolveInvite PeerMessageType = "forward_resolve_invite"
	PeerPing                 PeerMessageType = "peer_ping"
	PeerPong                 PeerMessageType = "peer_pong"
)

// PeerMessage is the union of every relay <-> relay variant. Only the fields of the variant named by Type are meaningful
type PeerMessage struct {
	Type PeerMessageType `json:"type"`

	RelayId    string   `json:"relay_id,omitempty"`    // hello, presence_*
	RelayURL   string   `json:"relay_url,omitempty"`   // hello
	Region     string   `json:"region,omitempty"`      // hello
	Location   string   `json:"location,omitempty"`    // hello
	OnlineDids []string `json:"online_dids,omitempty"` // presence_sync
	Did        string   `json:"did,omitempty"`         // presence_online, presence_offline

	FromDid   string `json:"from_did,omitempty"`  // forward_signal, forward_message, forward_offline
	ToDid     string `json:"to_did,omitempty"`    // forward_signal, forward_message, forward_offline
	Payload   string `json:"payload,omitempty"`   // forward_signal, forward_message, forward_offline
	Timestamp int64  `json:"timestamp,omitempty"` // forward_message, forward_offline

	SessionId     string `json:"session_id,omitempty"`     // forward_session_join, session_sync
	JoinerDid     string `json:"joiner_did,omitempty"`     // forward_session_join
	AnswerPayload string `json:"answer_payload,omitempty"` // forward_session_join
	CreatorDid    string `json:"creator_did,omitempty"`    // session_sync
	OfferPayload  string `json:"offer_payload,omitempty"`  // session_sync
	CreatedAt     int64  `json:"created_at,omitempty"`     // session_sync

	Invite       *PublishedInvite `json:"invite,omitempty"`        // invite_sync
	Code         string           `json:"code,omitempty"`          // invite_revoke, forward_resolve_invite
	RequesterDid string           `json:"requester_did,omitempty"` // forward_resolve_invite
	OriginRelay  string           `json:"origin_relay,omitempty"`  // forward_resolve_invite
}

var knownPeerTypes = map[PeerMessageType]struct{}{
	PeerHello: {}, PeerPresenceSync: {}, PeerPresenceOnline: {}, PeerPresenceOffline: {},
	PeerForwardSignal: {}, PeerForwardMessage: {}, PeerForwardSessionJoin: {}, PeerSessionSync: {},
	PeerForwardOffline: {}, PeerInviteSync: {}, PeerInviteRevoke: {}, PeerForwardResolveInvite: {},
	PeerPing: {}, PeerPong: {},
}

func NewHello(relayId, relayURL, region, location string) *PeerMessage {
	return &PeerMessage{Type: PeerHello, RelayId: relayId, RelayURL: relayURL, Region: region, Location: location}
}

// NewPresenceSync always carries a non-nil list, so an empty relay still clears the receiver's view of it
func NewPresenceSync(relayId string, onlineDids []string) *PeerMessage {
	if onlineDids == nil {
		onlineDids = []string{}
	}
	return &PeerMessage{Type: PeerPresenceSync, RelayId: relayId, OnlineDids: onlineDids}
}

func NewPresenceOnline(relayId, did string) *PeerMessage {
	return &PeerMessage{Type: PeerPresenceOnline, RelayId: relayId, Did: did}
}

func NewPresenceOffline(relayId, did string) *PeerMessage {
	return &PeerMessage{Type: PeerPresenceOffline, RelayId: relayId, Did: did}
}

func NewForwardSignal(fromDid, toDid, payload string) *PeerMessage {
	return &PeerMessage{Type: PeerForwardSignal, FromDid: fromDid, ToDid: toDid, Payload: payload}
}

func NewForwardMessage(fromDid, toDid, payload string, timestamp int64) *PeerMessage {
	return &PeerMessage{Type: PeerForwardMessage, FromDid: fromDid, ToDid: toDid, Payload: payload, Timestamp: timestamp}
}

func NewForwardSessionJoin(creatorDid, sessionId, joinerDid, answer string) *PeerMessage {
	return &PeerMessage{Type: PeerForwardSessionJoin, ToDid: creatorDid, SessionId: sessionId, JoinerDid: joinerDid, AnswerPayload: answer}
}

func NewSessionSync(sessionId, creatorDid, offer string, createdAt int64) *PeerMessage {
	return &PeerMessage{Type: PeerSessionSync, SessionId: sessionId, CreatorDid: creatorDid, OfferPayload: offer, CreatedAt: createdAt}
}

func NewForwardOffline(toDid, fromDid, payload string, timestamp int64) *PeerMessage {
	return &PeerMessage{Type: PeerForwardOffline, ToDid: toDid, FromDid: fromDid, Payload: payload, Timestamp: timestamp}
}

func NewInviteSync(invite PublishedInvite) *PeerMessage {
	return &PeerMessage{Type: PeerInviteSync, Invite: &invite}
}

func NewInviteRevoke(code string) *PeerMessage {
	return &PeerMessage{Type: PeerInviteRevoke, Code: code}
}

func NewForwardResolveInvite(code, requesterDid, originRelay string) *PeerMessage {
	return &PeerMessage{Type: PeerForwardResolveInvite, Code: code, RequesterDid: requesterDid, OriginRelay: originRelay}
}

func NewPeerPing() *PeerMessage {
	return &PeerMessage{Type: PeerPing}
}

func NewPeerPong() *PeerMessage {
	return &PeerMessage{Type: PeerPong}
}

// DecodePeerMessage parses one federation text frame
func DecodePeerMessage(data []byte) (*PeerMessage, error) {
	msg := &PeerMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if _, ok := knownPeerTypes[msg.Type]; !ok {
		return nil, fmt.Errorf("unknown variant `%s`", msg.Type)
	}
	return msg, nil
}

// Encode serializes the message for a text frame
func (m *PeerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func (m *PeerMessage) String() string {
	return fmt.Sprintf("Type{%s}, RelayId{%s}, Did{%s}, FromDid{%s}, ToDid{%s}, SessionId{%s}", m.Type, m.RelayId, m.Did, m.FromDid, m.ToDid, m.SessionId)
}
