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

// ClientMessageType is the `type` discriminator of a message sent by a client to its relay
type ClientMessageType string

const (
	ClientRegister       ClientMessageType = "register"         // Bind the connection to a DID
	ClientSignal         ClientMessageType = "signal"           // Opaque signaling payload (SDP offer/answer)
	ClientSend           ClientMessageType = "send"             // Opaque encrypted message
	ClientCreateSession  ClientMessageType = "create_session"   // Store an offer under a fresh session id
	ClientJoinSession    ClientMessageType = "join_session"     // Answer a stored offer
	ClientFetchOffline   ClientMessageType = "fetch_offline"    // Drain the offline queue
	ClientPing           ClientMessageType = "ping"             // Keepalive
	ClientCreateCallRoom ClientMessageType = "create_call_room" // Open a group call room
	ClientJoinCallRoom   ClientMessageType = "join_call_room"   // Enter a group call room
	ClientLeaveCallRoom  ClientMessageType = "leave_call_room"  // Exit a group call room
	ClientCallSignal     ClientMessageType = "call_signal"      // Signaling payload scoped to a call room
	ClientPublishInvite  ClientMessageType = "publish_invite"   // Publish a community invite for resolution by code
	ClientRevokeInvite   ClientMessageType = "revoke_invite"    // Withdraw a published invite
	ClientResolveInvite  ClientMessageType = "resolve_invite"   // Look up a published invite by code
)

var knownClientTypes = map[ClientMessageType]struct{}{
	ClientRegister: {}, ClientSignal: {}, ClientSend: {}, ClientCreateSession: {}, ClientJoinSession: {},
	ClientFetchOffline: {}, ClientPing: {}, ClientCreateCallRoom: {}, ClientJoinCallRoom: {},
	ClientLeaveCallRoom: {}, ClientCallSignal: {}, ClientPublishInvite: {}, ClientRevokeInvite: {},
	ClientResolveInvite: {},
}

// ClientMessage is the union of every client -> relay variant. Only the fields of the variant named by Type are meaningful
type ClientMessage struct {
	Type ClientMessageType `json:"type"`

	Did           string `json:"did,omitempty"`            // register
	ToDid         string `json:"to_did,omitempty"`         // signal, send, call_signal
	Payload       string `json:"payload,omitempty"`        // signal, send, call_signal
	OfferPayload  string `json:"offer_payload,omitempty"`  // create_session
	SessionId     string `json:"session_id,omitempty"`     // join_session
	AnswerPayload string `json:"answer_payload,omitempty"` // join_session
	GroupId       string `json:"group_id,omitempty"`       // create_call_room
	RoomId        string `json:"room_id,omitempty"`        // join/leave_call_room, call_signal

	Invite *PublishedInvite `json:"invite,omitempty"` // publish_invite
	Code   string           `json:"code,omitempty"`   // revoke_invite, resolve_invite
}

// DecodeClientMessage parses one text frame. Unknown discriminators are rejected
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	msg := &ClientMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if _, ok := knownClientTypes[msg.Type]; !ok {
		return nil, fmt.Errorf("unknown variant `%s`", msg.Type)
	}
	return msg, nil
}

// Encode serializes the message for a text frame
func (m *ClientMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ClientMessage) String() string {
	return fmt.Sprintf("Type{%s}, Did{%s}, ToDid{%s}, SessionId{%s}, RoomId{%s}", m.Type, m.Did, m.ToDid, m.SessionId, m.RoomId)
}
