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

// ServerMessageType is the `type` discriminator of a message sent by a relay to one of its clients
type ServerMessageType string

const (
	ServerRegistered            ServerMessageType = "registered"
	ServerSignal                ServerMessageType = "signal"
	ServerMessageDelivery       ServerMessageType = "message"
	ServerAck                   ServerMessageType = "ack"
	ServerSessionCreated        ServerMessageType = "session_created"
	ServerSessionOffer          ServerMessageType = "session_offer"
	ServerSessionJoined         ServerMessageType = "session_joined"
	ServerOfflineMessages       ServerMessageType = "offline_messages"
	ServerPong                  ServerMessageType = "pong"
	ServerError                 ServerMessageType = "error"
	ServerCallRoomCreated       ServerMessageType = "call_room_created"
	ServerCallParticipantJoined ServerMessageType = "call_participant_joined"
	ServerCallParticipantLeft   ServerMessageType = "call_participant_left"
	ServerCallSignalForward     ServerMessageType = "call_signal_forward"
	ServerInviteResolved        ServerMessageType = "invite_resolved"
	ServerInviteNotFound        ServerMessageType = "invite_not_found"
)

// ServerMessage is implemented by every relay -> client variant
type ServerMessage interface {
	ServerType() ServerMessageType
}

type Registered struct {
	Type ServerMessageType `json:"type"`
	Did  string            `json:"did"`
}

type Signal struct {
	Type    ServerMessageType `json:"type"`
	FromDid string            `json:"from_did"`
	Payload string            `json:"payload"`
}

type Message struct {
	Type      ServerMessageType `json:"type"`
	FromDid   string            `json:"from_did"`
	Payload   string            `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

type Ack struct {
	Type ServerMessageType `json:"type"`
	Id   string            `json:"id"`
}

type SessionCreated struct {
	Type      ServerMessageType `json:"type"`
	SessionId string            `json:"session_id"`
}

type SessionOffer struct {
	Type         ServerMessageType `json:"type"`
	SessionId    string            `json:"session_id"`
	FromDid      string            `json:"from_did"`
	OfferPayload string            `json:"offer_payload"`
}

type SessionJoined struct {
	Type          ServerMessageType `json:"type"`
	SessionId     string            `json:"session_id"`
	FromDid       string            `json:"from_did"`
	AnswerPayload string            `json:"answer_payload"`
}

type OfflineMessages struct {
	Type     ServerMessageType `json:"type"`
	Messages []OfflineMessage  `json:"messages"`
}

type Pong struct {
	Type ServerMessageType `json:"type"`
}

type Error struct {
	Type    ServerMessageType `json:"type"`
	Message string            `json:"message"`
}

type CallRoomCreated struct {
	Type    ServerMessageType `json:"type"`
	RoomId  string            `json:"room_id"`
	GroupId string            `json:"group_id"`
}

// CallParticipant covers both call_participant_joined and call_participant_left
type CallParticipant struct {
	Type   ServerMessageType `json:"type"`
	RoomId string            `json:"room_id"`
	Did    string            `json:"did"`
}

type CallSignalForward struct {
	Type    ServerMessageType `json:"type"`
	RoomId  string            `json:"room_id"`
	FromDid string            `json:"from_did"`
	Payload string            `json:"payload"`
}

type InviteResolved struct {
	Type ServerMessageType `json:"type"`
	PublishedInvite
}

type InviteNotFound struct {
	Type ServerMessageType `json:"type"`
	Code string            `json:"code"`
}

func (m Registered) ServerType() ServerMessageType        { return ServerRegistered }
func (m Signal) ServerType() ServerMessageType            { return ServerSignal }
func (m Message) ServerType() ServerMessageType           { return ServerMessageDelivery }
func (m Ack) ServerType() ServerMessageType               { return ServerAck }
func (m SessionCreated) ServerType() ServerMessageType    { return ServerSessionCreated }
func (m SessionOffer) ServerType() ServerMessageType      { return ServerSessionOffer }
func (m SessionJoined) ServerType() ServerMessageType     { return ServerSessionJoined }
func (m OfflineMessages) ServerType() ServerMessageType   { return ServerOfflineMessages }
func (m Pong) ServerType() ServerMessageType              { return ServerPong }
func (m Error) ServerType() ServerMessageType             { return ServerError }
func (m CallRoomCreated) ServerType() ServerMessageType   { return ServerCallRoomCreated }
func (m CallParticipant) ServerType() ServerMessageType   { return m.Type }
func (m CallSignalForward) ServerType() ServerMessageType { return ServerCallSignalForward }
func (m InviteResolved) ServerType() ServerMessageType    { return ServerInviteResolved }
func (m InviteNotFound) ServerType() ServerMessageType    { return ServerInviteNotFound }

func NewRegistered(did string) Registered {
	return Registered{ServerRegistered, did}
}

func NewSignal(fromDid, payload string) Signal {
	return Signal{ServerSignal, fromDid, payload}
}

func NewMessage(fromDid, payload string, timestamp int64) Message {
	return Message{ServerMessageDelivery, fromDid, payload, timestamp}
}

func NewAck(id string) Ack {
	return Ack{ServerAck, id}
}

func NewSessionCreated(sessionId string) SessionCreated {
	return SessionCreated{ServerSessionCreated, sessionId}
}

func NewSessionOffer(sessionId, fromDid, offer string) SessionOffer {
	return SessionOffer{ServerSessionOffer, sessionId, fromDid, offer}
}

func NewSessionJoined(sessionId, fromDid, answer string) SessionJoined {
	return SessionJoined{ServerSessionJoined, sessionId, fromDid, answer}
}

// NewOfflineMessages never encodes a nil slice, an empty drain is `[]`
func NewOfflineMessages(messages []OfflineMessage) OfflineMessages {
	if messages == nil {
		messages = []OfflineMessage{}
	}
	return OfflineMessages{ServerOfflineMessages, messages}
}

func NewPong() Pong {
	return Pong{ServerPong}
}

func NewError(format string, v ...any) Error {
	return Error{ServerError, fmt.Sprintf(format, v...)}
}

func NewCallRoomCreated(roomId, groupId string) CallRoomCreated {
	return CallRoomCreated{ServerCallRoomCreated, roomId, groupId}
}

func NewCallParticipantJoined(roomId, did string) CallParticipant {
	return CallParticipant{ServerCallParticipantJoined, roomId, did}
}

func NewCallParticipantLeft(roomId, did string) CallParticipant {
	return CallParticipant{ServerCallParticipantLeft, roomId, did}
}

func NewCallSignalForward(roomId, fromDid, payload string) CallSignalForward {
	return CallSignalForward{ServerCallSignalForward, roomId, fromDid, payload}
}

func NewInviteResolved(invite PublishedInvite) InviteResolved {
	return InviteResolved{ServerInviteResolved, invite}
}

func NewInviteNotFound(code string) InviteNotFound {
	return InviteNotFound{ServerInviteNotFound, code}
}

// EncodeServerMessage serializes a server variant for a text frame
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeServerMessage is the client-side inverse of EncodeServerMessage
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var head struct {
		Type ServerMessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var target ServerMessage
	switch head.Type {
	case ServerRegistered:
		target = &Registered{}
	case ServerSignal:
		target = &Signal{}
	case ServerMessageDelivery:
		target = &Message{}
	case ServerAck:
		target = &Ack{}
	case ServerSessionCreated:
		target = &SessionCreated{}
	case ServerSessionOffer:
		target = &SessionOffer{}
	case ServerSessionJoined:
		target = &SessionJoined{}
	case ServerOfflineMessages:
		target = &OfflineMessages{}
	case ServerPong:
		target = &Pong{}
	case ServerError:
		target = &Error{}
	case ServerCallRoomCreated:
		target = &CallRoomCreated{}
	case ServerCallParticipantJoined, ServerCallParticipantLeft:
		target = &CallParticipant{}
	case ServerCallSignalForward:
		target = &CallSignalForward{}
	case ServerInviteResolved:
		target = &InviteResolved{}
	case ServerInviteNotFound:
		target = &InviteNotFound{}
	default:
		return nil, fmt.Errorf("unknown variant `%s`", head.Type)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return target, nil
}
