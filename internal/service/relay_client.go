/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/InfamousVague/umbra/internal/apperr"
)

// Relay events
const (
	DomainRelay = "relay"

	EventRelayConnected    = "relayConnected"
	EventRelayDisconnected = "relayDisconnected"
	EventRelayError        = "relayError"
	EventInviteResolved    = "inviteResolved"
	EventInviteNotFound    = "inviteNotFound"
	EventSignal            = "signal"
	EventSessionCreated    = "sessionCreated"
	EventSessionOffer      = "sessionOffer"
	EventSessionJoined     = "sessionJoined"
	EventCallRoomCreated   = "callRoomCreated"
	EventCallParticipant   = "callParticipant"
	EventCallSignal        = "callSignal"
)

const registerTimeout = 10 * time.Second

// RelayClient is the connection of a client to its relay. It registers the local DID,
// drains the offline queue and hands every delivered envelope to the dispatcher
type RelayClient struct {
	link       *network.Link
	did        string
	ctx        *RuntimeContext
	dispatcher *Dispatcher

	wg sync.WaitGroup
}

// ConnectRelay dials url, registers the loaded identity and starts the writer.
// Call Run to start receiving
func ConnectRelay(ctx context.Context, url string, rt *RuntimeContext, dispatcher *Dispatcher) (*RelayClient, error) {
	id, err := rt.Identity()
	if err != nil {
		return nil, err
	}
	link, err := network.Dial(ctx, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.PeerUnreachable, err, "dialing relay %s", url)
	}

	c := &RelayClient{link: link, did: id.Did(), ctx: rt, dispatcher: dispatcher}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		link.RunWriter(context.Background())
	}()

	if err := c.register(); err != nil {
		link.Terminate()
		c.wg.Wait()
		return nil, err
	}
	rt.SetRelay(c)
	rt.Logf("Connected to relay %s as %s", url, c.did)
	rt.Publish(DomainRelay, EventRelayConnected, url)
	return c, nil
}

func (c *RelayClient) register() error {
	if err := c.link.SendJSON(&protocol.ClientMessage{Type: protocol.ClientRegister, Did: c.did}); err != nil {
		return apperr.Wrap(apperr.NetworkNotStarted, err, "sending register")
	}

	type result struct {
		msg protocol.ServerMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		frame, err := c.link.Recv()
		if err != nil {
			done <- result{nil, err}
			return
		}
		msg, err := protocol.DecodeServerMessage(frame)
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return apperr.Wrap(apperr.ProtocolError, r.err, "waiting for registration")
		}
		switch msg := r.msg.(type) {
		case *protocol.Registered:
			return nil
		case *protocol.Error:
			return apperr.New(apperr.ProtocolError, "relay refused registration: %s", msg.Message)
		default:
			return apperr.New(apperr.ProtocolError, "unexpected %s before registration", r.msg.ServerType())
		}
	case <-time.After(registerTimeout):
		return apperr.New(apperr.PeerUnreachable, "relay did not answer the registration")
	}
}

// Run reads frames until the connection drops or ctx is done. The offline queue is fetched first
func (c *RelayClient) Run(ctx context.Context) error {
	defer func() {
		c.ctx.SetRelay(nil)
		c.ctx.Publish(DomainRelay, EventRelayDisconnected, c.did)
	}()

	stop := context.AfterFunc(ctx, c.link.Terminate)
	defer stop()

	if err := c.FetchOffline(); err != nil {
		return err
	}
	for {
		frame, err := c.link.Recv()
		if err != nil {
			if network.IsCleanClose(err) || ctx.Err() != nil {
				return nil
			}
			return apperr.Wrap(apperr.PeerUnreachable, err, "relay connection lost")
		}
		msg, err := protocol.DecodeServerMessage(frame)
		if err != nil {
			c.ctx.Logf("Ignoring relay frame: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *RelayClient) handle(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case *protocol.Message:
		c.dispatch(m.FromDid, m.Payload)
	case *protocol.OfflineMessages:
		for _, queued := range m.Messages {
			c.dispatch(queued.FromDid, queued.Payload)
		}
	case *protocol.Ack, *protocol.Pong, *protocol.Registered:
	case *protocol.Error:
		c.ctx.Logf("Relay error: %s", m.Message)
		c.ctx.Publish(DomainRelay, EventRelayError, m.Message)
	case *protocol.InviteResolved:
		c.ctx.Publish(DomainRelay, EventInviteResolved, m)
	case *protocol.InviteNotFound:
		c.ctx.Publish(DomainRelay, EventInviteNotFound, m.Code)
	case *protocol.Signal:
		c.ctx.Publish(DomainRelay, EventSignal, m)
	case *protocol.SessionCreated:
		c.ctx.Publish(DomainRelay, EventSessionCreated, m)
	case *protocol.SessionOffer:
		c.ctx.Publish(DomainRelay, EventSessionOffer, m)
	case *protocol.SessionJoined:
		c.ctx.Publish(DomainRelay, EventSessionJoined, m)
	case *protocol.CallRoomCreated:
		c.ctx.Publish(DomainRelay, EventCallRoomCreated, m)
	case *protocol.CallParticipant:
		c.ctx.Publish(DomainRelay, EventCallParticipant, m)
	case *protocol.CallSignalForward:
		c.ctx.Publish(DomainRelay, EventCallSignal, m)
	}
}

func (c *RelayClient) dispatch(fromDid, payload string) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Dispatch(fromDid, payload); err != nil {
		c.ctx.Logf("Dropped envelope from %s: %v", fromDid, err)
	}
}

func (c *RelayClient) send(msg *protocol.ClientMessage) error {
	if err := c.link.SendJSON(msg); err != nil {
		return apperr.Wrap(apperr.NetworkNotStarted, err, "relay connection is closed")
	}
	return nil
}

// Send relays an envelope to toDid
func (c *RelayClient) Send(toDid, payload string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientSend, ToDid: toDid, Payload: payload})
}

func (c *RelayClient) Signal(toDid, payload string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientSignal, ToDid: toDid, Payload: payload})
}

func (c *RelayClient) FetchOffline() error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientFetchOffline})
}

func (c *RelayClient) Ping() error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientPing})
}

func (c *RelayClient) CreateSession(offer string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientCreateSession, OfferPayload: offer})
}

func (c *RelayClient) JoinSession(sessionId, answer string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientJoinSession, SessionId: sessionId, AnswerPayload: answer})
}

func (c *RelayClient) CreateCallRoom(groupId string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientCreateCallRoom, GroupId: groupId})
}

func (c *RelayClient) JoinCallRoom(roomId string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientJoinCallRoom, RoomId: roomId})
}

func (c *RelayClient) LeaveCallRoom(roomId string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientLeaveCallRoom, RoomId: roomId})
}

func (c *RelayClient) CallSignal(roomId, toDid, payload string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientCallSignal, RoomId: roomId, ToDid: toDid, Payload: payload})
}

// PublishInvite makes a community invite resolvable by code on every relay of the mesh
func (c *RelayClient) PublishInvite(invite *protocol.PublishedInvite) error {
	if invite == nil || invite.Code == "" {
		return apperr.New(apperr.InvalidInput, "invite without code")
	}
	return c.send(&protocol.ClientMessage{Type: protocol.ClientPublishInvite, Invite: invite})
}

func (c *RelayClient) RevokeInvite(code string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientRevokeInvite, Code: code})
}

func (c *RelayClient) ResolveInvite(code string) error {
	return c.send(&protocol.ClientMessage{Type: protocol.ClientResolveInvite, Code: code})
}

// Close drains what is queued and closes the connection
func (c *RelayClient) Close() {
	c.link.Close()
	c.wg.Wait()
}

func (c *RelayClient) String() string {
	return fmt.Sprintf("RelayClient{%s, %s}", c.did, c.link.RemoteAddr())
}
