/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package handler

import (
	"context"
	"net/http"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/gorilla/websocket"
)

// RelayPlane is the part of the data plane a client session talks to
type RelayPlane interface {
	Register(did string, sender data.ClientSender)
	Disconnect(did string, sender data.ClientSender)
	SendToClient(did string, msg protocol.ServerMessage) bool
	HandleClientMessage(fromDid string, msg *protocol.ClientMessage)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SessionHandler serves /ws. Every connection must register a DID before anything else is accepted
type SessionHandler struct {
	plane  RelayPlane
	ctx    context.Context
	logger nlog.Logger
}

func NewSessionHandler(ctx context.Context, plane RelayPlane, logger nlog.Logger) *SessionHandler {
	return &SessionHandler{plane, ctx, logger}
}

// Connect upgrades the request and runs the session until the client goes away
func (s *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("Websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	link := network.NewLink(conn)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go link.RunWriter(ctx)
	stop := context.AfterFunc(ctx, link.Terminate)
	defer stop()

	did, ok := s.awaitRegistration(link)
	if !ok {
		return
	}
	defer s.plane.Disconnect(did, link)

	for {
		frame, err := link.Recv()
		if err != nil {
			if !network.IsCleanClose(err) {
				s.logf("Session of %s dropped: %v", did, err)
			}
			return
		}
		msg, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			s.plane.SendToClient(did, protocol.NewError("Invalid message format: %v", err))
			continue
		}
		s.plane.HandleClientMessage(did, msg)
	}
}

// awaitRegistration reads frames until a valid Register arrives. ok is false when the connection drops first
func (s *SessionHandler) awaitRegistration(link *network.Link) (did string, ok bool) {
	for {
		frame, err := link.Recv()
		if err != nil {
			return "", false
		}

		msg, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			link.SendJSON(protocol.NewError("Invalid message format: %v", err))
			continue
		}
		if msg.Type != protocol.ClientRegister {
			link.SendJSON(protocol.NewError("Must register before sending other messages"))
			continue
		}
		if err := data.ValidateDid(msg.Did); err != nil {
			link.SendJSON(protocol.NewError("%v", err))
			continue
		}

		s.plane.Register(msg.Did, link)
		s.plane.SendToClient(msg.Did, protocol.NewRegistered(msg.Did))
		return msg.Did, true
	}
}

func (s *SessionHandler) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Logf(format, v...)
	}
}
