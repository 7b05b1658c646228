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
	"encoding/json"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/envelope"
)

// Dispatcher events
const (
	EventCommunityEvent  = "communityEvent"
	EventAccountMetadata = "accountMetadata"
)

// AccountMetadataPlugin namespaces account_metadata values in the plugin store
const AccountMetadataPlugin = "account"

// Services are the handlers a Dispatcher routes envelopes to. A nil service drops its envelopes
type Services struct {
	Friends   FriendService
	Messages  MessageService
	Keys      ChannelKeyService
	Channels  ChannelMessageService
	Transfers TransferService
}

type envelopeHandler func(fromDid string, env *envelope.Envelope) error

// Dispatcher routes the envelopes delivered by the relay to the services, by envelope kind
type Dispatcher struct {
	ctx      *RuntimeContext
	services Services
	handlers map[envelope.Kind]envelopeHandler
}

func NewDispatcher(ctx *RuntimeContext, services Services) *Dispatcher {
	d := &Dispatcher{ctx: ctx, services: services}
	d.handlers = map[envelope.Kind]envelopeHandler{
		envelope.FriendRequest:   d.friendRequest,
		envelope.FriendAccept:    d.friendAccept,
		envelope.FriendAcceptAck: d.friendAcceptAck,
		envelope.ChatMessage:     d.chatMessage,
		envelope.TypingIndicator: d.typing,
		envelope.DeliveryReceipt: d.receipt,
		envelope.CommunityEvent:  d.communityEvent,
		envelope.DmFileEvent:     d.fileEvent,
		envelope.AccountMetadata: d.accountMetadata,
	}
	return d
}

// Dispatch parses payload and hands it to its service. Envelopes from blocked DIDs are dropped
// with UserBlocked before anything is stored
func (d *Dispatcher) Dispatch(fromDid, payload string) error {
	env, err := envelope.Parse([]byte(payload))
	if err != nil {
		return err
	}
	if env.Envelope != envelope.AccountMetadata {
		storage, err := d.ctx.Storage()
		if err != nil {
			return err
		}
		blocked, err := storage.GetFriendRepository().IsBlocked(fromDid)
		if err != nil {
			return dbError(err)
		}
		if blocked {
			return apperr.New(apperr.UserBlocked, "%s is blocked", fromDid)
		}
	}
	return d.handlers[env.Envelope](fromDid, env)
}

// sender checks that the DID a payload claims matches the relay-authenticated sender
func sender(claimed, fromDid string) error {
	if claimed != fromDid {
		return apperr.New(apperr.DidMismatch, "payload claims %s but was sent by %s", claimed, fromDid)
	}
	return nil
}

func (d *Dispatcher) friendRequest(fromDid string, env *envelope.Envelope) error {
	if d.services.Friends == nil {
		return nil
	}
	var payload envelope.FriendRequestPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if err := sender(payload.FromDid, fromDid); err != nil {
		return err
	}
	_, err := d.services.Friends.HandleRequest(&payload)
	return err
}

func (d *Dispatcher) friendAccept(fromDid string, env *envelope.Envelope) error {
	if d.services.Friends == nil {
		return nil
	}
	var payload envelope.FriendAcceptPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if err := sender(payload.FromDid, fromDid); err != nil {
		return err
	}
	_, ack, err := d.services.Friends.HandleAccept(&payload)
	if err != nil {
		return err
	}
	if ack != nil {
		deliver(d.ctx, *ack)
	}
	return nil
}

func (d *Dispatcher) friendAcceptAck(fromDid string, env *envelope.Envelope) error {
	if d.services.Friends == nil {
		return nil
	}
	var payload envelope.FriendAcceptAckPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if err := sender(payload.FromDid, fromDid); err != nil {
		return err
	}
	return d.services.Friends.HandleAcceptAck(&payload)
}

func (d *Dispatcher) chatMessage(fromDid string, env *envelope.Envelope) error {
	if d.services.Messages == nil {
		return nil
	}
	var payload envelope.ChatMessagePayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	_, err := d.services.Messages.Receive(fromDid, &payload)
	return err
}

func (d *Dispatcher) typing(fromDid string, env *envelope.Envelope) error {
	if d.services.Messages == nil {
		return nil
	}
	var payload envelope.TypingIndicatorPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return d.services.Messages.HandleTyping(fromDid, &payload)
}

func (d *Dispatcher) receipt(fromDid string, env *envelope.Envelope) error {
	if d.services.Messages == nil {
		return nil
	}
	var payload envelope.DeliveryReceiptPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return d.services.Messages.HandleReceipt(fromDid, &payload)
}

func (d *Dispatcher) communityEvent(fromDid string, env *envelope.Envelope) error {
	var payload envelope.CommunityEventPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if err := sender(payload.SenderDid, fromDid); err != nil {
		return err
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload.Event, &head); err != nil {
		return apperr.Wrap(apperr.ProtocolError, err, "community event from %s", fromDid)
	}

	switch head.Type {
	case CommunityEventKeyShare:
		if d.services.Keys != nil {
			return d.services.Keys.HandleKeyShare(fromDid, &payload)
		}
	case CommunityEventMessage:
		if d.services.Channels != nil {
			return d.services.Channels.HandleRemote(fromDid, &payload)
		}
	default:
		d.ctx.Publish(DomainCommunity, EventCommunityEvent, &payload)
	}
	return nil
}

func (d *Dispatcher) fileEvent(fromDid string, env *envelope.Envelope) error {
	if d.services.Transfers == nil {
		return nil
	}
	var payload envelope.MetadataPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return d.services.Transfers.Handle(context.Background(), fromDid, &payload)
}

// accountMetadata stores settings synced by our own other devices
func (d *Dispatcher) accountMetadata(fromDid string, env *envelope.Envelope) error {
	id, err := d.ctx.Identity()
	if err != nil {
		return err
	}
	if err := sender(id.Did(), fromDid); err != nil {
		return err
	}
	var payload envelope.MetadataPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if payload.Key == "" {
		return apperr.New(apperr.InvalidInput, "account metadata without key")
	}
	storage, err := d.ctx.Storage()
	if err != nil {
		return err
	}
	if err := storage.GetLocalRepository().PluginSet(AccountMetadataPlugin, payload.Key, string(payload.Value)); err != nil {
		return dbError(err)
	}
	d.ctx.Publish(DomainIdentity, EventAccountMetadata, &payload)
	return nil
}
