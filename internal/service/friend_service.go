/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
	"github.com/InfamousVague/umbra/internal/identity"
	"github.com/fxamacker/cbor/v2"
	"gorm.io/gorm"
)

// Friend events
const (
	EventFriendRequestSent     = "friendRequestSent"
	EventFriendRequestReceived = "friendRequestReceived"
	EventFriendRequestRejected = "friendRequestRejected"
	EventFriendRequestCanceled = "friendRequestCancelled"
	EventFriendAdded           = "friendAdded"
	EventFriendRemoved         = "friendRemoved"
	EventFriendSyncConfirmed   = "friendSyncConfirmed"
	EventUserBlocked           = "userBlocked"
	EventUserUnblocked         = "userUnblocked"
)

const FriendRequestTTL = 7 * 24 * time.Hour

// Core Deterministic Encoding: map keys sorted, shortest integer forms, so both sides produce the same bytes
var canonical = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

type signedRequest struct {
	Id        string `cbor:"id"`
	FromDid   string `cbor:"from_did"`
	ToDid     string `cbor:"to_did"`
	Message   string `cbor:"message"`
	CreatedAt int64  `cbor:"created_at"`
}

// RequestSigningBytes returns the bytes a friend request signature covers
func RequestSigningBytes(id, fromDid, toDid, message string, createdAt int64) ([]byte, error) {
	return canonical.Marshal(signedRequest{id, fromDid, toDid, message, createdAt})
}

type FriendService interface {
	SendRequest(toDid string, message *string) (*entity.FriendRequest, *Outgoing, error)   // Signs and stores an outgoing request, returning its envelope
	HandleRequest(payload *envelope.FriendRequestPayload) (*entity.FriendRequest, error)   // Verifies and stores an incoming request
	Accept(requestId string) (*entity.Friend, *Outgoing, error)                            // Accepts an incoming request, returning the friend_accept envelope
	HandleAccept(payload *envelope.FriendAcceptPayload) (*entity.Friend, *Outgoing, error) // Completes an outgoing request, returning the friend_accept_ack envelope
	HandleAcceptAck(payload *envelope.FriendAcceptAckPayload) error                        // Confirms that the other side stored the friendship
	Reject(requestId string) error                                                         // Rejects an incoming request
	Cancel(requestId string) error                                                         // Withdraws an outgoing request
	Unfriend(did string) error                                                             // Removes a friend
	Block(did, reason string) error                                                        // Blocks a DID, removing it from the friends
	Unblock(did string) error                                                              // Unblocks a DID
	ListFriends() ([]*entity.Friend, error)                                                // Retrieves every friend
	ListRequests(direction string) ([]*entity.FriendRequest, error)                        // Retrieves pending requests in a direction
	ListBlocked() ([]*entity.BlockedUser, error)                                           // Retrieves the block list
	ExpireRequests() (int, error)                                                          // Marks pending requests older than FriendRequestTTL as expired
}

type friendService struct {
	ctx *RuntimeContext
}

func NewFriendService(ctx *RuntimeContext) FriendService {
	return &friendService{ctx}
}

func (s *friendService) SendRequest(toDid string, message *string) (*entity.FriendRequest, *Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	friends := storage.GetFriendRepository()

	if toDid == id.Did() {
		return nil, nil, apperr.New(apperr.SelfRequest, "cannot send a friend request to yourself")
	}
	if _, err := identity.PublicKeyFromDid(toDid); err != nil {
		return nil, nil, apperr.Wrap(apperr.RequestMalformed, err, "invalid recipient %s", toDid)
	}
	if blocked, err := friends.IsBlocked(toDid); err != nil {
		return nil, nil, dbError(err)
	} else if blocked {
		return nil, nil, apperr.New(apperr.UserBlocked, "%s is blocked", toDid)
	}
	if isFriend, err := friends.IsFriend(toDid); err != nil {
		return nil, nil, dbError(err)
	} else if isFriend {
		return nil, nil, apperr.New(apperr.AlreadyFriends, "already friends with %s", toDid)
	}
	if _, err := friends.PendingWith(toDid); err == nil {
		return nil, nil, apperr.New(apperr.RequestPending, "a request with %s is already pending", toDid)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, dbError(err)
	}

	text := ""
	if message != nil {
		text = *message
	}
	now := s.ctx.NowMillis()
	public := id.Public()
	req := &entity.FriendRequest{
		Id:                newId(),
		Direction:         entity.RequestOutgoing,
		FromDid:           public.Did,
		ToDid:             toDid,
		FromDisplayName:   public.DisplayName,
		FromAvatar:        public.Avatar,
		FromSigningKey:    public.SigningPub,
		FromEncryptionKey: public.EncryptionPub,
		Message:           text,
		Status:            entity.RequestPending,
		CreatedAt:         now,
	}
	signed, err := RequestSigningBytes(req.Id, req.FromDid, req.ToDid, text, now)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.RequestMalformed, err, "encoding request")
	}
	req.Signature = hex.EncodeToString(id.Keys().Signing.Sign(signed))

	if err := friends.SaveRequest(req); err != nil {
		return nil, nil, dbError(err)
	}

	payload, err := envelope.Build(envelope.FriendRequest, envelope.FriendRequestPayload{
		Id:                req.Id,
		FromDid:           req.FromDid,
		FromDisplayName:   req.FromDisplayName,
		FromAvatar:        req.FromAvatar,
		FromSigningKey:    req.FromSigningKey,
		FromEncryptionKey: req.FromEncryptionKey,
		Message:           message,
		CreatedAt:         now,
		Signature:         req.Signature,
	})
	if err != nil {
		return nil, nil, err
	}
	out := &Outgoing{toDid, payload}
	deliver(s.ctx, *out)

	s.ctx.Publish(DomainFriend, EventFriendRequestSent, req)
	return req, out, nil
}

// verifyRequest checks the DID binding, the signature and the age of an incoming request
func (s *friendService) verifyRequest(payload *envelope.FriendRequestPayload, ourDid string, now int64) error {
	sender := identity.PublicIdentity{
		Did:           payload.FromDid,
		SigningPub:    payload.FromSigningKey,
		EncryptionPub: payload.FromEncryptionKey,
	}
	if _, _, err := sender.Keys(); err != nil {
		return apperr.Wrap(apperr.RequestMalformed, err, "request %s carries invalid keys", payload.Id)
	}
	if err := sender.ValidateDid(); err != nil {
		return err
	}
	if payload.Signature == "" {
		return apperr.New(apperr.InvalidSignature, "request %s is not signed", payload.Id)
	}
	signature, err := hex.DecodeString(payload.Signature)
	if err != nil {
		return apperr.Wrap(apperr.InvalidSignature, err, "request %s signature is not hex", payload.Id)
	}
	message := ""
	if payload.Message != nil {
		message = *payload.Message
	}
	signed, err := RequestSigningBytes(payload.Id, payload.FromDid, ourDid, message, payload.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.RequestMalformed, err, "encoding request")
	}
	signingKey, _ := crypto.DecodeKey(payload.FromSigningKey)
	if err := crypto.Verify(signingKey, signed, signature); err != nil {
		return err
	}
	if now-payload.CreatedAt > FriendRequestTTL.Milliseconds() {
		return apperr.New(apperr.RequestExpired, "request %s has expired", payload.Id)
	}
	return nil
}

func (s *friendService) HandleRequest(payload *envelope.FriendRequestPayload) (*entity.FriendRequest, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	friends := storage.GetFriendRepository()

	if payload.Id == "" || payload.FromDid == "" {
		return nil, apperr.New(apperr.RequestMalformed, "request without id or sender")
	}
	if payload.FromDid == id.Did() {
		return nil, apperr.New(apperr.SelfRequest, "request %s was sent by ourselves", payload.Id)
	}
	if blocked, err := friends.IsBlocked(payload.FromDid); err != nil {
		return nil, dbError(err)
	} else if blocked {
		return nil, apperr.New(apperr.UserBlocked, "dropping request from blocked %s", payload.FromDid)
	}
	if existing, err := friends.GetRequest(payload.Id); err == nil {
		return existing, nil
	}

	now := s.ctx.NowMillis()
	if err := s.verifyRequest(payload, id.Did(), now); err != nil {
		return nil, err
	}
	if isFriend, err := friends.IsFriend(payload.FromDid); err != nil {
		return nil, dbError(err)
	} else if isFriend {
		return nil, apperr.New(apperr.AlreadyFriends, "already friends with %s", payload.FromDid)
	}

	message := ""
	if payload.Message != nil {
		message = *payload.Message
	}
	req := &entity.FriendRequest{
		Id:                payload.Id,
		Direction:         entity.RequestIncoming,
		FromDid:           payload.FromDid,
		ToDid:             id.Did(),
		FromDisplayName:   payload.FromDisplayName,
		FromAvatar:        payload.FromAvatar,
		FromSigningKey:    payload.FromSigningKey,
		FromEncryptionKey: payload.FromEncryptionKey,
		Message:           message,
		Signature:         payload.Signature,
		Status:            entity.RequestPending,
		CreatedAt:         payload.CreatedAt,
	}
	if err := friends.SaveRequest(req); err != nil {
		return nil, dbError(err)
	}

	s.ctx.Logf("Friend request %s from %s", req.Id, req.FromDid)
	s.ctx.Publish(DomainFriend, EventFriendRequestReceived, req)
	return req, nil
}

func (s *friendService) Accept(requestId string) (*entity.Friend, *Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	friends := storage.GetFriendRepository()

	req, err := friends.GetRequest(requestId)
	if err != nil {
		return nil, nil, notFound(err, apperr.RequestNotFound, "request %s not found", requestId)
	}
	if req.Direction != entity.RequestIncoming || req.Status != entity.RequestPending {
		return nil, nil, apperr.New(apperr.RequestNotFound, "no pending incoming request %s", requestId)
	}

	now := s.ctx.NowMillis()
	if now-req.CreatedAt > FriendRequestTTL.Milliseconds() {
		if err := friends.SetRequestStatus(req.Id, entity.RequestExpired, now); err != nil {
			return nil, nil, dbError(err)
		}
		return nil, nil, apperr.New(apperr.RequestExpired, "request %s has expired", requestId)
	}
	friend := &entity.Friend{
		Did:           req.FromDid,
		DisplayName:   req.FromDisplayName,
		SigningKey:    req.FromSigningKey,
		EncryptionKey: req.FromEncryptionKey,
		Avatar:        req.FromAvatar,
		AddedAt:       now,
	}
	if err := friends.AcceptRequest(req.Id, friend, dmConversation(id.Did(), friend.Did, now), now); err != nil {
		return nil, nil, dbError(err)
	}

	public := id.Public()
	payload, err := envelope.Build(envelope.FriendAccept, envelope.FriendAcceptPayload{
		RequestId:         req.Id,
		FromDid:           public.Did,
		FromDisplayName:   public.DisplayName,
		FromAvatar:        public.Avatar,
		FromSigningKey:    public.SigningPub,
		FromEncryptionKey: public.EncryptionPub,
	})
	if err != nil {
		return nil, nil, err
	}
	out := &Outgoing{friend.Did, payload}
	deliver(s.ctx, *out)

	s.ctx.Publish(DomainFriend, EventFriendAdded, friend)
	return friend, out, nil
}

func (s *friendService) HandleAccept(payload *envelope.FriendAcceptPayload) (*entity.Friend, *Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	friends := storage.GetFriendRepository()

	req, err := friends.GetRequest(payload.RequestId)
	if err != nil {
		return nil, nil, notFound(err, apperr.RequestNotFound, "request %s not found", payload.RequestId)
	}
	if req.Direction != entity.RequestOutgoing || req.ToDid != payload.FromDid {
		return nil, nil, apperr.New(apperr.RequestNotFound, "no outgoing request %s to %s", payload.RequestId, payload.FromDid)
	}

	accepter := identity.PublicIdentity{
		Did:           payload.FromDid,
		SigningPub:    payload.FromSigningKey,
		EncryptionPub: payload.FromEncryptionKey,
	}
	if _, _, err := accepter.Keys(); err != nil {
		return nil, nil, apperr.Wrap(apperr.RequestMalformed, err, "accept of %s carries invalid keys", payload.RequestId)
	}
	if err := accepter.ValidateDid(); err != nil {
		return nil, nil, err
	}

	now := s.ctx.NowMillis()
	friend := &entity.Friend{
		Did:           payload.FromDid,
		DisplayName:   payload.FromDisplayName,
		SigningKey:    payload.FromSigningKey,
		EncryptionKey: payload.FromEncryptionKey,
		Avatar:        payload.FromAvatar,
		AddedAt:       now,
	}
	if err := friends.AcceptRequest(req.Id, friend, dmConversation(id.Did(), friend.Did, now), now); err != nil {
		return nil, nil, dbError(err)
	}

	ack, err := envelope.Build(envelope.FriendAcceptAck, envelope.FriendAcceptAckPayload{FromDid: id.Did(), ToDid: friend.Did})
	if err != nil {
		return nil, nil, err
	}
	out := &Outgoing{friend.Did, ack}
	deliver(s.ctx, *out)

	s.ctx.Publish(DomainFriend, EventFriendAdded, friend)
	return friend, out, nil
}

func (s *friendService) HandleAcceptAck(payload *envelope.FriendAcceptAckPayload) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	isFriend, err := storage.GetFriendRepository().IsFriend(payload.FromDid)
	if err != nil {
		return dbError(err)
	}
	if !isFriend {
		return apperr.New(apperr.NotFriends, "ack from %s who is not a friend", payload.FromDid)
	}
	s.ctx.Publish(DomainFriend, EventFriendSyncConfirmed, payload)
	return nil
}

// respond moves a pending request of the given direction to status
func (s *friendService) respond(requestId, direction, status, event string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	friends := storage.GetFriendRepository()

	req, err := friends.GetRequest(requestId)
	if err != nil {
		return notFound(err, apperr.RequestNotFound, "request %s not found", requestId)
	}
	if req.Direction != direction || req.Status != entity.RequestPending {
		return apperr.New(apperr.RequestNotFound, "no pending %s request %s", direction, requestId)
	}
	if err := friends.SetRequestStatus(requestId, status, s.ctx.NowMillis()); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainFriend, event, requestId)
	return nil
}

func (s *friendService) Reject(requestId string) error {
	return s.respond(requestId, entity.RequestIncoming, entity.RequestRejected, EventFriendRequestRejected)
}

func (s *friendService) Cancel(requestId string) error {
	return s.respond(requestId, entity.RequestOutgoing, entity.RequestCancelled, EventFriendRequestCanceled)
}

func (s *friendService) Unfriend(did string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	removed, err := storage.GetFriendRepository().RemoveFriend(did)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.NotFriends, "%s is not a friend", did)
	}
	s.ctx.Publish(DomainFriend, EventFriendRemoved, did)
	return nil
}

func (s *friendService) Block(did, reason string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	friends := storage.GetFriendRepository()
	if err := friends.Block(did, reason, s.ctx.NowMillis()); err != nil {
		return dbError(err)
	}
	if _, err := friends.RemoveFriend(did); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainFriend, EventUserBlocked, did)
	return nil
}

func (s *friendService) Unblock(did string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	unblocked, err := storage.GetFriendRepository().Unblock(did)
	if err != nil {
		return dbError(err)
	}
	if !unblocked {
		return apperr.New(apperr.NotFound, "%s is not blocked", did)
	}
	s.ctx.Publish(DomainFriend, EventUserUnblocked, did)
	return nil
}

func (s *friendService) ListFriends() ([]*entity.Friend, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	friends, err := storage.GetFriendRepository().ListFriends()
	return friends, dbError(err)
}

func (s *friendService) ListRequests(direction string) ([]*entity.FriendRequest, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	reqs, err := storage.GetFriendRepository().ListRequests(direction, entity.RequestPending)
	return reqs, dbError(err)
}

func (s *friendService) ListBlocked() ([]*entity.BlockedUser, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	blocked, err := storage.GetFriendRepository().ListBlocked()
	return blocked, dbError(err)
}

func (s *friendService) ExpireRequests() (int, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return 0, err
	}
	friends := storage.GetFriendRepository()

	pending, err := friends.ListRequests("", entity.RequestPending)
	if err != nil {
		return 0, dbError(err)
	}
	now := s.ctx.NowMillis()
	expired := 0
	for _, req := range pending {
		if now-req.CreatedAt <= FriendRequestTTL.Milliseconds() {
			continue
		}
		if err := friends.SetRequestStatus(req.Id, entity.RequestExpired, now); err != nil {
			return expired, dbError(err)
		}
		expired++
	}
	if expired > 0 {
		s.ctx.Logf("Expired %d friend requests", expired)
	}
	return expired, nil
}
