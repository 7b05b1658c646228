/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
	"gorm.io/gorm"
)

// Message events
const (
	EventMessageSent          = "messageSent"
	EventMessageReceived      = "messageReceived"
	EventMessageEdited        = "messageEdited"
	EventMessageDeleted       = "messageDeleted"
	EventMessagePinned        = "messagePinned"
	EventMessageUnpinned      = "messageUnpinned"
	EventReactionAdded        = "reactionAdded"
	EventReactionRemoved      = "reactionRemoved"
	EventConversationRead     = "conversationRead"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventTypingIndicator      = "typingIndicator"
)

// MaxMessageSize bounds the plaintext of a direct message
const MaxMessageSize = 64 * 1024

// ConversationId derives the DM conversation id of two DIDs. Both sides compute the same value
func ConversationId(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:16])
}

func dmConversation(ours, friendDid string, now int64) *entity.Conversation {
	return &entity.Conversation{
		Id:        ConversationId(ours, friendDid),
		Type:      entity.ConversationDM,
		FriendDid: ptr(friendDid),
		CreatedAt: now,
	}
}

// messageAAD binds a ciphertext to its sender, its recipient and its timestamp
func messageAAD(senderDid, recipientDid string, timestamp int64) []byte {
	return []byte(senderDid + recipientDid + strconv.FormatInt(timestamp, 10))
}

// DecryptedMessage is a stored message together with its plaintext
type DecryptedMessage struct {
	entity.Message
	Text string `json:"text"`
}

type MessageService interface {
	ListConversations() ([]*entity.Conversation, error)                                      // Retrieves every conversation
	Send(conversationId, text string, replyTo *string) (*entity.Message, *Outgoing, error)   // Encrypts, stores and relays a message
	Receive(fromDid string, payload *envelope.ChatMessagePayload) (*DecryptedMessage, error) // Decrypts and stores an incoming chat_message
	Messages(conversationId string, limit, offset int) ([]*DecryptedMessage, error)          // Retrieves and decrypts a page of messages
	Thread(parentId string) ([]*DecryptedMessage, error)                                     // Retrieves and decrypts the replies to a message
	Edit(messageId, text string) (*entity.Message, error)                                    // Re-encrypts one of our messages with new text
	Delete(messageId string) error                                                           // Soft deletes one of our messages
	ToggleReaction(messageId, emoji string) (bool, error)                                    // Adds our reaction, or removes it when present. Returns whether it was added
	Reactions(messageId string) ([]*entity.Reaction, error)                                  // Retrieves the reactions of a message
	Pin(messageId string) error                                                              // Pins a message
	Unpin(messageId string) error                                                            // Unpins a message
	Pinned(conversationId string) ([]*DecryptedMessage, error)                               // Retrieves the pinned messages
	MarkRead(conversationId string) (int64, error)                                           // Marks the whole conversation read
	SendReceipt(messageId string, kind envelope.ReceiptType) (*Outgoing, error)              // Tells the sender that a message was delivered or read
	HandleReceipt(fromDid string, payload *envelope.DeliveryReceiptPayload) error            // Applies a receipt to one of our messages
	SendTyping(conversationId string, typing bool) (*Outgoing, error)                        // Tells the friend we are typing
	HandleTyping(fromDid string, payload *envelope.TypingIndicatorPayload) error             // Surfaces the typing state of a friend
}

type messageService struct {
	ctx *RuntimeContext
}

func NewMessageService(ctx *RuntimeContext) MessageService {
	return &messageService{ctx}
}

// friendKey returns the encryption public key of a friend
func friendKey(storage *data.StorageManager, did string) ([]byte, error) {
	friend, err := storage.GetFriendRepository().GetFriend(did)
	if err != nil {
		return nil, notFound(err, apperr.NotFriends, "%s is not a friend", did)
	}
	key, err := crypto.DecodeKey(friend.EncryptionKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidKey, err, "encryption key of %s", did)
	}
	return key, nil
}

// peerOf returns the friend of a DM conversation
func peerOf(storage *data.StorageManager, conversationId string) (string, error) {
	conv, err := storage.GetMessageRepository().GetConversation(conversationId)
	if err != nil {
		return "", notFound(err, apperr.ConversationNotFound, "conversation %s not found", conversationId)
	}
	if conv.FriendDid == nil {
		return "", apperr.New(apperr.ConversationNotFound, "conversation %s has no friend", conversationId)
	}
	return *conv.FriendDid, nil
}

func (s *messageService) ListConversations() ([]*entity.Conversation, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	convs, err := storage.GetMessageRepository().ListConversations()
	return convs, dbError(err)
}

func (s *messageService) Send(conversationId, text string, replyTo *string) (*entity.Message, *Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	if len(text) > MaxMessageSize {
		return nil, nil, apperr.New(apperr.MessageTooLarge, "message is %d bytes, limit is %d", len(text), MaxMessageSize)
	}

	friendDid, err := peerOf(storage, conversationId)
	if err != nil {
		return nil, nil, err
	}
	theirKey, err := friendKey(storage, friendDid)
	if err != nil {
		return nil, nil, err
	}

	now := s.ctx.NowMillis()
	nonce, ciphertext, err := crypto.EncryptForRecipient(
		id.Keys().Encryption, theirKey, []byte(conversationId), []byte(text), messageAAD(id.Did(), friendDid, now),
	)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.EncryptionFailed, err, "encrypting message")
	}

	msg := &entity.Message{
		Id:               newId(),
		ConversationId:   conversationId,
		SenderDid:        id.Did(),
		ContentEncrypted: hex.EncodeToString(ciphertext),
		Nonce:            hex.EncodeToString(nonce),
		Timestamp:        now,
		ReplyToId:        replyTo,
	}
	if err := storage.GetMessageRepository().Store(msg, false); err != nil {
		return nil, nil, dbError(err)
	}

	chat := envelope.ChatMessagePayload{
		MessageId:        msg.Id,
		ConversationId:   conversationId,
		SenderDid:        msg.SenderDid,
		ContentEncrypted: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:            msg.Nonce,
		Timestamp:        now,
	}
	if replyTo != nil {
		chat.ThreadId = *replyTo
	}
	payload, err := envelope.Build(envelope.ChatMessage, chat)
	if err != nil {
		return nil, nil, err
	}
	out := &Outgoing{friendDid, payload}
	deliver(s.ctx, *out)

	s.ctx.Publish(DomainMessage, EventMessageSent, &DecryptedMessage{*msg, text})
	return msg, out, nil
}

func (s *messageService) Receive(fromDid string, payload *envelope.ChatMessagePayload) (*DecryptedMessage, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	messages := storage.GetMessageRepository()

	if fromDid != "" && payload.SenderDid != fromDid {
		return nil, apperr.New(apperr.ProtocolError, "message %s claims sender %s but came from %s", payload.MessageId, payload.SenderDid, fromDid)
	}
	if blocked, err := storage.GetFriendRepository().IsBlocked(payload.SenderDid); err != nil {
		return nil, dbError(err)
	} else if blocked {
		return nil, apperr.New(apperr.UserBlocked, "dropping message from blocked %s", payload.SenderDid)
	}
	theirKey, err := friendKey(storage, payload.SenderDid)
	if err != nil {
		return nil, err
	}
	conversationId := ConversationId(id.Did(), payload.SenderDid)
	if payload.ConversationId != conversationId {
		return nil, apperr.New(apperr.ConversationNotFound, "message %s names conversation %s", payload.MessageId, payload.ConversationId)
	}

	if existing, err := messages.Get(payload.MessageId); err == nil {
		return s.decrypt(storage, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload.ContentEncrypted)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "content of %s is not base64", payload.MessageId)
	}
	nonce, err := hex.DecodeString(payload.Nonce)
	if err != nil || len(nonce) != crypto.NonceSize {
		return nil, apperr.New(apperr.DecryptionFailed, "nonce of %s must be %d hex bytes", payload.MessageId, crypto.NonceSize)
	}
	plaintext, err := crypto.DecryptFromSender(
		id.Keys().Encryption, theirKey, []byte(conversationId), nonce, ciphertext,
		messageAAD(payload.SenderDid, id.Did(), payload.Timestamp),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "decrypting %s", payload.MessageId)
	}

	now := s.ctx.NowMillis()
	if err := messages.EnsureConversation(dmConversation(id.Did(), payload.SenderDid, now)); err != nil {
		return nil, dbError(err)
	}
	msg := &entity.Message{
		Id:               payload.MessageId,
		ConversationId:   conversationId,
		SenderDid:        payload.SenderDid,
		ContentEncrypted: hex.EncodeToString(ciphertext),
		Nonce:            payload.Nonce,
		Timestamp:        payload.Timestamp,
		Delivered:        true,
	}
	if payload.ThreadId != "" {
		msg.ReplyToId = ptr(payload.ThreadId)
	}
	if err := messages.Store(msg, true); err != nil {
		return nil, dbError(err)
	}

	received := &DecryptedMessage{*msg, string(plaintext)}
	s.ctx.Publish(DomainMessage, EventMessageReceived, received)
	if _, err := s.SendReceipt(msg.Id, envelope.ReceiptDelivered); err != nil {
		s.ctx.Logf("Could not acknowledge %s: %v", msg.Id, err)
	}
	return received, nil
}

// decrypt opens a stored message. Both directions use the same conversation key,
// the AAD always names the sender first
func (s *messageService) decrypt(storage *data.StorageManager, msg *entity.Message) (*DecryptedMessage, error) {
	if msg.Deleted {
		return &DecryptedMessage{*msg, ""}, nil
	}
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	friendDid, err := peerOf(storage, msg.ConversationId)
	if err != nil {
		return nil, err
	}
	theirKey, err := friendKey(storage, friendDid)
	if err != nil {
		return nil, err
	}

	recipient := id.Did()
	if msg.SenderDid == id.Did() {
		recipient = friendDid
	}
	at := msg.Timestamp
	if msg.Edited && msg.EditedAt != nil {
		at = *msg.EditedAt
	}

	ciphertext, err := hex.DecodeString(msg.ContentEncrypted)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "stored content of %s", msg.Id)
	}
	nonce, err := hex.DecodeString(msg.Nonce)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "stored nonce of %s", msg.Id)
	}
	plaintext, err := crypto.DecryptFromSender(
		id.Keys().Encryption, theirKey, []byte(msg.ConversationId), nonce, ciphertext,
		messageAAD(msg.SenderDid, recipient, at),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "decrypting %s", msg.Id)
	}
	return &DecryptedMessage{*msg, string(plaintext)}, nil
}

func (s *messageService) decryptAll(storage *data.StorageManager, msgs []*entity.Message) ([]*DecryptedMessage, error) {
	out := make([]*DecryptedMessage, 0, len(msgs))
	for _, msg := range msgs {
		decrypted, err := s.decrypt(storage, msg)
		if err != nil {
			return nil, err
		}
		out = append(out, decrypted)
	}
	return out, nil
}

func (s *messageService) Messages(conversationId string, limit, offset int) ([]*DecryptedMessage, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	msgs, err := storage.GetMessageRepository().List(conversationId, limit, offset)
	if err != nil {
		return nil, dbError(err)
	}
	return s.decryptAll(storage, msgs)
}

func (s *messageService) Thread(parentId string) ([]*DecryptedMessage, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	msgs, err := storage.GetMessageRepository().Replies(parentId)
	if err != nil {
		return nil, dbError(err)
	}
	return s.decryptAll(storage, msgs)
}

// ownMessage loads a message and checks that we sent it
func (s *messageService) ownMessage(storage *data.StorageManager, messageId, action string) (*entity.Message, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	msg, err := storage.GetMessageRepository().Get(messageId)
	if err != nil {
		return nil, notFound(err, apperr.NotFound, "message %s not found", messageId)
	}
	if msg.SenderDid != id.Did() {
		return nil, apperr.New(apperr.PermissionDenied, "only the sender can %s message %s", action, messageId)
	}
	return msg, nil
}

func (s *messageService) Edit(messageId, text string) (*entity.Message, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	msg, err := s.ownMessage(storage, messageId, "edit")
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, apperr.New(apperr.NotFound, "message %s was deleted", messageId)
	}
	if len(text) > MaxMessageSize {
		return nil, apperr.New(apperr.MessageTooLarge, "message is %d bytes, limit is %d", len(text), MaxMessageSize)
	}
	friendDid, err := peerOf(storage, msg.ConversationId)
	if err != nil {
		return nil, err
	}
	theirKey, err := friendKey(storage, friendDid)
	if err != nil {
		return nil, err
	}

	editedAt := s.ctx.NowMillis()
	nonce, ciphertext, err := crypto.EncryptForRecipient(
		id.Keys().Encryption, theirKey, []byte(msg.ConversationId), []byte(text), messageAAD(id.Did(), friendDid, editedAt),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.EncryptionFailed, err, "encrypting edit")
	}
	if err := storage.GetMessageRepository().Edit(messageId, hex.EncodeToString(ciphertext), hex.EncodeToString(nonce), editedAt); err != nil {
		return nil, dbError(err)
	}

	msg.ContentEncrypted = hex.EncodeToString(ciphertext)
	msg.Nonce = hex.EncodeToString(nonce)
	msg.Edited = true
	msg.EditedAt = &editedAt
	s.ctx.Publish(DomainMessage, EventMessageEdited, &DecryptedMessage{*msg, text})
	return msg, nil
}

func (s *messageService) Delete(messageId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := s.ownMessage(storage, messageId, "delete"); err != nil {
		return err
	}
	if err := storage.GetMessageRepository().SoftDelete(messageId, s.ctx.NowMillis()); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainMessage, EventMessageDeleted, messageId)
	return nil
}

func (s *messageService) ToggleReaction(messageId, emoji string) (bool, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return false, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return false, err
	}
	messages := storage.GetMessageRepository()
	if _, err := messages.Get(messageId); err != nil {
		return false, notFound(err, apperr.NotFound, "message %s not found", messageId)
	}

	added, err := messages.AddReaction(&entity.Reaction{
		Id:        newId(),
		MessageId: messageId,
		UserDid:   id.Did(),
		Emoji:     emoji,
		CreatedAt: s.ctx.NowMillis(),
	})
	if err != nil {
		return false, dbError(err)
	}
	if added {
		s.ctx.Publish(DomainMessage, EventReactionAdded, map[string]string{"message_id": messageId, "emoji": emoji})
		return true, nil
	}
	if _, err := messages.RemoveReaction(messageId, id.Did(), emoji); err != nil {
		return false, dbError(err)
	}
	s.ctx.Publish(DomainMessage, EventReactionRemoved, map[string]string{"message_id": messageId, "emoji": emoji})
	return false, nil
}

func (s *messageService) Reactions(messageId string) ([]*entity.Reaction, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	reactions, err := storage.GetMessageRepository().Reactions(messageId)
	return reactions, dbError(err)
}

func (s *messageService) setPinned(messageId string, pinned bool, event string) error {
	id, err := s.ctx.Identity()
	if err != nil {
		return err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if err := storage.GetMessageRepository().SetPinned(messageId, pinned, id.Did(), s.ctx.NowMillis()); err != nil {
		return notFound(err, apperr.NotFound, "message %s not found", messageId)
	}
	s.ctx.Publish(DomainMessage, event, messageId)
	return nil
}

func (s *messageService) Pin(messageId string) error {
	return s.setPinned(messageId, true, EventMessagePinned)
}

func (s *messageService) Unpin(messageId string) error {
	return s.setPinned(messageId, false, EventMessageUnpinned)
}

func (s *messageService) Pinned(conversationId string) ([]*DecryptedMessage, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	msgs, err := storage.GetMessageRepository().Pinned(conversationId)
	if err != nil {
		return nil, dbError(err)
	}
	return s.decryptAll(storage, msgs)
}

func (s *messageService) MarkRead(conversationId string) (int64, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return 0, err
	}
	count, err := storage.GetMessageRepository().MarkConversationRead(conversationId)
	if err != nil {
		return 0, dbError(err)
	}
	s.ctx.Publish(DomainMessage, EventConversationRead, conversationId)
	return count, nil
}

func (s *messageService) SendReceipt(messageId string, kind envelope.ReceiptType) (*Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	msg, err := storage.GetMessageRepository().Get(messageId)
	if err != nil {
		return nil, notFound(err, apperr.NotFound, "message %s not found", messageId)
	}
	if msg.SenderDid == id.Did() {
		return nil, apperr.New(apperr.InvalidInput, "message %s is ours", messageId)
	}
	if kind == envelope.ReceiptRead {
		if err := storage.GetMessageRepository().MarkRead(messageId); err != nil {
			return nil, dbError(err)
		}
	}

	payload, err := envelope.Build(envelope.DeliveryReceipt, envelope.DeliveryReceiptPayload{
		MessageId: messageId,
		SenderDid: id.Did(),
		Type:      kind,
	})
	if err != nil {
		return nil, err
	}
	out := &Outgoing{msg.SenderDid, payload}
	deliver(s.ctx, *out)
	return out, nil
}

func (s *messageService) HandleReceipt(fromDid string, payload *envelope.DeliveryReceiptPayload) error {
	id, err := s.ctx.Identity()
	if err != nil {
		return err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	messages := storage.GetMessageRepository()

	msg, err := messages.Get(payload.MessageId)
	if err != nil {
		return notFound(err, apperr.NotFound, "receipt for unknown message %s", payload.MessageId)
	}
	if msg.SenderDid != id.Did() || ConversationId(id.Did(), fromDid) != msg.ConversationId {
		return apperr.New(apperr.ProtocolError, "%s cannot acknowledge message %s", fromDid, payload.MessageId)
	}

	switch payload.Type {
	case envelope.ReceiptDelivered:
		err = messages.MarkDelivered(msg.Id)
	case envelope.ReceiptRead:
		err = messages.MarkRead(msg.Id)
	default:
		return apperr.New(apperr.ProtocolError, "unknown receipt type %q", payload.Type)
	}
	if err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainMessage, EventMessageStatusUpdated, map[string]string{"message_id": msg.Id, "status": string(payload.Type)})
	return nil
}

func (s *messageService) SendTyping(conversationId string, typing bool) (*Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	friendDid, err := peerOf(storage, conversationId)
	if err != nil {
		return nil, err
	}
	payload, err := envelope.Build(envelope.TypingIndicator, envelope.TypingIndicatorPayload{
		ConversationId: conversationId,
		SenderDid:      id.Did(),
		IsTyping:       typing,
	})
	if err != nil {
		return nil, err
	}
	out := &Outgoing{friendDid, payload}
	deliver(s.ctx, *out)
	return out, nil
}

func (s *messageService) HandleTyping(fromDid string, payload *envelope.TypingIndicatorPayload) error {
	id, err := s.ctx.Identity()
	if err != nil {
		return err
	}
	if payload.SenderDid != fromDid || payload.ConversationId != ConversationId(id.Did(), fromDid) {
		return apperr.New(apperr.ProtocolError, "typing indicator from %s does not match its conversation", fromDid)
	}
	s.ctx.Publish(DomainMessage, EventTypingIndicator, payload)
	return nil
}
