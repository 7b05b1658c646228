/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
	"github.com/InfamousVague/umbra/internal/permission"
	"github.com/InfamousVague/umbra/internal/repository"
	"gorm.io/gorm"
)

// Channel message events
const (
	EventChannelMessageSent     = "channelMessageSent"
	EventChannelMessageReceived = "channelMessageReceived"
	EventChannelMessageEdited   = "channelMessageEdited"
	EventChannelMessageDeleted  = "channelMessageDeleted"
	EventChannelReaction        = "channelReactionChanged"
	EventChannelPinned          = "channelMessagePinned"
	EventChannelUnpinned        = "channelMessageUnpinned"
	EventThreadCreated          = "threadCreated"
	EventChannelRead            = "channelRead"
)

// Mention kinds
const (
	MentionEveryone = "everyone"
	MentionHere     = "here"
	MentionRole     = "role"
	MentionUser     = "user"
)

const (
	MaxChannelMessageSize = 4000
	DefaultMessagePage    = 50
	filterTimeoutMillis   = int64(10 * 60 * 1000)
)

type Mention struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"` // role id or DID
}

// ParseMentions finds @everyone, @here, @role:<id> and @user:<did> tokens in content
func ParseMentions(content string) []Mention {
	var mentions []Mention
	for _, word := range strings.Fields(content) {
		token := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("@:_-", r)
		})
		lower := strings.ToLower(token)
		switch {
		case lower == "@everyone":
			mentions = append(mentions, Mention{Kind: MentionEveryone})
		case lower == "@here":
			mentions = append(mentions, Mention{Kind: MentionHere})
		case strings.HasPrefix(token, "@role:") && len(token) > len("@role:"):
			mentions = append(mentions, Mention{Kind: MentionRole, Target: token[len("@role:"):]})
		case strings.HasPrefix(token, "@user:") && len(token) > len("@user:"):
			mentions = append(mentions, Mention{Kind: MentionUser, Target: token[len("@user:"):]})
		}
	}
	return mentions
}

type SendOptions struct {
	Content       string  `json:"content"`
	ReplyToId     *string `json:"reply_to_id"`
	ThreadId      *string `json:"thread_id"`
	HasAttachment bool    `json:"has_attachment"`
}

// ChannelMessageView is a stored channel message with its readable text
type ChannelMessageView struct {
	*entity.ChannelMessage
	Text string `json:"text"`
}

type SendResult struct {
	Message  *ChannelMessageView   `json:"message"`
	Mentions []Mention             `json:"mentions,omitempty"`
	Flagged  *entity.KeywordFilter `json:"flagged,omitempty"` // set when a warn filter matched
	Outgoing []Outgoing            `json:"-"`
}

type SearchRequest struct {
	ChannelIds    []string `json:"channel_ids"`
	Query         string   `json:"query"`
	SenderDid     string   `json:"sender_did"`
	From          int64    `json:"from"`
	To            int64    `json:"to"`
	HasAttachment bool     `json:"has_attachment"`
	HasReaction   bool     `json:"has_reaction"`
	PinnedOnly    bool     `json:"pinned_only"`
	Limit         int      `json:"limit"`
}

type ChannelMessageService interface {
	Send(channelId, senderDid string, options SendOptions) (*SendResult, error)
	Post(channelId, senderDid, content string) (*entity.ChannelMessage, error)  // Posts without permission checks, sealed in e2ee channels
	SystemMessage(channelId, content string) (*entity.ChannelMessage, error)    // Posts as the community itself
	HandleRemote(fromDid string, payload *envelope.CommunityEventPayload) error // Stores a message relayed by another member
	Messages(channelId, actorDid string, before int64, limit int) ([]*ChannelMessageView, error)
	Edit(messageId, actorDid, content string) (*ChannelMessageView, error) // Own messages only
	Delete(messageId, actorDid string) error                               // Own messages, or any with MANAGE_MESSAGES
	ToggleReaction(messageId, actorDid, emoji string) (bool, error)
	Reactions(messageId string) ([]*entity.ChannelReaction, error)
	Pin(messageId, actorDid string) error // Bounded by the channel pin limit
	Unpin(messageId, actorDid string) error
	Pins(channelId string) ([]*entity.ChannelPin, error)
	CreateThread(messageId, actorDid string, name *string) (*entity.CommunityThread, error)
	Threads(channelId string) ([]*entity.CommunityThread, error)
	ThreadMessages(threadId, actorDid string, limit int) ([]*ChannelMessageView, error)
	MarkRead(channelId, actorDid, messageId string) error
	ReadReceipts(channelId string) ([]*entity.ReadReceipt, error)
	Search(actorDid string, request SearchRequest) ([]*ChannelMessageView, error) // Newest first
}

type channelMessageService struct {
	ctx  *RuntimeContext
	keys ChannelKeyService
}

func NewChannelMessageService(ctx *RuntimeContext, keys ChannelKeyService) ChannelMessageService {
	return &channelMessageService{ctx, keys}
}

// channelAAD binds a channel ciphertext to its channel, its sender and its time
func channelAAD(channelId, senderDid string, createdAt int64) []byte {
	return []byte(channelId + senderDid + strconv.FormatInt(createdAt, 10))
}

// seal encrypts text with the current channel key, filling content, nonce and key version
func (s *channelMessageService) seal(message *entity.ChannelMessage, text string, at int64) error {
	if s.keys == nil {
		return apperr.New(apperr.EncryptionFailed, "channel keys are not available")
	}
	key, err := s.keys.Current(message.ChannelId)
	if err != nil {
		return err
	}
	nonce, ciphertext, err := crypto.Encrypt(key.Raw, []byte(text), channelAAD(message.ChannelId, message.SenderDid, at))
	if err != nil {
		return apperr.Wrap(apperr.EncryptionFailed, err, "channel message")
	}
	message.Content = base64.StdEncoding.EncodeToString(ciphertext)
	message.Nonce = ptr(hex.EncodeToString(nonce))
	message.KeyVersion = ptr(key.Version)
	return nil
}

// view opens a message. Messages we cannot decrypt keep an empty text
func (s *channelMessageService) view(message *entity.ChannelMessage) *ChannelMessageView {
	v := &ChannelMessageView{ChannelMessage: message, Text: message.Content}
	if message.Nonce == nil || message.KeyVersion == nil || message.Deleted {
		return v
	}
	v.Text = ""
	if s.keys == nil {
		return v
	}
	key, err := s.keys.Version(message.ChannelId, *message.KeyVersion)
	if err != nil {
		return v
	}
	nonce, errN := hex.DecodeString(*message.Nonce)
	ciphertext, errC := base64.StdEncoding.DecodeString(message.Content)
	if errN != nil || errC != nil {
		return v
	}
	at := message.CreatedAt
	if message.EditedAt != nil {
		at = *message.EditedAt
	}
	plaintext, err := crypto.Decrypt(key.Raw, nonce, ciphertext, channelAAD(message.ChannelId, message.SenderDid, at))
	if err != nil {
		s.ctx.Logf("Could not decrypt channel message %s: %v", message.Id, err)
		return v
	}
	v.Text = string(plaintext)
	return v
}

func (s *channelMessageService) views(messages []*entity.ChannelMessage) []*ChannelMessageView {
	out := make([]*ChannelMessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, s.view(m))
	}
	return out
}

// blockingTimeout returns the active timeout that forbids sending, nil when free to talk
func blockingTimeout(storage *data.StorageManager, communityId, did string, now int64) (*entity.MemberTimeout, error) {
	timeouts, err := storage.GetModerationRepository().ActiveTimeouts(communityId, did, now)
	if err != nil {
		return nil, dbError(err)
	}
	if len(timeouts) == 0 {
		return nil, nil
	}
	return timeouts[0], nil
}

func (s *channelMessageService) Send(channelId, senderDid string, options SendOptions) (*SendResult, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, senderDid)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(options.Content)
	if content == "" && !options.HasAttachment {
		return nil, apperr.New(apperr.InvalidInput, "message is empty")
	}
	if len(content) > MaxChannelMessageSize {
		return nil, apperr.New(apperr.MessageTooLarge, "message exceeds %d bytes", MaxChannelMessageSize)
	}

	switch channel.ChannelType {
	case entity.ChannelVoice:
		return nil, apperr.New(apperr.InvalidInput, "cannot send text messages in a voice channel")
	case entity.ChannelAnnouncement:
		if err := a.requireAny(permission.ManageChannels, permission.ManageMessages); err != nil {
			return nil, err
		}
	}
	perms, err := a.channelPermissions(storage, channel)
	if err != nil {
		return nil, err
	}
	needed := permission.SendMessages
	if options.ThreadId != nil {
		needed = permission.SendThreadMessages
	}
	if !perms.Has(needed) {
		return nil, apperr.Denied(needed.String())
	}
	if options.HasAttachment && !perms.Has(permission.AttachFiles) {
		return nil, apperr.Denied(permission.AttachFiles.String())
	}

	now := s.ctx.NowMillis()
	if !a.isOwner() {
		timeout, err := blockingTimeout(storage, channel.CommunityId, senderDid, now)
		if err != nil {
			return nil, err
		}
		if timeout != nil {
			return nil, apperr.New(apperr.PermissionDenied, "you are timed out (%s) in this community", timeout.TimeoutType)
		}
	}
	if channel.SlowModeSeconds > 0 && !perms.Has(permission.ManageMessages) {
		last, err := storage.GetChannelMessageRepository().LastBySender(channelId, senderDid)
		switch {
		case err == nil && now-last.CreatedAt < int64(channel.SlowModeSeconds)*1000:
			return nil, apperr.New(apperr.Conflict, "slow mode: wait %d seconds between messages", channel.SlowModeSeconds)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, dbError(err)
		}
	}
	if options.ThreadId != nil {
		thread, err := storage.GetChannelMessageRepository().GetThread(*options.ThreadId)
		if err != nil {
			return nil, notFound(err, apperr.EntityNotFound, "thread %s not found", *options.ThreadId)
		}
		if thread.ChannelId != channelId {
			return nil, apperr.New(apperr.InvalidInput, "thread %s belongs to another channel", thread.Id)
		}
	}

	result := &SendResult{}
	if !a.isOwner() {
		flagged, err := s.applyFilters(storage, channel, senderDid, content, now)
		if err != nil {
			return nil, err
		}
		result.Flagged = flagged
	}

	message := &entity.ChannelMessage{
		Id:            newId(),
		ChannelId:     channelId,
		SenderDid:     senderDid,
		Content:       content,
		ReplyToId:     options.ReplyToId,
		ThreadId:      options.ThreadId,
		HasAttachment: options.HasAttachment,
		CreatedAt:     now,
	}
	if channel.E2eeEnabled {
		if err := s.seal(message, content, now); err != nil {
			return nil, err
		}
	}
	if err := storage.GetChannelMessageRepository().Create(message); err != nil {
		return nil, dbError(err)
	}

	for _, m := range ParseMentions(content) {
		if (m.Kind == MentionEveryone || m.Kind == MentionHere) && !perms.Has(permission.MentionEveryone) {
			continue
		}
		result.Mentions = append(result.Mentions, m)
	}
	result.Message = &ChannelMessageView{ChannelMessage: message, Text: content}
	result.Outgoing = broadcast(s.ctx, storage, channel.CommunityId, senderDid, &communityEvent{
		Type:      CommunityEventMessage,
		ChannelId: channelId,
		Message:   message,
	})
	s.ctx.Publish(DomainCommunity, EventChannelMessageSent, result)
	return result, nil
}

// applyFilters runs the keyword filters of the community over content. A delete filter rejects the message,
// a timeout filter rejects it and mutes the sender, a warn filter lets it through and records a warning
func (s *channelMessageService) applyFilters(storage *data.StorageManager, channel *entity.Channel, senderDid, content string, now int64) (*entity.KeywordFilter, error) {
	filters, err := storage.GetModerationRepository().ListKeywordFilters(channel.CommunityId)
	if err != nil {
		return nil, dbError(err)
	}
	var hit *entity.KeywordFilter
	for _, filter := range filters {
		if MatchKeyword(filter.Pattern, content) {
			hit = filter
			break
		}
	}
	if hit == nil {
		return nil, nil
	}

	repo := storage.GetModerationRepository()
	switch hit.Action {
	case FilterWarn:
		warning := &entity.Warning{
			Id:          newId(),
			CommunityId: channel.CommunityId,
			MemberDid:   senderDid,
			Reason:      "Keyword filter: " + hit.Pattern,
			WarnedBy:    SystemSenderDid,
			CreatedAt:   now,
		}
		if err := repo.AddWarning(warning); err != nil {
			return nil, dbError(err)
		}
		audit(s.ctx, storage, channel.CommunityId, SystemSenderDid, AuditMemberWarned, TargetMember, senderDid, map[string]string{"filter": hit.Id})
		return hit, nil
	case FilterTimeout:
		timeout := &entity.MemberTimeout{
			Id:          newId(),
			CommunityId: channel.CommunityId,
			MemberDid:   senderDid,
			Reason:      "Keyword filter: " + hit.Pattern,
			TimeoutType: entity.TimeoutMute,
			IssuedBy:    SystemSenderDid,
			ExpiresAt:   now + filterTimeoutMillis,
			CreatedAt:   now,
		}
		if err := repo.AddTimeout(timeout); err != nil {
			return nil, dbError(err)
		}
		audit(s.ctx, storage, channel.CommunityId, SystemSenderDid, AuditMemberTimedOut, TargetMember, senderDid, map[string]string{"filter": hit.Id})
	}
	return nil, apperr.New(apperr.InvalidInput, "message blocked by a keyword filter")
}

func (s *channelMessageService) Post(channelId, senderDid, content string) (*entity.ChannelMessage, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	now := s.ctx.NowMillis()
	message := &entity.ChannelMessage{
		Id:        newId(),
		ChannelId: channelId,
		SenderDid: senderDid,
		Content:   content,
		CreatedAt: now,
	}
	if channel.E2eeEnabled {
		if err := s.seal(message, content, now); err != nil {
			return nil, err
		}
	}
	if err := storage.GetChannelMessageRepository().Create(message); err != nil {
		return nil, dbError(err)
	}
	s.ctx.Publish(DomainCommunity, EventChannelMessageSent, &ChannelMessageView{ChannelMessage: message, Text: content})
	return message, nil
}

func (s *channelMessageService) SystemMessage(channelId, content string) (*entity.ChannelMessage, error) {
	return s.Post(channelId, SystemSenderDid, content)
}

func (s *channelMessageService) HandleRemote(fromDid string, payload *envelope.CommunityEventPayload) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	var event communityEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil || event.Message == nil {
		return apperr.New(apperr.ProtocolError, "malformed channel message from %s", fromDid)
	}
	message := event.Message
	if message.SenderDid != fromDid {
		return apperr.New(apperr.DidMismatch, "channel message sender %s relayed by %s", message.SenderDid, fromDid)
	}
	channel, err := loadChannel(storage, message.ChannelId)
	if err != nil {
		return err
	}
	if channel.CommunityId != payload.CommunityId {
		return apperr.New(apperr.InvalidInput, "channel %s is not in community %s", channel.Id, payload.CommunityId)
	}
	if _, err := actorIn(storage, &entity.Community{Id: channel.CommunityId}, fromDid); err != nil {
		return err
	}
	if _, err := storage.GetChannelMessageRepository().Get(message.Id); err == nil {
		return nil
	}
	if err := storage.GetChannelMessageRepository().Create(message); err != nil {
		return dbError(err)
	}

	s.ctx.Publish(DomainCommunity, EventChannelMessageReceived, s.view(message))
	return nil
}

func (s *channelMessageService) Messages(channelId, actorDid string, before int64, limit int) ([]*ChannelMessageView, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.requireChannel(storage, channel, permission.ReadMessageHistory); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	messages, err := storage.GetChannelMessageRepository().List(channelId, before, limit)
	if err != nil {
		return nil, dbError(err)
	}
	return s.views(messages), nil
}

func (s *channelMessageService) loadMessage(storage *data.StorageManager, messageId string) (*entity.ChannelMessage, *entity.Channel, error) {
	message, err := storage.GetChannelMessageRepository().Get(messageId)
	if err != nil {
		return nil, nil, notFound(err, apperr.EntityNotFound, "message %s not found", messageId)
	}
	channel, err := loadChannel(storage, message.ChannelId)
	if err != nil {
		return nil, nil, err
	}
	return message, channel, nil
}

func (s *channelMessageService) Edit(messageId, actorDid, content string) (*ChannelMessageView, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	message, channel, err := s.loadMessage(storage, messageId)
	if err != nil {
		return nil, err
	}
	if message.SenderDid != actorDid {
		return nil, apperr.New(apperr.PermissionDenied, "can only edit your own messages")
	}
	if message.Deleted {
		return nil, apperr.New(apperr.EntityNotFound, "message %s was deleted", messageId)
	}
	content = strings.TrimSpace(content)
	if content == "" || len(content) > MaxChannelMessageSize {
		return nil, apperr.New(apperr.InvalidInput, "edited text must be 1 to %d bytes", MaxChannelMessageSize)
	}

	now := s.ctx.NowMillis()
	edited := *message
	edited.Content = content
	edited.Nonce = nil
	edited.KeyVersion = nil
	if message.Nonce != nil {
		if err := s.seal(&edited, content, now); err != nil {
			return nil, err
		}
	}
	if err := storage.GetChannelMessageRepository().Edit(messageId, edited.Content, edited.Nonce, edited.KeyVersion, now); err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "message %s not found", messageId)
	}
	edited.Edited = true
	edited.EditedAt = ptr(now)

	view := &ChannelMessageView{ChannelMessage: &edited, Text: content}
	s.ctx.Publish(DomainCommunity, EventChannelMessageEdited, map[string]any{"community_id": channel.CommunityId, "message": view})
	return view, nil
}

func (s *channelMessageService) Delete(messageId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	message, channel, err := s.loadMessage(storage, messageId)
	if err != nil {
		return err
	}
	moderated := message.SenderDid != actorDid
	if moderated {
		a, err := loadActor(storage, channel.CommunityId, actorDid)
		if err != nil {
			return err
		}
		if err := a.requireChannel(storage, channel, permission.ManageMessages); err != nil {
			return err
		}
	}
	if err := storage.GetChannelMessageRepository().SoftDelete(messageId, s.ctx.NowMillis()); err != nil {
		return notFound(err, apperr.EntityNotFound, "message %s not found", messageId)
	}

	if moderated {
		audit(s.ctx, storage, channel.CommunityId, actorDid, AuditMessageDeleted, TargetMessage, messageId,
			map[string]string{"channel_id": channel.Id, "sender_did": message.SenderDid})
	}
	s.ctx.Publish(DomainCommunity, EventChannelMessageDeleted, map[string]string{"channel_id": channel.Id, "message_id": messageId})
	return nil
}

func (s *channelMessageService) ToggleReaction(messageId, actorDid, emoji string) (bool, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return false, err
	}
	if emoji == "" {
		return false, apperr.New(apperr.InvalidInput, "emoji must not be empty")
	}
	message, channel, err := s.loadMessage(storage, messageId)
	if err != nil {
		return false, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return false, err
	}

	repo := storage.GetChannelMessageRepository()
	removed, err := repo.RemoveReaction(messageId, actorDid, emoji)
	if err != nil {
		return false, dbError(err)
	}
	added := false
	if !removed {
		if err := a.requireChannel(storage, channel, permission.AddReactions); err != nil {
			return false, err
		}
		if !a.isOwner() {
			timeout, err := blockingTimeout(storage, channel.CommunityId, actorDid, s.ctx.NowMillis())
			if err != nil {
				return false, err
			}
			if timeout != nil && timeout.TimeoutType == entity.TimeoutRestrict {
				return false, apperr.New(apperr.PermissionDenied, "you are restricted in this community")
			}
		}
		if added, err = repo.AddReaction(&entity.ChannelReaction{
			MessageId: message.Id,
			MemberDid: actorDid,
			Emoji:     emoji,
			CreatedAt: s.ctx.NowMillis(),
		}); err != nil {
			return false, dbError(err)
		}
	}

	s.ctx.Publish(DomainCommunity, EventChannelReaction, map[string]any{
		"message_id": messageId, "member_did": actorDid, "emoji": emoji, "added": added,
	})
	return added, nil
}

func (s *channelMessageService) Reactions(messageId string) ([]*entity.ChannelReaction, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	reactions, err := storage.GetChannelMessageRepository().Reactions(messageId)
	return reactions, dbError(err)
}

// pinner loads a message and checks MANAGE_MESSAGES in its channel
func (s *channelMessageService) pinner(storage *data.StorageManager, messageId, actorDid string) (*entity.ChannelMessage, *entity.Channel, error) {
	message, channel, err := s.loadMessage(storage, messageId)
	if err != nil {
		return nil, nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, nil, err
	}
	if err := a.requireChannel(storage, channel, permission.ManageMessages); err != nil {
		return nil, nil, err
	}
	return message, channel, nil
}

func (s *channelMessageService) Pin(messageId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	message, channel, err := s.pinner(storage, messageId, actorDid)
	if err != nil {
		return err
	}
	if message.Deleted {
		return apperr.New(apperr.InvalidInput, "cannot pin a deleted message")
	}
	limit := channel.PinLimit
	if limit <= 0 {
		limit = entity.DefaultPinLimit
	}
	pin := &entity.ChannelPin{ChannelId: channel.Id, MessageId: messageId, PinnedBy: actorDid, PinnedAt: s.ctx.NowMillis()}
	if _, err := storage.GetChannelMessageRepository().Pin(pin, limit); err != nil {
		if errors.Is(err, repository.ErrPinLimit) {
			return apperr.New(apperr.Conflict, "pin limit reached (%d)", limit)
		}
		return dbError(err)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditMessagePinned, TargetMessage, messageId, nil)
	s.ctx.Publish(DomainCommunity, EventChannelPinned, pin)
	return nil
}

func (s *channelMessageService) Unpin(messageId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	_, channel, err := s.pinner(storage, messageId, actorDid)
	if err != nil {
		return err
	}
	removed, err := storage.GetChannelMessageRepository().Unpin(channel.Id, messageId)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "message %s is not pinned", messageId)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditMessageUnpinned, TargetMessage, messageId, nil)
	s.ctx.Publish(DomainCommunity, EventChannelUnpinned, map[string]string{"channel_id": channel.Id, "message_id": messageId})
	return nil
}

func (s *channelMessageService) Pins(channelId string) ([]*entity.ChannelPin, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	pins, err := storage.GetChannelMessageRepository().Pins(channelId)
	return pins, dbError(err)
}

func (s *channelMessageService) CreateThread(messageId, actorDid string, name *string) (*entity.CommunityThread, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	message, channel, err := s.loadMessage(storage, messageId)
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.requireChannel(storage, channel, permission.CreateThreads); err != nil {
		return nil, err
	}
	repo := storage.GetChannelMessageRepository()
	if existing, err := repo.ThreadForMessage(messageId); err == nil {
		return existing, nil
	}

	thread := &entity.CommunityThread{
		Id:              newId(),
		ChannelId:       channel.Id,
		ParentMessageId: message.Id,
		Name:            name,
		CreatedBy:       actorDid,
		CreatedAt:       s.ctx.NowMillis(),
	}
	if err := repo.CreateThread(thread); err != nil {
		return nil, dbError(err)
	}
	s.ctx.Publish(DomainCommunity, EventThreadCreated, thread)
	return thread, nil
}

func (s *channelMessageService) Threads(channelId string) ([]*entity.CommunityThread, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	threads, err := storage.GetChannelMessageRepository().ListThreads(channelId)
	return threads, dbError(err)
}

func (s *channelMessageService) ThreadMessages(threadId, actorDid string, limit int) ([]*ChannelMessageView, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	repo := storage.GetChannelMessageRepository()
	thread, err := repo.GetThread(threadId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "thread %s not found", threadId)
	}
	channel, err := loadChannel(storage, thread.ChannelId)
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.requireChannel(storage, channel, permission.ReadMessageHistory); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	messages, err := repo.ThreadMessages(threadId, limit)
	if err != nil {
		return nil, dbError(err)
	}
	return s.views(messages), nil
}

func (s *channelMessageService) MarkRead(channelId, actorDid, messageId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	message, err := storage.GetChannelMessageRepository().Get(messageId)
	if err != nil {
		return notFound(err, apperr.EntityNotFound, "message %s not found", messageId)
	}
	if message.ChannelId != channelId {
		return apperr.New(apperr.InvalidInput, "message %s is not in channel %s", messageId, channelId)
	}
	receipt := &entity.ReadReceipt{ChannelId: channelId, MemberDid: actorDid, LastReadMessageId: messageId, ReadAt: s.ctx.NowMillis()}
	if err := storage.GetChannelMessageRepository().MarkRead(receipt); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainCommunity, EventChannelRead, receipt)
	return nil
}

func (s *channelMessageService) ReadReceipts(channelId string) ([]*entity.ReadReceipt, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	receipts, err := storage.GetChannelMessageRepository().ReadReceipts(channelId)
	return receipts, dbError(err)
}

func (s *channelMessageService) Search(actorDid string, request SearchRequest) ([]*ChannelMessageView, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if len(request.ChannelIds) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "search needs at least one channel")
	}
	// Only channels whose history the actor may read are searched
	var readable []string
	for _, channelId := range request.ChannelIds {
		channel, err := loadChannel(storage, channelId)
		if err != nil {
			return nil, err
		}
		a, err := loadActor(storage, channel.CommunityId, actorDid)
		if err != nil {
			return nil, err
		}
		if a.requireChannel(storage, channel, permission.ReadMessageHistory) == nil {
			readable = append(readable, channelId)
		}
	}
	if len(readable) == 0 {
		return []*ChannelMessageView{}, nil
	}

	search := repository.MessageSearch{
		ChannelIds:    readable,
		Query:         request.Query,
		SenderDid:     request.SenderDid,
		From:          request.From,
		To:            request.To,
		HasAttachment: request.HasAttachment,
		HasReaction:   request.HasReaction,
		Limit:         request.Limit,
	}
	if search.Limit <= 0 {
		search.Limit = DefaultMessagePage
	}
	if request.PinnedOnly {
		ids, err := storage.GetChannelMessageRepository().PinnedIds(readable)
		if err != nil {
			return nil, dbError(err)
		}
		if len(ids) == 0 {
			return []*ChannelMessageView{}, nil
		}
		search.MessageIds = ids
	}
	messages, err := storage.GetChannelMessageRepository().Search(search)
	if err != nil {
		return nil, dbError(err)
	}
	return s.views(messages), nil
}
