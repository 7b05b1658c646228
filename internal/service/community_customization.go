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
	"regexp"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
	"golang.org/x/crypto/bcrypt"
)

// Customization events
const (
	EventEmojiChanged    = "emojiChanged"
	EventStickersChanged = "stickersChanged"
	EventWebhookCreated  = "webhookCreated"
	EventWebhookUpdated  = "webhookUpdated"
	EventWebhookDeleted  = "webhookDeleted"
	EventBrandingUpdated = "brandingUpdated"
)

const (
	MaxCustomCssLength = 10000
	webhookTokenBytes  = 32
	webhookSenderDid   = "webhook:"
)

var (
	emojiNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_]{2,32}$`)
	accentColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

type EmojiSpec struct {
	Name     string `json:"name"`
	ImageUrl string `json:"image_url"`
	Animated bool   `json:"animated"`
}

type WebhookUpdate struct {
	Name      *string `json:"name"`
	AvatarUrl *string `json:"avatar_url"`
}

// CreatedWebhook carries the only copy of the token, it cannot be recovered later
type CreatedWebhook struct {
	Webhook *entity.Webhook `json:"webhook"`
	Token   string          `json:"token"`
}

type Branding struct {
	IconUrl     *string `json:"icon_url"`
	BannerUrl   *string `json:"banner_url"`
	SplashUrl   *string `json:"splash_url"`
	AccentColor *string `json:"accent_color"`
	CustomCss   *string `json:"custom_css"`
}

type CustomizationService interface {
	CreateEmoji(communityId, actorDid string, spec EmojiSpec) (*entity.Emoji, error)
	Emoji(communityId string) ([]*entity.Emoji, error)
	RenameEmoji(communityId, actorDid, emojiId, name string) error
	DeleteEmoji(communityId, actorDid, emojiId string) error

	CreateSticker(communityId, actorDid string, spec EmojiSpec) (*entity.Sticker, error)
	Stickers(communityId string) ([]*entity.Sticker, error)
	DeleteSticker(communityId, actorDid, stickerId string) error

	CreateWebhook(channelId, actorDid, name string, avatarUrl *string) (*CreatedWebhook, error)
	Webhooks(communityId, actorDid string) ([]*entity.Webhook, error)
	UpdateWebhook(webhookId, actorDid string, update WebhookUpdate) (*entity.Webhook, error)
	DeleteWebhook(webhookId, actorDid string) error
	ExecuteWebhook(webhookId, token, content string) (*entity.ChannelMessage, error) // Posts into the webhook channel when the token matches

	UpdateBranding(communityId, actorDid string, branding Branding) (*entity.Community, error)
}

type customizationService struct {
	ctx      *RuntimeContext
	messages ChannelMessageService
}

func NewCustomizationService(ctx *RuntimeContext, messages ChannelMessageService) CustomizationService {
	return &customizationService{ctx, messages}
}

// curator loads an actor of communityId holding perm
func curator(storage *data.StorageManager, communityId, actorDid string, perm permission.Permission) (*actor, error) {
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(perm); err != nil {
		return nil, err
	}
	return a, nil
}

func validEmoji(spec EmojiSpec) (EmojiSpec, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.ImageUrl = strings.TrimSpace(spec.ImageUrl)
	if !emojiNamePattern.MatchString(spec.Name) {
		return spec, apperr.New(apperr.InvalidInput, "name must be 2 to 32 letters, digits or underscores")
	}
	if spec.ImageUrl == "" {
		return spec, apperr.New(apperr.InvalidInput, "image url must not be empty")
	}
	return spec, nil
}

func (s *customizationService) CreateEmoji(communityId, actorDid string, spec EmojiSpec) (*entity.Emoji, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageEmoji); err != nil {
		return nil, err
	}
	if spec, err = validEmoji(spec); err != nil {
		return nil, err
	}
	existing, err := storage.GetCustomizationRepository().ListEmoji(communityId)
	if err != nil {
		return nil, dbError(err)
	}
	for _, e := range existing {
		if strings.EqualFold(e.Name, spec.Name) {
			return nil, apperr.New(apperr.Conflict, "emoji :%s: already exists", spec.Name)
		}
	}

	emoji := &entity.Emoji{
		Id:          newId(),
		CommunityId: communityId,
		Name:        spec.Name,
		ImageUrl:    spec.ImageUrl,
		Animated:    spec.Animated,
		UploadedBy:  actorDid,
		CreatedAt:   s.ctx.NowMillis(),
	}
	if err := storage.GetCustomizationRepository().CreateEmoji(emoji); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditEmojiCreated, TargetEmoji, emoji.Id, map[string]string{"name": emoji.Name})
	s.ctx.Publish(DomainCommunity, EventEmojiChanged, communityId)
	return emoji, nil
}

func (s *customizationService) Emoji(communityId string) ([]*entity.Emoji, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	emoji, err := storage.GetCustomizationRepository().ListEmoji(communityId)
	return emoji, dbError(err)
}

// ownEmoji finds emojiId among the emoji of communityId
func ownEmoji(storage *data.StorageManager, communityId, emojiId string) (*entity.Emoji, error) {
	list, err := storage.GetCustomizationRepository().ListEmoji(communityId)
	if err != nil {
		return nil, dbError(err)
	}
	for _, e := range list {
		if e.Id == emojiId {
			return e, nil
		}
	}
	return nil, apperr.New(apperr.EntityNotFound, "emoji %s not found", emojiId)
}

func (s *customizationService) RenameEmoji(communityId, actorDid, emojiId, name string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageEmoji); err != nil {
		return err
	}
	emoji, err := ownEmoji(storage, communityId, emojiId)
	if err != nil {
		return err
	}
	spec, err := validEmoji(EmojiSpec{Name: name, ImageUrl: emoji.ImageUrl})
	if err != nil {
		return err
	}
	if err := storage.GetCustomizationRepository().RenameEmoji(emojiId, spec.Name); err != nil {
		return dbError(err)
	}
	s.ctx.Publish(DomainCommunity, EventEmojiChanged, communityId)
	return nil
}

func (s *customizationService) DeleteEmoji(communityId, actorDid, emojiId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageEmoji); err != nil {
		return err
	}
	emoji, err := ownEmoji(storage, communityId, emojiId)
	if err != nil {
		return err
	}
	if _, err := storage.GetCustomizationRepository().DeleteEmoji(emojiId); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditEmojiDeleted, TargetEmoji, emojiId, map[string]string{"name": emoji.Name})
	s.ctx.Publish(DomainCommunity, EventEmojiChanged, communityId)
	return nil
}

func (s *customizationService) CreateSticker(communityId, actorDid string, spec EmojiSpec) (*entity.Sticker, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageEmoji); err != nil {
		return nil, err
	}
	if spec, err = validEmoji(spec); err != nil {
		return nil, err
	}

	sticker := &entity.Sticker{
		Id:          newId(),
		CommunityId: communityId,
		Name:        spec.Name,
		ImageUrl:    spec.ImageUrl,
		Animated:    spec.Animated,
		UploadedBy:  actorDid,
		CreatedAt:   s.ctx.NowMillis(),
	}
	if err := storage.GetCustomizationRepository().CreateSticker(sticker); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditStickerCreated, TargetSticker, sticker.Id, map[string]string{"name": sticker.Name})
	s.ctx.Publish(DomainCommunity, EventStickersChanged, communityId)
	return sticker, nil
}

func (s *customizationService) Stickers(communityId string) ([]*entity.Sticker, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	stickers, err := storage.GetCustomizationRepository().ListStickers(communityId)
	return stickers, dbError(err)
}

func (s *customizationService) DeleteSticker(communityId, actorDid, stickerId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageEmoji); err != nil {
		return err
	}
	stickers, err := storage.GetCustomizationRepository().ListStickers(communityId)
	if err != nil {
		return dbError(err)
	}
	found := false
	for _, sticker := range stickers {
		found = found || sticker.Id == stickerId
	}
	if !found {
		return apperr.New(apperr.EntityNotFound, "sticker %s not found", stickerId)
	}
	if _, err := storage.GetCustomizationRepository().DeleteSticker(stickerId); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditStickerDeleted, TargetSticker, stickerId, nil)
	s.ctx.Publish(DomainCommunity, EventStickersChanged, communityId)
	return nil
}

func (s *customizationService) CreateWebhook(channelId, actorDid, name string, avatarUrl *string) (*CreatedWebhook, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	if _, err := curator(storage, channel.CommunityId, actorDid, permission.ManageWebhooks); err != nil {
		return nil, err
	}
	name, err = validName(name, MaxChannelNameLength)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.RandomBytes(webhookTokenBytes)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "generating webhook token")
	}
	token := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "hashing webhook token")
	}

	webhook := &entity.Webhook{
		Id:          newId(),
		CommunityId: channel.CommunityId,
		ChannelId:   channelId,
		Name:        name,
		AvatarUrl:   avatarUrl,
		TokenHash:   string(hash),
		CreatorDid:  actorDid,
		CreatedAt:   s.ctx.NowMillis(),
	}
	if err := storage.GetCustomizationRepository().CreateWebhook(webhook); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditWebhookCreated, TargetWebhook, webhook.Id, map[string]string{"name": name})
	s.ctx.Publish(DomainCommunity, EventWebhookCreated, webhook)
	return &CreatedWebhook{Webhook: webhook, Token: token}, nil
}

func (s *customizationService) Webhooks(communityId, actorDid string) ([]*entity.Webhook, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := curator(storage, communityId, actorDid, permission.ManageWebhooks); err != nil {
		return nil, err
	}
	webhooks, err := storage.GetCustomizationRepository().ListWebhooks(communityId)
	return webhooks, dbError(err)
}

// managedWebhook loads a webhook its actor may manage
func managedWebhook(storage *data.StorageManager, webhookId, actorDid string) (*entity.Webhook, error) {
	webhook, err := storage.GetCustomizationRepository().GetWebhook(webhookId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "webhook %s not found", webhookId)
	}
	if _, err := curator(storage, webhook.CommunityId, actorDid, permission.ManageWebhooks); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *customizationService) UpdateWebhook(webhookId, actorDid string, update WebhookUpdate) (*entity.Webhook, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	webhook, err := managedWebhook(storage, webhookId, actorDid)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		name, err := validName(*update.Name, MaxChannelNameLength)
		if err != nil {
			return nil, err
		}
		webhook.Name = name
	}
	if update.AvatarUrl != nil {
		webhook.AvatarUrl = update.AvatarUrl
	}
	if err := storage.GetCustomizationRepository().UpdateWebhook(webhook); err != nil {
		return nil, dbError(err)
	}
	s.ctx.Publish(DomainCommunity, EventWebhookUpdated, webhook)
	return webhook, nil
}

func (s *customizationService) DeleteWebhook(webhookId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	webhook, err := managedWebhook(storage, webhookId, actorDid)
	if err != nil {
		return err
	}
	if _, err := storage.GetCustomizationRepository().DeleteWebhook(webhookId); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, webhook.CommunityId, actorDid, AuditWebhookDeleted, TargetWebhook, webhookId, nil)
	s.ctx.Publish(DomainCommunity, EventWebhookDeleted, webhook)
	return nil
}

func (s *customizationService) ExecuteWebhook(webhookId, token, content string) (*entity.ChannelMessage, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	webhook, err := storage.GetCustomizationRepository().GetWebhook(webhookId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "webhook %s not found", webhookId)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(webhook.TokenHash), []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperr.New(apperr.PermissionDenied, "invalid webhook token")
		}
		return nil, apperr.Wrap(apperr.InvalidKey, err, "webhook %s", webhookId)
	}
	content = strings.TrimSpace(content)
	if content == "" || len(content) > MaxChannelMessageSize {
		return nil, apperr.New(apperr.InvalidInput, "webhook content must be 1 to %d bytes", MaxChannelMessageSize)
	}
	return s.messages.Post(webhook.ChannelId, webhookSenderDid+webhook.Id, content)
}

func (s *customizationService) UpdateBranding(communityId, actorDid string, branding Branding) (*entity.Community, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := curator(storage, communityId, actorDid, permission.ManageBranding)
	if err != nil {
		return nil, err
	}
	if branding.AccentColor != nil && *branding.AccentColor != "" && !accentColorPattern.MatchString(*branding.AccentColor) {
		return nil, apperr.New(apperr.InvalidInput, "accent color must look like #rrggbb")
	}
	if branding.CustomCss != nil && len(*branding.CustomCss) > MaxCustomCssLength {
		return nil, apperr.New(apperr.InvalidInput, "custom css exceeds %d bytes", MaxCustomCssLength)
	}

	community := a.community
	for _, field := range []struct {
		value  *string
		target **string
	}{
		{branding.IconUrl, &community.IconUrl},
		{branding.BannerUrl, &community.BannerUrl},
		{branding.SplashUrl, &community.SplashUrl},
		{branding.AccentColor, &community.AccentColor},
		{branding.CustomCss, &community.CustomCss},
	} {
		if field.value == nil {
			continue
		}
		if *field.value == "" {
			*field.target = nil
		} else {
			*field.target = field.value
		}
	}
	community.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetCommunityRepository().Update(community); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditBrandingUpdated, TargetCommunity, communityId, nil)
	s.ctx.Publish(DomainCommunity, EventBrandingUpdated, community)
	return community, nil
}
