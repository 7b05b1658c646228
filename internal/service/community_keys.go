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
	"encoding/json"
	"errors"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
	"github.com/InfamousVague/umbra/internal/permission"
	"gorm.io/gorm"
)

// Key events
const (
	EventChannelKeyRotation = "channel_key_rotation"
	EventChannelKeyReceived = "channelKeyReceived"
)

// ChannelKey is a raw channel key together with its version
type ChannelKey struct {
	ChannelId string
	Version   int
	Raw       []byte
}

type keyRotation struct {
	CommunityId  string `json:"community_id"`
	ChannelId    string `json:"channel_id"`
	KeyVersion   int    `json:"key_version"`
	FilesFlagged int64  `json:"files_flagged"`
}

type ChannelKeyService interface {
	Current(channelId string) (*ChannelKey, error)              // Latest key, created at version 1 when the channel has none
	Version(channelId string, version int) (*ChannelKey, error) // A specific version, used to read older messages
	Rotate(channelId, actorDid string) (*ChannelKey, error)     // Stores a fresh key as the next version and flags files sealed under older ones
	RotateCommunity(communityId, reason string) ([]*ChannelKey, error)
	Distribute(channelId string, version int) ([]Outgoing, error) // Wraps a key for every member whose encryption key we know
	HandleKeyShare(fromDid string, payload *envelope.CommunityEventPayload) error
}

type channelKeyService struct {
	ctx *RuntimeContext
}

func NewChannelKeyService(ctx *RuntimeContext) ChannelKeyService {
	return &channelKeyService{ctx}
}

func (s *channelKeyService) wrappingKey() ([]byte, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	key, err := id.WrappingKey()
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "wrapping key")
	}
	return key[:], nil
}

func (s *channelKeyService) open(stored *entity.GroupKey) (*ChannelKey, error) {
	wrapping, err := s.wrappingKey()
	if err != nil {
		return nil, err
	}
	blob, err := hex.DecodeString(stored.EncryptedKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidKey, err, "stored key of %s", stored.ScopeId)
	}
	raw, err := crypto.UnwrapKey(wrapping, blob, crypto.StorageAAD(stored.ScopeId, stored.KeyVersion))
	if err != nil {
		return nil, err
	}
	return &ChannelKey{ChannelId: stored.ScopeId, Version: stored.KeyVersion, Raw: raw}, nil
}

// seal wraps raw for local storage under version
func (s *channelKeyService) seal(channelId string, version int, raw []byte) (*entity.GroupKey, error) {
	wrapping, err := s.wrappingKey()
	if err != nil {
		return nil, err
	}
	blob, err := crypto.WrapKey(wrapping, raw, crypto.StorageAAD(channelId, version))
	if err != nil {
		return nil, err
	}
	return &entity.GroupKey{
		ScopeId:      channelId,
		KeyVersion:   version,
		Scope:        entity.KeyScopeChannel,
		EncryptedKey: hex.EncodeToString(blob),
		CreatedAt:    s.ctx.NowMillis(),
	}, nil
}

func (s *channelKeyService) Current(channelId string) (*ChannelKey, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	stored, err := storage.GetKeyRepository().Latest(channelId)
	if err == nil {
		return s.open(stored)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err)
	}
	key, _, err := s.next(storage, channelId)
	return key, err
}

func (s *channelKeyService) Version(channelId string, version int) (*ChannelKey, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	stored, err := storage.GetKeyRepository().Get(channelId, version)
	if err != nil {
		return nil, notFound(err, apperr.InvalidKey, "no key version %d for channel %s", version, channelId)
	}
	return s.open(stored)
}

// next generates a key and stores it as the next version
func (s *channelKeyService) next(storage *data.StorageManager, channelId string) (*ChannelKey, int64, error) {
	raw, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, 0, err
	}
	version := 1
	if latest, err := storage.GetKeyRepository().Latest(channelId); err == nil {
		version = latest.KeyVersion + 1
	}
	key, err := s.seal(channelId, version, raw)
	if err != nil {
		return nil, 0, err
	}
	flagged, err := storage.GetKeyRepository().Rotate(key, true)
	if err != nil {
		return nil, 0, dbError(err)
	}
	// The repository picks the version inside its transaction; the AAD was bound to ours
	if key.KeyVersion != version {
		return nil, 0, apperr.New(apperr.Conflict, "channel %s was rotated concurrently", channelId)
	}
	return &ChannelKey{ChannelId: channelId, Version: version, Raw: raw}, flagged, nil
}

func (s *channelKeyService) rotate(storage *data.StorageManager, channel *entity.Channel, actorDid string) (*ChannelKey, error) {
	key, flagged, err := s.next(storage, channel.Id)
	if err != nil {
		return nil, err
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditKeyRotated, TargetChannel, channel.Id, map[string]int{"key_version": key.Version})
	s.ctx.Publish(DomainCommunity, EventChannelKeyRotation, keyRotation{
		CommunityId:  channel.CommunityId,
		ChannelId:    channel.Id,
		KeyVersion:   key.Version,
		FilesFlagged: flagged,
	})
	return key, nil
}

func (s *channelKeyService) Rotate(channelId, actorDid string) (*ChannelKey, error) {
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
	if err := a.requireChannel(storage, channel, permission.ManageChannels); err != nil {
		return nil, err
	}
	return s.rotate(storage, channel, actorDid)
}

// RotateCommunity rotates the key of every encrypted channel, after a member left or was removed
func (s *channelKeyService) RotateCommunity(communityId, reason string) ([]*ChannelKey, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channels, err := storage.GetCommunityRepository().ListChannels(communityId)
	if err != nil {
		return nil, dbError(err)
	}
	actorDid := ""
	if id, err := s.ctx.Identity(); err == nil {
		actorDid = id.Did()
	}

	var rotated []*ChannelKey
	for _, channel := range channels {
		if !channel.E2eeEnabled {
			continue
		}
		key, err := s.rotate(storage, channel, actorDid)
		if err != nil {
			return rotated, err
		}
		rotated = append(rotated, key)
	}
	if len(rotated) > 0 {
		s.ctx.Logf("Rotated %d channel keys of %s: %s", len(rotated), communityId, reason)
	}
	return rotated, nil
}

func (s *channelKeyService) Distribute(channelId string, version int) ([]Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	key, err := s.Version(channelId, version)
	if err != nil {
		return nil, err
	}
	members, err := storage.GetMemberRepository().ListMembers(channel.CommunityId)
	if err != nil {
		return nil, dbError(err)
	}

	var out []Outgoing
	now := s.ctx.NowMillis()
	for _, member := range members {
		if member.MemberDid == id.Did() {
			continue
		}
		memberKey, err := friendKey(storage, member.MemberDid)
		if err != nil {
			s.ctx.Logf("No encryption key for %s, channel key %s v%d not shared", member.MemberDid, channelId, version)
			continue
		}
		wrapped, err := crypto.WrapKeyForMember(id.Keys().Encryption, memberKey, channelId, version, key.Raw)
		if err != nil {
			return nil, err
		}
		payload, err := communityEnvelope(channel.CommunityId, id.Did(), &communityEvent{
			Type:       CommunityEventKeyShare,
			ChannelId:  channelId,
			KeyVersion: version,
			WrappedKey: hex.EncodeToString(wrapped),
		}, now)
		if err != nil {
			return nil, err
		}
		out = append(out, Outgoing{ToDid: member.MemberDid, Payload: payload})
	}
	deliver(s.ctx, out...)
	return out, nil
}

func (s *channelKeyService) HandleKeyShare(fromDid string, payload *envelope.CommunityEventPayload) error {
	id, err := s.ctx.Identity()
	if err != nil {
		return err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	var event communityEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil || event.Type != CommunityEventKeyShare {
		return apperr.New(apperr.ProtocolError, "malformed key share from %s", fromDid)
	}
	if event.KeyVersion < 1 {
		return apperr.New(apperr.InvalidInput, "key share from %s carries version %d", fromDid, event.KeyVersion)
	}

	// only a channel manager of the community the channel belongs to may hand out its keys
	channel, err := loadChannel(storage, event.ChannelId)
	if err != nil {
		return err
	}
	if channel.CommunityId != payload.CommunityId {
		return apperr.New(apperr.InvalidInput, "channel %s is not part of community %s", event.ChannelId, payload.CommunityId)
	}
	a, err := loadActor(storage, channel.CommunityId, fromDid)
	if err != nil {
		return err
	}
	if err := a.requireAny(permission.ManageChannels, permission.Administrator); err != nil {
		return err
	}

	keys := storage.GetKeyRepository()
	if _, err := keys.Get(event.ChannelId, event.KeyVersion); err == nil {
		return nil
	}
	if latest, err := keys.Latest(event.ChannelId); err == nil && event.KeyVersion <= latest.KeyVersion {
		return apperr.New(apperr.Conflict, "key share v%d for %s is not newer than v%d", event.KeyVersion, event.ChannelId, latest.KeyVersion)
	}

	senderKey, err := friendKey(storage, fromDid)
	if err != nil {
		return err
	}
	blob, err := hex.DecodeString(event.WrappedKey)
	if err != nil {
		return apperr.Wrap(apperr.InvalidKey, err, "wrapped key from %s", fromDid)
	}
	raw, err := crypto.UnwrapKeyFromMember(id.Keys().Encryption, senderKey, event.ChannelId, event.KeyVersion, blob)
	if err != nil {
		return err
	}

	stored, err := s.seal(event.ChannelId, event.KeyVersion, raw)
	if err != nil {
		return err
	}
	if err := keys.Store(stored); err != nil {
		return dbError(err)
	}

	s.ctx.Publish(DomainCommunity, EventChannelKeyReceived, map[string]any{
		"community_id": payload.CommunityId, "channel_id": event.ChannelId, "key_version": event.KeyVersion,
	})
	return nil
}
