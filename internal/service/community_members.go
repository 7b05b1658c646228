/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"errors"
	"fmt"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
	"github.com/InfamousVague/umbra/internal/repository"
	"gorm.io/gorm"
)

// Member events
const (
	EventMemberJoined   = "memberJoined"
	EventMemberLeft     = "memberLeft"
	EventMemberKicked   = "memberKicked"
	EventMemberBanned   = "memberBanned"
	EventMemberUnbanned = "memberUnbanned"
	EventMemberUpdated  = "memberUpdated"
)

const (
	AuditMemberJoined = "memberJoined"
	AuditMemberLeft   = "memberLeft"

	// SystemSenderDid authors the messages the community engine posts itself
	SystemSenderDid = "system"
)

type BanOptions struct {
	Reason            *string `json:"reason"`
	ExpiresAt         *int64  `json:"expires_at"` // nil is permanent
	DeviceFingerprint *string `json:"device_fingerprint"`
}

type MemberProfile struct {
	Nickname  *string `json:"nickname"`
	AvatarUrl *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

type memberChange struct {
	CommunityId string  `json:"community_id"`
	MemberDid   string  `json:"member_did"`
	ActorDid    string  `json:"actor_did,omitempty"`
	Reason      *string `json:"reason,omitempty"`
}

type MemberService interface {
	Join(communityId, did string, nickname, fingerprint *string) (*entity.CommunityMember, error) // Adds did with the Member role, refusing banned DIDs and devices
	Leave(communityId, did string) error                                                          // The owner has to transfer ownership first
	Kick(communityId, actorDid, targetDid string, reason *string) error
	Ban(communityId, actorDid, targetDid string, options BanOptions) error // Removes the member when present and records the ban
	Unban(communityId, actorDid, targetDid string) error
	Bans(communityId, actorDid string) ([]*entity.Ban, error)
	Members(communityId string) ([]*entity.CommunityMember, error)
	Member(communityId, did string) (*entity.CommunityMember, error)
	UpdateProfile(communityId, actorDid, targetDid string, profile MemberProfile) (*entity.CommunityMember, error)
	CheckBanEvasion(communityId, fingerprint string) (*entity.Ban, error) // Returns the active ban issued against a device, nil when none
}

type memberService struct {
	ctx  *RuntimeContext
	keys ChannelKeyService
}

// NewMemberService builds the member service. keys, when not nil, rotates channel keys after removals
func NewMemberService(ctx *RuntimeContext, keys ChannelKeyService) MemberService {
	return &memberService{ctx, keys}
}

func banActive(ban *entity.Ban, now int64) bool {
	return ban.ExpiresAt == nil || *ban.ExpiresAt > now
}

// admissible refuses DIDs and devices under an active ban
func admissible(storage *data.StorageManager, communityId, did string, fingerprint *string, now int64) error {
	members := storage.GetMemberRepository()
	ban, err := members.GetBan(communityId, did)
	switch {
	case err == nil && banActive(ban, now):
		return apperr.New(apperr.PermissionDenied, "%s is banned from this community", did)
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return dbError(err)
	}
	if fingerprint == nil || *fingerprint == "" {
		return nil
	}
	ban, err = members.BanForFingerprint(communityId, *fingerprint)
	switch {
	case err == nil && banActive(ban, now):
		return apperr.New(apperr.PermissionDenied, "this device is banned from the community")
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return dbError(err)
	}
	return nil
}

func (s *memberService) Join(communityId, did string, nickname, fingerprint *string) (*entity.CommunityMember, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := loadCommunity(storage, communityId); err != nil {
		return nil, err
	}
	now := s.ctx.NowMillis()
	if err := admissible(storage, communityId, did, fingerprint, now); err != nil {
		return nil, err
	}
	memberRole, err := storage.GetMemberRepository().PresetRole(communityId, permission.MemberRoleName)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "member role of %s not found", communityId)
	}

	member := &entity.CommunityMember{CommunityId: communityId, MemberDid: did, Nickname: nickname, JoinedAt: now}
	if err := storage.GetMemberRepository().AddMember(member, memberRole.Id); err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			return nil, apperr.New(apperr.Conflict, "%s is already a member", did)
		}
		return nil, dbError(err)
	}
	joined(s.ctx, storage, member)
	return member, nil
}

// joined records a new member and greets it in the welcome channel
func joined(ctx *RuntimeContext, storage *data.StorageManager, member *entity.CommunityMember) {
	audit(ctx, storage, member.CommunityId, member.MemberDid, AuditMemberJoined, TargetMember, member.MemberDid, nil)
	ctx.Publish(DomainCommunity, EventMemberJoined, memberChange{CommunityId: member.CommunityId, MemberDid: member.MemberDid})

	channels, err := storage.GetCommunityRepository().ListChannels(member.CommunityId)
	if err != nil {
		ctx.Logf("Could not list channels of %s: %v", member.CommunityId, err)
		return
	}
	display := member.MemberDid
	if member.Nickname != nil && *member.Nickname != "" {
		display = *member.Nickname
	}
	for _, channel := range channels {
		if channel.ChannelType != entity.ChannelWelcome {
			continue
		}
		welcome := &entity.ChannelMessage{
			Id:        newId(),
			ChannelId: channel.Id,
			SenderDid: SystemSenderDid,
			Content:   fmt.Sprintf("Welcome to the community, %s!", display),
			CreatedAt: ctx.NowMillis(),
		}
		if err := storage.GetChannelMessageRepository().Create(welcome); err != nil {
			ctx.Logf("Could not post the welcome message in %s: %v", channel.Id, err)
		}
		return
	}
}

// removed finishes a departure: rotates the keys the member held and tells the host
func (s *memberService) removed(storage *data.StorageManager, kind string, change memberChange) {
	s.ctx.Publish(DomainCommunity, kind, change)
	if s.keys == nil {
		return
	}
	if _, err := s.keys.RotateCommunity(change.CommunityId, kind+" "+change.MemberDid); err != nil {
		s.ctx.Logf("Key rotation after %s of %s failed: %v", kind, change.MemberDid, err)
	}
}

func (s *memberService) Leave(communityId, did string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	community, err := loadCommunity(storage, communityId)
	if err != nil {
		return err
	}
	if community.OwnerDid == did {
		return apperr.New(apperr.Conflict, "the owner cannot leave, transfer ownership first")
	}
	removed, err := storage.GetMemberRepository().RemoveMember(communityId, did)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "%s is not a member of this community", did)
	}

	audit(s.ctx, storage, communityId, did, AuditMemberLeft, TargetMember, did, nil)
	s.removed(storage, EventMemberLeft, memberChange{CommunityId: communityId, MemberDid: did})
	return nil
}

// moderate resolves actor and target, checks perm and that the actor outranks the target.
// A target outside the community yields EntityNotFound once the actor checks passed
func moderate(storage *data.StorageManager, communityId, actorDid, targetDid string, perm permission.Permission) (*actor, *actor, error) {
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, nil, err
	}
	if err := a.require(perm); err != nil {
		return nil, nil, err
	}
	if a.community.OwnerDid == targetDid {
		return nil, nil, apperr.New(apperr.PermissionDenied, "the owner cannot be moderated")
	}
	if actorDid == targetDid {
		return nil, nil, apperr.New(apperr.InvalidInput, "cannot moderate yourself")
	}
	isMember, err := storage.GetMemberRepository().IsMember(communityId, targetDid)
	if err != nil {
		return nil, nil, dbError(err)
	}
	if !isMember {
		return a, nil, apperr.New(apperr.EntityNotFound, "%s is not a member of this community", targetDid)
	}
	target, err := actorIn(storage, a.community, targetDid)
	if err != nil {
		return nil, nil, err
	}
	if !a.outranks(target) {
		return nil, nil, apperr.New(apperr.PermissionDenied, "%s holds a role at or above yours", targetDid)
	}
	return a, target, nil
}

func (s *memberService) Kick(communityId, actorDid, targetDid string, reason *string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, _, err := moderate(storage, communityId, actorDid, targetDid, permission.KickMembers); err != nil {
		return err
	}
	if _, err := storage.GetMemberRepository().RemoveMember(communityId, targetDid); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditMemberKicked, TargetMember, targetDid, reasonMeta(reason))
	s.removed(storage, EventMemberKicked, memberChange{communityId, targetDid, actorDid, reason})
	return nil
}

func (s *memberService) Ban(communityId, actorDid, targetDid string, options BanOptions) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	wasMember := true
	if _, _, err := moderate(storage, communityId, actorDid, targetDid, permission.BanMembers); err != nil {
		// Banning someone who already left is allowed
		if !apperr.Is(err, apperr.EntityNotFound) {
			return err
		}
		wasMember = false
	}

	now := s.ctx.NowMillis()
	if options.ExpiresAt != nil && *options.ExpiresAt <= now {
		return apperr.New(apperr.InvalidInput, "ban expiry is in the past")
	}
	ban := &entity.Ban{
		CommunityId:       communityId,
		BannedDid:         targetDid,
		Reason:            options.Reason,
		BannedBy:          actorDid,
		DeviceFingerprint: options.DeviceFingerprint,
		ExpiresAt:         options.ExpiresAt,
		CreatedAt:         now,
	}
	if _, err := storage.GetMemberRepository().BanMember(ban); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditMemberBanned, TargetMember, targetDid, options)
	change := memberChange{communityId, targetDid, actorDid, options.Reason}
	if wasMember {
		s.removed(storage, EventMemberBanned, change)
	} else {
		s.ctx.Publish(DomainCommunity, EventMemberBanned, change)
	}
	return nil
}

func reasonMeta(reason *string) any {
	if reason == nil {
		return nil
	}
	return map[string]string{"reason": *reason}
}

func (s *memberService) Unban(communityId, actorDid, targetDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return err
	}
	if err := a.require(permission.BanMembers); err != nil {
		return err
	}
	removed, err := storage.GetMemberRepository().RemoveBan(communityId, targetDid)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "%s is not banned", targetDid)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditMemberUnbanned, TargetMember, targetDid, nil)
	s.ctx.Publish(DomainCommunity, EventMemberUnbanned, memberChange{CommunityId: communityId, MemberDid: targetDid, ActorDid: actorDid})
	return nil
}

func (s *memberService) Bans(communityId, actorDid string) ([]*entity.Ban, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.requireAny(permission.BanMembers, permission.ViewAuditLog); err != nil {
		return nil, err
	}
	bans, err := storage.GetMemberRepository().ListBans(communityId)
	return bans, dbError(err)
}

func (s *memberService) Members(communityId string) ([]*entity.CommunityMember, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	members, err := storage.GetMemberRepository().ListMembers(communityId)
	return members, dbError(err)
}

func (s *memberService) Member(communityId, did string) (*entity.CommunityMember, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	member, err := storage.GetMemberRepository().GetMember(communityId, did)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "%s is not a member of this community", did)
	}
	return member, nil
}

func (s *memberService) UpdateProfile(communityId, actorDid, targetDid string, profile MemberProfile) (*entity.CommunityMember, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	member, err := storage.GetMemberRepository().GetMember(communityId, targetDid)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "%s is not a member of this community", targetDid)
	}

	if actorDid == targetDid {
		if profile.Nickname != nil {
			if err := a.require(permission.ChangeNickname); err != nil {
				return nil, err
			}
		}
	} else {
		// Others may only touch the nickname, and only below them
		if profile.AvatarUrl != nil || profile.Bio != nil {
			return nil, apperr.New(apperr.PermissionDenied, "only %s can edit that profile", targetDid)
		}
		if _, _, err := moderate(storage, communityId, actorDid, targetDid, permission.ManageNicknames); err != nil {
			return nil, err
		}
	}

	if profile.Nickname != nil {
		if *profile.Nickname == "" {
			member.Nickname = nil
		} else {
			nickname, err := validName(*profile.Nickname, 32)
			if err != nil {
				return nil, err
			}
			member.Nickname = &nickname
		}
	}
	if profile.AvatarUrl != nil {
		member.AvatarUrl = profile.AvatarUrl
	}
	if profile.Bio != nil {
		member.Bio = profile.Bio
	}
	if err := storage.GetMemberRepository().UpdateMember(member); err != nil {
		return nil, dbError(err)
	}

	if profile.Nickname != nil {
		audit(s.ctx, storage, communityId, actorDid, AuditNicknameChanged, TargetMember, targetDid, map[string]any{"nickname": member.Nickname})
	}
	s.ctx.Publish(DomainCommunity, EventMemberUpdated, member)
	return member, nil
}

func (s *memberService) CheckBanEvasion(communityId, fingerprint string) (*entity.Ban, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	ban, err := storage.GetMemberRepository().BanForFingerprint(communityId, fingerprint)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err)
	}
	if !banActive(ban, s.ctx.NowMillis()) {
		return nil, nil
	}
	return ban, nil
}
