/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
	"github.com/InfamousVague/umbra/internal/repository"
	"gorm.io/gorm"
)

// Invite events
const (
	EventInviteCreated = "inviteCreated"
	EventInviteDeleted = "inviteDeleted"
	EventInviteUsed    = "inviteUsed"
)

const (
	InviteCodeLength = 8
	inviteAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
	inviteAttempts   = 3
)

var vanityPattern = regexp.MustCompile(`^[a-z0-9-]{3,32}$`)

// InviteCode draws a random code from the invite alphabet
func InviteCode() (string, error) {
	var code strings.Builder
	limit := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code.WriteByte(inviteAlphabet[n.Int64()])
	}
	return code.String(), nil
}

type InviteService interface {
	Create(communityId, actorDid string, maxUses *int, expiresAt *int64) (*entity.Invite, error) // Standard invite with a random code
	SetVanity(communityId, actorDid, code string) (*entity.Invite, error)                        // Replaces the vanity invite of a community
	Use(code, did string, nickname, fingerprint *string) (*entity.CommunityMember, error)        // Joins did through an invite, consuming one use
	Get(code string) (*entity.Invite, error)
	List(communityId, actorDid string) ([]*entity.Invite, error)
	Delete(communityId, actorDid, inviteId string) error
}

type inviteService struct {
	ctx *RuntimeContext
}

func NewInviteService(ctx *RuntimeContext) InviteService {
	return &inviteService{ctx}
}

func (s *inviteService) Create(communityId, actorDid string, maxUses *int, expiresAt *int64) (*entity.Invite, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(permission.CreateInvites); err != nil {
		return nil, err
	}
	if maxUses != nil && *maxUses < 1 {
		return nil, apperr.New(apperr.InvalidInput, "max uses must be positive")
	}
	now := s.ctx.NowMillis()
	if expiresAt != nil && *expiresAt <= now {
		return nil, apperr.New(apperr.InvalidInput, "invite expiry is in the past")
	}

	invite := &entity.Invite{
		Id:          newId(),
		CommunityId: communityId,
		CreatorDid:  actorDid,
		MaxUses:     maxUses,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	for attempt := 0; ; attempt++ {
		if invite.Code, err = InviteCode(); err != nil {
			return nil, err
		}
		err = storage.GetMemberRepository().CreateInvite(invite)
		if err == nil {
			break
		}
		if attempt+1 == inviteAttempts {
			return nil, dbError(err)
		}
	}

	audit(s.ctx, storage, communityId, actorDid, AuditInviteCreated, TargetInvite, invite.Id, map[string]string{"code": invite.Code})
	s.ctx.Publish(DomainCommunity, EventInviteCreated, invite)
	return invite, nil
}

func (s *inviteService) SetVanity(communityId, actorDid, code string) (*entity.Invite, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(permission.ManageCommunity); err != nil {
		return nil, err
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if !vanityPattern.MatchString(code) {
		return nil, apperr.New(apperr.InvalidInput, "vanity codes are 3 to 32 characters of a-z, 0-9 and -")
	}

	repo := storage.GetMemberRepository()
	if existing, err := repo.GetInvite(code); err == nil {
		if existing.CommunityId == communityId && existing.Vanity {
			return existing, nil
		}
		return nil, apperr.New(apperr.Conflict, "invite code %q is taken", code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dbError(err)
	}
	if previous, err := repo.VanityInvite(communityId); err == nil {
		if _, err := repo.DeleteInvite(previous.Id); err != nil {
			return nil, dbError(err)
		}
	}

	now := s.ctx.NowMillis()
	invite := &entity.Invite{
		Id:          newId(),
		CommunityId: communityId,
		Code:        code,
		Vanity:      true,
		CreatorDid:  actorDid,
		CreatedAt:   now,
	}
	if err := repo.CreateInvite(invite); err != nil {
		return nil, dbError(err)
	}
	community := a.community
	community.VanityUrl = ptr(code)
	community.UpdatedAt = now
	if err := storage.GetCommunityRepository().Update(community); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditInviteCreated, TargetInvite, invite.Id, map[string]any{"code": code, "vanity": true})
	s.ctx.Publish(DomainCommunity, EventInviteCreated, invite)
	return invite, nil
}

func (s *inviteService) Use(code, did string, nickname, fingerprint *string) (*entity.CommunityMember, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	repo := storage.GetMemberRepository()
	invite, err := repo.GetInvite(code)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "invite %s not found", code)
	}
	now := s.ctx.NowMillis()
	if err := admissible(storage, invite.CommunityId, did, fingerprint, now); err != nil {
		return nil, err
	}
	memberRole, err := repo.PresetRole(invite.CommunityId, permission.MemberRoleName)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "member role of %s not found", invite.CommunityId)
	}

	member := &entity.CommunityMember{MemberDid: did, Nickname: nickname, JoinedAt: now}
	invite, err = repo.UseInvite(code, member, now, memberRole.Id)
	switch {
	case errors.Is(err, repository.ErrInviteExpired):
		return nil, apperr.New(apperr.InvalidInput, "invite %s has expired", code)
	case errors.Is(err, repository.ErrInviteExhausted):
		return nil, apperr.New(apperr.Conflict, "invite %s has no uses left", code)
	case errors.Is(err, repository.ErrAlreadyMember):
		return nil, apperr.New(apperr.Conflict, "%s is already a member", did)
	case err != nil:
		return nil, notFound(err, apperr.EntityNotFound, "invite %s not found", code)
	}

	joined(s.ctx, storage, member)
	s.ctx.Publish(DomainCommunity, EventInviteUsed, map[string]any{
		"community_id": invite.CommunityId, "code": code, "member_did": did, "use_count": invite.UseCount,
	})
	return member, nil
}

func (s *inviteService) Get(code string) (*entity.Invite, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	invite, err := storage.GetMemberRepository().GetInvite(code)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "invite %s not found", code)
	}
	return invite, nil
}

func (s *inviteService) List(communityId, actorDid string) ([]*entity.Invite, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.requireAny(permission.ManageInvites, permission.CreateInvites); err != nil {
		return nil, err
	}
	invites, err := storage.GetMemberRepository().ListInvites(communityId)
	return invites, dbError(err)
}

func (s *inviteService) Delete(communityId, actorDid, inviteId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return err
	}
	repo := storage.GetMemberRepository()
	invites, err := repo.ListInvites(communityId)
	if err != nil {
		return dbError(err)
	}
	var invite *entity.Invite
	for _, candidate := range invites {
		if candidate.Id == inviteId {
			invite = candidate
		}
	}
	if invite == nil {
		return apperr.New(apperr.EntityNotFound, "invite %s not found", inviteId)
	}
	// Creators may withdraw their own invites
	if invite.CreatorDid != actorDid {
		if err := a.require(permission.ManageInvites); err != nil {
			return err
		}
	}
	if _, err := repo.DeleteInvite(inviteId); err != nil {
		return dbError(err)
	}
	if invite.Vanity {
		community := a.community
		community.VanityUrl = nil
		community.UpdatedAt = s.ctx.NowMillis()
		if err := storage.GetCommunityRepository().Update(community); err != nil {
			return dbError(err)
		}
	}

	audit(s.ctx, storage, communityId, actorDid, AuditInviteDeleted, TargetInvite, inviteId, map[string]string{"code": invite.Code})
	s.ctx.Publish(DomainCommunity, EventInviteDeleted, invite)
	return nil
}
