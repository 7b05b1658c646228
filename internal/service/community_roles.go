/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
)

// Role events
const (
	EventRoleCreated     = "roleCreated"
	EventRoleUpdated     = "roleUpdated"
	EventRoleDeleted     = "roleDeleted"
	EventRoleAssigned    = "roleAssigned"
	EventRoleUnassigned  = "roleUnassigned"
	EventOverrideUpdated = "permissionOverrideUpdated"
)

type RoleSpec struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
	Hoisted     bool   `json:"hoisted"`
	Mentionable bool   `json:"mentionable"`
	Permissions string `json:"permissions"` // decimal bitfield
}

type RoleUpdate struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Position    *int    `json:"position"`
	Hoisted     *bool   `json:"hoisted"`
	Mentionable *bool   `json:"mentionable"`
	Permissions *string `json:"permissions"`
}

type RoleService interface {
	CreateRole(communityId, actorDid string, spec RoleSpec) (*entity.Role, error)
	UpdateRole(roleId, actorDid string, update RoleUpdate) (*entity.Role, error)
	DeleteRole(roleId, actorDid string) error                     // Preset roles cannot be deleted
	ListRoles(communityId string) ([]*entity.Role, error)         // Highest position first
	MemberRoles(communityId, did string) ([]*entity.Role, error)  // Highest position first
	Assign(communityId, actorDid, targetDid, roleId string) error // Grants a role below the actor's highest one
	Unassign(communityId, actorDid, targetDid, roleId string) error

	SetOverride(channelId, actorDid, targetType, targetId, allow, deny string) (*entity.ChannelOverride, error)
	RemoveOverride(channelId, actorDid, targetType, targetId string) error
	Overrides(channelId string) ([]*entity.ChannelOverride, error)

	// EffectivePermissions resolves what did may do community wide, or inside channelId when not empty
	EffectivePermissions(communityId, did, channelId string) (permission.Permissions, error)
}

type roleService struct {
	ctx *RuntimeContext
}

func NewRoleService(ctx *RuntimeContext) RoleService {
	return &roleService{ctx}
}

// checkGrant refuses to hand out bits the actor does not hold itself
func checkGrant(a *actor, granted permission.Permissions) error {
	if a.isOwner() || a.base.Has(permission.Administrator) {
		return nil
	}
	extra := granted &^ a.base
	if extra == 0 {
		return nil
	}
	if names := extra.Names(); len(names) > 0 {
		return apperr.Denied(names[0])
	}
	return apperr.Denied(extra.String())
}

// checkPosition keeps custom roles strictly between the Member and the Owner presets
func checkPosition(a *actor, position int) error {
	if position <= permission.MemberPosition || position >= permission.OwnerPosition {
		return apperr.New(apperr.InvalidInput, "position must be between %d and %d", permission.MemberPosition+1, permission.OwnerPosition-1)
	}
	if !a.canManage(position) {
		return apperr.New(apperr.PermissionDenied, "position %d is not below your highest role", position)
	}
	return nil
}

func (s *roleService) loadRole(storage *data.StorageManager, roleId string) (*entity.Role, error) {
	role, err := storage.GetMemberRepository().GetRole(roleId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "role %s not found", roleId)
	}
	return role, nil
}

// roleManager loads the actor and requires ManageRoles
func roleManager(storage *data.StorageManager, communityId, actorDid string) (*actor, error) {
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(permission.ManageRoles); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *roleService) CreateRole(communityId, actorDid string, spec RoleSpec) (*entity.Role, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := roleManager(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	name, err := validName(spec.Name, MaxChannelNameLength)
	if err != nil {
		return nil, err
	}
	if err := checkPosition(a, spec.Position); err != nil {
		return nil, err
	}
	granted := permission.Parse(spec.Permissions)
	if err := checkGrant(a, granted); err != nil {
		return nil, err
	}

	now := s.ctx.NowMillis()
	role := &entity.Role{
		Id:          newId(),
		CommunityId: communityId,
		Name:        name,
		Color:       spec.Color,
		Position:    spec.Position,
		Hoisted:     spec.Hoisted,
		Mentionable: spec.Mentionable,
		Permissions: granted.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := storage.GetMemberRepository().CreateRole(role); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditRoleCreated, TargetRole, role.Id, map[string]string{"name": name})
	s.ctx.Publish(DomainCommunity, EventRoleCreated, role)
	return role, nil
}

func (s *roleService) UpdateRole(roleId, actorDid string, update RoleUpdate) (*entity.Role, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	role, err := s.loadRole(storage, roleId)
	if err != nil {
		return nil, err
	}
	a, err := roleManager(storage, role.CommunityId, actorDid)
	if err != nil {
		return nil, err
	}
	if role.IsPreset && role.Name == permission.OwnerRoleName {
		return nil, apperr.New(apperr.Conflict, "the Owner role cannot be edited")
	}
	if !a.canManage(role.Position) {
		return nil, apperr.New(apperr.PermissionDenied, "role %s is not below your highest role", role.Name)
	}

	if update.Name != nil {
		if role.IsPreset {
			return nil, apperr.New(apperr.Conflict, "preset roles cannot be renamed")
		}
		if role.Name, err = validName(*update.Name, MaxChannelNameLength); err != nil {
			return nil, err
		}
	}
	if update.Position != nil && *update.Position != role.Position {
		if role.IsPreset {
			return nil, apperr.New(apperr.Conflict, "preset roles cannot be moved")
		}
		if err := checkPosition(a, *update.Position); err != nil {
			return nil, err
		}
		role.Position = *update.Position
	}
	if update.Permissions != nil {
		granted := permission.Parse(*update.Permissions)
		if err := checkGrant(a, granted); err != nil {
			return nil, err
		}
		role.Permissions = granted.String()
	}
	if update.Color != nil {
		role.Color = *update.Color
	}
	if update.Hoisted != nil {
		role.Hoisted = *update.Hoisted
	}
	if update.Mentionable != nil {
		role.Mentionable = *update.Mentionable
	}
	role.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetMemberRepository().UpdateRole(role); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, role.CommunityId, actorDid, AuditRoleUpdated, TargetRole, roleId, update)
	s.ctx.Publish(DomainCommunity, EventRoleUpdated, role)
	return role, nil
}

func (s *roleService) DeleteRole(roleId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	role, err := s.loadRole(storage, roleId)
	if err != nil {
		return err
	}
	a, err := roleManager(storage, role.CommunityId, actorDid)
	if err != nil {
		return err
	}
	if role.IsPreset {
		return apperr.New(apperr.Conflict, "preset roles cannot be deleted")
	}
	if !a.canManage(role.Position) {
		return apperr.New(apperr.PermissionDenied, "role %s is not below your highest role", role.Name)
	}
	if err := storage.GetMemberRepository().DeleteRole(roleId); err != nil {
		return notFound(err, apperr.EntityNotFound, "role %s not found", roleId)
	}

	audit(s.ctx, storage, role.CommunityId, actorDid, AuditRoleDeleted, TargetRole, roleId, map[string]string{"name": role.Name})
	s.ctx.Publish(DomainCommunity, EventRoleDeleted, role)
	return nil
}

func (s *roleService) ListRoles(communityId string) ([]*entity.Role, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	roles, err := storage.GetMemberRepository().ListRoles(communityId)
	return roles, dbError(err)
}

func (s *roleService) MemberRoles(communityId, did string) ([]*entity.Role, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	roles, err := storage.GetMemberRepository().MemberRoles(communityId, did)
	return roles, dbError(err)
}

type roleAssignment struct {
	CommunityId string `json:"community_id"`
	MemberDid   string `json:"member_did"`
	RoleId      string `json:"role_id"`
}

// assignable loads the role and target of an assignment and applies the hierarchy checks
func (s *roleService) assignable(storage *data.StorageManager, communityId, actorDid, targetDid, roleId string) (*entity.Role, error) {
	a, err := roleManager(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	role, err := s.loadRole(storage, roleId)
	if err != nil {
		return nil, err
	}
	if role.CommunityId != communityId {
		return nil, apperr.New(apperr.InvalidInput, "role %s belongs to another community", roleId)
	}
	if role.IsPreset && role.Name == permission.OwnerRoleName {
		return nil, apperr.New(apperr.Conflict, "the Owner role moves only through an ownership transfer")
	}
	if !a.canManage(role.Position) {
		return nil, apperr.New(apperr.PermissionDenied, "role %s is not below your highest role", role.Name)
	}
	isMember, err := storage.GetMemberRepository().IsMember(communityId, targetDid)
	if err != nil {
		return nil, dbError(err)
	}
	if !isMember {
		return nil, apperr.New(apperr.EntityNotFound, "%s is not a member of this community", targetDid)
	}
	return role, nil
}

func (s *roleService) Assign(communityId, actorDid, targetDid, roleId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := s.assignable(storage, communityId, actorDid, targetDid, roleId); err != nil {
		return err
	}
	assigned, err := storage.GetMemberRepository().AssignRole(&entity.MemberRole{
		CommunityId: communityId,
		MemberDid:   targetDid,
		RoleId:      roleId,
		AssignedAt:  s.ctx.NowMillis(),
		AssignedBy:  ptr(actorDid),
	})
	if err != nil {
		return dbError(err)
	}
	if !assigned {
		return nil
	}

	audit(s.ctx, storage, communityId, actorDid, AuditRoleAssigned, TargetMember, targetDid, map[string]string{"role_id": roleId})
	s.ctx.Publish(DomainCommunity, EventRoleAssigned, roleAssignment{communityId, targetDid, roleId})
	return nil
}

func (s *roleService) Unassign(communityId, actorDid, targetDid, roleId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := s.assignable(storage, communityId, actorDid, targetDid, roleId); err != nil {
		return err
	}
	removed, err := storage.GetMemberRepository().UnassignRole(communityId, targetDid, roleId)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "%s does not hold role %s", targetDid, roleId)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditRoleUnassigned, TargetMember, targetDid, map[string]string{"role_id": roleId})
	s.ctx.Publish(DomainCommunity, EventRoleUnassigned, roleAssignment{communityId, targetDid, roleId})
	return nil
}

// overrideTarget checks that the actor may touch the overrides of a target in channel
func (s *roleService) overrideTarget(storage *data.StorageManager, channel *entity.Channel, a *actor, targetType, targetId string) error {
	switch targetType {
	case entity.OverrideRole:
		role, err := s.loadRole(storage, targetId)
		if err != nil {
			return err
		}
		if role.CommunityId != channel.CommunityId {
			return apperr.New(apperr.InvalidInput, "role %s belongs to another community", targetId)
		}
		if !a.canManage(role.Position) {
			return apperr.New(apperr.PermissionDenied, "role %s is not below your highest role", role.Name)
		}
	case entity.OverrideMember:
		target, err := actorIn(storage, a.community, targetId)
		if err != nil {
			return apperr.New(apperr.EntityNotFound, "%s is not a member of this community", targetId)
		}
		if target.did != a.did && !a.outranks(target) {
			return apperr.New(apperr.PermissionDenied, "%s is not below you", targetId)
		}
	default:
		return apperr.New(apperr.InvalidInput, "unknown override target %q", targetType)
	}
	return nil
}

func (s *roleService) SetOverride(channelId, actorDid, targetType, targetId, allow, deny string) (*entity.ChannelOverride, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return nil, err
	}
	a, err := roleManager(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := s.overrideTarget(storage, channel, a, targetType, targetId); err != nil {
		return nil, err
	}
	allowed, denied := permission.Parse(allow), permission.Parse(deny)
	if err := checkGrant(a, allowed); err != nil {
		return nil, err
	}

	override := &entity.ChannelOverride{
		Id:         newId(),
		ChannelId:  channelId,
		TargetType: targetType,
		TargetId:   targetId,
		Allow:      allowed.String(),
		Deny:       denied.String(),
	}
	if err := storage.GetCommunityRepository().SetOverride(override); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditOverrideSet, TargetChannel, channelId, override)
	s.ctx.Publish(DomainCommunity, EventOverrideUpdated, override)
	return override, nil
}

func (s *roleService) RemoveOverride(channelId, actorDid, targetType, targetId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return err
	}
	a, err := roleManager(storage, channel.CommunityId, actorDid)
	if err != nil {
		return err
	}
	if err := s.overrideTarget(storage, channel, a, targetType, targetId); err != nil {
		return err
	}
	removed, err := storage.GetCommunityRepository().RemoveOverride(channelId, targetType, targetId)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "no override for %s %s", targetType, targetId)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditOverrideRemoved, TargetChannel, channelId,
		map[string]string{"target_type": targetType, "target_id": targetId})
	s.ctx.Publish(DomainCommunity, EventOverrideUpdated, map[string]string{
		"channel_id": channelId, "target_type": targetType, "target_id": targetId,
	})
	return nil
}

func (s *roleService) Overrides(channelId string) ([]*entity.ChannelOverride, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	overrides, err := storage.GetCommunityRepository().Overrides(channelId)
	return overrides, dbError(err)
}

func (s *roleService) EffectivePermissions(communityId, did, channelId string) (permission.Permissions, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return 0, err
	}
	a, err := loadActor(storage, communityId, did)
	if err != nil {
		return 0, err
	}
	if channelId == "" {
		if a.isOwner() || a.base.Has(permission.Administrator) {
			return permission.All, nil
		}
		return a.base, nil
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return 0, err
	}
	if channel.CommunityId != communityId {
		return 0, apperr.New(apperr.InvalidInput, "channel %s belongs to another community", channelId)
	}
	return a.channelPermissions(storage, channel)
}
