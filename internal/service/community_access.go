/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/json"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
)

// Audit actions
const (
	AuditCommunityCreated     = "communityCreated"
	AuditCommunityUpdated     = "communityUpdated"
	AuditOwnershipTransferred = "ownershipTransferred"
	AuditSpaceCreated         = "spaceCreated"
	AuditSpaceUpdated         = "spaceUpdated"
	AuditSpaceDeleted         = "spaceDeleted"
	AuditCategoryCreated      = "categoryCreated"
	AuditCategoryUpdated      = "categoryUpdated"
	AuditCategoryDeleted      = "categoryDeleted"
	AuditChannelCreated       = "channelCreated"
	AuditChannelUpdated       = "channelUpdated"
	AuditChannelDeleted       = "channelDeleted"
	AuditRoleCreated          = "roleCreated"
	AuditRoleUpdated          = "roleUpdated"
	AuditRoleDeleted          = "roleDeleted"
	AuditRoleAssigned         = "roleAssigned"
	AuditRoleUnassigned       = "roleUnassigned"
	AuditOverrideSet          = "permissionOverrideSet"
	AuditOverrideRemoved      = "permissionOverrideRemoved"
	AuditMemberKicked         = "memberKicked"
	AuditMemberBanned         = "memberBanned"
	AuditMemberUnbanned       = "memberUnbanned"
	AuditMemberWarned         = "memberWarned"
	AuditWarningRemoved       = "warningRemoved"
	AuditMemberTimedOut       = "memberTimedOut"
	AuditTimeoutRemoved       = "timeoutRemoved"
	AuditNicknameChanged      = "nicknameChanged"
	AuditInviteCreated        = "inviteCreated"
	AuditInviteDeleted        = "inviteDeleted"
	AuditMessageDeleted       = "messageDeleted"
	AuditMessagePinned        = "messagePinned"
	AuditMessageUnpinned      = "messageUnpinned"
	AuditKeywordFilterAdded   = "keywordFilterAdded"
	AuditKeywordFilterRemoved = "keywordFilterRemoved"
	AuditKeyRotated           = "channelKeyRotated"
	AuditEmojiCreated         = "emojiCreated"
	AuditEmojiDeleted         = "emojiDeleted"
	AuditStickerCreated       = "stickerCreated"
	AuditStickerDeleted       = "stickerDeleted"
	AuditWebhookCreated       = "webhookCreated"
	AuditWebhookDeleted       = "webhookDeleted"
	AuditBrandingUpdated      = "brandingUpdated"
	AuditFileDeleted          = "fileDeleted"
)

// Audit target types
const (
	TargetCommunity = "community"
	TargetSpace     = "space"
	TargetCategory  = "category"
	TargetChannel   = "channel"
	TargetRole      = "role"
	TargetMember    = "member"
	TargetInvite    = "invite"
	TargetMessage   = "message"
	TargetFilter    = "keyword_filter"
	TargetEmoji     = "emoji"
	TargetSticker   = "sticker"
	TargetWebhook   = "webhook"
	TargetFile      = "file"
)

// actor is a member of a community as seen by the permission checks
type actor struct {
	did       string
	community *entity.Community
	roles     []*entity.Role
	base      permission.Permissions // OR of every role
}

func (a *actor) isOwner() bool {
	return a.community.OwnerDid == a.did
}

// highest is the position of the highest role held, -1 without roles
func (a *actor) highest() int {
	top := -1
	for _, role := range a.roles {
		if role.Position > top {
			top = role.Position
		}
	}
	return top
}

func (a *actor) has(perm permission.Permission) bool {
	return a.isOwner() || a.base.Has(perm)
}

// require fails with PermissionDenied unless the actor holds perm community wide
func (a *actor) require(perm permission.Permission) error {
	if a.has(perm) {
		return nil
	}
	return apperr.Denied(perm.String())
}

// requireAny passes when the actor holds at least one of perms
func (a *actor) requireAny(perms ...permission.Permission) error {
	for _, perm := range perms {
		if a.has(perm) {
			return nil
		}
	}
	return apperr.Denied(perms[0].String())
}

// canManage reports whether the actor sits above a role position
func (a *actor) canManage(position int) bool {
	return permission.CanManagePosition(a.isOwner(), a.highest(), position)
}

// outranks reports whether the actor may act on target: the owner always, others only
// when their highest role is above every role target holds
func (a *actor) outranks(target *actor) bool {
	if target.isOwner() {
		return false
	}
	return a.canManage(target.highest())
}

// channelPermissions resolves the actor permissions inside a channel
func (a *actor) channelPermissions(storage *data.StorageManager, channel *entity.Channel) (permission.Permissions, error) {
	if a.isOwner() {
		return permission.All, nil
	}
	overrides, err := storage.GetCommunityRepository().Overrides(channel.Id)
	if err != nil {
		return 0, dbError(err)
	}

	positions := make(map[string]int, len(a.roles))
	for _, role := range a.roles {
		positions[role.Id] = role.Position
	}
	var roleOverrides []permission.Override
	var memberOverride *permission.Override
	for _, o := range overrides {
		resolved := permission.Override{Allow: permission.Parse(o.Allow), Deny: permission.Parse(o.Deny)}
		switch o.TargetType {
		case entity.OverrideRole:
			position, held := positions[o.TargetId]
			if !held {
				continue
			}
			resolved.Position = position
			roleOverrides = append(roleOverrides, resolved)
		case entity.OverrideMember:
			if o.TargetId == a.did {
				memberOverride = &resolved
			}
		}
	}
	return permission.ComputeChannel(a.base, roleOverrides, memberOverride), nil
}

// requireChannel fails with PermissionDenied unless the actor holds perm in channel
func (a *actor) requireChannel(storage *data.StorageManager, channel *entity.Channel, perm permission.Permission) error {
	perms, err := a.channelPermissions(storage, channel)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return apperr.Denied(perm.String())
	}
	return nil
}

// loadCommunity fetches a community, EntityNotFound when missing
func loadCommunity(storage *data.StorageManager, communityId string) (*entity.Community, error) {
	community, err := storage.GetCommunityRepository().Get(communityId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "community %s not found", communityId)
	}
	return community, nil
}

func loadChannel(storage *data.StorageManager, channelId string) (*entity.Channel, error) {
	channel, err := storage.GetCommunityRepository().GetChannel(channelId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "channel %s not found", channelId)
	}
	return channel, nil
}

// loadActor resolves did inside a community. Non members are denied
func loadActor(storage *data.StorageManager, communityId, did string) (*actor, error) {
	community, err := loadCommunity(storage, communityId)
	if err != nil {
		return nil, err
	}
	return actorIn(storage, community, did)
}

func actorIn(storage *data.StorageManager, community *entity.Community, did string) (*actor, error) {
	members := storage.GetMemberRepository()
	isMember, err := members.IsMember(community.Id, did)
	if err != nil {
		return nil, dbError(err)
	}
	if !isMember {
		return nil, apperr.New(apperr.PermissionDenied, "%s is not a member of this community", did)
	}
	roles, err := members.MemberRoles(community.Id, did)
	if err != nil {
		return nil, dbError(err)
	}

	a := &actor{did: did, community: community, roles: roles}
	for _, role := range roles {
		a.base = a.base.Merge(permission.Parse(role.Permissions))
	}
	return a, nil
}

// auditEntry builds an audit row. meta is stored as JSON when not nil
func auditEntry(communityId, actorDid, action, targetType, targetId string, meta any, at int64) *entity.AuditLogEntry {
	entry := &entity.AuditLogEntry{
		Id:          newId(),
		CommunityId: communityId,
		ActorDid:    actorDid,
		ActionType:  action,
		CreatedAt:   at,
	}
	if targetType != "" {
		entry.TargetType = ptr(targetType)
	}
	if targetId != "" {
		entry.TargetId = ptr(targetId)
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			entry.MetadataJson = ptr(string(raw))
		}
	}
	return entry
}

// audit appends to the community audit log. A failed append is logged, the action stands
func audit(ctx *RuntimeContext, storage *data.StorageManager, communityId, actorDid, action, targetType, targetId string, meta any) {
	entry := auditEntry(communityId, actorDid, action, targetType, targetId, meta, ctx.NowMillis())
	if err := storage.GetModerationRepository().AppendAudit(entry); err != nil {
		ctx.Logf("Could not record %s in the audit log of %s: %v", action, communityId, err)
	}
}
