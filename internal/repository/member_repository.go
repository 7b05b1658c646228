/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// This repository holds who is in a community and with which roles, plus bans and invites.
type MemberRepository interface {
	CreateRole(role *entity.Role) error
	GetRole(id string) (*entity.Role, error)
	ListRoles(communityId string) ([]*entity.Role, error)      // Retrieves roles, highest position first
	PresetRole(communityId, name string) (*entity.Role, error) // Retrieves one of the preset roles
	UpdateRole(role *entity.Role) error
	DeleteRole(id string) error // Deletes a role, its assignments and its channel overrides

	AssignRole(assignment *entity.MemberRole) (bool, error)      // Assigns a role, false when already assigned
	UnassignRole(communityId, did, roleId string) (bool, error)  // Removes an assignment
	MemberRoles(communityId, did string) ([]*entity.Role, error) // Retrieves the roles of a member, highest position first
	RoleMembers(roleId string) ([]string, error)                 // Retrieves the DIDs holding a role

	AddMember(member *entity.CommunityMember, roleIds ...string) error // Inserts a member with its initial roles. ErrAlreadyMember when present
	GetMember(communityId, did string) (*entity.CommunityMember, error)
	ListMembers(communityId string) ([]*entity.CommunityMember, error)
	UpdateMember(member *entity.CommunityMember) error
	RemoveMember(communityId, did string) (bool, error) // Removes a member and its role assignments
	IsMember(communityId, did string) (bool, error)
	CountMembers(communityId string) (int64, error)

	BanMember(ban *entity.Ban) (bool, error) // Inserts or replaces a ban and removes the banned member in the same transaction
	RemoveBan(communityId, did string) (bool, error)
	GetBan(communityId, did string) (*entity.Ban, error)
	ListBans(communityId string) ([]*entity.Ban, error)
	BanForFingerprint(communityId, fingerprint string) (*entity.Ban, error) // Retrieves a ban issued against a device

	CreateInvite(invite *entity.Invite) error
	GetInvite(code string) (*entity.Invite, error)
	VanityInvite(communityId string) (*entity.Invite, error)
	ListInvites(communityId string) ([]*entity.Invite, error)
	DeleteInvite(id string) (bool, error)
	UseInvite(code string, member *entity.CommunityMember, now int64, roleIds ...string) (*entity.Invite, error) // Consumes one use and joins the member, atomically
}

// Implementation of the repository using a SQLite DB
type SQLiteMemberRepository struct {
	db *gorm.DB
}

func NewSQLiteMemberRepository(db *gorm.DB) MemberRepository {
	return &SQLiteMemberRepository{db}
}

func (repo *SQLiteMemberRepository) CreateRole(role *entity.Role) error {
	return repo.db.Create(role).Error
}

func (repo *SQLiteMemberRepository) GetRole(id string) (*entity.Role, error) {
	var role entity.Role
	err := repo.db.Where("id = ?", id).First(&role).Error
	return &role, err
}

func (repo *SQLiteMemberRepository) ListRoles(communityId string) ([]*entity.Role, error) {
	var roles []*entity.Role
	err := repo.db.Where("community_id = ?", communityId).Order("position DESC, created_at ASC").Find(&roles).Error
	return roles, err
}

func (repo *SQLiteMemberRepository) PresetRole(communityId, name string) (*entity.Role, error) {
	var role entity.Role
	err := repo.db.Where("community_id = ? AND is_preset = ? AND name = ?", communityId, true, name).First(&role).Error
	return &role, err
}

func (repo *SQLiteMemberRepository) UpdateRole(role *entity.Role) error {
	return repo.db.Save(role).Error
}

func (repo *SQLiteMemberRepository) DeleteRole(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&entity.MemberRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_type = ? AND target_id = ?", entity.OverrideRole, id).Delete(&entity.ChannelOverride{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&entity.Role{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (repo *SQLiteMemberRepository) AssignRole(assignment *entity.MemberRole) (bool, error) {
	res := repo.db.Clauses(clause.OnConflict{DoNothing: true}).Create(assignment)
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMemberRepository) UnassignRole(communityId, did, roleId string) (bool, error) {
	res := repo.db.Where("community_id = ? AND member_did = ? AND role_id = ?", communityId, did, roleId).Delete(&entity.MemberRole{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMemberRepository) MemberRoles(communityId, did string) ([]*entity.Role, error) {
	var roles []*entity.Role
	err := repo.db.
		Joins("JOIN member_roles ON member_roles.role_id = roles.id").
		Where("member_roles.community_id = ? AND member_roles.member_did = ?", communityId, did).
		Order("roles.position DESC").
		Find(&roles).Error
	return roles, err
}

func (repo *SQLiteMemberRepository) RoleMembers(roleId string) ([]string, error) {
	var dids []string
	err := repo.db.Model(&entity.MemberRole{}).Where("role_id = ?", roleId).Order("member_did ASC").Pluck("member_did", &dids).Error
	return dids, err
}

func addMember(tx *gorm.DB, member *entity.CommunityMember, roleIds []string) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(member)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyMember
	}
	for _, roleId := range roleIds {
		assignment := &entity.MemberRole{CommunityId: member.CommunityId, MemberDid: member.MemberDid, RoleId: roleId, AssignedAt: member.JoinedAt}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(assignment).Error; err != nil {
			return err
		}
	}
	return nil
}

func (repo *SQLiteMemberRepository) AddMember(member *entity.CommunityMember, roleIds ...string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		return addMember(tx, member, roleIds)
	})
}

func (repo *SQLiteMemberRepository) GetMember(communityId, did string) (*entity.CommunityMember, error) {
	var member entity.CommunityMember
	err := repo.db.Where("community_id = ? AND member_did = ?", communityId, did).First(&member).Error
	return &member, err
}

func (repo *SQLiteMemberRepository) ListMembers(communityId string) ([]*entity.CommunityMember, error) {
	var members []*entity.CommunityMember
	err := repo.db.Where("community_id = ?", communityId).Order("joined_at ASC").Find(&members).Error
	return members, err
}

func (repo *SQLiteMemberRepository) UpdateMember(member *entity.CommunityMember) error {
	return repo.db.Save(member).Error
}

func removeMember(tx *gorm.DB, communityId, did string) (bool, error) {
	if err := tx.Where("community_id = ? AND member_did = ?", communityId, did).Delete(&entity.MemberRole{}).Error; err != nil {
		return false, err
	}
	res := tx.Where("community_id = ? AND member_did = ?", communityId, did).Delete(&entity.CommunityMember{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMemberRepository) RemoveMember(communityId, did string) (bool, error) {
	removed := false
	err := repo.db.Transaction(func(tx *gorm.DB) (err error) {
		removed, err = removeMember(tx, communityId, did)
		return err
	})
	return removed, err
}

func (repo *SQLiteMemberRepository) IsMember(communityId, did string) (bool, error) {
	var count int64
	err := repo.db.Model(&entity.CommunityMember{}).Where("community_id = ? AND member_did = ?", communityId, did).Count(&count).Error
	return count > 0, err
}

func (repo *SQLiteMemberRepository) CountMembers(communityId string) (int64, error) {
	var count int64
	err := repo.db.Model(&entity.CommunityMember{}).Where("community_id = ?", communityId).Count(&count).Error
	return count, err
}

func (repo *SQLiteMemberRepository) BanMember(ban *entity.Ban) (bool, error) {
	removed := false
	err := repo.db.Transaction(func(tx *gorm.DB) (err error) {
		if err = tx.Save(ban).Error; err != nil {
			return err
		}
		removed, err = removeMember(tx, ban.CommunityId, ban.BannedDid)
		return err
	})
	return removed, err
}

func (repo *SQLiteMemberRepository) RemoveBan(communityId, did string) (bool, error) {
	res := repo.db.Where("community_id = ? AND banned_did = ?", communityId, did).Delete(&entity.Ban{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMemberRepository) GetBan(communityId, did string) (*entity.Ban, error) {
	var ban entity.Ban
	err := repo.db.Where("community_id = ? AND banned_did = ?", communityId, did).First(&ban).Error
	return &ban, err
}

func (repo *SQLiteMemberRepository) ListBans(communityId string) ([]*entity.Ban, error) {
	var bans []*entity.Ban
	err := repo.db.Where("community_id = ?", communityId).Order("created_at DESC").Find(&bans).Error
	return bans, err
}

func (repo *SQLiteMemberRepository) BanForFingerprint(communityId, fingerprint string) (*entity.Ban, error) {
	var ban entity.Ban
	err := repo.db.Where("community_id = ? AND device_fingerprint = ?", communityId, fingerprint).First(&ban).Error
	return &ban, err
}

func (repo *SQLiteMemberRepository) CreateInvite(invite *entity.Invite) error {
	return repo.db.Create(invite).Error
}

func (repo *SQLiteMemberRepository) GetInvite(code string) (*entity.Invite, error) {
	var invite entity.Invite
	err := repo.db.Where("code = ?", code).First(&invite).Error
	return &invite, err
}

func (repo *SQLiteMemberRepository) VanityInvite(communityId string) (*entity.Invite, error) {
	var invite entity.Invite
	err := repo.db.Where("community_id = ? AND vanity = ?", communityId, true).First(&invite).Error
	return &invite, err
}

func (repo *SQLiteMemberRepository) ListInvites(communityId string) ([]*entity.Invite, error) {
	var invites []*entity.Invite
	err := repo.db.Where("community_id = ?", communityId).Order("created_at DESC").Find(&invites).Error
	return invites, err
}

func (repo *SQLiteMemberRepository) DeleteInvite(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.Invite{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMemberRepository) UseInvite(code string, member *entity.CommunityMember, now int64, roleIds ...string) (*entity.Invite, error) {
	var invite entity.Invite
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code).First(&invite).Error; err != nil {
			return err
		}
		if invite.ExpiresAt != nil && *invite.ExpiresAt <= now {
			return ErrInviteExpired
		}
		if invite.MaxUses != nil && invite.UseCount >= *invite.MaxUses {
			return ErrInviteExhausted
		}

		member.CommunityId = invite.CommunityId
		if err := addMember(tx, member, roleIds); err != nil {
			return err
		}
		invite.UseCount++
		return tx.Model(&entity.Invite{}).Where("id = ?", invite.Id).Update("use_count", invite.UseCount).Error
	})
	return &invite, err
}
