/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"database/sql"

	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunitySeed is everything a freshly created community starts with
type CommunitySeed struct {
	Community   *entity.Community
	Spaces      []*entity.Space
	Channels    []*entity.Channel
	Roles       []*entity.Role
	Owner       *entity.CommunityMember
	MemberRoles []*entity.MemberRole
	Audit       *entity.AuditLogEntry
}

// This repository holds communities and their structure: spaces, categories, channels and channel overrides.
// Deleting a container removes everything below it.
type CommunityRepository interface {
	Bootstrap(seed *CommunitySeed) error                                      // Creates a community with its initial structure, atomically
	Get(id string) (*entity.Community, error)                                 // Retrieves a community
	ListForMember(did string) ([]*entity.Community, error)                    // Retrieves the communities did belongs to
	Update(community *entity.Community) error                                 // Saves community fields
	Delete(id string) error                                                   // Deletes a community and every child row
	TransferOwnership(id, fromDid, toDid, ownerRoleId string, at int64) error // Moves ownership and the Owner role to another member

	CreateSpace(space *entity.Space) error
	GetSpace(id string) (*entity.Space, error)
	ListSpaces(communityId string) ([]*entity.Space, error)
	UpdateSpace(space *entity.Space) error
	DeleteSpace(id string) error

	CreateCategory(category *entity.Category) error
	GetCategory(id string) (*entity.Category, error)
	ListCategories(spaceId string) ([]*entity.Category, error)
	UpdateCategory(category *entity.Category) error
	DeleteCategory(id string) error // Channels inside it become uncategorized

	CreateChannel(channel *entity.Channel) error
	GetChannel(id string) (*entity.Channel, error)
	ListChannels(communityId string) ([]*entity.Channel, error)
	UpdateChannel(channel *entity.Channel) error
	DeleteChannel(id string) error

	Reorder(model any, ids []string, at int64) error // Assigns positions 0..n-1 following ids, for spaces, categories or channels
	NextPosition(model any, column, value string) (int, error)

	SetOverride(override *entity.ChannelOverride) error // Inserts or replaces the override of a target on a channel
	RemoveOverride(channelId, targetType, targetId string) (bool, error)
	Overrides(channelId string) ([]*entity.ChannelOverride, error)
}

// Implementation of the repository using a SQLite DB
type SQLiteCommunityRepository struct {
	db *gorm.DB
}

func NewSQLiteCommunityRepository(db *gorm.DB) CommunityRepository {
	return &SQLiteCommunityRepository{db}
}

func (repo *SQLiteCommunityRepository) Bootstrap(seed *CommunitySeed) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(seed.Community).Error; err != nil {
			return err
		}
		for _, space := range seed.Spaces {
			if err := tx.Create(space).Error; err != nil {
				return err
			}
		}
		for _, channel := range seed.Channels {
			if err := tx.Create(channel).Error; err != nil {
				return err
			}
		}
		for _, role := range seed.Roles {
			if err := tx.Create(role).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(seed.Owner).Error; err != nil {
			return err
		}
		for _, mr := range seed.MemberRoles {
			if err := tx.Create(mr).Error; err != nil {
				return err
			}
		}
		if seed.Audit != nil {
			return tx.Create(seed.Audit).Error
		}
		return nil
	})
}

func (repo *SQLiteCommunityRepository) Get(id string) (*entity.Community, error) {
	var community entity.Community
	err := repo.db.Where("id = ?", id).First(&community).Error
	return &community, err
}

func (repo *SQLiteCommunityRepository) ListForMember(did string) ([]*entity.Community, error) {
	var communities []*entity.Community
	err := repo.db.
		Joins("JOIN community_members ON community_members.community_id = communities.id").
		Where("community_members.member_did = ?", did).
		Order("communities.created_at ASC").
		Find(&communities).Error
	return communities, err
}

func (repo *SQLiteCommunityRepository) Update(community *entity.Community) error {
	return repo.db.Save(community).Error
}

// deleteChannels removes channels and the rows hanging off them
func deleteChannels(tx *gorm.DB, channelIds []string) error {
	if len(channelIds) == 0 {
		return nil
	}
	messages := tx.Model(&entity.ChannelMessage{}).Select("id").Where("channel_id IN ?", channelIds)
	steps := []struct {
		model any
		where string
		arg   any
	}{
		{&entity.ChannelReaction{}, "message_id IN (?)", messages},
		{&entity.ChannelPin{}, "channel_id IN ?", channelIds},
		{&entity.CommunityThread{}, "channel_id IN ?", channelIds},
		{&entity.ReadReceipt{}, "channel_id IN ?", channelIds},
		{&entity.ChannelOverride{}, "channel_id IN ?", channelIds},
		{&entity.CommunityFile{}, "channel_id IN ?", channelIds},
		{&entity.Webhook{}, "channel_id IN ?", channelIds},
		{&entity.GroupKey{}, "scope_id IN ?", channelIds},
		{&entity.ChannelMessage{}, "channel_id IN ?", channelIds},
		{&entity.Channel{}, "id IN ?", channelIds},
	}
	for _, step := range steps {
		if err := tx.Where(step.where, step.arg).Delete(step.model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (repo *SQLiteCommunityRepository) Delete(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		var channelIds []string
		if err := tx.Model(&entity.Channel{}).Where("community_id = ?", id).Pluck("id", &channelIds).Error; err != nil {
			return err
		}
		if err := deleteChannels(tx, channelIds); err != nil {
			return err
		}

		children := []any{
			&entity.Category{}, &entity.Space{}, &entity.MemberRole{}, &entity.Role{}, &entity.CommunityMember{},
			&entity.Ban{}, &entity.Invite{}, &entity.Warning{}, &entity.MemberTimeout{}, &entity.AuditLogEntry{},
			&entity.KeywordFilter{}, &entity.Emoji{}, &entity.Sticker{},
		}
		for _, model := range children {
			if err := tx.Where("community_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", id).Delete(&entity.Community{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (repo *SQLiteCommunityRepository) TransferOwnership(id, fromDid, toDid, ownerRoleId string, at int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.Community{}).
			Where("id = ? AND owner_did = ?", id, fromDid).
			Updates(map[string]any{"owner_did": toDid, "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Where("community_id = ? AND member_did = ? AND role_id = ?", id, fromDid, ownerRoleId).
			Delete(&entity.MemberRole{}).Error; err != nil {
			return err
		}
		assigned := &entity.MemberRole{CommunityId: id, MemberDid: toDid, RoleId: ownerRoleId, AssignedAt: at, AssignedBy: &fromDid}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(assigned).Error
	})
}

func (repo *SQLiteCommunityRepository) CreateSpace(space *entity.Space) error {
	return repo.db.Create(space).Error
}

func (repo *SQLiteCommunityRepository) GetSpace(id string) (*entity.Space, error) {
	var space entity.Space
	err := repo.db.Where("id = ?", id).First(&space).Error
	return &space, err
}

func (repo *SQLiteCommunityRepository) ListSpaces(communityId string) ([]*entity.Space, error) {
	var spaces []*entity.Space
	err := repo.db.Where("community_id = ?", communityId).Order("position ASC").Find(&spaces).Error
	return spaces, err
}

func (repo *SQLiteCommunityRepository) UpdateSpace(space *entity.Space) error {
	return repo.db.Save(space).Error
}

func (repo *SQLiteCommunityRepository) DeleteSpace(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		var channelIds []string
		if err := tx.Model(&entity.Channel{}).Where("space_id = ?", id).Pluck("id", &channelIds).Error; err != nil {
			return err
		}
		if err := deleteChannels(tx, channelIds); err != nil {
			return err
		}
		if err := tx.Where("space_id = ?", id).Delete(&entity.Category{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&entity.Space{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (repo *SQLiteCommunityRepository) CreateCategory(category *entity.Category) error {
	return repo.db.Create(category).Error
}

func (repo *SQLiteCommunityRepository) GetCategory(id string) (*entity.Category, error) {
	var category entity.Category
	err := repo.db.Where("id = ?", id).First(&category).Error
	return &category, err
}

func (repo *SQLiteCommunityRepository) ListCategories(spaceId string) ([]*entity.Category, error) {
	var categories []*entity.Category
	err := repo.db.Where("space_id = ?", spaceId).Order("position ASC").Find(&categories).Error
	return categories, err
}

func (repo *SQLiteCommunityRepository) UpdateCategory(category *entity.Category) error {
	return repo.db.Save(category).Error
}

func (repo *SQLiteCommunityRepository) DeleteCategory(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Channel{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&entity.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (repo *SQLiteCommunityRepository) CreateChannel(channel *entity.Channel) error {
	return repo.db.Create(channel).Error
}

func (repo *SQLiteCommunityRepository) GetChannel(id string) (*entity.Channel, error) {
	var channel entity.Channel
	err := repo.db.Where("id = ?", id).First(&channel).Error
	return &channel, err
}

func (repo *SQLiteCommunityRepository) ListChannels(communityId string) ([]*entity.Channel, error) {
	var channels []*entity.Channel
	err := repo.db.Where("community_id = ?", communityId).Order("position ASC").Find(&channels).Error
	return channels, err
}

func (repo *SQLiteCommunityRepository) UpdateChannel(channel *entity.Channel) error {
	return repo.db.Save(channel).Error
}

func (repo *SQLiteCommunityRepository) DeleteChannel(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.Channel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return deleteChannels(tx, []string{id})
	})
}

func (repo *SQLiteCommunityRepository) Reorder(model any, ids []string, at int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		for position, id := range ids {
			res := tx.Model(model).Where("id = ?", id).Updates(map[string]any{"position": position, "updated_at": at})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
}

func (repo *SQLiteCommunityRepository) NextPosition(model any, column, value string) (int, error) {
	var highest sql.NullInt64
	err := repo.db.Model(model).Where(column+" = ?", value).Select("MAX(position)").Row().Scan(&highest)
	if err != nil || !highest.Valid {
		return 0, err
	}
	return int(highest.Int64) + 1, nil
}

func (repo *SQLiteCommunityRepository) SetOverride(override *entity.ChannelOverride) error {
	return repo.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allow", "deny"}),
	}).Create(override).Error
}

func (repo *SQLiteCommunityRepository) RemoveOverride(channelId, targetType, targetId string) (bool, error) {
	res := repo.db.Where("channel_id = ? AND target_type = ? AND target_id = ?", channelId, targetType, targetId).
		Delete(&entity.ChannelOverride{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteCommunityRepository) Overrides(channelId string) ([]*entity.ChannelOverride, error) {
	var overrides []*entity.ChannelOverride
	err := repo.db.Where("channel_id = ?", channelId).Find(&overrides).Error
	return overrides, err
}
