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
)

// Filters of an audit log listing. Zero values disable a filter
type AuditFilter struct {
	ActorDid   string
	ActionType string
	Before     int64
	Limit      int
	Offset     int
}

type ModerationRepository interface {
	AddWarning(warning *entity.Warning) error
	ListWarnings(communityId, did string) ([]*entity.Warning, error)
	CountActiveWarnings(communityId, did string, now int64) (int64, error) // Counts warnings that have not expired yet
	RemoveWarning(id string) (bool, error)

	AddTimeout(timeout *entity.MemberTimeout) error
	ActiveTimeouts(communityId, did string, now int64) ([]*entity.MemberTimeout, error)
	ListTimeouts(communityId string, now int64) ([]*entity.MemberTimeout, error)
	RemoveTimeouts(communityId, did string) (int64, error)
	PurgeExpiredTimeouts(now int64) (int64, error)

	AppendAudit(entry *entity.AuditLogEntry) error
	ListAudit(communityId string, filter AuditFilter) ([]*entity.AuditLogEntry, error) // Newest entries first

	AddKeywordFilter(filter *entity.KeywordFilter) error
	ListKeywordFilters(communityId string) ([]*entity.KeywordFilter, error)
	RemoveKeywordFilter(id string) (bool, error)
}

type SQLiteModerationRepository struct {
	db *gorm.DB
}

func NewSQLiteModerationRepository(db *gorm.DB) ModerationRepository {
	return &SQLiteModerationRepository{db}
}

func (repo *SQLiteModerationRepository) AddWarning(warning *entity.Warning) error {
	return repo.db.Create(warning).Error
}

func (repo *SQLiteModerationRepository) ListWarnings(communityId, did string) ([]*entity.Warning, error) {
	var warnings []*entity.Warning
	err := repo.db.Where("community_id = ? AND member_did = ?", communityId, did).Order("created_at DESC").Find(&warnings).Error
	return warnings, err
}

func (repo *SQLiteModerationRepository) CountActiveWarnings(communityId, did string, now int64) (int64, error) {
	var count int64
	err := repo.db.Model(&entity.Warning{}).
		Where("community_id = ? AND member_did = ?", communityId, did).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	return count, err
}

func (repo *SQLiteModerationRepository) RemoveWarning(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.Warning{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteModerationRepository) AddTimeout(timeout *entity.MemberTimeout) error {
	return repo.db.Create(timeout).Error
}

func (repo *SQLiteModerationRepository) ActiveTimeouts(communityId, did string, now int64) ([]*entity.MemberTimeout, error) {
	var timeouts []*entity.MemberTimeout
	err := repo.db.
		Where("community_id = ? AND member_did = ? AND expires_at > ?", communityId, did, now).
		Order("expires_at DESC").
		Find(&timeouts).Error
	return timeouts, err
}

func (repo *SQLiteModerationRepository) ListTimeouts(communityId string, now int64) ([]*entity.MemberTimeout, error) {
	var timeouts []*entity.MemberTimeout
	err := repo.db.Where("community_id = ? AND expires_at > ?", communityId, now).Order("created_at DESC").Find(&timeouts).Error
	return timeouts, err
}

func (repo *SQLiteModerationRepository) RemoveTimeouts(communityId, did string) (int64, error) {
	res := repo.db.Where("community_id = ? AND member_did = ?", communityId, did).Delete(&entity.MemberTimeout{})
	return res.RowsAffected, res.Error
}

func (repo *SQLiteModerationRepository) PurgeExpiredTimeouts(now int64) (int64, error) {
	res := repo.db.Where("expires_at <= ?", now).Delete(&entity.MemberTimeout{})
	return res.RowsAffected, res.Error
}

func (repo *SQLiteModerationRepository) AppendAudit(entry *entity.AuditLogEntry) error {
	return repo.db.Create(entry).Error
}

func (repo *SQLiteModerationRepository) ListAudit(communityId string, filter AuditFilter) ([]*entity.AuditLogEntry, error) {
	query := repo.db.Where("community_id = ?", communityId)
	if filter.ActorDid != "" {
		query = query.Where("actor_did = ?", filter.ActorDid)
	}
	if filter.ActionType != "" {
		query = query.Where("action_type = ?", filter.ActionType)
	}
	if filter.Before > 0 {
		query = query.Where("created_at < ?", filter.Before)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var entries []*entity.AuditLogEntry
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&entries).Error
	return entries, err
}

func (repo *SQLiteModerationRepository) AddKeywordFilter(filter *entity.KeywordFilter) error {
	return repo.db.Create(filter).Error
}

func (repo *SQLiteModerationRepository) ListKeywordFilters(communityId string) ([]*entity.KeywordFilter, error) {
	var filters []*entity.KeywordFilter
	err := repo.db.Where("community_id = ?", communityId).Order("created_at ASC").Find(&filters).Error
	return filters, err
}

func (repo *SQLiteModerationRepository) RemoveKeywordFilter(id string) (bool, error) {
	res := repo.db.Where("id = ?", id).Delete(&entity.KeywordFilter{})
	return res.RowsAffected > 0, res.Error
}
