/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"regexp"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
	"github.com/InfamousVague/umbra/internal/repository"
)

// Moderation events
const (
	EventMemberWarned     = "memberWarned"
	EventWarningRemoved   = "warningRemoved"
	EventMemberTimedOut   = "memberTimedOut"
	EventTimeoutRemoved   = "timeoutRemoved"
	EventKeywordFilterSet = "keywordFiltersChanged"
)

// Escalation suggestions, computed from active warnings
const (
	EscalationNone    = ""
	EscalationTimeout = "timeout"
	EscalationBan     = "ban"

	DefaultTimeoutThreshold = 3
	DefaultBanThreshold     = 5
)

// Keyword filter actions
const (
	FilterDelete  = "delete"
	FilterWarn    = "warn"
	FilterTimeout = "timeout"
)

const MaxTimeoutMillis = int64(28 * 24 * 60 * 60 * 1000)

type WarningResult struct {
	Warning     *entity.Warning `json:"warning"`
	ActiveCount int64           `json:"active_count"`
	Escalation  string          `json:"escalation,omitempty"`
}

type ModerationService interface {
	Warn(communityId, actorDid, targetDid, reason string, expiresAt *int64) (*WarningResult, error) // Records a warning and reports the escalation it reaches
	Warnings(communityId, did string) ([]*entity.Warning, error)
	RemoveWarning(communityId, actorDid, targetDid, warningId string) error
	Escalation(communityId, did string, timeoutThreshold, banThreshold int) (string, error) // Zero thresholds use the defaults

	Timeout(communityId, actorDid, targetDid, kind string, durationMillis int64, reason string) (*entity.MemberTimeout, error)
	RemoveTimeouts(communityId, actorDid, targetDid string) (int64, error)
	ActiveTimeouts(communityId, did string) ([]*entity.MemberTimeout, error)
	ListTimeouts(communityId string) ([]*entity.MemberTimeout, error)
	IsMuted(communityId, did string) (bool, error)
	PurgeExpiredTimeouts() (int64, error)

	AddKeywordFilter(communityId, actorDid, pattern, action string) (*entity.KeywordFilter, error)
	KeywordFilters(communityId string) ([]*entity.KeywordFilter, error)
	RemoveKeywordFilter(communityId, actorDid, filterId string) error
	CheckKeywords(communityId, content string) (*entity.KeywordFilter, error) // First filter matching content, nil when none

	AuditLog(communityId, actorDid string, filter repository.AuditFilter) ([]*entity.AuditLogEntry, error)
}

type moderationService struct {
	ctx *RuntimeContext
}

func NewModerationService(ctx *RuntimeContext) ModerationService {
	return &moderationService{ctx}
}

// keywordPattern compiles a filter: case insensitive, * stands for any run of non space characters
func keywordPattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(strings.TrimSpace(pattern), "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile(`(?i)` + strings.Join(parts, `\S*`))
}

// MatchKeyword reports whether content trips a keyword filter pattern
func MatchKeyword(pattern, content string) bool {
	if strings.Trim(pattern, "* \t") == "" {
		return false
	}
	re, err := keywordPattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}

func escalation(count int64, timeoutThreshold, banThreshold int) string {
	if timeoutThreshold <= 0 {
		timeoutThreshold = DefaultTimeoutThreshold
	}
	if banThreshold <= 0 {
		banThreshold = DefaultBanThreshold
	}
	switch {
	case count >= int64(banThreshold):
		return EscalationBan
	case count >= int64(timeoutThreshold):
		return EscalationTimeout
	}
	return EscalationNone
}

func (s *moderationService) Warn(communityId, actorDid, targetDid, reason string, expiresAt *int64) (*WarningResult, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, _, err := moderate(storage, communityId, actorDid, targetDid, permission.TimeoutMembers); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.InvalidInput, "a warning needs a reason")
	}

	now := s.ctx.NowMillis()
	warning := &entity.Warning{
		Id:          newId(),
		CommunityId: communityId,
		MemberDid:   targetDid,
		Reason:      reason,
		WarnedBy:    actorDid,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	repo := storage.GetModerationRepository()
	if err := repo.AddWarning(warning); err != nil {
		return nil, dbError(err)
	}
	count, err := repo.CountActiveWarnings(communityId, targetDid, now)
	if err != nil {
		return nil, dbError(err)
	}

	result := &WarningResult{Warning: warning, ActiveCount: count, Escalation: escalation(count, 0, 0)}
	audit(s.ctx, storage, communityId, actorDid, AuditMemberWarned, TargetMember, targetDid, map[string]string{"reason": reason})
	s.ctx.Publish(DomainCommunity, EventMemberWarned, result)
	return result, nil
}

func (s *moderationService) Warnings(communityId, did string) ([]*entity.Warning, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	warnings, err := storage.GetModerationRepository().ListWarnings(communityId, did)
	return warnings, dbError(err)
}

func (s *moderationService) RemoveWarning(communityId, actorDid, targetDid, warningId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return err
	}
	if err := a.require(permission.TimeoutMembers); err != nil {
		return err
	}
	repo := storage.GetModerationRepository()
	warnings, err := repo.ListWarnings(communityId, targetDid)
	if err != nil {
		return dbError(err)
	}
	found := false
	for _, w := range warnings {
		found = found || w.Id == warningId
	}
	if !found {
		return apperr.New(apperr.EntityNotFound, "warning %s not found", warningId)
	}
	if _, err := repo.RemoveWarning(warningId); err != nil {
		return dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditWarningRemoved, TargetMember, targetDid, map[string]string{"warning_id": warningId})
	s.ctx.Publish(DomainCommunity, EventWarningRemoved, map[string]string{"community_id": communityId, "warning_id": warningId})
	return nil
}

func (s *moderationService) Escalation(communityId, did string, timeoutThreshold, banThreshold int) (string, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return "", err
	}
	count, err := storage.GetModerationRepository().CountActiveWarnings(communityId, did, s.ctx.NowMillis())
	if err != nil {
		return "", dbError(err)
	}
	return escalation(count, timeoutThreshold, banThreshold), nil
}

func (s *moderationService) Timeout(communityId, actorDid, targetDid, kind string, durationMillis int64, reason string) (*entity.MemberTimeout, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if kind != entity.TimeoutMute && kind != entity.TimeoutRestrict {
		return nil, apperr.New(apperr.InvalidInput, "timeout type must be %q or %q", entity.TimeoutMute, entity.TimeoutRestrict)
	}
	if durationMillis <= 0 || durationMillis > MaxTimeoutMillis {
		return nil, apperr.New(apperr.InvalidInput, "timeout must last between 1ms and 28 days")
	}
	if _, _, err := moderate(storage, communityId, actorDid, targetDid, permission.TimeoutMembers); err != nil {
		return nil, err
	}

	now := s.ctx.NowMillis()
	timeout := &entity.MemberTimeout{
		Id:          newId(),
		CommunityId: communityId,
		MemberDid:   targetDid,
		Reason:      reason,
		TimeoutType: kind,
		IssuedBy:    actorDid,
		ExpiresAt:   now + durationMillis,
		CreatedAt:   now,
	}
	if err := storage.GetModerationRepository().AddTimeout(timeout); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditMemberTimedOut, TargetMember, targetDid, map[string]any{
		"reason": reason, "type": kind, "duration_ms": durationMillis,
	})
	s.ctx.Publish(DomainCommunity, EventMemberTimedOut, timeout)
	return timeout, nil
}

func (s *moderationService) RemoveTimeouts(communityId, actorDid, targetDid string) (int64, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return 0, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return 0, err
	}
	if err := a.require(permission.TimeoutMembers); err != nil {
		return 0, err
	}
	removed, err := storage.GetModerationRepository().RemoveTimeouts(communityId, targetDid)
	if err != nil {
		return 0, dbError(err)
	}
	if removed > 0 {
		audit(s.ctx, storage, communityId, actorDid, AuditTimeoutRemoved, TargetMember, targetDid, nil)
		s.ctx.Publish(DomainCommunity, EventTimeoutRemoved, map[string]string{"community_id": communityId, "member_did": targetDid})
	}
	return removed, nil
}

func (s *moderationService) ActiveTimeouts(communityId, did string) ([]*entity.MemberTimeout, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	timeouts, err := storage.GetModerationRepository().ActiveTimeouts(communityId, did, s.ctx.NowMillis())
	return timeouts, dbError(err)
}

func (s *moderationService) ListTimeouts(communityId string) ([]*entity.MemberTimeout, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	timeouts, err := storage.GetModerationRepository().ListTimeouts(communityId, s.ctx.NowMillis())
	return timeouts, dbError(err)
}

func (s *moderationService) IsMuted(communityId, did string) (bool, error) {
	timeouts, err := s.ActiveTimeouts(communityId, did)
	if err != nil {
		return false, err
	}
	for _, t := range timeouts {
		if t.TimeoutType == entity.TimeoutMute {
			return true, nil
		}
	}
	return false, nil
}

func (s *moderationService) PurgeExpiredTimeouts() (int64, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return 0, err
	}
	purged, err := storage.GetModerationRepository().PurgeExpiredTimeouts(s.ctx.NowMillis())
	return purged, dbError(err)
}

func (s *moderationService) AddKeywordFilter(communityId, actorDid, pattern, action string) (*entity.KeywordFilter, error) {
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
	pattern = strings.TrimSpace(pattern)
	if strings.Trim(pattern, "*") == "" {
		return nil, apperr.New(apperr.InvalidInput, "pattern must contain text besides wildcards")
	}
	if _, err := keywordPattern(pattern); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "pattern %q", pattern)
	}
	switch action {
	case FilterDelete, FilterWarn, FilterTimeout:
	default:
		return nil, apperr.New(apperr.InvalidInput, "unknown filter action %q", action)
	}

	filter := &entity.KeywordFilter{
		Id:          newId(),
		CommunityId: communityId,
		Pattern:     pattern,
		Action:      action,
		CreatedBy:   actorDid,
		CreatedAt:   s.ctx.NowMillis(),
	}
	if err := storage.GetModerationRepository().AddKeywordFilter(filter); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditKeywordFilterAdded, TargetFilter, filter.Id, map[string]string{"pattern": pattern, "action": action})
	s.ctx.Publish(DomainCommunity, EventKeywordFilterSet, map[string]string{"community_id": communityId})
	return filter, nil
}

func (s *moderationService) KeywordFilters(communityId string) ([]*entity.KeywordFilter, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	filters, err := storage.GetModerationRepository().ListKeywordFilters(communityId)
	return filters, dbError(err)
}

func (s *moderationService) RemoveKeywordFilter(communityId, actorDid, filterId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return err
	}
	if err := a.require(permission.ManageCommunity); err != nil {
		return err
	}
	removed, err := storage.GetModerationRepository().RemoveKeywordFilter(filterId)
	if err != nil {
		return dbError(err)
	}
	if !removed {
		return apperr.New(apperr.EntityNotFound, "keyword filter %s not found", filterId)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditKeywordFilterRemoved, TargetFilter, filterId, nil)
	s.ctx.Publish(DomainCommunity, EventKeywordFilterSet, map[string]string{"community_id": communityId})
	return nil
}

func (s *moderationService) CheckKeywords(communityId, content string) (*entity.KeywordFilter, error) {
	filters, err := s.KeywordFilters(communityId)
	if err != nil {
		return nil, err
	}
	for _, filter := range filters {
		if MatchKeyword(filter.Pattern, content) {
			return filter, nil
		}
	}
	return nil, nil
}

func (s *moderationService) AuditLog(communityId, actorDid string, filter repository.AuditFilter) ([]*entity.AuditLogEntry, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(permission.ViewAuditLog); err != nil {
		return nil, err
	}
	entries, err := storage.GetModerationRepository().ListAudit(communityId, filter)
	return entries, dbError(err)
}
