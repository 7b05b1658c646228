/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"strings"
	"unicode/utf8"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
	"github.com/InfamousVague/umbra/internal/repository"
)

// Community events
const (
	EventCommunityCreated     = "communityCreated"
	EventCommunityUpdated     = "communityUpdated"
	EventCommunityDeleted     = "communityDeleted"
	EventOwnershipTransferred = "ownershipTransferred"
	EventSpaceCreated         = "spaceCreated"
	EventSpaceUpdated         = "spaceUpdated"
	EventSpaceDeleted         = "spaceDeleted"
	EventCategoryCreated      = "categoryCreated"
	EventCategoryUpdated      = "categoryUpdated"
	EventCategoryDeleted      = "categoryDeleted"
	EventChannelCreated       = "channelCreated"
	EventChannelUpdated       = "channelUpdated"
	EventChannelDeleted       = "channelDeleted"
	EventStructureReordered   = "structureReordered"
)

const (
	MaxCommunityNameLength = 100
	MaxChannelNameLength   = 100
	MaxSlowModeSeconds     = 6 * 60 * 60

	defaultSpaceName   = "General"
	welcomeChannelName = "welcome"
	generalChannelName = "general"
)

var channelTypes = map[string]struct{}{
	entity.ChannelText: {}, entity.ChannelVoice: {}, entity.ChannelFiles: {},
	entity.ChannelAnnouncement: {}, entity.ChannelBulletin: {}, entity.ChannelWelcome: {},
}

type CreateCommunityRequest struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	OwnerDid      string  `json:"owner_did"`
	OwnerNickname *string `json:"owner_nickname"`
}

// CreatedCommunity carries every id generated by a community bootstrap
type CreatedCommunity struct {
	CommunityId      string `json:"community_id"`
	SpaceId          string `json:"space_id"`
	WelcomeChannelId string `json:"welcome_channel_id"`
	GeneralChannelId string `json:"general_channel_id"`
	OwnerRoleId      string `json:"owner_role_id"`
	AdminRoleId      string `json:"admin_role_id"`
	ModeratorRoleId  string `json:"moderator_role_id"`
	MemberRoleId     string `json:"member_role_id"`
}

type CommunityUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ChannelSpec struct {
	SpaceId     string  `json:"space_id"`
	CategoryId  *string `json:"category_id"`
	Name        string  `json:"name"`
	ChannelType string  `json:"channel_type"`
	Topic       *string `json:"topic"`
	E2eeEnabled bool    `json:"e2ee_enabled"`
}

type ChannelUpdate struct {
	Name     *string `json:"name"`
	Topic    *string `json:"topic"`
	PinLimit *int    `json:"pin_limit"`
}

type CommunityService interface {
	Create(req CreateCommunityRequest) (*CreatedCommunity, error) // Bootstraps a community with its default structure and preset roles
	Get(communityId string) (*entity.Community, error)            // Retrieves a community
	ListMine(did string) ([]*entity.Community, error)             // Retrieves the communities did is a member of
	Update(communityId, actorDid string, update CommunityUpdate) (*entity.Community, error)
	Delete(communityId, actorDid string) error                         // Owner only
	TransferOwnership(communityId, actorDid, newOwnerDid string) error // Owner only, the new owner must be a member

	CreateSpace(communityId, actorDid, name string) (*entity.Space, error)
	ListSpaces(communityId string) ([]*entity.Space, error)
	RenameSpace(spaceId, actorDid, name string) (*entity.Space, error)
	DeleteSpace(spaceId, actorDid string) error // Deletes the space with its categories and channels
	ReorderSpaces(communityId, actorDid string, spaceIds []string) error

	CreateCategory(spaceId, actorDid, name string) (*entity.Category, error)
	ListCategories(spaceId string) ([]*entity.Category, error)
	RenameCategory(categoryId, actorDid, name string) (*entity.Category, error)
	DeleteCategory(categoryId, actorDid string) error // Channels inside it become uncategorized
	ReorderCategories(spaceId, actorDid string, categoryIds []string) error

	CreateChannel(communityId, actorDid string, spec ChannelSpec) (*entity.Channel, error)
	GetChannel(channelId string) (*entity.Channel, error)
	ListChannels(communityId string) ([]*entity.Channel, error)
	UpdateChannel(channelId, actorDid string, update ChannelUpdate) (*entity.Channel, error)
	DeleteChannel(channelId, actorDid string) error
	ReorderChannels(spaceId, actorDid string, channelIds []string) error
	MoveChannel(channelId, actorDid string, categoryId *string) (*entity.Channel, error) // A nil category leaves the channel uncategorized
	SetSlowMode(channelId, actorDid string, seconds int) error
	SetE2ee(channelId, actorDid string, enabled bool) error
}

type communityService struct {
	ctx *RuntimeContext
}

func NewCommunityService(ctx *RuntimeContext) CommunityService {
	return &communityService{ctx}
}

func validName(name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.New(apperr.InvalidInput, "name must not be empty")
	}
	if utf8.RuneCountInString(name) > max {
		return "", apperr.New(apperr.InvalidInput, "name is longer than %d characters", max)
	}
	return name, nil
}

func (s *communityService) Create(req CreateCommunityRequest) (*CreatedCommunity, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	name, err := validName(req.Name, MaxCommunityNameLength)
	if err != nil {
		return nil, err
	}
	if req.OwnerDid == "" {
		return nil, apperr.New(apperr.InvalidInput, "owner DID must not be empty")
	}

	now := s.ctx.NowMillis()
	community := &entity.Community{
		Id:          newId(),
		Name:        name,
		Description: req.Description,
		OwnerDid:    req.OwnerDid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	space := &entity.Space{Id: newId(), CommunityId: community.Id, Name: defaultSpaceName, Position: 0, CreatedAt: now, UpdatedAt: now}
	channel := func(name, kind string, position int) *entity.Channel {
		return &entity.Channel{
			Id:          newId(),
			CommunityId: community.Id,
			SpaceId:     space.Id,
			Name:        name,
			ChannelType: kind,
			Position:    position,
			PinLimit:    entity.DefaultPinLimit,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	welcome := channel(welcomeChannelName, entity.ChannelWelcome, 0)
	general := channel(generalChannelName, entity.ChannelText, 1)

	result := &CreatedCommunity{
		CommunityId:      community.Id,
		SpaceId:          space.Id,
		WelcomeChannelId: welcome.Id,
		GeneralChannelId: general.Id,
	}
	var roles []*entity.Role
	for _, preset := range permission.Presets() {
		role := &entity.Role{
			Id:          newId(),
			CommunityId: community.Id,
			Name:        preset.Name,
			Color:       preset.Color,
			Position:    preset.Position,
			Hoisted:     preset.Hoisted,
			Mentionable: preset.Mentionable,
			IsPreset:    true,
			Permissions: preset.Permissions.String(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		roles = append(roles, role)
		switch preset.Name {
		case permission.OwnerRoleName:
			result.OwnerRoleId = role.Id
		case permission.AdminRoleName:
			result.AdminRoleId = role.Id
		case permission.ModeratorRoleName:
			result.ModeratorRoleId = role.Id
		case permission.MemberRoleName:
			result.MemberRoleId = role.Id
		}
	}

	seed := &repository.CommunitySeed{
		Community: community,
		Spaces:    []*entity.Space{space},
		Channels:  []*entity.Channel{welcome, general},
		Roles:     roles,
		Owner:     &entity.CommunityMember{CommunityId: community.Id, MemberDid: req.OwnerDid, Nickname: req.OwnerNickname, JoinedAt: now},
		MemberRoles: []*entity.MemberRole{
			{CommunityId: community.Id, MemberDid: req.OwnerDid, RoleId: result.OwnerRoleId, AssignedAt: now},
		},
		Audit: auditEntry(community.Id, req.OwnerDid, AuditCommunityCreated, TargetCommunity, community.Id, map[string]string{"name": name}, now),
	}
	if err := storage.GetCommunityRepository().Bootstrap(seed); err != nil {
		return nil, dbError(err)
	}

	s.ctx.Logf("Community %s created by %s", community.Id, req.OwnerDid)
	s.ctx.Publish(DomainCommunity, EventCommunityCreated, result)
	return result, nil
}

func (s *communityService) Get(communityId string) (*entity.Community, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	return loadCommunity(storage, communityId)
}

func (s *communityService) ListMine(did string) ([]*entity.Community, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	communities, err := storage.GetCommunityRepository().ListForMember(did)
	return communities, dbError(err)
}

func (s *communityService) Update(communityId, actorDid string, update CommunityUpdate) (*entity.Community, error) {
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

	community := a.community
	if update.Name != nil {
		name, err := validName(*update.Name, MaxCommunityNameLength)
		if err != nil {
			return nil, err
		}
		community.Name = name
	}
	if update.Description != nil {
		community.Description = update.Description
	}
	community.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetCommunityRepository().Update(community); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditCommunityUpdated, TargetCommunity, communityId, update)
	s.ctx.Publish(DomainCommunity, EventCommunityUpdated, community)
	return community, nil
}

func (s *communityService) Delete(communityId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	community, err := loadCommunity(storage, communityId)
	if err != nil {
		return err
	}
	if community.OwnerDid != actorDid {
		return apperr.New(apperr.PermissionDenied, "only the owner can delete a community")
	}

	channels, err := storage.GetCommunityRepository().ListChannels(communityId)
	if err != nil {
		return dbError(err)
	}
	if err := storage.GetCommunityRepository().Delete(communityId); err != nil {
		return notFound(err, apperr.EntityNotFound, "community %s not found", communityId)
	}
	for _, channel := range channels {
		if err := storage.GetKeyRepository().DeleteScope(channel.Id); err != nil {
			s.ctx.Logf("Could not drop the keys of channel %s: %v", channel.Id, err)
		}
	}

	s.ctx.Logf("Community %s deleted", communityId)
	s.ctx.Publish(DomainCommunity, EventCommunityDeleted, map[string]string{"community_id": communityId})
	return nil
}

func (s *communityService) TransferOwnership(communityId, actorDid, newOwnerDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	community, err := loadCommunity(storage, communityId)
	if err != nil {
		return err
	}
	if community.OwnerDid != actorDid {
		return apperr.New(apperr.PermissionDenied, "only the owner can transfer ownership")
	}
	if newOwnerDid == actorDid {
		return apperr.New(apperr.InvalidInput, "already the owner")
	}
	isMember, err := storage.GetMemberRepository().IsMember(communityId, newOwnerDid)
	if err != nil {
		return dbError(err)
	}
	if !isMember {
		return apperr.New(apperr.EntityNotFound, "%s is not a member of this community", newOwnerDid)
	}
	ownerRole, err := storage.GetMemberRepository().PresetRole(communityId, permission.OwnerRoleName)
	if err != nil {
		return notFound(err, apperr.EntityNotFound, "owner role of %s not found", communityId)
	}

	if err := storage.GetCommunityRepository().TransferOwnership(communityId, actorDid, newOwnerDid, ownerRole.Id, s.ctx.NowMillis()); err != nil {
		return notFound(err, apperr.Conflict, "ownership of %s changed concurrently", communityId)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditOwnershipTransferred, TargetMember, newOwnerDid, nil)
	s.ctx.Publish(DomainCommunity, EventOwnershipTransferred, map[string]string{
		"community_id": communityId, "from_did": actorDid, "to_did": newOwnerDid,
	})
	return nil
}

// checkOrder verifies that ids is a permutation of the children of a container
func checkOrder(ids []string, children []string) error {
	if len(ids) != len(children) {
		return apperr.New(apperr.InvalidInput, "expected %d ids, got %d", len(children), len(ids))
	}
	known := make(map[string]bool, len(children))
	for _, id := range children {
		known[id] = true
	}
	for _, id := range ids {
		if !known[id] {
			return apperr.New(apperr.InvalidInput, "%s does not belong here or is repeated", id)
		}
		delete(known, id)
	}
	return nil
}

// managerOf loads the actor of a community and requires ManageChannels, which gates the whole structure
func managerOf(storage *data.StorageManager, communityId, actorDid string) (*actor, error) {
	a, err := loadActor(storage, communityId, actorDid)
	if err != nil {
		return nil, err
	}
	if err := a.require(permission.ManageChannels); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *communityService) CreateSpace(communityId, actorDid, name string) (*entity.Space, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := managerOf(storage, communityId, actorDid); err != nil {
		return nil, err
	}
	name, err = validName(name, MaxChannelNameLength)
	if err != nil {
		return nil, err
	}

	repo := storage.GetCommunityRepository()
	position, err := repo.NextPosition(&entity.Space{}, "community_id", communityId)
	if err != nil {
		return nil, dbError(err)
	}
	now := s.ctx.NowMillis()
	space := &entity.Space{Id: newId(), CommunityId: communityId, Name: name, Position: position, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateSpace(space); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditSpaceCreated, TargetSpace, space.Id, map[string]string{"name": name})
	s.ctx.Publish(DomainCommunity, EventSpaceCreated, space)
	return space, nil
}

func (s *communityService) ListSpaces(communityId string) ([]*entity.Space, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	spaces, err := storage.GetCommunityRepository().ListSpaces(communityId)
	return spaces, dbError(err)
}

func (s *communityService) loadSpace(storage *data.StorageManager, spaceId string) (*entity.Space, error) {
	space, err := storage.GetCommunityRepository().GetSpace(spaceId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "space %s not found", spaceId)
	}
	return space, nil
}

func (s *communityService) RenameSpace(spaceId, actorDid, name string) (*entity.Space, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	space, err := s.loadSpace(storage, spaceId)
	if err != nil {
		return nil, err
	}
	if _, err := managerOf(storage, space.CommunityId, actorDid); err != nil {
		return nil, err
	}
	if space.Name, err = validName(name, MaxChannelNameLength); err != nil {
		return nil, err
	}
	space.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetCommunityRepository().UpdateSpace(space); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, space.CommunityId, actorDid, AuditSpaceUpdated, TargetSpace, spaceId, map[string]string{"name": space.Name})
	s.ctx.Publish(DomainCommunity, EventSpaceUpdated, space)
	return space, nil
}

func (s *communityService) DeleteSpace(spaceId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	space, err := s.loadSpace(storage, spaceId)
	if err != nil {
		return err
	}
	if _, err := managerOf(storage, space.CommunityId, actorDid); err != nil {
		return err
	}
	if err := storage.GetCommunityRepository().DeleteSpace(spaceId); err != nil {
		return notFound(err, apperr.EntityNotFound, "space %s not found", spaceId)
	}

	audit(s.ctx, storage, space.CommunityId, actorDid, AuditSpaceDeleted, TargetSpace, spaceId, nil)
	s.ctx.Publish(DomainCommunity, EventSpaceDeleted, space)
	return nil
}

func (s *communityService) ReorderSpaces(communityId, actorDid string, spaceIds []string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if _, err := managerOf(storage, communityId, actorDid); err != nil {
		return err
	}
	spaces, err := storage.GetCommunityRepository().ListSpaces(communityId)
	if err != nil {
		return dbError(err)
	}
	children := make([]string, 0, len(spaces))
	for _, space := range spaces {
		children = append(children, space.Id)
	}
	return s.reorder(storage, &entity.Space{}, communityId, spaceIds, children)
}

func (s *communityService) reorder(storage *data.StorageManager, model any, communityId string, ids, children []string) error {
	if err := checkOrder(ids, children); err != nil {
		return err
	}
	if err := storage.GetCommunityRepository().Reorder(model, ids, s.ctx.NowMillis()); err != nil {
		return notFound(err, apperr.EntityNotFound, "an entry vanished while reordering")
	}
	s.ctx.Publish(DomainCommunity, EventStructureReordered, map[string]any{"community_id": communityId, "ids": ids})
	return nil
}

func (s *communityService) CreateCategory(spaceId, actorDid, name string) (*entity.Category, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	space, err := s.loadSpace(storage, spaceId)
	if err != nil {
		return nil, err
	}
	if _, err := managerOf(storage, space.CommunityId, actorDid); err != nil {
		return nil, err
	}
	if name, err = validName(name, MaxChannelNameLength); err != nil {
		return nil, err
	}

	repo := storage.GetCommunityRepository()
	position, err := repo.NextPosition(&entity.Category{}, "space_id", spaceId)
	if err != nil {
		return nil, dbError(err)
	}
	now := s.ctx.NowMillis()
	category := &entity.Category{
		Id:          newId(),
		CommunityId: space.CommunityId,
		SpaceId:     spaceId,
		Name:        name,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateCategory(category); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, space.CommunityId, actorDid, AuditCategoryCreated, TargetCategory, category.Id, map[string]string{"name": name})
	s.ctx.Publish(DomainCommunity, EventCategoryCreated, category)
	return category, nil
}

func (s *communityService) ListCategories(spaceId string) ([]*entity.Category, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	categories, err := storage.GetCommunityRepository().ListCategories(spaceId)
	return categories, dbError(err)
}

func (s *communityService) loadCategory(storage *data.StorageManager, categoryId string) (*entity.Category, error) {
	category, err := storage.GetCommunityRepository().GetCategory(categoryId)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "category %s not found", categoryId)
	}
	return category, nil
}

func (s *communityService) RenameCategory(categoryId, actorDid, name string) (*entity.Category, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	category, err := s.loadCategory(storage, categoryId)
	if err != nil {
		return nil, err
	}
	if _, err := managerOf(storage, category.CommunityId, actorDid); err != nil {
		return nil, err
	}
	if category.Name, err = validName(name, MaxChannelNameLength); err != nil {
		return nil, err
	}
	category.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetCommunityRepository().UpdateCategory(category); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, category.CommunityId, actorDid, AuditCategoryUpdated, TargetCategory, categoryId, map[string]string{"name": category.Name})
	s.ctx.Publish(DomainCommunity, EventCategoryUpdated, category)
	return category, nil
}

func (s *communityService) DeleteCategory(categoryId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	category, err := s.loadCategory(storage, categoryId)
	if err != nil {
		return err
	}
	if _, err := managerOf(storage, category.CommunityId, actorDid); err != nil {
		return err
	}
	if err := storage.GetCommunityRepository().DeleteCategory(categoryId); err != nil {
		return notFound(err, apperr.EntityNotFound, "category %s not found", categoryId)
	}

	audit(s.ctx, storage, category.CommunityId, actorDid, AuditCategoryDeleted, TargetCategory, categoryId, nil)
	s.ctx.Publish(DomainCommunity, EventCategoryDeleted, category)
	return nil
}

func (s *communityService) ReorderCategories(spaceId, actorDid string, categoryIds []string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	space, err := s.loadSpace(storage, spaceId)
	if err != nil {
		return err
	}
	if _, err := managerOf(storage, space.CommunityId, actorDid); err != nil {
		return err
	}
	categories, err := storage.GetCommunityRepository().ListCategories(spaceId)
	if err != nil {
		return dbError(err)
	}
	children := make([]string, 0, len(categories))
	for _, category := range categories {
		children = append(children, category.Id)
	}
	return s.reorder(storage, &entity.Category{}, space.CommunityId, categoryIds, children)
}

func (s *communityService) CreateChannel(communityId, actorDid string, spec ChannelSpec) (*entity.Channel, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if _, err := managerOf(storage, communityId, actorDid); err != nil {
		return nil, err
	}
	name, err := validName(spec.Name, MaxChannelNameLength)
	if err != nil {
		return nil, err
	}
	if spec.ChannelType == "" {
		spec.ChannelType = entity.ChannelText
	}
	if _, ok := channelTypes[spec.ChannelType]; !ok {
		return nil, apperr.New(apperr.InvalidInput, "unknown channel type %q", spec.ChannelType)
	}
	space, err := s.loadSpace(storage, spec.SpaceId)
	if err != nil {
		return nil, err
	}
	if space.CommunityId != communityId {
		return nil, apperr.New(apperr.InvalidInput, "space %s belongs to another community", spec.SpaceId)
	}
	if spec.CategoryId != nil {
		category, err := s.loadCategory(storage, *spec.CategoryId)
		if err != nil {
			return nil, err
		}
		if category.SpaceId != space.Id {
			return nil, apperr.New(apperr.InvalidInput, "category %s belongs to another space", category.Id)
		}
	}

	repo := storage.GetCommunityRepository()
	position, err := repo.NextPosition(&entity.Channel{}, "space_id", space.Id)
	if err != nil {
		return nil, dbError(err)
	}
	now := s.ctx.NowMillis()
	channel := &entity.Channel{
		Id:          newId(),
		CommunityId: communityId,
		SpaceId:     space.Id,
		CategoryId:  spec.CategoryId,
		Name:        name,
		ChannelType: spec.ChannelType,
		Topic:       spec.Topic,
		Position:    position,
		E2eeEnabled: spec.E2eeEnabled,
		PinLimit:    entity.DefaultPinLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateChannel(channel); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, communityId, actorDid, AuditChannelCreated, TargetChannel, channel.Id,
		map[string]string{"name": name, "type": channel.ChannelType})
	s.ctx.Publish(DomainCommunity, EventChannelCreated, channel)
	return channel, nil
}

func (s *communityService) GetChannel(channelId string) (*entity.Channel, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	return loadChannel(storage, channelId)
}

func (s *communityService) ListChannels(communityId string) ([]*entity.Channel, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	channels, err := storage.GetCommunityRepository().ListChannels(communityId)
	return channels, dbError(err)
}

// editChannel loads a channel, checks ManageChannels in it, applies edit and saves
func (s *communityService) editChannel(channelId, actorDid string, edit func(*entity.Channel) error) (*entity.Channel, error) {
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
	if err := edit(channel); err != nil {
		return nil, err
	}
	channel.UpdatedAt = s.ctx.NowMillis()
	if err := storage.GetCommunityRepository().UpdateChannel(channel); err != nil {
		return nil, dbError(err)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditChannelUpdated, TargetChannel, channelId, nil)
	s.ctx.Publish(DomainCommunity, EventChannelUpdated, channel)
	return channel, nil
}

func (s *communityService) UpdateChannel(channelId, actorDid string, update ChannelUpdate) (*entity.Channel, error) {
	return s.editChannel(channelId, actorDid, func(channel *entity.Channel) error {
		if update.Name != nil {
			name, err := validName(*update.Name, MaxChannelNameLength)
			if err != nil {
				return err
			}
			channel.Name = name
		}
		if update.Topic != nil {
			channel.Topic = update.Topic
		}
		if update.PinLimit != nil {
			if *update.PinLimit < 1 {
				return apperr.New(apperr.InvalidInput, "pin limit must be positive")
			}
			channel.PinLimit = *update.PinLimit
		}
		return nil
	})
}

func (s *communityService) DeleteChannel(channelId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	channel, err := loadChannel(storage, channelId)
	if err != nil {
		return err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return err
	}
	if err := a.require(permission.ManageChannels); err != nil {
		return err
	}
	if err := storage.GetCommunityRepository().DeleteChannel(channelId); err != nil {
		return notFound(err, apperr.EntityNotFound, "channel %s not found", channelId)
	}
	if err := storage.GetKeyRepository().DeleteScope(channelId); err != nil {
		s.ctx.Logf("Could not drop the keys of channel %s: %v", channelId, err)
	}

	audit(s.ctx, storage, channel.CommunityId, actorDid, AuditChannelDeleted, TargetChannel, channelId, map[string]string{"name": channel.Name})
	s.ctx.Publish(DomainCommunity, EventChannelDeleted, channel)
	return nil
}

func (s *communityService) ReorderChannels(spaceId, actorDid string, channelIds []string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	space, err := s.loadSpace(storage, spaceId)
	if err != nil {
		return err
	}
	if _, err := managerOf(storage, space.CommunityId, actorDid); err != nil {
		return err
	}
	channels, err := storage.GetCommunityRepository().ListChannels(space.CommunityId)
	if err != nil {
		return dbError(err)
	}
	var children []string
	for _, channel := range channels {
		if channel.SpaceId == spaceId {
			children = append(children, channel.Id)
		}
	}
	return s.reorder(storage, &entity.Channel{}, space.CommunityId, channelIds, children)
}

func (s *communityService) MoveChannel(channelId, actorDid string, categoryId *string) (*entity.Channel, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	var category *entity.Category
	if categoryId != nil {
		if category, err = s.loadCategory(storage, *categoryId); err != nil {
			return nil, err
		}
	}
	return s.editChannel(channelId, actorDid, func(channel *entity.Channel) error {
		if category == nil {
			channel.CategoryId = nil
			return nil
		}
		if category.CommunityId != channel.CommunityId {
			return apperr.New(apperr.InvalidInput, "category %s belongs to another community", category.Id)
		}
		channel.CategoryId = ptr(category.Id)
		channel.SpaceId = category.SpaceId
		return nil
	})
}

func (s *communityService) SetSlowMode(channelId, actorDid string, seconds int) error {
	if seconds < 0 || seconds > MaxSlowModeSeconds {
		return apperr.New(apperr.InvalidInput, "slow mode must be between 0 and %d seconds", MaxSlowModeSeconds)
	}
	_, err := s.editChannel(channelId, actorDid, func(channel *entity.Channel) error {
		channel.SlowModeSeconds = seconds
		return nil
	})
	return err
}

func (s *communityService) SetE2ee(channelId, actorDid string, enabled bool) error {
	_, err := s.editChannel(channelId, actorDid, func(channel *entity.Channel) error {
		channel.E2eeEnabled = enabled
		return nil
	})
	return err
}
