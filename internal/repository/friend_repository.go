/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"errors"

	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// This repository holds the friend list, the friend requests in both directions and the block list.
type FriendRepository interface {
	SaveFriend(friend *entity.Friend) error       // Inserts or replaces a friend
	GetFriend(did string) (*entity.Friend, error) // Retrieves the friend with the given DID
	ListFriends() ([]*entity.Friend, error)       // Retrieves every friend, by display name
	RemoveFriend(did string) (bool, error)        // Removes the friend, reporting whether it existed
	IsFriend(did string) (bool, error)            // Checks the friend list

	SaveRequest(req *entity.FriendRequest) error                                               // Inserts a request
	GetRequest(id string) (*entity.FriendRequest, error)                                       // Retrieves a request by id
	ListRequests(direction, status string) ([]*entity.FriendRequest, error)                    // Retrieves requests, newest first
	PendingWith(did string) (*entity.FriendRequest, error)                                     // Retrieves the pending request exchanged with did, in either direction
	SetRequestStatus(id, status string, at int64) error                                        // Moves a request out of pending
	AcceptRequest(id string, friend *entity.Friend, conv *entity.Conversation, at int64) error // Stores the friend, marks the request and creates the DM conversation, atomically

	Block(did, reason string, at int64) error // Blocks a DID, dropping its pending requests
	Unblock(did string) (bool, error)         // Unblocks a DID, reporting whether it was blocked
	IsBlocked(did string) (bool, error)       // Checks the block list
	ListBlocked() ([]*entity.BlockedUser, error)
}

// Implementation of the repository using a SQLite DB
type SQLiteFriendRepository struct {
	db *gorm.DB
}

func NewSQLiteFriendRepository(db *gorm.DB) FriendRepository {
	return &SQLiteFriendRepository{db}
}

func (repo *SQLiteFriendRepository) SaveFriend(friend *entity.Friend) error {
	return repo.db.Save(friend).Error
}

func (repo *SQLiteFriendRepository) GetFriend(did string) (*entity.Friend, error) {
	var friend entity.Friend
	err := repo.db.Where("did = ?", did).First(&friend).Error
	return &friend, err
}

func (repo *SQLiteFriendRepository) ListFriends() ([]*entity.Friend, error) {
	var friends []*entity.Friend
	err := repo.db.Order("display_name ASC").Find(&friends).Error
	return friends, err
}

func (repo *SQLiteFriendRepository) RemoveFriend(did string) (bool, error) {
	res := repo.db.Where("did = ?", did).Delete(&entity.Friend{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteFriendRepository) IsFriend(did string) (bool, error) {
	var count int64
	err := repo.db.Model(&entity.Friend{}).Where("did = ?", did).Count(&count).Error
	return count > 0, err
}

func (repo *SQLiteFriendRepository) SaveRequest(req *entity.FriendRequest) error {
	return repo.db.Create(req).Error
}

func (repo *SQLiteFriendRepository) GetRequest(id string) (*entity.FriendRequest, error) {
	var req entity.FriendRequest
	err := repo.db.Where("id = ?", id).First(&req).Error
	return &req, err
}

func (repo *SQLiteFriendRepository) ListRequests(direction, status string) ([]*entity.FriendRequest, error) {
	var reqs []*entity.FriendRequest
	query := repo.db.Order("created_at DESC")
	if direction != "" {
		query = query.Where("direction = ?", direction)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&reqs).Error
	return reqs, err
}

func (repo *SQLiteFriendRepository) PendingWith(did string) (*entity.FriendRequest, error) {
	var req entity.FriendRequest
	err := repo.db.
		Where("status = ? AND (from_did = ? OR to_did = ?)", entity.RequestPending, did, did).
		Order("created_at DESC").
		First(&req).Error
	return &req, err
}

func (repo *SQLiteFriendRepository) SetRequestStatus(id, status string, at int64) error {
	res := repo.db.Model(&entity.FriendRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "responded_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (repo *SQLiteFriendRepository) AcceptRequest(id string, friend *entity.Friend, conv *entity.Conversation, at int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(friend).Error; err != nil {
			return err
		}

		res := tx.Model(&entity.FriendRequest{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": entity.RequestAccepted, "responded_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 && id != "" {
			return gorm.ErrRecordNotFound
		}

		// The conversation may exist from an earlier friendship
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(conv).Error
	})
}

func (repo *SQLiteFriendRepository) Block(did, reason string, at int64) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		blocked := &entity.BlockedUser{Did: did, Reason: reason, BlockedAt: at}
		if err := tx.Save(blocked).Error; err != nil {
			return err
		}
		return tx.Model(&entity.FriendRequest{}).
			Where("status = ? AND (from_did = ? OR to_did = ?)", entity.RequestPending, did, did).
			Updates(map[string]any{"status": entity.RequestRejected, "responded_at": at}).Error
	})
}

func (repo *SQLiteFriendRepository) Unblock(did string) (bool, error) {
	res := repo.db.Where("did = ?", did).Delete(&entity.BlockedUser{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteFriendRepository) IsBlocked(did string) (bool, error) {
	var blocked entity.BlockedUser
	err := repo.db.Where("did = ?", did).First(&blocked).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (repo *SQLiteFriendRepository) ListBlocked() ([]*entity.BlockedUser, error) {
	var blocked []*entity.BlockedUser
	err := repo.db.Order("blocked_at DESC").Find(&blocked).Error
	return blocked, err
}
