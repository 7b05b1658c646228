/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Highest tag a name can be given, tags are rendered on five digits
const MaxTag = 99999

// Counters exposed by the discovery stats endpoint
type DiscoveryStats struct {
	Users     int64 `json:"total_users"`
	Indexed   int64 `json:"indexed_accounts"`
	Usernames int64 `json:"usernames"`
}

// This repository is used to manipulate the relay directory: discoverability, hashed linked accounts and the Name#Tag registry.
// A DID owns at most one username, registering a new one releases the previous slot within the same transaction.
type DiscoveryRepository interface {
	GetUser(did string) (*entity.DiscoveryUser, error)                                 // Retrieves the directory entry of a DID
	SetDiscoverable(did string, discoverable bool, at int64) error                     // Creates the entry when missing
	LinkAccount(account *entity.LinkedAccount) error                                   // Binds a hashed platform id to a DID, replacing a previous binding
	UnlinkAccount(did, platform string) (bool, error)                                  // Removes the accounts of a platform from a DID
	Accounts(did string) ([]*entity.LinkedAccount, error)                              // Retrieves every account linked to a DID
	Lookup(hashes []string) (map[string]string, error)                                 // Maps id hashes to DIDs, only for discoverable users
	SearchAccounts(platform, query string, limit int) ([]*entity.LinkedAccount, error) // Case insensitive substring match on platform usernames of discoverable users
	Stats() (*DiscoveryStats, error)

	RegisterUsername(did, name string, at int64) (*entity.Username, error) // Claims the next free tag of name for did
	ReleaseUsername(did string) (bool, error)
	GetUsername(did string) (*entity.Username, error)
	LookupUsername(name, tag string) (*entity.Username, error) // Case insensitive on the name
	SearchUsernames(query string, limit int) ([]*entity.Username, error)
}

// Implementation of the repository using a SQLite DB
type SQLiteDiscoveryRepository struct {
	db *gorm.DB
}

func NewSQLiteDiscoveryRepository(db *gorm.DB) DiscoveryRepository {
	return &SQLiteDiscoveryRepository{db}
}

func (repo *SQLiteDiscoveryRepository) GetUser(did string) (*entity.DiscoveryUser, error) {
	var user entity.DiscoveryUser
	err := repo.db.Where("did = ?", did).First(&user).Error
	return &user, err
}

func (repo *SQLiteDiscoveryRepository) SetDiscoverable(did string, discoverable bool, at int64) error {
	user := &entity.DiscoveryUser{Did: did, Discoverable: discoverable, UpdatedAt: at}
	return repo.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		DoUpdates: clause.AssignmentColumns([]string{"discoverable", "updated_at"}),
	}).Create(user).Error
}

func (repo *SQLiteDiscoveryRepository) LinkAccount(account *entity.LinkedAccount) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		user := &entity.DiscoveryUser{Did: account.Did, UpdatedAt: account.LinkedAt}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error; err != nil {
			return err
		}
		return tx.Save(account).Error
	})
}

func (repo *SQLiteDiscoveryRepository) UnlinkAccount(did, platform string) (bool, error) {
	res := repo.db.Where("did = ? AND platform = ?", did, platform).Delete(&entity.LinkedAccount{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteDiscoveryRepository) Accounts(did string) ([]*entity.LinkedAccount, error) {
	var accounts []*entity.LinkedAccount
	err := repo.db.Where("did = ?", did).Order("linked_at ASC").Find(&accounts).Error
	return accounts, err
}

func (repo *SQLiteDiscoveryRepository) discoverable() *gorm.DB {
	return repo.db.Model(&entity.LinkedAccount{}).
		Joins("JOIN discovery_users ON discovery_users.did = linked_accounts.did").
		Where("discovery_users.discoverable = ?", true)
}

func (repo *SQLiteDiscoveryRepository) Lookup(hashes []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(hashes) == 0 {
		return found, nil
	}
	var accounts []*entity.LinkedAccount
	if err := repo.discoverable().Where("linked_accounts.id_hash IN ?", hashes).Find(&accounts).Error; err != nil {
		return nil, err
	}
	for _, account := range accounts {
		found[account.IdHash] = account.Did
	}
	return found, nil
}

func (repo *SQLiteDiscoveryRepository) SearchAccounts(platform, query string, limit int) ([]*entity.LinkedAccount, error) {
	var accounts []*entity.LinkedAccount
	err := repo.discoverable().
		Where("linked_accounts.platform = ? AND LOWER(linked_accounts.username) LIKE ?", platform, "%"+strings.ToLower(query)+"%").
		Order("linked_accounts.linked_at ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (repo *SQLiteDiscoveryRepository) Stats() (*DiscoveryStats, error) {
	var stats DiscoveryStats
	if err := repo.db.Model(&entity.DiscoveryUser{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	if err := repo.discoverable().Count(&stats.Indexed).Error; err != nil {
		return nil, err
	}
	if err := repo.db.Model(&entity.Username{}).Count(&stats.Usernames).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// Picks max+1 within the name, falling back to the lowest gap once 99999 is taken
func nextTag(tx *gorm.DB, nameLower string) (string, error) {
	var tags []string
	if err := tx.Model(&entity.Username{}).Where("name_lower = ?", nameLower).Pluck("tag", &tags).Error; err != nil {
		return "", err
	}
	if len(tags) >= MaxTag {
		return "", ErrUsernameFull
	}

	used := make(map[int]bool, len(tags))
	highest := 0
	for _, tag := range tags {
		n, err := strconv.Atoi(tag)
		if err != nil {
			continue
		}
		used[n] = true
		highest = max(highest, n)
	}

	next := highest + 1
	if next > MaxTag {
		for next = 1; used[next]; next++ {
		}
	}
	return fmt.Sprintf("%05d", next), nil
}

func (repo *SQLiteDiscoveryRepository) RegisterUsername(did, name string, at int64) (*entity.Username, error) {
	username := &entity.Username{Did: did, Name: name, NameLower: strings.ToLower(name), CreatedAt: at}
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("did = ?", did).Delete(&entity.Username{}).Error; err != nil {
			return err
		}
		tag, err := nextTag(tx, username.NameLower)
		if err != nil {
			return err
		}
		username.Tag = tag

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(username)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUsernameTaken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return username, nil
}

func (repo *SQLiteDiscoveryRepository) ReleaseUsername(did string) (bool, error) {
	res := repo.db.Where("did = ?", did).Delete(&entity.Username{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteDiscoveryRepository) GetUsername(did string) (*entity.Username, error) {
	var username entity.Username
	err := repo.db.Where("did = ?", did).First(&username).Error
	return &username, err
}

func (repo *SQLiteDiscoveryRepository) LookupUsername(name, tag string) (*entity.Username, error) {
	var username entity.Username
	err := repo.db.Where("name_lower = ? AND tag = ?", strings.ToLower(name), tag).First(&username).Error
	return &username, err
}

func (repo *SQLiteDiscoveryRepository) SearchUsernames(query string, limit int) ([]*entity.Username, error) {
	var usernames []*entity.Username
	err := repo.db.
		Where("name_lower LIKE ?", "%"+strings.ToLower(query)+"%").
		Order("name_lower ASC, tag ASC").
		Limit(limit).
		Find(&usernames).Error
	return usernames, err
}
