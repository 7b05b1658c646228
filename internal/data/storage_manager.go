/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/internal/repository"

	puresqlite "github.com/glebarez/sqlite"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite     = "sqlite"        // mattn/go-sqlite3, needs cgo
	DriverPureSQLite = "sqlite-purego" // modernc based, no cgo
	MemoryPath       = ":memory:"
)

// Opens a gorm handle over the chosen SQLite driver. The parent folder of path is created when missing
func OpenDatabase(driver, path string) (*gorm.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("Could not create the database folder: %v", err)
		}
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = cgosqlite.Open(path)
	case DriverPureSQLite:
		dialector = puresqlite.Open(path)
	default:
		return nil, fmt.Errorf("Unknown storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, err
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Storage manager gathers all the repositories of one database in a single container.
// The client database and the relay directory share it, each with its own migration list.
type StorageManager struct {
	db     *gorm.DB
	blobs  BlobStore
	logger nlog.Logger

	schemaVersion atomic.Int64 // Cached once migrations ran, read by the stats endpoints

	// Repositories
	schemaRepo        repository.SchemaRepository
	friendRepo        repository.FriendRepository
	messageRepo       repository.MessageRepository
	localRepo         repository.LocalRepository
	communityRepo     repository.CommunityRepository
	memberRepo        repository.MemberRepository
	moderationRepo    repository.ModerationRepository
	channelRepo       repository.ChannelMessageRepository
	customizationRepo repository.CustomizationRepository
	keyRepo           repository.KeyRepository
	fileRepo          repository.FileRepository
	discoveryRepo     repository.DiscoveryRepository
}

func NewStorageManager(db *gorm.DB, blobs BlobStore) *StorageManager {
	if blobs == nil {
		blobs = NewDatabaseBlobStore()
	}
	s := &StorageManager{
		db:    db,
		blobs: blobs,
	}

	s.schemaRepo = repository.NewSQLiteSchemaRepository(db)
	s.friendRepo = repository.NewSQLiteFriendRepository(db)
	s.messageRepo = repository.NewSQLiteMessageRepository(db)
	s.localRepo = repository.NewSQLiteLocalRepository(db)
	s.communityRepo = repository.NewSQLiteCommunityRepository(db)
	s.memberRepo = repository.NewSQLiteMemberRepository(db)
	s.moderationRepo = repository.NewSQLiteModerationRepository(db)
	s.channelRepo = repository.NewSQLiteChannelMessageRepository(db)
	s.customizationRepo = repository.NewSQLiteCustomizationRepository(db)
	s.keyRepo = repository.NewSQLiteKeyRepository(db)
	s.fileRepo = repository.NewSQLiteFileRepository(db)
	s.discoveryRepo = repository.NewSQLiteDiscoveryRepository(db)

	return s
}

// Opens the client database and applies its migrations
func OpenClientStorage(driver, path string, blobs BlobStore, now int64) (*StorageManager, error) {
	return openStorage(driver, path, blobs, repository.ClientMigrations(), now)
}

// Opens the relay directory database and applies its migrations
func OpenRelayStorage(driver, path string, now int64) (*StorageManager, error) {
	return openStorage(driver, path, nil, repository.RelayMigrations(), now)
}

func openStorage(driver, path string, blobs BlobStore, steps []repository.Migration, now int64) (*StorageManager, error) {
	db, err := OpenDatabase(driver, path)
	if err != nil {
		return nil, err
	}
	s := NewStorageManager(db, blobs)
	if _, err := s.Migrate(steps, now); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *StorageManager) SetLogger(l nlog.Logger) {
	s.logger = l
}

func (s *StorageManager) Logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Logf(format, v...)
	}
}

// Applies the steps newer than the recorded schema version
func (s *StorageManager) Migrate(steps []repository.Migration, now int64) (int, error) {
	applied, err := s.schemaRepo.Migrate(steps, now)
	if err != nil {
		s.Logf("Migration failed after %d steps: %v", applied, err)
		return applied, err
	}
	current, err := s.schemaRepo.Current()
	if err != nil {
		return applied, err
	}
	s.schemaVersion.Store(int64(current))
	if applied > 0 {
		s.Logf("Applied %d migrations, schema is now at version %d", applied, current)
	}
	return applied, nil
}

func (s *StorageManager) SchemaVersion() int {
	return int(s.schemaVersion.Load())
}

func (s *StorageManager) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *StorageManager) DB() *gorm.DB {
	return s.db
}

func (s *StorageManager) GetBlobStore() BlobStore {
	return s.blobs
}

func (s *StorageManager) GetFriendRepository() repository.FriendRepository {
	return s.friendRepo
}

func (s *StorageManager) GetMessageRepository() repository.MessageRepository {
	return s.messageRepo
}

func (s *StorageManager) GetLocalRepository() repository.LocalRepository {
	return s.localRepo
}

func (s *StorageManager) GetCommunityRepository() repository.CommunityRepository {
	return s.communityRepo
}

func (s *StorageManager) GetMemberRepository() repository.MemberRepository {
	return s.memberRepo
}

func (s *StorageManager) GetModerationRepository() repository.ModerationRepository {
	return s.moderationRepo
}

func (s *StorageManager) GetChannelMessageRepository() repository.ChannelMessageRepository {
	return s.channelRepo
}

func (s *StorageManager) GetCustomizationRepository() repository.CustomizationRepository {
	return s.customizationRepo
}

func (s *StorageManager) GetKeyRepository() repository.KeyRepository {
	return s.keyRepo
}

func (s *StorageManager) GetFileRepository() repository.FileRepository {
	return s.fileRepo
}

func (s *StorageManager) GetDiscoveryRepository() repository.DiscoveryRepository {
	return s.discoveryRepo
}
