/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"context"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/chunking"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/permission"
)

// Community file events
const (
	EventCommunityFileUploaded    = "communityFileUploaded"
	EventCommunityFileDeleted     = "communityFileDeleted"
	EventCommunityFileReencrypted = "communityFileReencrypted"
)

const DefaultFilePage = 50

type FileUpload struct {
	Filename    string  `json:"filename"`
	Description *string `json:"description"`
	MimeType    *string `json:"mime_type"`
	Content     []byte  `json:"-"`
	ChunkSize   int     `json:"chunk_size"` // 0 selects the default chunk size
}

type CommunityFileService interface {
	Upload(ctx context.Context, channelId, actorDid string, upload FileUpload) (*entity.CommunityFile, error)
	Download(ctx context.Context, fileId, actorDid string) ([]byte, *entity.CommunityFile, error) // Counts the download
	List(channelId, actorDid string, limit, offset int) ([]*entity.CommunityFile, error)          // Newest first
	Delete(ctx context.Context, fileId, actorDid string) error                                    // The uploader, or MANAGE_FILES
	NeedingReencryption(channelId string, limit int) ([]*entity.CommunityFile, error)
	Reencrypt(ctx context.Context, fileId string) error                             // Moves a flagged file to the current channel key
	ReencryptChannel(ctx context.Context, channelId string, limit int) (int, error) // One sweep step over the flagged files of a channel
}

type communityFileService struct {
	ctx   *RuntimeContext
	files FileService
	keys  ChannelKeyService
}

func NewCommunityFileService(ctx *RuntimeContext, files FileService, keys ChannelKeyService) CommunityFileService {
	return &communityFileService{ctx, files, keys}
}

// fileKey derives the key of one file from a channel key version
func (s *communityFileService) fileKey(channelId, fileId string, version int) ([]byte, error) {
	key, err := s.keys.Version(channelId, version)
	if err != nil {
		return nil, err
	}
	derived, err := crypto.DeriveChannelFileKey(key.Raw, []byte(fileId), uint32(version))
	if err != nil {
		return nil, apperr.Wrap(apperr.KeyDerivationFailure, err, "file key of %s", fileId)
	}
	return derived[:], nil
}

func (s *communityFileService) currentSeal(channelId, fileId string) (*FileSeal, error) {
	key, err := s.keys.Current(channelId)
	if err != nil {
		return nil, err
	}
	fileKey, err := s.fileKey(channelId, fileId, key.Version)
	if err != nil {
		return nil, err
	}
	return &FileSeal{Seal: SealChunks(fileKey, fileId), KeyVersion: ptr(key.Version)}, nil
}

// opener returns how to read the stored chunks of a file, nil for plaintext files
func (s *communityFileService) opener(file *entity.CommunityFile, stored *entity.FileManifest) (ChunkTransform, error) {
	if !stored.Encrypted {
		return nil, nil
	}
	if stored.KeyVersion == nil {
		return nil, apperr.New(apperr.InvalidKey, "file %s is sealed without a key version", file.Id)
	}
	fileKey, err := s.fileKey(file.ChannelId, file.Id, *stored.KeyVersion)
	if err != nil {
		return nil, err
	}
	return OpenChunks(fileKey, file.Id), nil
}

func (s *communityFileService) Upload(ctx context.Context, channelId, actorDid string, upload FileUpload) (*entity.CommunityFile, error) {
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
	if err := a.requireChannel(storage, channel, permission.UploadFiles); err != nil {
		return nil, err
	}
	upload.Filename = strings.TrimSpace(upload.Filename)
	if upload.Filename == "" {
		return nil, apperr.New(apperr.InvalidInput, "filename must not be empty")
	}
	if err := chunking.CheckWebSizeLimit(int64(len(upload.Content))); err != nil {
		return nil, err
	}

	fileId := newId()
	var seal *FileSeal
	if channel.E2eeEnabled {
		if seal, err = s.currentSeal(channelId, fileId); err != nil {
			return nil, err
		}
	}
	manifest, err := s.files.Store(ctx, fileId, upload.Filename, upload.Content, upload.ChunkSize, seal)
	if err != nil {
		return nil, err
	}
	refs, err := manifest.ChunksJSON()
	if err != nil {
		return nil, apperr.Wrap(apperr.CorruptChunk, err, "encoding chunk list")
	}

	file := &entity.CommunityFile{
		Id:                fileId,
		CommunityId:       channel.CommunityId,
		ChannelId:         channelId,
		Filename:          upload.Filename,
		Description:       upload.Description,
		FileSize:          manifest.TotalSize,
		MimeType:          upload.MimeType,
		StorageChunksJson: refs,
		UploadedBy:        actorDid,
		Version:           1,
		CreatedAt:         s.ctx.NowMillis(),
	}
	if seal != nil {
		file.KeyVersion = seal.KeyVersion
	}
	if err := storage.GetFileRepository().CreateCommunityFile(file); err != nil {
		if cleanup := s.files.Delete(ctx, fileId); cleanup != nil {
			s.ctx.Logf("Could not drop the chunks of %s: %v", fileId, cleanup)
		}
		return nil, dbError(err)
	}
	if chunking.NearWebSizeLimit(file.FileSize) {
		s.ctx.Logf("File %s is close to the web size limit (%d bytes)", fileId, file.FileSize)
	}

	s.ctx.Publish(DomainCommunity, EventCommunityFileUploaded, file)
	return file, nil
}

func (s *communityFileService) loadFile(storage *data.StorageManager, fileId string) (*entity.CommunityFile, *entity.Channel, error) {
	file, err := storage.GetFileRepository().GetCommunityFile(fileId)
	if err != nil {
		return nil, nil, notFound(err, apperr.EntityNotFound, "file %s not found", fileId)
	}
	channel, err := loadChannel(storage, file.ChannelId)
	if err != nil {
		return nil, nil, err
	}
	return file, channel, nil
}

func (s *communityFileService) Download(ctx context.Context, fileId, actorDid string) ([]byte, *entity.CommunityFile, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, nil, err
	}
	file, channel, err := s.loadFile(storage, fileId)
	if err != nil {
		return nil, nil, err
	}
	a, err := loadActor(storage, channel.CommunityId, actorDid)
	if err != nil {
		return nil, nil, err
	}
	if err := a.requireChannel(storage, channel, permission.ViewChannels); err != nil {
		return nil, nil, err
	}
	_, stored, err := s.files.Manifest(fileId)
	if err != nil {
		return nil, nil, err
	}
	open, err := s.opener(file, stored)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.files.Load(ctx, fileId, open)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.GetFileRepository().CountDownload(fileId); err != nil {
		s.ctx.Logf("Could not count the download of %s: %v", fileId, err)
	}
	return content, file, nil
}

func (s *communityFileService) List(channelId, actorDid string, limit, offset int) ([]*entity.CommunityFile, error) {
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
	if err := a.requireChannel(storage, channel, permission.ViewChannels); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultFilePage
	}
	files, err := storage.GetFileRepository().ListCommunityFiles(channelId, limit, max(offset, 0))
	return files, dbError(err)
}

func (s *communityFileService) Delete(ctx context.Context, fileId, actorDid string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	file, channel, err := s.loadFile(storage, fileId)
	if err != nil {
		return err
	}
	moderated := file.UploadedBy != actorDid
	if moderated {
		a, err := loadActor(storage, channel.CommunityId, actorDid)
		if err != nil {
			return err
		}
		if err := a.requireChannel(storage, channel, permission.ManageFiles); err != nil {
			return err
		}
	}
	if _, err := storage.GetFileRepository().DeleteCommunityFile(fileId); err != nil {
		return dbError(err)
	}
	if err := s.files.Delete(ctx, fileId); err != nil {
		s.ctx.Logf("Could not drop the chunks of %s: %v", fileId, err)
	}

	if moderated {
		audit(s.ctx, storage, file.CommunityId, actorDid, AuditFileDeleted, TargetFile, fileId,
			map[string]string{"filename": file.Filename, "uploaded_by": file.UploadedBy})
	}
	s.ctx.Publish(DomainCommunity, EventCommunityFileDeleted, file)
	return nil
}

func (s *communityFileService) NeedingReencryption(channelId string, limit int) ([]*entity.CommunityFile, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultFilePage
	}
	files, err := storage.GetFileRepository().NeedingReencryption(channelId, limit)
	return files, dbError(err)
}

func (s *communityFileService) Reencrypt(ctx context.Context, fileId string) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	file, channel, err := s.loadFile(storage, fileId)
	if err != nil {
		return err
	}
	_, stored, err := s.files.Manifest(fileId)
	if err != nil {
		return err
	}
	open, err := s.opener(file, stored)
	if err != nil {
		return err
	}

	var seal *FileSeal
	version := 0
	if channel.E2eeEnabled {
		if seal, err = s.currentSeal(channel.Id, fileId); err != nil {
			return err
		}
		version = *seal.KeyVersion
	}
	if err := s.files.Reseal(ctx, fileId, open, seal); err != nil {
		return err
	}
	if err := storage.GetFileRepository().MarkReencrypted(fileId, version); err != nil {
		return dbError(err)
	}

	s.ctx.Publish(DomainCommunity, EventCommunityFileReencrypted, map[string]any{"file_id": fileId, "key_version": version})
	return nil
}

func (s *communityFileService) ReencryptChannel(ctx context.Context, channelId string, limit int) (int, error) {
	files, err := s.NeedingReencryption(channelId, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.Reencrypt(ctx, file.Id); err != nil {
			s.ctx.Logf("Re-encryption of %s failed: %v", file.Id, err)
			continue
		}
		done++
	}
	return done, nil
}
