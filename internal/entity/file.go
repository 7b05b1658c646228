/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package entity

type FileChunk struct {
	ChunkId    string `gorm:"primaryKey" json:"chunk_id"`
	FileId     string `gorm:"not null;uniqueIndex:idx_chunk_position" json:"file_id"`
	ChunkIndex int    `gorm:"not null;uniqueIndex:idx_chunk_position" json:"chunk_index"`
	Data       []byte `json:"-"` // nil when the blob lives in object storage
	Size       int    `gorm:"not null" json:"size"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"`
}

type FileManifest struct {
	FileId      string `gorm:"primaryKey" json:"file_id"`
	Filename    string `gorm:"not null" json:"filename"`
	TotalSize   int64  `gorm:"not null" json:"total_size"`
	ChunkSize   int    `gorm:"not null" json:"chunk_size"`
	TotalChunks int    `gorm:"not null" json:"total_chunks"`
	ChunksJson  string `gorm:"not null" json:"chunks_json"`
	FileHash    string `gorm:"not null" json:"file_hash"`
	Encrypted   bool   `gorm:"not null;default:false" json:"encrypted"`
	KeyVersion  *int   `json:"key_version,omitempty"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

type CommunityFile struct {
	Id                string  `gorm:"primaryKey" json:"id"`
	CommunityId       string  `gorm:"not null;index" json:"community_id"`
	ChannelId         string  `gorm:"not null;index" json:"channel_id"`
	Filename          string  `gorm:"not null" json:"filename"`
	Description       *string `json:"description,omitempty"`
	FileSize          int64   `gorm:"not null" json:"file_size"`
	MimeType          *string `json:"mime_type,omitempty"`
	StorageChunksJson string  `gorm:"not null" json:"storage_chunks_json"`
	UploadedBy        string  `gorm:"not null" json:"uploaded_by"`
	Version           int     `gorm:"not null;default:1" json:"version"`
	DownloadCount     int     `gorm:"not null;default:0" json:"download_count"`
	KeyVersion        *int    `json:"key_version,omitempty"`
	NeedsReencryption bool    `gorm:"not null;default:false;index" json:"needs_reencryption"`
	CreatedAt         int64   `gorm:"not null" json:"created_at"`
}

// Persisted view of a transfer so it can resume after a restart
type TransferRecord struct {
	TransferId     string `gorm:"primaryKey" json:"transfer_id"`
	FileId         string `gorm:"not null;index" json:"file_id"`
	PeerDid        string `gorm:"not null" json:"peer_did"`
	Direction      string `gorm:"not null" json:"direction"`
	State          string `gorm:"not null;index" json:"state"`
	ReceivedBitmap string `gorm:"not null" json:"received_chunk_bitmap"` // one '0'/'1' per chunk
	StartedAt      int64  `gorm:"not null" json:"started_at"`
	UpdatedAt      int64  `gorm:"not null" json:"updated_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_sessions"
}
