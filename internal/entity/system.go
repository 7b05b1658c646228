/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package entity holds the gorm models of the client database and of the relay directory.
// Timestamps are unix milliseconds unless the column says otherwise.
package entity

// Single row table tracking the applied migrations
type SchemaVersion struct {
	ID        uint64 `gorm:"primaryKey"`
	Version   int    `gorm:"not null;default:0"` // Last applied migration
	AppliedAt int64  `gorm:"not null"`           // When it was applied
}

func (SchemaVersion) TableName() string {
	return "schema_version"
}

// Key/value storage granted to each plugin
type PluginKV struct {
	PluginId  string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"`
}

func (PluginKV) TableName() string {
	return "plugin_kv"
}

type CallRecord struct {
	Id             string `gorm:"primaryKey"`
	ConversationId string `gorm:"not null;index"`
	CallType       string `gorm:"not null"` // voice or video
	Direction      string `gorm:"not null"` // incoming or outgoing
	Status         string `gorm:"not null"` // completed, missed, declined, cancelled...
	Participants   string `gorm:"not null"` // JSON array of DIDs
	StartedAt      int64  `gorm:"not null;index"`
	EndedAt        *int64
	DurationMs     int64 `gorm:"not null;default:0"`
}

func (CallRecord) TableName() string {
	return "call_history"
}
