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

func autoMigrate(models ...any) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.AutoMigrate(models...)
	}
}

// Ordered schema of the client database
func ClientMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "core", Apply: autoMigrate(
			&entity.Friend{}, &entity.FriendRequest{}, &entity.BlockedUser{},
			&entity.Conversation{}, &entity.Message{}, &entity.Reaction{},
		)},
		{Version: 2, Name: "local", Apply: autoMigrate(&entity.PluginKV{}, &entity.CallRecord{})},
		{Version: 3, Name: "communities", Apply: autoMigrate(
			&entity.Community{}, &entity.Space{}, &entity.Category{}, &entity.Channel{},
			&entity.Role{}, &entity.CommunityMember{}, &entity.MemberRole{}, &entity.ChannelOverride{},
			&entity.Invite{},
		)},
		{Version: 4, Name: "moderation", Apply: autoMigrate(
			&entity.Ban{}, &entity.Warning{}, &entity.MemberTimeout{}, &entity.AuditLogEntry{}, &entity.KeywordFilter{},
		)},
		{Version: 5, Name: "channel content", Apply: autoMigrate(
			&entity.ChannelMessage{}, &entity.ChannelReaction{}, &entity.ChannelPin{},
			&entity.CommunityThread{}, &entity.ReadReceipt{},
			&entity.Emoji{}, &entity.Sticker{}, &entity.Webhook{},
		)},
		{Version: 6, Name: "keys and files", Apply: autoMigrate(
			&entity.GroupKey{}, &entity.FileManifest{}, &entity.FileChunk{}, &entity.CommunityFile{}, &entity.TransferRecord{},
		)},
	}
}

// Ordered schema of the relay directory
func RelayMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "discovery", Apply: autoMigrate(&entity.DiscoveryUser{}, &entity.LinkedAccount{})},
		{Version: 2, Name: "usernames", Apply: autoMigrate(&entity.Username{})},
	}
}
