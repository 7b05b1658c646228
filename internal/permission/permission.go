/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package permission is the capability bitfield of community roles and the channel override resolution on top of it
package permission

import (
	"sort"
	"strconv"
)

type Permission uint64

const (
	ViewChannels Permission = 1 << iota
	ManageCommunity
	ManageChannels
	ManageRoles
	CreateInvites
	ManageInvites
	KickMembers
	BanMembers
	TimeoutMembers
	ChangeNickname
	ManageNicknames
	SendMessages
	EmbedLinks
	AttachFiles
	AddReactions
	UseExternalEmoji
	MentionEveryone
	ManageMessages
	ReadMessageHistory
	CreateThreads
	SendThreadMessages
	ManageThreads
	VoiceConnect
	VoiceSpeak
	VoiceStream
	VoiceMuteMembers
	VoiceDeafenMembers
	VoiceMoveMembers
	ViewAuditLog
	ManageWebhooks
	ManageEmoji
	ManageBranding
	UploadFiles
	ManageFiles

	Administrator Permission = 1 << 63
)

var names = map[Permission]string{
	ViewChannels:       "VIEW_CHANNELS",
	ManageCommunity:    "MANAGE_COMMUNITY",
	ManageChannels:     "MANAGE_CHANNELS",
	ManageRoles:        "MANAGE_ROLES",
	CreateInvites:      "CREATE_INVITES",
	ManageInvites:      "MANAGE_INVITES",
	KickMembers:        "KICK_MEMBERS",
	BanMembers:         "BAN_MEMBERS",
	TimeoutMembers:     "TIMEOUT_MEMBERS",
	ChangeNickname:     "CHANGE_NICKNAME",
	ManageNicknames:    "MANAGE_NICKNAMES",
	SendMessages:       "SEND_MESSAGES",
	EmbedLinks:         "EMBED_LINKS",
	AttachFiles:        "ATTACH_FILES",
	AddReactions:       "ADD_REACTIONS",
	UseExternalEmoji:   "USE_EXTERNAL_EMOJI",
	MentionEveryone:    "MENTION_EVERYONE",
	ManageMessages:     "MANAGE_MESSAGES",
	ReadMessageHistory: "READ_MESSAGE_HISTORY",
	CreateThreads:      "CREATE_THREADS",
	SendThreadMessages: "SEND_THREAD_MESSAGES",
	ManageThreads:      "MANAGE_THREADS",
	VoiceConnect:       "VOICE_CONNECT",
	VoiceSpeak:         "VOICE_SPEAK",
	VoiceStream:        "VOICE_STREAM",
	VoiceMuteMembers:   "VOICE_MUTE_MEMBERS",
	VoiceDeafenMembers: "VOICE_DEAFEN_MEMBERS",
	VoiceMoveMembers:   "VOICE_MOVE_MEMBERS",
	ViewAuditLog:       "VIEW_AUDIT_LOG",
	ManageWebhooks:     "MANAGE_WEBHOOKS",
	ManageEmoji:        "MANAGE_EMOJI",
	ManageBranding:     "MANAGE_BRANDING",
	UploadFiles:        "UPLOAD_FILES",
	ManageFiles:        "MANAGE_FILES",
	Administrator:      "ADMINISTRATOR",
}

func (p Permission) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return "UNKNOWN_" + strconv.FormatUint(uint64(p), 10)
}

// Permissions is a set of capabilities. At rest it is a decimal string, hosts with 53 bit numbers cannot hold it
type Permissions uint64

const (
	None Permissions = 0
	All  Permissions = ^Permissions(0)
)

// Parse reads the decimal representation. Garbage yields None
func Parse(s string) Permissions {
	bits, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return None
	}
	return Permissions(bits)
}

func Of(perms ...Permission) Permissions {
	var out Permissions
	for _, p := range perms {
		out |= Permissions(p)
	}
	return out
}

func (p Permissions) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Has reports whether perm is granted. Administrator grants everything
func (p Permissions) Has(perm Permission) bool {
	if p&Permissions(Administrator) != 0 {
		return true
	}
	return p&Permissions(perm) != 0
}

func (p Permissions) With(perms ...Permission) Permissions {
	return p | Of(perms...)
}

func (p Permissions) Without(perms ...Permission) Permissions {
	return p &^ Of(perms...)
}

func (p Permissions) Merge(other Permissions) Permissions {
	return p | other
}

// Names lists the granted capabilities, lowest bit first
func (p Permissions) Names() []string {
	var out []string
	for bit := 0; bit < 64; bit++ {
		perm := Permission(uint64(1) << bit)
		if p&Permissions(perm) != 0 {
			if name, ok := names[perm]; ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Override is a channel level allow/deny pair. Position is the role position, ignored for member overrides
type Override struct {
	Position int
	Allow    Permissions
	Deny     Permissions
}

// ComputeChannel resolves the permissions of a member in a channel.
// base is the OR of all the member's roles. Role overrides apply lowest position first, so higher roles win;
// the member override applies last
func ComputeChannel(base Permissions, roleOverrides []Override, memberOverride *Override) Permissions {
	if base.Has(Administrator) {
		return All
	}

	ordered := append([]Override(nil), roleOverrides...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	perms := base
	for _, o := range ordered {
		perms |= o.Allow
		perms &^= o.Deny
	}
	if memberOverride != nil {
		perms &^= memberOverride.Deny
		perms |= memberOverride.Allow
	}
	return perms
}

func DefaultEveryone() Permissions {
	return Of(
		ViewChannels, SendMessages, ReadMessageHistory, AddReactions, EmbedLinks, AttachFiles,
		UseExternalEmoji, ChangeNickname, CreateThreads, SendThreadMessages, VoiceConnect,
		VoiceSpeak, VoiceStream, UploadFiles,
	)
}

func Moderator() Permissions {
	return DefaultEveryone().With(
		KickMembers, TimeoutMembers, ManageMessages, ManageThreads, MentionEveryone,
		ManageNicknames, ViewAuditLog,
	)
}

func Admin() Permissions {
	return Moderator().With(
		ManageCommunity, ManageChannels, ManageRoles, CreateInvites, ManageInvites, BanMembers,
		ManageWebhooks, ManageEmoji, ManageBranding, ManageFiles,
	)
}
