/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package permission

// PresetRole describes one of the four roles every community starts with
type PresetRole struct {
	Name        string
	Color       string
	Position    int
	Permissions Permissions
	Hoisted     bool
	Mentionable bool
}

const (
	OwnerRoleName     = "Owner"
	AdminRoleName     = "Admin"
	ModeratorRoleName = "Moderator"
	MemberRoleName    = "Member"

	OwnerPosition  = 1000
	MemberPosition = 0
)

// Presets returns the preset roles, highest position first
func Presets() []PresetRole {
	return []PresetRole{
		{OwnerRoleName, "#e74c3c", OwnerPosition, All, true, false},
		{AdminRoleName, "#e67e22", 100, Admin(), true, true},
		{ModeratorRoleName, "#2ecc71", 50, Moderator(), true, true},
		{MemberRoleName, "#95a5a6", MemberPosition, DefaultEveryone(), false, false},
	}
}

// CanManagePosition reports whether an actor whose highest role sits at actorPosition may edit, assign or remove a role at target.
// Owners bypass the hierarchy
func CanManagePosition(actorIsOwner bool, actorPosition, target int) bool {
	if actorIsOwner {
		return true
	}
	return target < actorPosition
}
