/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscovery(t *testing.T, salt string) (DiscoveryService, *node.FakeClock) {
	t.Helper()
	clock := node.NewFakeClock(epoch)
	storage, err := data.OpenRelayStorage(data.DriverPureSQLite, filepath.Join(t.TempDir(), "relay.db"), clock.NowMillis())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return NewDiscoveryService(NewRuntimeContext(storage, clock), salt), clock
}

func TestDiscovery_HashIsSalted(t *testing.T) {
	a, _ := newDiscovery(t, "salt-a")
	b, _ := newDiscovery(t, "salt-b")

	first, err := a.Hash(PlatformGitHub, "12345")
	require.NoError(t, err)
	again, err := a.Hash(PlatformGitHub, "12345")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, first, 64)

	other, err := b.Hash(PlatformGitHub, "12345")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	steam, err := a.Hash(PlatformSteam, "12345")
	require.NoError(t, err)
	assert.NotEqual(t, first, steam)

	_, err = a.Hash("myspace", "12345")
	requireCode(t, err, apperr.InvalidInput)
}

func TestDiscovery_LookupOnlyFindsDiscoverableUsers(t *testing.T) {
	d, _ := newDiscovery(t, "pepper")

	_, err := d.Link(AccountLink{Did: bob, Platform: PlatformDiscord, PlatformId: "42", Username: "bobby"})
	require.NoError(t, err)
	hash, err := d.Hash(PlatformDiscord, "42")
	require.NoError(t, err)
	unknown, err := d.Hash(PlatformDiscord, "43")
	require.NoError(t, err)
	lookups := []HashedLookup{{Platform: PlatformDiscord, IdHash: hash}, {Platform: PlatformDiscord, IdHash: unknown}}

	results, err := d.Lookup(lookups)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Nil(t, results[0].Did)

	require.NoError(t, d.SetDiscoverable(bob, true))
	results, err = d.Lookup(lookups)
	require.NoError(t, err)
	require.NotNil(t, results[0].Did)
	assert.Equal(t, bob, *results[0].Did)
	assert.Nil(t, results[1].Did)

	found, err := d.Search(PlatformDiscord, "BOB", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob, found[0].Did)

	status, err := d.Status(bob)
	require.NoError(t, err)
	assert.True(t, status.Discoverable)
	assert.Len(t, status.Accounts, 1)
	assert.Nil(t, status.Username)

	removed, err := d.Unlink(bob, PlatformDiscord)
	require.NoError(t, err)
	assert.True(t, removed)
	results, err = d.Lookup(lookups)
	require.NoError(t, err)
	assert.Nil(t, results[0].Did)
}

func TestDiscovery_Usernames(t *testing.T) {
	d, _ := newDiscovery(t, "pepper")

	first, err := d.RegisterUsername(bob, "Matt")
	require.NoError(t, err)
	assert.Equal(t, "Matt#00001", first.Full())
	second, err := d.RegisterUsername(carol, "matt")
	require.NoError(t, err)
	assert.Equal(t, "00002", second.Tag)

	found, err := d.LookupUsername("MATT#00002")
	require.NoError(t, err)
	assert.Equal(t, carol, found.Did)

	_, err = d.LookupUsername("Matt")
	requireCode(t, err, apperr.InvalidInput)
	_, err = d.LookupUsername("Matt#00009")
	requireCode(t, err, apperr.EntityNotFound)
	_, err = d.RegisterUsername(dave, "bad name!")
	requireCode(t, err, apperr.InvalidInput)

	// Changing a username releases the old one
	renamed, err := d.RegisterUsername(bob, "Matthew")
	require.NoError(t, err)
	assert.Equal(t, "Matthew#00001", renamed.Full())
	_, err = d.LookupUsername("Matt#00001")
	requireCode(t, err, apperr.EntityNotFound)

	matches, err := d.SearchUsernames("matt", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	released, err := d.ReleaseUsername(carol)
	require.NoError(t, err)
	assert.True(t, released)
	_, err = d.Username(carol)
	requireCode(t, err, apperr.EntityNotFound)

	stats, err := d.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Usernames)
}

func TestDiscovery_OAuthStateIsSingleUse(t *testing.T) {
	d, clock := newDiscovery(t, "pepper")

	state, err := d.CreateOAuthState(PlatformGitHub, bob, false, false)
	require.NoError(t, err)
	consumed, ok := d.ConsumeOAuthState(state.Nonce)
	require.True(t, ok)
	assert.Equal(t, bob, consumed.Did)
	_, ok = d.ConsumeOAuthState(state.Nonce)
	assert.False(t, ok)

	late, err := d.CreateOAuthState(PlatformGitHub, bob, false, false)
	require.NoError(t, err)
	clock.Advance(OAuthStateTTL + time.Second)
	_, ok = d.ConsumeOAuthState(late.Nonce)
	assert.False(t, ok)

	_, err = d.CreateOAuthState(PlatformGitHub, "", false, false)
	requireCode(t, err, apperr.InvalidInput)
	_, err = d.CreateOAuthState(PlatformGitHub, "", true, false)
	require.NoError(t, err)
}

func TestDiscovery_SweepDropsExpiredEntries(t *testing.T) {
	d, clock := newDiscovery(t, "pepper")

	_, err := d.CreateOAuthState(PlatformXbox, bob, false, false)
	require.NoError(t, err)
	d.StoreProfileResult("state-1", json.RawMessage(`{"name":"bob"}`))
	assert.Zero(t, d.Sweep())

	profile, ok := d.TakeProfileResult("state-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"bob"}`, string(profile))
	_, ok = d.TakeProfileResult("state-1")
	assert.False(t, ok)

	d.StoreProfileResult("state-2", json.RawMessage(`{}`))
	clock.Advance(11 * time.Minute)
	assert.Equal(t, 2, d.Sweep())
}
