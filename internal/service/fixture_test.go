/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1_760_000_000_000)

// mailbox is a relay that keeps every envelope until a test delivers it
type mailbox struct {
	mutex sync.Mutex
	sent  []Outgoing
}

func (m *mailbox) Send(toDid, payload string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.sent = append(m.sent, Outgoing{ToDid: toDid, Payload: payload})
	return nil
}

// take removes and returns the envelopes addressed to did
func (m *mailbox) take(did string) []Outgoing {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out, kept []Outgoing
	for _, o := range m.sent {
		if o.ToDid == did {
			out = append(out, o)
		} else {
			kept = append(kept, o)
		}
	}
	m.sent = kept
	return out
}

type fixture struct {
	ctx   *RuntimeContext
	clock *node.FakeClock
	sink  *ChannelSink
	relay *mailbox
	me    string

	communities   CommunityService
	members       MemberService
	roles         RoleService
	invites       InviteService
	moderation    ModerationService
	keys          ChannelKeyService
	messages      ChannelMessageService
	files         FileService
	channelFiles  CommunityFileService
	customization CustomizationService
}

func openStorage(t *testing.T, clock node.Clock) *data.StorageManager {
	t.Helper()
	storage, err := data.OpenClientStorage(data.DriverPureSQLite, filepath.Join(t.TempDir(), "client.db"), nil, clock.NowMillis())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	clock := node.NewFakeClock(epoch)
	f := &fixture{
		ctx:   NewRuntimeContext(openStorage(t, clock), clock),
		clock: clock,
		sink:  NewChannelSink(),
		relay: &mailbox{},
	}
	f.ctx.SetEventSink(f.sink)
	public, _, err := NewIdentityService(f.ctx).Create(name)
	require.NoError(t, err)
	f.me = public.Did

	f.communities = NewCommunityService(f.ctx)
	f.keys = NewChannelKeyService(f.ctx)
	f.members = NewMemberService(f.ctx, f.keys)
	f.roles = NewRoleService(f.ctx)
	f.invites = NewInviteService(f.ctx)
	f.moderation = NewModerationService(f.ctx)
	f.messages = NewChannelMessageService(f.ctx, f.keys)
	f.files = NewFileService(f.ctx)
	f.channelFiles = NewCommunityFileService(f.ctx, f.files, f.keys)
	f.customization = NewCustomizationService(f.ctx, f.messages)
	return f
}

func (f *fixture) community(t *testing.T) *CreatedCommunity {
	t.Helper()
	created, err := f.communities.Create(CreateCommunityRequest{Name: "Night Owls", OwnerDid: f.me})
	require.NoError(t, err)
	return created
}

func (f *fixture) join(t *testing.T, communityId string, dids ...string) {
	t.Helper()
	for _, did := range dids {
		_, err := f.members.Join(communityId, did, nil, nil)
		require.NoError(t, err)
	}
}

func (f *fixture) events(kind string) []Event {
	var out []Event
	for _, e := range f.sink.Drain() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "unexpected error: %v", err)
}
