/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package data

import (
	"time"

	"github.com/InfamousVague/umbra/cluster/node/protocol"
)

const (
	MaxOfflinePerDid       = 1000
	OfflineTTL             = 7 * 24 * time.Hour
	SessionTTL             = 10 * time.Minute
	CallRoomTTL            = 4 * time.Hour
	MaxCallRoomParticipant = 50
	PublishedInviteTTL     = 7 * 24 * time.Hour
)

// ClientSender is the write half of a client session. network.Link implements it
type ClientSender interface {
	Send(frame []byte) bool
}

// SignalingSession is a one-shot offer waiting for an answer
type SignalingSession struct {
	Id           string
	CreatorDid   string
	OfferPayload string
	CreatedAt    int64 // unix millis
}

// CallRoom is a group call: a set of DIDs exchanging signaling payloads
type CallRoom struct {
	RoomId          string
	GroupId         string
	CreatorDid      string
	Participants    []string // join order
	MaxParticipants int
	CreatedAt       int64 // unix millis
}

func (r *CallRoom) has(did string) bool {
	for _, p := range r.Participants {
		if p == did {
			return true
		}
	}
	return false
}

func (r *CallRoom) others(did string) []string {
	out := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p != did {
			out = append(out, p)
		}
	}
	return out
}

type clientEntry struct {
	sender      ClientSender
	connectedAt int64
}

type publishedEntry struct {
	invite   protocol.PublishedInvite
	storedAt int64
}

// RelayStats is the snapshot served on /stats
type RelayStats struct {
	OnlineClients     int   `json:"online_clients"`
	OfflineQueueSize  int   `json:"offline_queue_size"`
	OfflineRecipients int   `json:"offline_recipients"`
	ActiveSessions    int   `json:"active_sessions"`
	ActiveCallRooms   int   `json:"active_call_rooms"`
	CallParticipants  int   `json:"call_participants"`
	PublishedInvites  int   `json:"published_invites"`
	FederationEnabled bool  `json:"federation_enabled"`
	ConnectedPeers    int   `json:"connected_peers"`
	RemoteOnline      int   `json:"remote_online"`
	MeshOnline        int   `json:"mesh_online"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
}

// CleanupReport counts what a sweep removed
type CleanupReport struct {
	OfflineMessages int
	Sessions        int
	CallRooms       int
	Invites         int
}
