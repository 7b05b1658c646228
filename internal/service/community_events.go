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

	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
)

// Kinds of the event carried inside a community_event envelope
const (
	CommunityEventKeyShare = "channelKeyShare"
	CommunityEventMessage  = "channelMessage"
)

type communityEvent struct {
	Type       string                 `json:"type"`
	ChannelId  string                 `json:"channelId"`
	KeyVersion int                    `json:"keyVersion,omitempty"`
	WrappedKey string                 `json:"wrappedKey,omitempty"` // hex nonce || ciphertext
	Message    *entity.ChannelMessage `json:"message,omitempty"`
}

// communityEnvelope wraps event into the community_event envelope sent to one member
func communityEnvelope(communityId, senderDid string, event *communityEvent, now int64) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return envelope.Build(envelope.CommunityEvent, envelope.CommunityEventPayload{
		CommunityId: communityId,
		Event:       raw,
		SenderDid:   senderDid,
		Timestamp:   now,
	})
}

// broadcast addresses event to every member but the sender and delivers it
func broadcast(ctx *RuntimeContext, storage *data.StorageManager, communityId, senderDid string, event *communityEvent) []Outgoing {
	members, err := storage.GetMemberRepository().ListMembers(communityId)
	if err != nil {
		ctx.Logf("Could not list the members of %s: %v", communityId, err)
		return nil
	}
	payload, err := communityEnvelope(communityId, senderDid, event, ctx.NowMillis())
	if err != nil {
		ctx.Logf("Could not build a %s event: %v", event.Type, err)
		return nil
	}

	var out []Outgoing
	for _, member := range members {
		if member.MemberDid == senderDid {
			continue
		}
		out = append(out, Outgoing{ToDid: member.MemberDid, Payload: payload})
	}
	deliver(ctx, out...)
	return out
}
