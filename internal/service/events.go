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

	"github.com/InfamousVague/umbra/cluster/network"
)

// Event domains
const (
	DomainMessage   = "message"
	DomainFriend    = "friend"
	DomainCommunity = "community"
	DomainFile      = "file"
	DomainTransfer  = "transfer"
	DomainIdentity  = "identity"
)

// Event is what the core tells the host about. Payload is a value type of the emitting service
type Event struct {
	Domain  string `json:"domain"`
	Kind    string `json:"type"`
	Payload any    `json:"data"`
}

// EventSink receives the events published by the services. Publish must not block
type EventSink interface {
	Publish(event Event)
}

// NopSink drops every event
type NopSink struct{}

func (NopSink) Publish(Event) {}

// ChannelSink queues events for a consumer reading them with Next
type ChannelSink struct {
	queue *network.Outbox[Event]
}

func NewChannelSink() *ChannelSink {
	return &ChannelSink{queue: network.NewOutbox[Event]()}
}

func (c *ChannelSink) Publish(event Event) {
	c.queue.Push(event)
}

// Next waits for the oldest event. ok is false once the sink is closed and drained, or ctx is done
func (c *ChannelSink) Next(ctx context.Context) (Event, bool) {
	return c.queue.Pop(ctx)
}

// Drain returns, without waiting, every queued event
func (c *ChannelSink) Drain() []Event {
	var out []Event
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for c.queue.Len() > 0 {
		event, ok := c.queue.Pop(ctx)
		if !ok {
			break
		}
		out = append(out, event)
	}
	return out
}

func (c *ChannelSink) Close() {
	c.queue.Close()
}
