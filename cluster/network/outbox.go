/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package network

import (
	"context"
	"sync"
)

// Outbox is an unbounded FIFO queue with one asynchronous consumer.
// Push never blocks, Pop waits for an item, Close signals EOF once the queue is drained
type Outbox[T any] struct {
	mutex  sync.Mutex
	queue  []T
	signal chan struct{}
	closed bool
}

// NewOutbox creates an empty, open, outbox
func NewOutbox[T any]() *Outbox[T] {
	return &Outbox[T]{signal: make(chan struct{}, 1)}
}

// Push appends v. It returns false if the outbox was already closed
func (o *Outbox[T]) Push(v T) bool {
	o.mutex.Lock()
	if o.closed {
		o.mutex.Unlock()
		return false
	}
	o.queue = append(o.queue, v)
	o.mutex.Unlock()

	o.wake()
	return true
}

// Pop removes and returns the oldest item, waiting until one is available.
// ok is false once the outbox is closed and empty, or ctx is done
func (o *Outbox[T]) Pop(ctx context.Context) (v T, ok bool) {
	for {
		o.mutex.Lock()
		if len(o.queue) > 0 {
			v = o.queue[0]
			var zero T
			o.queue[0] = zero
			o.queue = o.queue[1:]
			o.mutex.Unlock()
			return v, true
		}
		if o.closed {
			o.mutex.Unlock()
			return v, false
		}
		o.mutex.Unlock()

		select {
		case <-ctx.Done():
			return v, false
		case <-o.signal:
		}
	}
}

// Close marks the outbox closed. Items already queued can still be popped
func (o *Outbox[T]) Close() {
	o.mutex.Lock()
	o.closed = true
	o.mutex.Unlock()

	o.wake()
}

// IsClosed reports whether Close was called
func (o *Outbox[T]) IsClosed() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return o.closed
}

// Len returns the number of queued items
func (o *Outbox[T]) Len() int {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	return len(o.queue)
}

func (o *Outbox[T]) wake() {
	select {
	case o.signal <- struct{}{}:
	default:
	}
}
