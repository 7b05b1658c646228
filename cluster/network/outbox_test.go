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
	"testing"
	"time"
)

func TestOutboxFIFO(t *testing.T) {
	o := NewOutbox[int]()
	for i := 0; i < 5; i++ {
		if !o.Push(i) {
			t.Errorf("Push on an open outbox should succeed")
		}
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, ok := o.Pop(ctx)
		if !ok || v != i {
			t.Errorf("Expected %d, got %d (%v)", i, v, ok)
		}
	}
}

func TestOutboxCloseDrains(t *testing.T) {
	o := NewOutbox[string]()
	o.Push("a")
	o.Close()

	if o.Push("b") {
		t.Errorf("Push after Close should fail")
	}

	ctx := context.Background()
	if v, ok := o.Pop(ctx); !ok || v != "a" {
		t.Errorf("Queued item should still be delivered, got %q (%v)", v, ok)
	}
	if _, ok := o.Pop(ctx); ok {
		t.Errorf("Closed and empty outbox should report EOF")
	}
}

func TestOutboxPopWaits(t *testing.T) {
	o := NewOutbox[int]()
	done := make(chan int)

	go func() {
		v, _ := o.Pop(context.Background())
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	o.Push(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("Expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Errorf("Pop never woke up")
	}
}

func TestOutboxPopHonoursContext(t *testing.T) {
	o := NewOutbox[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := o.Pop(ctx); ok {
		t.Errorf("Pop on an empty outbox should fail once ctx is done")
	}
}
