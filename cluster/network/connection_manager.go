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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrLinkClosed = errors.New("The link is closed")

const writeWait = 10 * time.Second

// Link wraps one websocket connection, either a client session or a federation peer.
// Frames to send go through an unbounded outbox drained by a single writer goroutine, so senders never block
type Link struct {
	conn   *websocket.Conn
	outbox *Outbox[[]byte]

	closeOnce sync.Once
}

// NewLink wraps an already established connection
func NewLink(conn *websocket.Conn) *Link {
	return &Link{
		conn:   conn,
		outbox: NewOutbox[[]byte](),
	}
}

// Dial opens a websocket connection towards url and wraps it
func Dial(ctx context.Context, url string, header http.Header) (*Link, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("Could not connect to %s: %v", url, err)
	}
	return NewLink(conn), nil
}

// Send queues frame as a text message. It returns false when the link is closed
func (l *Link) Send(frame []byte) bool {
	return l.outbox.Push(frame)
}

// SendJSON marshals v and queues it
func (l *Link) SendJSON(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !l.Send(frame) {
		return ErrLinkClosed
	}
	return nil
}

// RunWriter writes queued frames until the outbox is closed or ctx is done, then sends a close frame
func (l *Link) RunWriter(ctx context.Context) error {
	defer l.writeClose()

	for {
		frame, ok := l.outbox.Pop(ctx)
		if !ok {
			return nil
		}
		l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			l.outbox.Close()
			return err
		}
	}
}

// Recv blocks until the next text frame. Binary frames are skipped
func (l *Link) Recv() ([]byte, error) {
	for {
		kind, data, err := l.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close stops accepting frames. The writer drains what is queued and closes the connection
func (l *Link) Close() {
	l.outbox.Close()
}

// Terminate closes the underlying connection immediately, unblocking Recv
func (l *Link) Terminate() {
	l.outbox.Close()
	l.closeOnce.Do(func() {
		l.conn.Close()
	})
}

// Pending returns how many frames are waiting to be written
func (l *Link) Pending() int {
	return l.outbox.Len()
}

// RemoteAddr returns the address of the other side
func (l *Link) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}

func (l *Link) writeClose() {
	l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	l.closeOnce.Do(func() {
		l.conn.Close()
	})
}

// IsCleanClose reports whether err is a normal websocket shutdown rather than a transport failure
func IsCleanClose(err error) bool {
	return err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
