/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package transfer

import "github.com/InfamousVague/umbra/internal/chunking"

type State string

const (
	Initiated    State = "initiated" // sender, offer sent
	Accepting    State = "accepting" // receiver, offer pending a decision
	Transferring State = "transferring"
	Paused       State = "paused"
	Completed    State = "completed"
	Cancelled    State = "cancelled"
	Failed       State = "failed"
)

func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Active states count against the concurrency limits
func (s State) Active() bool {
	return s == Initiated || s == Accepting || s == Transferring
}

type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

type Session struct {
	TransferId string
	FileId     string
	PeerDid    string
	Direction  Direction
	State      State
	Manifest   *chunking.Manifest

	Received  []bool // chunk bitmap, sent+acked for uploads
	Completed int
	Bytes     int64
	SpeedBps  int64
	Error     string

	StartedAt int64
	UpdatedAt int64
}

func newSession(id, fileId, peerDid string, dir Direction, state State, manifest *chunking.Manifest, now int64) *Session {
	return &Session{
		TransferId: id,
		FileId:     fileId,
		PeerDid:    peerDid,
		Direction:  dir,
		State:      state,
		Manifest:   manifest,
		Received:   make([]bool, manifest.TotalChunks),
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Session) markChunk(index int, now int64) bool {
	if index < 0 || index >= len(s.Received) || s.Received[index] {
		return false
	}
	s.Received[index] = true
	s.Completed++
	s.Bytes += int64(s.chunkSize(index))
	s.UpdatedAt = now
	return true
}

func (s *Session) chunkSize(index int) int {
	if index < len(s.Manifest.Chunks) {
		return s.Manifest.Chunks[index].Size
	}
	return 0
}

func (s *Session) Pending() []int {
	var out []int
	for i, done := range s.Received {
		if !done {
			out = append(out, i)
		}
	}
	return out
}

func (s *Session) Done() []int {
	var out []int
	for i, done := range s.Received {
		if done {
			out = append(out, i)
		}
	}
	return out
}

func (s *Session) Finished() bool {
	return s.Completed == s.Manifest.TotalChunks
}

func (s *Session) Progress() float64 {
	if s.Manifest.TotalChunks == 0 {
		return 100
	}
	return float64(s.Completed) / float64(s.Manifest.TotalChunks) * 100
}

func (s *Session) clone() *Session {
	c := *s
	c.Received = append([]bool(nil), s.Received...)
	return &c
}
