/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package transfer drives chunked file transfers between two peers.
//
// The Manager is a pure state machine: callers feed it local decisions (initiate, accept, pause, ...) and the
// control messages received from the peer, and forward whatever message it returns over the relay.
// Events describing every state change accumulate until DrainEvents is called.
package transfer

import (
	"sort"
	"sync"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/chunking"
	"github.com/google/uuid"
)

// Manager tracks every transfer session of the process behind one mutex
type Manager struct {
	mu sync.Mutex

	sessions map[string]*Session
	flow     map[string]*FlowControl
	speed    map[string]*SpeedTracker
	inFlight map[string]map[int]int64 // transfer id -> chunk index -> sent at (ms)

	limits Limits
	events []Event

	logger nlog.Logger
}

func NewManager(limits Limits) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		flow:     make(map[string]*FlowControl),
		speed:    make(map[string]*SpeedTracker),
		inFlight: make(map[string]map[int]int64),
		limits:   limits,
	}
}

func (m *Manager) SetLogger(l nlog.Logger) {
	m.logger = l
}

func (m *Manager) Logf(format string, v ...any) {
	if m.logger != nil {
		m.logger.Logf(format, v...)
	}
}

// Session returns a snapshot of the transfer, nil when unknown
func (m *Manager) Session(transferId string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[transferId]; ok {
		return s.clone()
	}
	return nil
}

// Sessions returns snapshots of every tracked transfer, oldest first
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].TransferId < out[j].TransferId
	})
	return out
}

func (m *Manager) activeCount(dir Direction) int {
	n := 0
	for _, s := range m.sessions {
		if s.Direction == dir && s.State.Active() {
			n++
		}
	}
	return n
}

func (m *Manager) transferring(dir Direction) int {
	n := 0
	for _, s := range m.sessions {
		if s.Direction == dir && s.State == Transferring {
			n++
		}
	}
	return n
}

func (m *Manager) ActiveUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCount(Upload)
}

func (m *Manager) ActiveDownloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCount(Download)
}

// DrainEvents hands the accumulated events to the caller and clears them
func (m *Manager) DrainEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}

func (m *Manager) emit(kind EventKind, s *Session, reason string) {
	m.events = append(m.events, Event{
		Kind:       kind,
		TransferId: s.TransferId,
		FileId:     s.FileId,
		PeerDid:    s.PeerDid,
		Filename:   s.Manifest.Filename,
		Sent:       s.Completed,
		Total:      s.Manifest.TotalChunks,
		Bytes:      s.Bytes,
		TotalBytes: s.Manifest.TotalSize,
		SpeedBps:   s.SpeedBps,
		Reason:     reason,
	})
}

func (m *Manager) track(s *Session) {
	m.sessions[s.TransferId] = s
	m.flow[s.TransferId] = NewFlowControl()
	m.speed[s.TransferId] = NewSpeedTracker()
	m.inFlight[s.TransferId] = make(map[int]int64)
}

func (m *Manager) untrack(transferId string) {
	delete(m.flow, transferId)
	delete(m.speed, transferId)
	delete(m.inFlight, transferId)
}

func (m *Manager) get(transferId string) (*Session, error) {
	s, ok := m.sessions[transferId]
	if !ok {
		return nil, apperr.New(apperr.TransferState, "Transfer %s not found", transferId)
	}
	return s, nil
}

func (m *Manager) markExisting(s *Session, indices []int, now int64) {
	for _, idx := range indices {
		s.markChunk(idx, now)
	}
}

// complete moves s to Completed once every chunk is accounted for
func (m *Manager) complete(s *Session, now int64) bool {
	if !s.Finished() || s.State.Terminal() {
		return false
	}
	s.State = Completed
	s.UpdatedAt = now
	m.untrack(s.TransferId)
	m.emit(EventCompleted, s, "")
	m.Logf("Transfer %s of %s completed (%d bytes)", s.TransferId, s.FileId, s.Bytes)
	return true
}

// Initiate opens an upload of the chunked file to peerDid and returns the offer to send
func (m *Manager) Initiate(fileId, peerDid string, manifest *chunking.Manifest, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.activeCount(Upload); active >= m.limits.MaxUploads {
		return nil, apperr.New(apperr.TransferState, "Upload limit reached (%d/%d)", active, m.limits.MaxUploads)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), fileId, peerDid, Upload, Initiated, manifest, now)
	m.track(s)
	m.Logf("Offering %s to %s as transfer %s (%d chunks)", fileId, peerDid, s.TransferId, manifest.TotalChunks)

	return &Message{Type: MsgOffer, TransferId: s.TransferId, FileId: fileId, Manifest: manifest}, nil
}

// Accept takes an incoming offer. existing lists the chunk indices already held locally, the sender skips them
func (m *Manager) Accept(transferId string, existing []int, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(transferId)
	if err != nil {
		return nil, err
	}
	if s.Direction != Download || s.State != Accepting {
		return nil, apperr.New(apperr.TransferState, "Cannot accept transfer in state %s", s.State)
	}
	if active := m.transferring(Download); active >= m.limits.MaxDownloads {
		return nil, apperr.New(apperr.TransferState, "Download limit reached (%d/%d)", active, m.limits.MaxDownloads)
	}

	m.markExisting(s, existing, now)
	s.State = Transferring
	s.UpdatedAt = now
	m.emit(EventStarted, s, "")

	reply := &Message{Type: MsgAccept, TransferId: transferId, ExistingChunks: s.Done(), MissingChunks: s.Pending()}
	m.complete(s, now)
	return reply, nil
}

func (m *Manager) Reject(transferId, reason string, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(transferId)
	if err != nil {
		return nil, err
	}
	if s.State != Accepting {
		return nil, apperr.New(apperr.TransferState, "Cannot reject transfer in state %s", s.State)
	}
	s.State = Cancelled
	s.Error = reason
	s.UpdatedAt = now
	m.untrack(transferId)
	m.emit(EventCancelled, s, reason)

	return &Message{Type: MsgReject, TransferId: transferId, Reason: reason}, nil
}

func (m *Manager) Pause(transferId string, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(transferId)
	if err != nil {
		return nil, err
	}
	if s.State != Transferring {
		return nil, apperr.New(apperr.TransferState, "Cannot pause transfer in state %s", s.State)
	}
	m.pause(s, now)
	return &Message{Type: MsgPause, TransferId: transferId}, nil
}

func (m *Manager) pause(s *Session, now int64) {
	s.State = Paused
	s.UpdatedAt = now
	m.inFlight[s.TransferId] = make(map[int]int64)
	m.emit(EventPaused, s, "")
}

func (m *Manager) Resume(transferId string, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(transferId)
	if err != nil {
		return nil, err
	}
	if s.State != Paused {
		return nil, apperr.New(apperr.TransferState, "Cannot resume transfer in state %s", s.State)
	}
	m.resume(s, now)
	return &Message{Type: MsgResume, TransferId: transferId, ExistingChunks: s.Done()}, nil
}

func (m *Manager) resume(s *Session, now int64) {
	s.State = Transferring
	s.UpdatedAt = now
	m.flow[s.TransferId] = NewFlowControl()
	m.inFlight[s.TransferId] = make(map[int]int64)
	m.emit(EventResumed, s, "")
}

func (m *Manager) Cancel(transferId, reason string, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get(transferId)
	if err != nil {
		return nil, err
	}
	if s.State.Terminal() {
		return nil, apperr.New(apperr.TransferState, "Cannot cancel transfer in terminal state %s", s.State)
	}
	m.cancel(s, reason, now)
	return &Message{Type: MsgCancel, TransferId: transferId, Reason: reason}, nil
}

func (m *Manager) cancel(s *Session, reason string, now int64) {
	s.State = Cancelled
	s.Error = reason
	s.UpdatedAt = now
	m.untrack(s.TransferId)
	m.emit(EventCancelled, s, reason)
}

// ChunksToSend lists the next chunk indices the flow control window allows on an upload
func (m *Manager) ChunksToSend(transferId string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[transferId]
	if !ok || s.State != Transferring || s.Direction != Upload {
		return nil
	}
	flight := m.inFlight[transferId]
	slots := m.flow[transferId].AvailableSlots(len(flight))

	var out []int
	for _, idx := range s.Pending() {
		if len(out) >= slots {
			break
		}
		if _, sent := flight[idx]; !sent {
			out = append(out, idx)
		}
	}
	return out
}

func (m *Manager) MarkChunkSent(transferId string, index int, sentAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flight, ok := m.inFlight[transferId]; ok {
		flight[index] = sentAt
	}
}

// ChunkTimedOut shrinks the window and makes the chunk eligible for a resend
func (m *Manager) ChunkTimedOut(transferId string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fc, ok := m.flow[transferId]; ok {
		fc.OnTimeout()
	}
	if flight, ok := m.inFlight[transferId]; ok {
		delete(flight, index)
	}
}

// ChunkMessage builds the data message for one chunk of an upload
func (m *Manager) ChunkMessage(transferId string, index int, data []byte) *Message {
	return &Message{
		Type:       MsgChunk,
		TransferId: transferId,
		ChunkIndex: index,
		Data:       data,
		Hash:       chunking.Hash(data),
	}
}

// OnMessage applies a control message received from fromDid and returns the reply to send back, if any.
// Duplicates and messages for terminal transfers are ignored
func (m *Manager) OnMessage(fromDid string, msg *Message, now int64) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Type == MsgOffer {
		return nil, m.onOffer(fromDid, msg, now)
	}

	s, err := m.get(msg.TransferId)
	if err != nil {
		return nil, err
	}
	if s.PeerDid != fromDid {
		return nil, apperr.New(apperr.TransferState, "Transfer %s does not belong to %s", msg.TransferId, fromDid)
	}
	if s.State.Terminal() {
		return nil, nil
	}

	switch msg.Type {
	case MsgAccept:
		return m.onAccept(s, msg, now), nil
	case MsgReject:
		s.State = Failed
		s.Error = "Rejected: " + msg.Reason
		s.UpdatedAt = now
		m.untrack(s.TransferId)
		m.emit(EventFailed, s, s.Error)
	case MsgPause:
		if s.State == Transferring {
			m.pause(s, now)
		}
	case MsgResume:
		if s.State == Paused {
			m.markExisting(s, msg.ExistingChunks, now)
			m.resume(s, now)
		}
	case MsgCancel:
		m.cancel(s, msg.Reason, now)
	case MsgChunk:
		return m.onChunk(s, msg, now), nil
	case MsgChunkAck:
		return m.onChunkAck(s, msg, now), nil
	case MsgComplete:
		m.onComplete(s, msg, now)
	}
	return nil, nil
}

func (m *Manager) onOffer(fromDid string, msg *Message, now int64) error {
	if msg.Manifest == nil {
		return apperr.New(apperr.RequestMalformed, "Transfer offer %s without manifest", msg.TransferId)
	}
	if err := msg.Manifest.Validate(); err != nil {
		return apperr.Wrap(apperr.RequestMalformed, err, "Transfer offer %s has an invalid manifest", msg.TransferId)
	}
	if _, exists := m.sessions[msg.TransferId]; exists {
		return nil
	}
	s := newSession(msg.TransferId, msg.FileId, fromDid, Download, Accepting, msg.Manifest, now)
	m.track(s)
	m.emit(EventIncoming, s, "")
	m.Logf("Incoming transfer %s of %s from %s", s.TransferId, s.FileId, fromDid)
	return nil
}

func (m *Manager) onAccept(s *Session, msg *Message, now int64) *Message {
	if s.Direction != Upload || s.State != Initiated {
		return nil
	}
	m.markExisting(s, msg.ExistingChunks, now)
	s.State = Transferring
	s.UpdatedAt = now
	m.emit(EventStarted, s, "")
	if m.complete(s, now) {
		return &Message{Type: MsgComplete, TransferId: s.TransferId, FileHash: s.Manifest.FileHash}
	}
	return nil
}

func (m *Manager) onChunk(s *Session, msg *Message, now int64) *Message {
	if s.Direction != Download || s.State != Transferring {
		return nil
	}
	ack := &Message{Type: MsgChunkAck, TransferId: s.TransferId, ChunkIndex: msg.ChunkIndex}

	expected := msg.Hash
	if msg.ChunkIndex >= 0 && msg.ChunkIndex < len(s.Manifest.Chunks) {
		expected = s.Manifest.Chunks[msg.ChunkIndex].Hash
	}
	if actual := chunking.Hash(msg.Data); actual != expected {
		ack.Error = "Hash mismatch: expected " + expected + ", got " + actual
		return ack
	}

	last := s.UpdatedAt
	if s.markChunk(msg.ChunkIndex, now) {
		tracker := m.speed[s.TransferId]
		tracker.Record(len(msg.Data), max(now-last, 1))
		s.SpeedBps = tracker.BytesPerSecond()
		m.emit(EventProgressed, s, "")
	}
	m.complete(s, now)
	ack.Success = true
	return ack
}

func (m *Manager) onChunkAck(s *Session, msg *Message, now int64) *Message {
	if s.Direction != Upload {
		return nil
	}
	flight := m.inFlight[s.TransferId]
	sentAt, wasInFlight := flight[msg.ChunkIndex]
	delete(flight, msg.ChunkIndex)

	if !msg.Success {
		m.flow[s.TransferId].OnTimeout()
		m.Logf("Chunk %d of transfer %s refused: %s", msg.ChunkIndex, s.TransferId, msg.Error)
		return nil
	}

	if wasInFlight {
		rtt := now - sentAt
		m.flow[s.TransferId].OnAck(rtt)
		m.speed[s.TransferId].Record(s.chunkSize(msg.ChunkIndex), rtt)
		s.SpeedBps = m.speed[s.TransferId].BytesPerSecond()
	}
	if s.markChunk(msg.ChunkIndex, now) {
		m.emit(EventProgressed, s, "")
	}
	if m.complete(s, now) {
		return &Message{Type: MsgComplete, TransferId: s.TransferId, FileHash: s.Manifest.FileHash}
	}
	return nil
}

func (m *Manager) onComplete(s *Session, msg *Message, now int64) {
	if msg.FileHash != s.Manifest.FileHash {
		s.State = Failed
		s.Error = "File hash mismatch"
		s.UpdatedAt = now
		m.untrack(s.TransferId)
		m.emit(EventFailed, s, s.Error)
		return
	}
	if !s.Finished() {
		s.State = Failed
		s.Error = "Peer reported completion with missing chunks"
		s.UpdatedAt = now
		m.untrack(s.TransferId)
		m.emit(EventFailed, s, s.Error)
	}
}

// ClearFinished forgets every transfer in a terminal state
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.State.Terminal() {
			delete(m.sessions, id)
			m.untrack(id)
			n++
		}
	}
	return n
}
