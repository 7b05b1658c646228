/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/InfamousVague/umbra/internal/chunking"
)

type MessageType string

const (
	MsgOffer    MessageType = "transfer_offer"
	MsgAccept   MessageType = "transfer_accept"
	MsgReject   MessageType = "transfer_reject"
	MsgPause    MessageType = "transfer_pause"
	MsgResume   MessageType = "transfer_resume"
	MsgCancel   MessageType = "transfer_cancel"
	MsgChunk    MessageType = "chunk_data"
	MsgChunkAck MessageType = "chunk_ack"
	MsgComplete MessageType = "transfer_complete"
)

var knownMessageTypes = map[MessageType]struct{}{
	MsgOffer: {}, MsgAccept: {}, MsgReject: {}, MsgPause: {}, MsgResume: {}, MsgCancel: {},
	MsgChunk: {}, MsgChunkAck: {}, MsgComplete: {},
}

// Message is a transfer control message. The relay carries it as an opaque payload
type Message struct {
	Type       MessageType `json:"type"`
	TransferId string      `json:"transfer_id"`

	FileId   string             `json:"file_id,omitempty"`  // offer
	Manifest *chunking.Manifest `json:"manifest,omitempty"` // offer

	ExistingChunks []int `json:"existing_chunks,omitempty"` // accept, resume
	MissingChunks  []int `json:"missing_chunks,omitempty"`  // accept

	Reason string `json:"reason,omitempty"` // reject, cancel

	ChunkIndex int    `json:"chunk_index"`         // chunk_data, chunk_ack
	Data       []byte `json:"data_b64,omitempty"`  // chunk_data
	Hash       string `json:"hash,omitempty"`      // chunk_data
	Success    bool   `json:"success,omitempty"`   // chunk_ack
	Error      string `json:"error,omitempty"`     // chunk_ack
	FileHash   string `json:"file_hash,omitempty"` // complete
}

func DecodeMessage(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if _, ok := knownMessageTypes[msg.Type]; !ok {
		return nil, fmt.Errorf("unknown transfer message `%s`", msg.Type)
	}
	if msg.TransferId == "" {
		return nil, fmt.Errorf("transfer message without transfer_id")
	}
	return msg, nil
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

type EventKind string

const (
	EventIncoming   EventKind = "transfer_incoming"
	EventStarted    EventKind = "transfer_started"
	EventProgressed EventKind = "transfer_progressed"
	EventPaused     EventKind = "transfer_paused"
	EventResumed    EventKind = "transfer_resumed"
	EventCompleted  EventKind = "transfer_completed"
	EventCancelled  EventKind = "transfer_cancelled"
	EventFailed     EventKind = "transfer_failed"
)

type Event struct {
	Kind       EventKind `json:"kind"`
	TransferId string    `json:"transfer_id"`
	FileId     string    `json:"file_id"`
	PeerDid    string    `json:"peer_did"`
	Filename   string    `json:"filename,omitempty"`
	Sent       int       `json:"sent"`
	Total      int       `json:"total"`
	Bytes      int64     `json:"bytes"`
	TotalBytes int64     `json:"total_bytes"`
	SpeedBps   int64     `json:"speed_bps"`
	Reason     string    `json:"reason,omitempty"`
}
