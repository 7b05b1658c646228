/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package transfer

import (
	"testing"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/chunking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	senderDid   = "did:key:zSender"
	receiverDid = "did:key:zReceiver"
)

func testFile(t *testing.T, size, chunkSize int) (*chunking.Manifest, []chunking.Chunk) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	manifest, chunks, err := chunking.Split("file-1", "photo.png", data, chunkSize)
	require.NoError(t, err)
	return manifest, chunks
}

// roundTrip encodes and decodes msg, the way it crosses the relay
func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()
	raw, err := msg.Encode()
	require.NoError(t, err)
	out, err := DecodeMessage(raw)
	require.NoError(t, err)
	return out
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func offerAndAccept(t *testing.T, sender, receiver *Manager, manifest *chunking.Manifest, existing []int) string {
	t.Helper()
	offer, err := sender.Initiate("file-1", receiverDid, manifest, 1000)
	require.NoError(t, err)

	reply, err := receiver.OnMessage(senderDid, roundTrip(t, offer), 1001)
	require.NoError(t, err)
	assert.Nil(t, reply)

	accept, err := receiver.Accept(offer.TransferId, existing, 1002)
	require.NoError(t, err)

	_, err = sender.OnMessage(receiverDid, roundTrip(t, accept), 1003)
	require.NoError(t, err)
	return offer.TransferId
}

func TestFullTransfer(t *testing.T) {
	manifest, chunks := testFile(t, 1000, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())

	id := offerAndAccept(t, sender, receiver, manifest, nil)
	assert.Equal(t, Transferring, sender.Session(id).State)
	assert.Equal(t, Transferring, receiver.Session(id).State)

	now := int64(2000)
	var final *Message
	for final == nil {
		batch := sender.ChunksToSend(id)
		require.NotEmpty(t, batch)
		for _, idx := range batch {
			sender.MarkChunkSent(id, idx, now)
			ack, err := receiver.OnMessage(senderDid, roundTrip(t, sender.ChunkMessage(id, idx, chunks[idx].Data)), now+5)
			require.NoError(t, err)
			require.True(t, ack.Success)
			final, err = sender.OnMessage(receiverDid, roundTrip(t, ack), now+10)
			require.NoError(t, err)
		}
		now += 20
	}

	assert.Equal(t, MsgComplete, final.Type)
	assert.Equal(t, manifest.FileHash, final.FileHash)
	_, err := receiver.OnMessage(senderDid, final, now)
	require.NoError(t, err)

	assert.Equal(t, Completed, sender.Session(id).State)
	assert.Equal(t, Completed, receiver.Session(id).State)
	assert.Equal(t, int64(1000), receiver.Session(id).Bytes)

	recv := kinds(receiver.DrainEvents())
	assert.Equal(t, EventIncoming, recv[0])
	assert.Equal(t, EventStarted, recv[1])
	assert.Equal(t, EventCompleted, recv[len(recv)-1])
	assert.Empty(t, receiver.DrainEvents())

	sent := kinds(sender.DrainEvents())
	assert.Equal(t, EventStarted, sent[0])
	assert.Equal(t, EventCompleted, sent[len(sent)-1])
}

func TestResumeSkipsExistingChunks(t *testing.T) {
	manifest, _ := testFile(t, 500, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())

	id := offerAndAccept(t, sender, receiver, manifest, []int{0, 1, 3})

	assert.Equal(t, []int{2, 4}, sender.ChunksToSend(id))
	assert.Equal(t, []int{2, 4}, receiver.Session(id).Pending())
}

func TestAcceptWithEveryChunkCompletes(t *testing.T) {
	manifest, _ := testFile(t, 200, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())

	offer, err := sender.Initiate("file-1", receiverDid, manifest, 1)
	require.NoError(t, err)
	_, err = receiver.OnMessage(senderDid, offer, 2)
	require.NoError(t, err)
	accept, err := receiver.Accept(offer.TransferId, []int{0, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, accept.MissingChunks)
	assert.Equal(t, Completed, receiver.Session(offer.TransferId).State)

	done, err := sender.OnMessage(receiverDid, accept, 4)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, MsgComplete, done.Type)
}

func TestWindowLimitsChunksInFlight(t *testing.T) {
	manifest, _ := testFile(t, 1000, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())
	id := offerAndAccept(t, sender, receiver, manifest, nil)

	batch := sender.ChunksToSend(id)
	assert.Equal(t, []int{0, 1}, batch)
	for _, idx := range batch {
		sender.MarkChunkSent(id, idx, 10)
	}
	assert.Empty(t, sender.ChunksToSend(id))

	sender.ChunkTimedOut(id, 0)
	assert.Equal(t, []int{}, append([]int{}, sender.ChunksToSend(id)...))

	sender.ChunkTimedOut(id, 1)
	assert.Equal(t, []int{0}, sender.ChunksToSend(id))
}

func TestBadChunkIsRefused(t *testing.T) {
	manifest, chunks := testFile(t, 300, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())
	id := offerAndAccept(t, sender, receiver, manifest, nil)

	tampered := append([]byte(nil), chunks[1].Data...)
	tampered[0] ^= 1
	msg := &Message{Type: MsgChunk, TransferId: id, ChunkIndex: 1, Data: tampered, Hash: chunking.Hash(tampered)}

	ack, err := receiver.OnMessage(senderDid, msg, 10)
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "Hash mismatch")
	assert.Zero(t, receiver.Session(id).Completed)
}

func TestPauseResume(t *testing.T) {
	manifest, _ := testFile(t, 300, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())
	id := offerAndAccept(t, sender, receiver, manifest, nil)
	sender.DrainEvents()

	pause, err := sender.Pause(id, 10)
	require.NoError(t, err)
	_, err = receiver.OnMessage(senderDid, pause, 11)
	require.NoError(t, err)
	assert.Equal(t, Paused, receiver.Session(id).State)
	assert.Empty(t, sender.ChunksToSend(id))

	_, err = sender.Pause(id, 12)
	assert.True(t, apperr.Is(err, apperr.TransferState))

	resume, err := receiver.Resume(id, 20)
	require.NoError(t, err)
	_, err = sender.OnMessage(receiverDid, resume, 21)
	require.NoError(t, err)
	_, err = sender.OnMessage(receiverDid, resume, 22)
	require.NoError(t, err)

	assert.Equal(t, Transferring, sender.Session(id).State)
	assert.Equal(t, []EventKind{EventPaused, EventResumed}, kinds(sender.DrainEvents()))
}

func TestCancelIsTerminal(t *testing.T) {
	manifest, _ := testFile(t, 300, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())
	id := offerAndAccept(t, sender, receiver, manifest, nil)

	cancel, err := receiver.Cancel(id, "changed my mind", 10)
	require.NoError(t, err)
	_, err = sender.OnMessage(receiverDid, cancel, 11)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, sender.Session(id).State)
	assert.Equal(t, "changed my mind", sender.Session(id).Error)

	_, err = sender.Resume(id, 12)
	assert.Error(t, err)
	_, err = sender.Cancel(id, "", 13)
	assert.Error(t, err)

	assert.Equal(t, 1, sender.ClearFinished())
	assert.Nil(t, sender.Session(id))
}

func TestRejectFailsSender(t *testing.T) {
	manifest, _ := testFile(t, 100, 100)
	sender := NewManager(DefaultLimits())
	receiver := NewManager(DefaultLimits())

	offer, err := sender.Initiate("file-1", receiverDid, manifest, 1)
	require.NoError(t, err)
	_, err = receiver.OnMessage(senderDid, offer, 2)
	require.NoError(t, err)
	reject, err := receiver.Reject(offer.TransferId, "no space", 3)
	require.NoError(t, err)

	_, err = sender.OnMessage(receiverDid, reject, 4)
	require.NoError(t, err)
	s := sender.Session(offer.TransferId)
	assert.Equal(t, Failed, s.State)
	assert.Equal(t, "Rejected: no space", s.Error)
}

func TestForeignPeerIsRejected(t *testing.T) {
	manifest, _ := testFile(t, 100, 100)
	sender := NewManager(DefaultLimits())
	offer, err := sender.Initiate("file-1", receiverDid, manifest, 1)
	require.NoError(t, err)

	_, err = sender.OnMessage("did:key:zMallory", &Message{Type: MsgCancel, TransferId: offer.TransferId}, 2)
	assert.True(t, apperr.Is(err, apperr.TransferState))
	assert.Equal(t, Initiated, sender.Session(offer.TransferId).State)
}

func TestMalformedOfferIsRefused(t *testing.T) {
	good, _ := testFile(t, 300, 100)
	receiver := NewManager(DefaultLimits())

	bad := []*chunking.Manifest{
		{FileId: "file-1", ChunkSize: 100, TotalChunks: -1},
		{FileId: "file-1", ChunkSize: 100, TotalSize: -5},
		{FileId: "file-1", ChunkSize: 1, TotalSize: chunking.MaxTotalChunks + 1, TotalChunks: chunking.MaxTotalChunks + 1},
		{FileId: "file-1", ChunkSize: 100, TotalSize: 300, TotalChunks: 3},
		{FileId: "file-1", ChunkSize: 100, TotalSize: 300, TotalChunks: 2, Chunks: good.Chunks[:2]},
		{FileId: "file-1", ChunkSize: 0, TotalSize: 300, TotalChunks: 3, Chunks: good.Chunks},
	}
	for i, manifest := range bad {
		offer := &Message{Type: MsgOffer, TransferId: "t-bad", FileId: "file-1", Manifest: manifest}
		var err error
		require.NotPanics(t, func() {
			_, err = receiver.OnMessage(senderDid, offer, int64(i))
		})
		assert.True(t, apperr.Is(err, apperr.RequestMalformed), "manifest %d: %v", i, err)
		assert.Nil(t, receiver.Session("t-bad"))
	}
	assert.Empty(t, receiver.DrainEvents())

	_, err := receiver.OnMessage(senderDid, &Message{Type: MsgOffer, TransferId: "t-good", FileId: "file-1", Manifest: good}, 10)
	require.NoError(t, err)
	assert.NotNil(t, receiver.Session("t-good"))
}

func TestUploadLimit(t *testing.T) {
	manifest, _ := testFile(t, 100, 100)
	sender := NewManager(Limits{MaxUploads: 1, MaxDownloads: 1})

	_, err := sender.Initiate("file-1", receiverDid, manifest, 1)
	require.NoError(t, err)
	_, err = sender.Initiate("file-2", receiverDid, manifest, 2)
	assert.True(t, apperr.Is(err, apperr.TransferState))
	assert.Equal(t, 1, sender.ActiveUploads())
}

func TestDecodeMessage(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"nope","transfer_id":"x"}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`{"type":"transfer_pause"}`))
	assert.Error(t, err)
	msg, err := DecodeMessage([]byte(`{"type":"chunk_ack","transfer_id":"x","chunk_index":3,"success":true}`))
	require.NoError(t, err)
	assert.Equal(t, 3, msg.ChunkIndex)
}

func TestFlowControl(t *testing.T) {
	fc := NewFlowControl()
	assert.Equal(t, 2, fc.Window)

	for i := 0; i < 4; i++ {
		fc.OnAck(80)
	}
	assert.Equal(t, 3, fc.Window)
	assert.Equal(t, int64(80), fc.AvgRttMs)

	fc.OnAck(160)
	assert.Equal(t, int64(90), fc.AvgRttMs)

	for i := 0; i < 100; i++ {
		fc.OnAck(100)
	}
	assert.Equal(t, maxWindow, fc.Window)

	fc.OnTimeout()
	assert.Equal(t, 4, fc.Window)
	for i := 0; i < 5; i++ {
		fc.OnTimeout()
	}
	assert.Equal(t, minWindow, fc.Window)
	assert.Equal(t, 0, fc.AvailableSlots(3))
}

func TestSpeedTracker(t *testing.T) {
	st := NewSpeedTracker()
	assert.Zero(t, st.BytesPerSecond())
	st.Record(1000, 0)
	assert.Zero(t, st.BytesPerSecond())

	st.Reset()
	for i := 0; i < 20; i++ {
		st.Record(1000, 100)
	}
	assert.Len(t, st.samples, speedSamples)
	assert.Equal(t, int64(10_000), st.BytesPerSecond())
}
