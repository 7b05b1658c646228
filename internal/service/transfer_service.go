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
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/crypto"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/envelope"
	"github.com/InfamousVague/umbra/internal/transfer"
)

// TransferEventKey is the dm_file_event key carrying transfer control messages
const TransferEventKey = "transfer"

type sealedTransfer struct {
	Nonce      string `json:"nonce"`      // hex
	Ciphertext string `json:"ciphertext"` // base64
}

func transferAAD(fromDid, toDid string) []byte {
	return []byte(TransferEventKey + fromDid + toDid)
}

// TransferService moves files between friends. Control messages and chunks travel as
// dm_file_event envelopes sealed for the peer, so the relay never sees file content
type TransferService interface {
	Offer(ctx context.Context, fileId, peerDid string) (*transfer.Session, error) // Offers a locally stored file to a friend
	Accept(ctx context.Context, transferId string) error                          // Accepts an offer, skipping the chunks already held
	Reject(transferId, reason string) error
	Pause(transferId string) error
	Resume(ctx context.Context, transferId string) error
	Cancel(transferId, reason string) error
	Handle(ctx context.Context, fromDid string, payload *envelope.MetadataPayload) error // Applies a control message from a peer
	Sessions() []*transfer.Session
	Interrupted() ([]*entity.TransferRecord, error) // Transfers a previous run left unfinished, now marked paused
}

type transferService struct {
	ctx     *RuntimeContext
	files   FileService
	manager *transfer.Manager
}

func NewTransferService(ctx *RuntimeContext, files FileService, manager *transfer.Manager) TransferService {
	return &transferService{ctx, files, manager}
}

// seal wraps a control message for peerDid
func (s *transferService) seal(peerDid string, msg *transfer.Message) (Outgoing, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return Outgoing{}, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return Outgoing{}, err
	}
	theirKey, err := friendKey(storage, peerDid)
	if err != nil {
		return Outgoing{}, err
	}
	plaintext, err := msg.Encode()
	if err != nil {
		return Outgoing{}, apperr.Wrap(apperr.RequestMalformed, err, "encoding transfer message")
	}
	nonce, ciphertext, err := crypto.EncryptForRecipient(id.Keys().Encryption, theirKey,
		[]byte(ConversationId(id.Did(), peerDid)), plaintext, transferAAD(id.Did(), peerDid))
	if err != nil {
		return Outgoing{}, apperr.Wrap(apperr.EncryptionFailed, err, "sealing transfer message")
	}
	value, err := json.Marshal(sealedTransfer{hex.EncodeToString(nonce), base64.StdEncoding.EncodeToString(ciphertext)})
	if err != nil {
		return Outgoing{}, err
	}
	payload, err := envelope.Build(envelope.DmFileEvent, envelope.MetadataPayload{
		Key:       TransferEventKey,
		Value:     value,
		Timestamp: s.ctx.NowMillis(),
	})
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{ToDid: peerDid, Payload: payload}, nil
}

func (s *transferService) open(fromDid string, payload *envelope.MetadataPayload) (*transfer.Message, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	theirKey, err := friendKey(storage, fromDid)
	if err != nil {
		return nil, err
	}
	var sealed sealedTransfer
	if err := json.Unmarshal(payload.Value, &sealed); err != nil {
		return nil, apperr.Wrap(apperr.RequestMalformed, err, "transfer envelope from %s", fromDid)
	}
	nonce, errN := hex.DecodeString(sealed.Nonce)
	ciphertext, errC := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if errN != nil || errC != nil {
		return nil, apperr.New(apperr.RequestMalformed, "transfer envelope from %s is not encoded properly", fromDid)
	}
	plaintext, err := crypto.DecryptFromSender(id.Keys().Encryption, theirKey,
		[]byte(ConversationId(id.Did(), fromDid)), nonce, ciphertext, transferAAD(fromDid, id.Did()))
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptionFailed, err, "transfer message from %s", fromDid)
	}
	msg, err := transfer.DecodeMessage(plaintext)
	if err != nil {
		return nil, apperr.Wrap(apperr.RequestMalformed, err, "transfer message from %s", fromDid)
	}
	return msg, nil
}

func (s *transferService) send(peerDid string, msg *transfer.Message) error {
	if msg == nil {
		return nil
	}
	out, err := s.seal(peerDid, msg)
	if err != nil {
		return err
	}
	deliver(s.ctx, out)
	return nil
}

// settle persists the sessions touched by the queued events and tells the host about them
func (s *transferService) settle() {
	storage, err := s.ctx.Storage()
	if err != nil {
		return
	}
	for _, event := range s.manager.DrainEvents() {
		if session := s.manager.Session(event.TransferId); session != nil {
			if err := storage.GetFileRepository().SaveTransfer(transferRecord(session)); err != nil {
				s.ctx.Logf("Could not persist transfer %s: %v", session.TransferId, err)
			}
		}
		s.ctx.Publish(DomainTransfer, string(event.Kind), event)
	}
}

func transferRecord(session *transfer.Session) *entity.TransferRecord {
	var bitmap strings.Builder
	for _, held := range session.Received {
		if held {
			bitmap.WriteByte('1')
		} else {
			bitmap.WriteByte('0')
		}
	}
	return &entity.TransferRecord{
		TransferId:     session.TransferId,
		FileId:         session.FileId,
		PeerDid:        session.PeerDid,
		Direction:      string(session.Direction),
		State:          string(session.State),
		ReceivedBitmap: bitmap.String(),
		StartedAt:      session.StartedAt,
		UpdatedAt:      session.UpdatedAt,
	}
}

// pump sends every chunk the flow control window currently allows
func (s *transferService) pump(ctx context.Context, transferId string) error {
	session := s.manager.Session(transferId)
	if session == nil {
		return nil
	}
	for _, index := range s.manager.ChunksToSend(transferId) {
		payload, err := s.files.Chunk(ctx, session.FileId, index)
		if err != nil {
			return err
		}
		if err := s.send(session.PeerDid, s.manager.ChunkMessage(transferId, index, payload)); err != nil {
			return err
		}
		s.manager.MarkChunkSent(transferId, index, s.ctx.NowMillis())
	}
	return nil
}

func (s *transferService) Offer(ctx context.Context, fileId, peerDid string) (*transfer.Session, error) {
	manifest, _, err := s.files.Manifest(fileId)
	if err != nil {
		return nil, err
	}
	held, err := s.files.Held(fileId)
	if err != nil {
		return nil, err
	}
	if len(held) != manifest.TotalChunks {
		return nil, apperr.New(apperr.TransferState, "file %s is incomplete (%d/%d chunks)", fileId, len(held), manifest.TotalChunks)
	}
	offer, err := s.manager.Initiate(fileId, peerDid, manifest, s.ctx.NowMillis())
	if err != nil {
		return nil, err
	}
	if err := s.send(peerDid, offer); err != nil {
		s.manager.Cancel(offer.TransferId, err.Error(), s.ctx.NowMillis())
		s.settle()
		return nil, err
	}
	session := s.manager.Session(offer.TransferId)
	if storage, err := s.ctx.Storage(); err == nil {
		if err := storage.GetFileRepository().SaveTransfer(transferRecord(session)); err != nil {
			s.ctx.Logf("Could not persist transfer %s: %v", session.TransferId, err)
		}
	}
	return session, nil
}

func (s *transferService) Accept(ctx context.Context, transferId string) error {
	session := s.manager.Session(transferId)
	if session == nil {
		return apperr.New(apperr.TransferState, "transfer %s not found", transferId)
	}
	if err := s.files.AddManifest(session.Manifest); err != nil {
		return err
	}
	held, err := s.files.Held(session.FileId)
	if err != nil {
		return err
	}
	reply, err := s.manager.Accept(transferId, held, s.ctx.NowMillis())
	if err != nil {
		return err
	}
	defer s.settle()
	return s.send(session.PeerDid, reply)
}

// control runs a local state change and forwards its message to the peer
func (s *transferService) control(transferId string, change func(now int64) (*transfer.Message, error)) error {
	session := s.manager.Session(transferId)
	if session == nil {
		return apperr.New(apperr.TransferState, "transfer %s not found", transferId)
	}
	msg, err := change(s.ctx.NowMillis())
	if err != nil {
		return err
	}
	defer s.settle()
	return s.send(session.PeerDid, msg)
}

func (s *transferService) Reject(transferId, reason string) error {
	return s.control(transferId, func(now int64) (*transfer.Message, error) {
		return s.manager.Reject(transferId, reason, now)
	})
}

func (s *transferService) Pause(transferId string) error {
	return s.control(transferId, func(now int64) (*transfer.Message, error) {
		return s.manager.Pause(transferId, now)
	})
}

func (s *transferService) Resume(ctx context.Context, transferId string) error {
	err := s.control(transferId, func(now int64) (*transfer.Message, error) {
		return s.manager.Resume(transferId, now)
	})
	if err != nil {
		return err
	}
	return s.pump(ctx, transferId)
}

func (s *transferService) Cancel(transferId, reason string) error {
	return s.control(transferId, func(now int64) (*transfer.Message, error) {
		return s.manager.Cancel(transferId, reason, now)
	})
}

func (s *transferService) Handle(ctx context.Context, fromDid string, payload *envelope.MetadataPayload) error {
	if payload.Key != TransferEventKey {
		return apperr.New(apperr.RequestMalformed, "unknown file event %q", payload.Key)
	}
	msg, err := s.open(fromDid, payload)
	if err != nil {
		return err
	}
	defer s.settle()

	if msg.Type == transfer.MsgChunk {
		if session := s.manager.Session(msg.TransferId); session != nil && session.PeerDid == fromDid &&
			session.Direction == transfer.Download && session.State == transfer.Transferring {
			err := s.files.PutChunk(ctx, session.FileId, msg.ChunkIndex, msg.Data)
			if err != nil && !apperr.Is(err, apperr.HashMismatch) && !apperr.Is(err, apperr.CorruptChunk) {
				// The chunk is fine but we could not keep it, the sender retries it
				return s.send(fromDid, &transfer.Message{
					Type: transfer.MsgChunkAck, TransferId: msg.TransferId, ChunkIndex: msg.ChunkIndex, Error: err.Error(),
				})
			}
		}
	}

	reply, err := s.manager.OnMessage(fromDid, msg, s.ctx.NowMillis())
	if err != nil {
		return err
	}
	if err := s.send(fromDid, reply); err != nil {
		return err
	}

	switch msg.Type {
	case transfer.MsgAccept, transfer.MsgChunkAck, transfer.MsgResume:
		return s.pump(ctx, msg.TransferId)
	}
	return nil
}

func (s *transferService) Sessions() []*transfer.Session {
	return s.manager.Sessions()
}

func (s *transferService) Interrupted() ([]*entity.TransferRecord, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	repo := storage.GetFileRepository()
	records, err := repo.ListTransfers(string(transfer.Initiated), string(transfer.Accepting), string(transfer.Transferring))
	if err != nil {
		return nil, dbError(err)
	}
	now := s.ctx.NowMillis()
	for _, record := range records {
		record.State = string(transfer.Paused)
		record.UpdatedAt = now
		if err := repo.SaveTransfer(record); err != nil {
			return nil, dbError(err)
		}
	}
	return records, nil
}
