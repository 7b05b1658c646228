/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package envelope defines the versioned JSON objects clients exchange through the relay.
// The relay carries them as opaque `payload` strings; only clients look inside.
package envelope

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/InfamousVague/umbra/internal/apperr"
)

const Version = 1

type Kind string

const (
	FriendRequest   Kind = "friend_request"
	FriendAccept    Kind = "friend_accept"
	FriendAcceptAck Kind = "friend_accept_ack"
	ChatMessage     Kind = "chat_message"
	TypingIndicator Kind = "typing_indicator"
	DeliveryReceipt Kind = "delivery_receipt"
	CommunityEvent  Kind = "community_event"
	DmFileEvent     Kind = "dm_file_event"
	AccountMetadata Kind = "account_metadata"
)

var knownKinds = map[Kind]struct{}{
	FriendRequest: {}, FriendAccept: {}, FriendAcceptAck: {}, ChatMessage: {}, TypingIndicator: {},
	DeliveryReceipt: {}, CommunityEvent: {}, DmFileEvent: {}, AccountMetadata: {},
}

type Envelope struct {
	Envelope Kind            `json:"envelope"`
	Version  int             `json:"version"`
	Payload  json.RawMessage `json:"payload"`
}

type FriendRequestPayload struct {
	Id                string  `json:"id"`
	FromDid           string  `json:"fromDid"`
	FromDisplayName   string  `json:"fromDisplayName"`
	FromAvatar        *string `json:"fromAvatar"`
	FromSigningKey    string  `json:"fromSigningKey"`
	FromEncryptionKey string  `json:"fromEncryptionKey"`
	Message           *string `json:"message"`
	CreatedAt         int64   `json:"createdAt"`
	Signature         string  `json:"signature,omitempty"`
}

type FriendAcceptPayload struct {
	RequestId         string  `json:"requestId"`
	FromDid           string  `json:"fromDid"`
	FromDisplayName   string  `json:"fromDisplayName"`
	FromAvatar        *string `json:"fromAvatar"`
	FromSigningKey    string  `json:"fromSigningKey"`
	FromEncryptionKey string  `json:"fromEncryptionKey"`
}

type FriendAcceptAckPayload struct {
	FromDid string `json:"fromDid"`
	ToDid   string `json:"toDid"`
}

type ChatMessagePayload struct {
	MessageId        string `json:"messageId"`
	ConversationId   string `json:"conversationId"`
	SenderDid        string `json:"senderDid"`
	ContentEncrypted string `json:"contentEncrypted"` // base64
	Nonce            string `json:"nonce"`            // hex
	Timestamp        int64  `json:"timestamp"`
	ThreadId         string `json:"threadId,omitempty"`
}

type TypingIndicatorPayload struct {
	ConversationId string `json:"conversationId"`
	SenderDid      string `json:"senderDid"`
	IsTyping       bool   `json:"isTyping"`
}

type ReceiptType string

const (
	ReceiptDelivered ReceiptType = "delivered"
	ReceiptRead      ReceiptType = "read"
)

type DeliveryReceiptPayload struct {
	MessageId string      `json:"messageId"`
	SenderDid string      `json:"senderDid"`
	Type      ReceiptType `json:"type"`
}

type CommunityEventPayload struct {
	CommunityId string          `json:"communityId"`
	Event       json.RawMessage `json:"event"`
	SenderDid   string          `json:"senderDid"`
	Timestamp   int64           `json:"timestamp"`
}

// MetadataPayload backs both dm_file_event and account_metadata
type MetadataPayload struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
}

// Alternative names accepted for a field, after its canonical name and its snake_case form
var aliases = map[string][]string{
	"fromDid":           {"friendDid"},
	"fromDisplayName":   {"displayName"},
	"fromSigningKey":    {"signingKey"},
	"fromEncryptionKey": {"encryptionKey"},
	"fromAvatar":        {"avatar"},
	"toDid":             {"accepterDid"},
}

// Build wraps payload into a version 1 envelope and returns the string sent as relay payload
func Build(kind Kind, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.ProtocolError, err, "encoding %s payload", kind)
	}
	out, err := json.Marshal(Envelope{kind, Version, raw})
	if err != nil {
		return "", apperr.Wrap(apperr.ProtocolError, err, "encoding %s envelope", kind)
	}
	return string(out), nil
}

// Parse reads the outer envelope. Unknown kinds and versions are protocol errors
func Parse(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, apperr.Wrap(apperr.ProtocolError, err, "envelope is not valid JSON")
	}
	if _, ok := knownKinds[env.Envelope]; !ok {
		return nil, apperr.New(apperr.ProtocolError, "unknown envelope %q", env.Envelope)
	}
	if env.Version != Version {
		return nil, apperr.New(apperr.ProtocolError, "unsupported %s version %d", env.Envelope, env.Version)
	}
	return env, nil
}

// Decode reads the payload into out. Fields may use camelCase, snake_case or one of their aliases; the first one present wins
func (e *Envelope) Decode(out any) error {
	if err := DecodeLenient(e.Payload, out); err != nil {
		return apperr.Wrap(apperr.ProtocolError, err, "decoding %s payload", e.Envelope)
	}
	return nil
}

// DecodeLenient unmarshals a JSON object into out after normalizing its keys to camelCase
func DecodeLenient(data []byte, out any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	normalized := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		canonical := camelCase(key)
		if _, taken := fields[canonical]; taken && canonical != key {
			continue
		}
		normalized[canonical] = value
	}
	for canonical, names := range aliases {
		if _, ok := normalized[canonical]; ok {
			continue
		}
		for _, name := range names {
			if value, ok := normalized[name]; ok {
				normalized[canonical] = value
				break
			}
		}
	}

	rebuilt, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(rebuilt, out)
}

func camelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	var b strings.Builder
	upper := false
	for _, r := range key {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
