/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package apperr holds the typed errors returned by the client core.
// Every error carries a numeric code, stable across releases, so host bindings can branch on it without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

type Code int

const (
	NotInitialized Code = 100

	NoIdentity            Code = 200
	IdentityExists        Code = 201
	InvalidRecoveryPhrase Code = 202
	KeyDerivationFailed   Code = 203
	DidMismatch           Code = 204
	ProfileValidation     Code = 205

	NetworkNotStarted Code = 300
	PeerUnreachable   Code = 301
	ProtocolError     Code = 302

	DatabaseError   Code = 400
	MigrationFailed Code = 401
	NotFound        Code = 402

	AlreadyFriends Code = 500
	UserBlocked    Code = 501
	NotFriends     Code = 502
	RequestPending Code = 503

	RequestNotFound  Code = 600
	RequestExpired   Code = 601
	RequestMalformed Code = 602
	SelfRequest      Code = 603

	ConversationNotFound Code = 700
	InvalidKey           Code = 701
	InvalidAAD           Code = 702
	DecryptionFailed     Code = 703
	EncryptionFailed     Code = 704
	MessageTooLarge      Code = 705

	InvalidKeyLength     Code = 750
	InvalidSignature     Code = 751
	AeadFailure          Code = 752
	KeyDerivationFailure Code = 753

	PermissionDenied Code = 801
	EntityNotFound   Code = 802
	InvalidInput     Code = 803
	Conflict         Code = 804

	CorruptChunk  Code = 900
	HashMismatch  Code = 901
	TransferState Code = 902

	// NotImplemented would be 501, it is moved to avoid the clash with UserBlocked
	NotImplemented Code = 1000
)

var codeNames = map[Code]string{
	NotInitialized: "not initialized",

	NoIdentity:            "no identity",
	IdentityExists:        "identity already exists",
	InvalidRecoveryPhrase: "invalid recovery phrase",
	KeyDerivationFailed:   "key derivation failed",
	DidMismatch:           "did mismatch",
	ProfileValidation:     "invalid profile",

	NetworkNotStarted: "network not started",
	PeerUnreachable:   "peer unreachable",
	ProtocolError:     "protocol error",

	DatabaseError:   "database error",
	MigrationFailed: "migration failed",
	NotFound:        "not found",

	AlreadyFriends: "already friends",
	UserBlocked:    "user blocked",
	NotFriends:     "not friends",
	RequestPending: "request pending",

	RequestNotFound:  "request not found",
	RequestExpired:   "request expired",
	RequestMalformed: "malformed request",
	SelfRequest:      "cannot send a request to yourself",

	ConversationNotFound: "conversation not found",
	InvalidKey:           "invalid key",
	InvalidAAD:           "invalid additional data",
	DecryptionFailed:     "decryption failed",
	EncryptionFailed:     "encryption failed",
	MessageTooLarge:      "message too large",

	InvalidKeyLength:     "invalid key length",
	InvalidSignature:     "invalid signature",
	AeadFailure:          "aead failure",
	KeyDerivationFailure: "key derivation failure",

	PermissionDenied: "permission denied",
	EntityNotFound:   "entity not found",
	InvalidInput:     "invalid input",
	Conflict:         "conflict",

	CorruptChunk:  "corrupt chunk",
	HashMismatch:  "hash mismatch",
	TransferState: "invalid transfer state",

	NotImplemented: "not implemented",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error is the single error type of the client core
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", int(e.Code), msg, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", int(e.Code), msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on the code alone: errors.Is(err, apperr.New(apperr.NotFound, ""))
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func New(code Code, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

func Wrap(code Code, cause error, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...), Cause: cause}
}

// Denied builds the PermissionDenied error for a missing capability
func Denied(capability string) *Error {
	return &Error{Code: PermissionDenied, Message: fmt.Sprintf("missing permission %s", capability)}
}

// CodeOf extracts the code of err, 0 when err is nil or not an *Error
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRecoverable reports errors worth retrying: transport and persistence failures
func IsRecoverable(err error) bool {
	code := CodeOf(err)
	return (code >= 300 && code < 500)
}

// RequiresUserAction reports errors the user has to resolve: identity, friendship, request and permission failures
func RequiresUserAction(err error) bool {
	code := CodeOf(err)
	switch {
	case code >= 200 && code < 300:
		return true
	case code >= 500 && code < 700:
		return true
	case code == PermissionDenied:
		return true
	}
	return false
}
