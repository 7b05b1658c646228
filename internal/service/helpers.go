/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"errors"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outgoing is an envelope addressed to a DID, ready to be handed to the relay
type Outgoing struct {
	ToDid   string `json:"to_did"`
	Payload string `json:"payload"`
}

// deliver hands every envelope to the relay when connected. It returns how many were sent;
// while offline the envelopes are only returned to the caller, which forwards them once connected
func deliver(ctx *RuntimeContext, out ...Outgoing) int {
	relay, err := ctx.Relay()
	if err != nil {
		ctx.Logf("Offline, %d envelope(s) left to the host", len(out))
		return 0
	}
	sent := 0
	for _, o := range out {
		if err := relay.Send(o.ToDid, o.Payload); err != nil {
			ctx.Logf("Could not send envelope to %s: %v", o.ToDid, err)
			continue
		}
		sent++
	}
	return sent
}

func newId() string {
	return uuid.New().String()
}

// notFound maps a missing row to a coded error, any other failure to DatabaseError
func notFound(err error, code apperr.Code, format string, v ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(code, format, v...)
	}
	return dbError(err)
}

func dbError(err error) error {
	if err == nil {
		return nil
	}
	var coded *apperr.Error
	if errors.As(err, &coded) {
		return err
	}
	return apperr.Wrap(apperr.DatabaseError, err, "database operation failed")
}

func ptr[T any](v T) *T {
	return &v
}
