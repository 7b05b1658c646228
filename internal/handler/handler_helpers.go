/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/InfamousVague/umbra/internal/apperr"
)

const maxBodyBytes = 1 << 20

// errorBody is what every failed JSON route answers with
type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status. Coded errors keep their code in the body
func writeError(w http.ResponseWriter, err error) {
	var coded *apperr.Error
	if !errors.As(err, &coded) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, statusOf(coded.Code), errorBody{Error: coded.Error(), Code: int(coded.Code)})
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.InvalidInput, apperr.RequestMalformed, apperr.ProfileValidation:
		return http.StatusBadRequest
	case apperr.PermissionDenied:
		return http.StatusForbidden
	case apperr.EntityNotFound, apperr.NotFound, apperr.RequestNotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.NotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into v, rejecting unknown fields and oversized bodies
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.New(apperr.InvalidInput, "invalid request body: %v", err)
	}
	return nil
}

// requireField rejects empty mandatory fields
func requireField(name, value string) error {
	if value == "" {
		return apperr.New(apperr.InvalidInput, "%s is required", name)
	}
	return nil
}

// badRequest answers a plain 400 for errors raised before any service is called
func badRequest(w http.ResponseWriter, format string, v ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, v...)})
}
