/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package nameserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNoRelayAvailable(t *testing.T) {
	ns := NewNameServer([]byte("0123456789abcdef0123456789abcdef"))

	rec := httptest.NewRecorder()
	ns.UserEntryPoint(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	ns := NewNameServer([]byte("0123456789abcdef0123456789abcdef"))
	ns.Register("ws://a:8080/ws")
	ns.Register("ws://a:8080/ws")

	if got := ns.Relays(); len(got) != 1 {
		t.Errorf("Expected one relay, got %v", got)
	}
}

func TestRoundRobinAndStickiness(t *testing.T) {
	ns := NewNameServer([]byte("0123456789abcdef0123456789abcdef"))
	ns.Register("ws://a:8080/ws")
	ns.Register("wss://b.example/ws")

	first := httptest.NewRecorder()
	ns.UserEntryPoint(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected a redirect, got %d", first.Code)
	}
	if loc := first.Header().Get("Location"); loc != "http://a:8080/" {
		t.Errorf("Expected the first relay, got %s", loc)
	}

	second := httptest.NewRecorder()
	ns.UserEntryPoint(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if loc := second.Header().Get("Location"); loc != "https://b.example/" {
		t.Errorf("Expected the second relay for a new browser, got %s", loc)
	}

	// The first browser comes back with its cookie
	again := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range first.Result().Cookies() {
		again.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ns.UserEntryPoint(rec, again)
	if loc := rec.Header().Get("Location"); loc != "http://a:8080/" {
		t.Errorf("Expected the pinned relay, got %s", loc)
	}
}

func TestStatusPageURL(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/ws":   "http://localhost:8080/",
		"wss://relay.example/ws?x": "https://relay.example/",
	}
	for in, want := range cases {
		if got := StatusPageURL(in); got != want {
			t.Errorf("StatusPageURL(%s) = %s, want %s", in, got, want)
		}
	}
}
