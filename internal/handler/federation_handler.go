/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package handler

import (
	"context"
	"net/http"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/nlog"
)

// PeerAcceptor serves an inbound federation link until it drops. cluster.Federation implements it
type PeerAcceptor interface {
	Accept(ctx context.Context, link *network.Link)
}

// FederationHandler serves /federation, the endpoint peer relays dial
type FederationHandler struct {
	acceptor PeerAcceptor
	ctx      context.Context
	logger   nlog.Logger
}

func NewFederationHandler(ctx context.Context, acceptor PeerAcceptor, logger nlog.Logger) *FederationHandler {
	return &FederationHandler{acceptor, ctx, logger}
}

func (f *FederationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if f.acceptor == nil {
		http.Error(w, "Federation is not enabled on this relay", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if f.logger != nil {
			f.logger.Logf("Federation upgrade failed for %s: %v", r.RemoteAddr, err)
		}
		return
	}
	if f.logger != nil {
		f.logger.Logf("Inbound peer link from %s", r.RemoteAddr)
	}
	f.acceptor.Accept(f.ctx, network.NewLink(conn))
}
