/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package handler

import (
	"net/http"
	"time"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/topology"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/view"
)

const Version = "0.1.0"

// StatsSource is the data plane, seen by the info routes
type StatsSource interface {
	Stats() data.RelayStats
}

// PeerLister is the federation, seen by the info routes
type PeerLister interface {
	ConnectedPeers() []topology.PeerInfo
}

// RelayDescription is served on /info
type RelayDescription struct {
	RelayId  node.RelayId   `json:"relay_id"`
	URL      string         `json:"url"`
	Region   string         `json:"region"`
	Location string         `json:"location"`
	Mode     node.RelayMode `json:"mode"`
	Version  string         `json:"version"`
}

// DescribeRelay builds the description of a relay from its info
func DescribeRelay(info *node.RelayInfo, mode node.RelayMode) RelayDescription {
	return RelayDescription{
		RelayId:  info.GetId(),
		URL:      info.GetURL(),
		Region:   info.GetRegion(),
		Location: info.GetLocation(),
		Mode:     mode,
		Version:  Version,
	}
}

// InfoHandler serves the health, stats and info routes, plus the status page
type InfoHandler struct {
	description RelayDescription
	stats       StatsSource
	peers       PeerLister // nil on a standalone relay
	renderer    *view.PageRenderer
}

func NewInfoHandler(description RelayDescription, stats StatsSource, peers PeerLister, renderer *view.PageRenderer) *InfoHandler {
	return &InfoHandler{description, stats, peers, renderer}
}

func (i *InfoHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"relay_id":  i.description.RelayId,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (i *InfoHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, i.stats.Stats())
}

func (i *InfoHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, i.description)
}

func (i *InfoHandler) Peers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, i.peerList())
}

// Status renders the human readable status page
func (i *InfoHandler) Status(w http.ResponseWriter, r *http.Request) {
	if i.renderer == nil {
		http.Error(w, "Status page is not available", http.StatusNotFound)
		return
	}

	data := map[string]any{
		"Info":  i.description,
		"Stats": i.stats.Stats(),
		"Peers": i.peerList(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := i.renderer.RenderTemplate(w, "status.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (i *InfoHandler) peerList() []topology.PeerInfo {
	if i.peers == nil {
		return []topology.PeerInfo{}
	}
	return i.peers.ConnectedPeers()
}
